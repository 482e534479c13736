package discovery

import (
	"context"
	"time"
)

// DomainResolver maps a company name to its web domain. It never fails; on
// any error it falls back to a guessed domain.
type DomainResolver interface {
	Resolve(ctx context.Context, companyName string) Resolution
}

// PatternGenerator infers mailbox addresses from naming conventions.
type PatternGenerator interface {
	Generate(name, domain string) []Candidate
}

// SiteCrawler walks a company site and returns relevant addresses found on it.
type SiteCrawler interface {
	Crawl(ctx context.Context, domain string) []Candidate
}

// NameSearcher looks up addresses for a person with a single web search.
type NameSearcher interface {
	Search(ctx context.Context, name string) []Candidate
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a fetched page needs a rendered retry.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Launcher starts rendered browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (BrowserSession, error)
}

// BrowserSession is a single rendered browsing context. Callers must Close it.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) (string, error)
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
