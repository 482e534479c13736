// Package discovery defines the core types shared across the contact
// discovery subsystems and the orchestrating Engine.
package discovery

import (
	"net/http"
	"strings"
	"time"
)

// Source identifies which strategy produced a candidate address.
type Source string

// Candidate sources.
const (
	SourcePatternInference Source = "PatternInference"
	SourceSiteCrawl        Source = "SiteCrawl"
	SourceWebSearch        Source = "WebSearch"
)

// Confidence assigned by each strategy.
const (
	ConfidencePattern   = 0.5
	ConfidenceWebSearch = 0.6
	ConfidenceSiteCrawl = 0.9
)

// Request is a single discovery request. Either field may be empty.
type Request struct {
	Name        string `json:"name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// Normalize trims surrounding whitespace from both fields.
func (r Request) Normalize() Request {
	return Request{
		Name:        strings.TrimSpace(r.Name),
		CompanyName: strings.TrimSpace(r.CompanyName),
	}
}

// Empty reports whether the request carries neither a name nor a company.
func (r Request) Empty() bool {
	n := r.Normalize()
	return n.Name == "" && n.CompanyName == ""
}

// Candidate is an inferred or discovered email address.
type Candidate struct {
	Address    string  `json:"address"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
	// FoundOn is the page an address was extracted from; crawl results only.
	FoundOn string `json:"found_on,omitempty"`
}

// ResolutionMethod records how a company domain was obtained.
type ResolutionMethod string

// Resolution methods.
const (
	ResolutionSearch   ResolutionMethod = "search"
	ResolutionFallback ResolutionMethod = "fallback"
)

// Resolution is the outcome of resolving a company name to a domain.
// Domain is always populated; Err explains why a fallback was used.
type Resolution struct {
	Domain string
	Method ResolutionMethod
	Err    error
}

// Report is the full result of one discovery run.
type Report struct {
	RunID        string           `json:"run_id"`
	Request      Request          `json:"request"`
	Domain       string           `json:"domain,omitempty"`
	DomainMethod ResolutionMethod `json:"domain_method,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Candidates   []Candidate      `json:"candidates"`
	// Partial is set when the run was cut short by cancellation.
	Partial bool `json:"partial,omitempty"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL                   string
	Headers               http.Header
	RespectRobots         bool
	RespectRobotsProvided bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
	// RobotsUnverified is set when robots.txt could not be read and the
	// fetch went ahead as if everything were allowed.
	RobotsUnverified bool
}
