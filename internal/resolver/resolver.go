// Package resolver maps company names to web domains.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

// hostPattern captures the hostname of a result link, minus any leading www.
var hostPattern = regexp.MustCompile(`https?://(www\.)?([-a-zA-Z0-9@:%._+~#=]{2,256}\.[a-z]{2,6})\b`)

var errNoHost = errors.New("result link has no recognizable host")

// Searcher renders a results page and picks its first organic link.
type Searcher interface {
	Render(ctx context.Context, query string) (string, error)
	FirstResult(html string) (string, error)
}

// Resolver implements discovery.DomainResolver on top of a web search.
type Resolver struct {
	search Searcher
	logger *zap.Logger
}

// New builds a Resolver.
func New(search Searcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{search: search, logger: logger}
}

// Resolve searches for the company's official website and returns the host
// of the first result. Any failure falls back to Fallback(companyName).
func (r *Resolver) Resolve(ctx context.Context, companyName string) discovery.Resolution {
	domain, err := r.searchDomain(ctx, companyName)
	if err == nil {
		return discovery.Resolution{Domain: domain, Method: discovery.ResolutionSearch}
	}
	fallback := Fallback(companyName)
	r.logger.Debug("domain search failed",
		zap.String("company", companyName),
		zap.String("fallback", fallback),
		zap.Error(err),
	)
	return discovery.Resolution{Domain: fallback, Method: discovery.ResolutionFallback, Err: err}
}

func (r *Resolver) searchDomain(ctx context.Context, companyName string) (string, error) {
	if r.search == nil {
		return "", errors.New("no searcher configured")
	}
	html, err := r.search.Render(ctx, Query(companyName))
	if err != nil {
		return "", fmt.Errorf("render search: %w", err)
	}
	link, err := r.search.FirstResult(html)
	if err != nil {
		return "", fmt.Errorf("first result: %w", err)
	}
	host, ok := ExtractHost(link)
	if !ok {
		return "", fmt.Errorf("%w: %q", errNoHost, link)
	}
	return host, nil
}

// Query is the search issued for companyName.
func Query(companyName string) string {
	return companyName + " official website"
}

// ExtractHost pulls the hostname (without a leading www.) out of link.
func ExtractHost(link string) (string, bool) {
	m := hostPattern.FindStringSubmatch(strings.ToLower(link))
	if m == nil {
		return "", false
	}
	return m[2], true
}

// Fallback guesses a domain by lowercasing companyName, dropping all
// whitespace and appending ".com".
func Fallback(companyName string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(companyName) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String() + ".com"
}
