// Package collyfetcher implements discovery.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

// DefaultTimeout bounds a single page fetch.
const DefaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize caps downloaded bytes per page; zero keeps colly's default.
	MaxBodySize int
}

// StatusError reports a response outside 2xx. The response that carried it
// is still returned alongside.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Fetcher implements discovery.Fetcher using the Colly collector. It is safe
// for concurrent use: the shared collector and its HTTP client are configured
// once in New, and every Fetch works on its own clone.
type Fetcher struct {
	cfg       Config
	fallbacks *robotsFallbacks
	base      *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	// Deduplication belongs to the crawl frontier; the collector is shared
	// across runs and must not refuse a URL it saw in an earlier one.
	c.AllowURLRevisit = true
	// Every status reaches OnResponse; Fetch classifies it.
	c.ParseHTTPErrorResponse = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	fallbacks := newRobotsFallbacks()
	c.WithTransport(&robotsTransport{base: newHTTPTransport(), fallbacks: fallbacks})
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:       cfg,
		fallbacks: fallbacks,
		base:      c,
	}
}

// Fetch executes a single HTTP GET using Colly. Robots refusals and transport
// failures return an empty response. Non-2xx responses are returned together
// with a *StatusError so callers can still read the status.
func (f *Fetcher) Fetch(ctx context.Context, request discovery.FetchRequest) (discovery.FetchResponse, error) {
	var (
		result   discovery.FetchResponse
		fetchErr error
	)
	collector := f.collectorFor(ctx, request)
	f.configureCollectorHooks(collector, request, time.Now(), &result, &fetchErr)

	// Visit is synchronous and observes ctx through the collector, so nothing
	// writes result after it returns.
	visitErr := collector.Visit(request.URL)
	if ctx.Err() != nil {
		return discovery.FetchResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	}
	if visitErr != nil {
		return discovery.FetchResponse{}, fmt.Errorf("colly visit failed: %w", visitErr)
	}
	if fetchErr != nil {
		return discovery.FetchResponse{}, fmt.Errorf("colly response failed: %w", fetchErr)
	}
	if u, err := url.Parse(request.URL); err == nil && !collector.IgnoreRobotsTxt {
		result.RobotsUnverified = f.fallbacks.unverified(u.Host)
	}
	if result.StatusCode < 200 || result.StatusCode >= 300 {
		return result, &StatusError{Code: result.StatusCode}
	}
	return result, nil
}

// collectorFor clones the shared collector and applies per-request settings.
// Only fields owned by the clone are touched.
func (f *Fetcher) collectorFor(ctx context.Context, request discovery.FetchRequest) *colly.Collector {
	collector := f.base.Clone()
	collector.Context = ctx
	respectRobots := f.cfg.RespectRobots
	if request.RespectRobotsProvided {
		respectRobots = request.RespectRobots
	}
	collector.IgnoreRobotsTxt = !respectRobots
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request discovery.FetchRequest,
	start time.Time,
	result *discovery.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = discovery.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) copyHeaders(request discovery.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
