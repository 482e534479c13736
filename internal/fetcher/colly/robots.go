package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/hr-contact-discovery/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsBackoff spaces the retries of a robots.txt probe that timed out.
var robotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsFallbacks remembers the hosts whose robots.txt never answered.
// Colly caches the allow-all substitute per host, so the mark is permanent
// for the life of the Fetcher.
type robotsFallbacks struct {
	mu    sync.Mutex
	hosts map[string]struct{}
}

func newRobotsFallbacks() *robotsFallbacks {
	return &robotsFallbacks{hosts: make(map[string]struct{})}
}

func (r *robotsFallbacks) record(host string) {
	r.mu.Lock()
	_, seen := r.hosts[host]
	r.hosts[host] = struct{}{}
	r.mu.Unlock()
	if !seen {
		metrics.ObserveRobotsFallback()
	}
}

func (r *robotsFallbacks) unverified(host string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.hosts[host]
	return ok
}

// robotsTransport passes page requests straight through. robots.txt probes
// that keep timing out are answered with an allow-all file so a slow site
// is still crawled.
type robotsTransport struct {
	base      http.RoundTripper
	fallbacks *robotsFallbacks
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req)
	}

	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("robots probe: %w", err)
		}
		if attempt == len(robotsBackoff) {
			t.fallbacks.record(req.URL.Host)
			return allowAllResponse(req), nil
		}
		if err := sleepCtx(req.Context(), robotsBackoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots probe backoff: %w", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
