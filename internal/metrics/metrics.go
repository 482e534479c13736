// Package metrics exposes Prometheus collectors for the discovery service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec
	robotsFallbackTotal          prometheus.Counter
	discoveryRequestsTotal       *prometheus.CounterVec
	discoveryCandidatesTotal     *prometheus.CounterVec
	crawlRateLimitDelaysSeconds  *prometheus.HistogramVec
	crawlHeadlessPromotionsTotal prometheus.Counter
	discoveryActiveRequestsGauge prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "discovery_robots_fallback_total",
				Help: "robots.txt probes that timed out and were treated as allow-all.",
			},
		)

		discoveryRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_requests_total",
				Help: "Discovery requests handled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		discoveryCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_candidates_total",
				Help: "Candidate addresses returned, labeled by source.",
			},
			[]string{"source"},
		)

		crawlRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_rate_limit_delays_seconds",
				Help:    "Histogram of crawl rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		crawlHeadlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "discovery_headless_promotions_total",
				Help: "Crawled pages re-rendered through the headless browser.",
			},
		)

		discoveryActiveRequestsGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "discovery_active_requests",
				Help: "Number of discovery requests currently running.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts robots.txt probes that fell back to allow-all.
func ObserveRobotsFallback() {
	Init()
	robotsFallbackTotal.Inc()
}

// ObserveDiscovery records the outcome of one discovery request and the
// sources of the candidates it returned.
func ObserveDiscovery(outcome string, sources []string) {
	Init()
	discoveryRequestsTotal.WithLabelValues(outcome).Inc()
	for _, src := range sources {
		discoveryCandidatesTotal.WithLabelValues(src).Inc()
	}
}

// ObserveHeadlessPromotion counts a crawled page re-rendered in the browser.
func ObserveHeadlessPromotion() {
	Init()
	crawlHeadlessPromotionsTotal.Inc()
}

// IncActiveRequests increments the active discovery gauge.
func IncActiveRequests() {
	Init()
	discoveryActiveRequestsGauge.Inc()
}

// DecActiveRequests decrements the active discovery gauge.
func DecActiveRequests() {
	Init()
	discoveryActiveRequestsGauge.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlRateLimitDelaysSeconds.WithLabelValues(SanitizeSite(domain)).Observe(duration.Seconds())
}
