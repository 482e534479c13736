package sitecrawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	collyfetcher "github.com/JakeFAU/hr-contact-discovery/internal/fetcher/colly"
	"github.com/JakeFAU/hr-contact-discovery/internal/progress"
)

// siteFetcher serves canned HTML keyed by canonical URL.
type siteFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	status  map[string]int
	errs    map[string]error
	final   map[string]string
	fetched []string
	onFetch func(url string)
}

func newSiteFetcher() *siteFetcher {
	return &siteFetcher{
		pages:  map[string]string{},
		status: map[string]int{},
		errs:   map[string]error{},
		final:  map[string]string{},
	}
}

func (s *siteFetcher) page(url string, body string) *siteFetcher {
	s.pages[url] = body
	return s
}

func (s *siteFetcher) Fetch(ctx context.Context, req discovery.FetchRequest) (discovery.FetchResponse, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, req.URL)
	hook := s.onFetch
	body, ok := s.pages[req.URL]
	status := s.status[req.URL]
	err := s.errs[req.URL]
	landed, redirected := s.final[req.URL]
	s.mu.Unlock()

	if hook != nil {
		hook(req.URL)
	}
	if err := ctx.Err(); err != nil {
		return discovery.FetchResponse{}, err
	}
	if err != nil {
		return discovery.FetchResponse{}, err
	}
	if status == 0 {
		status = http.StatusOK
		if !ok {
			status = http.StatusNotFound
		}
	}
	if !redirected {
		landed = req.URL
	}
	return discovery.FetchResponse{URL: landed, StatusCode: status, Body: []byte(body)}, nil
}

func (s *siteFetcher) Fetched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.fetched...)
}

type recordingPause struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPause) Pause(_ context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
}

func (p *recordingPause) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delays)
}

func links(hrefs ...string) string {
	var b strings.Builder
	for _, h := range hrefs {
		fmt.Fprintf(&b, "\n<a href=\"%s\">link</a>\n", h)
	}
	return b.String()
}

func html(body string) string {
	return "<html><body>" + body + "</body></html>"
}

func newTestCrawler(t *testing.T, cfg Config, deps Deps) (*Crawler, *recordingPause) {
	t.Helper()
	c, err := New(cfg, deps)
	require.NoError(t, err)
	p := &recordingPause{}
	c.pause = p
	return c, p
}

func addresses(cs []discovery.Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Address)
	}
	return out
}

func TestNewRequiresFetcher(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.Error(t, err)

	c, err := New(Config{}, Deps{Fetcher: newSiteFetcher()})
	require.NoError(t, err)
	require.Equal(t, DefaultMaxPages, c.cfg.MaxPages)
	require.Equal(t, DefaultConcurrency, c.cfg.Concurrency)
}

func TestCrawlCycleVisitsEachPageOnce(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/b", "/c")+"hr@acme.com")).
		page("https://acme.com/b", html(links("/", "https://acme.com/#top")+"jobs@acme.com")).
		page("https://acme.com/c", html("nothing here"))
	c, _ := newTestCrawler(t, Config{Delay: 0}, Deps{Fetcher: f})

	got := c.Crawl(context.Background(), "acme.com")

	fetched := f.Fetched()
	sort.Strings(fetched)
	require.Equal(t, []string{"https://acme.com/", "https://acme.com/b", "https://acme.com/c"}, fetched)
	require.Equal(t, []discovery.Candidate{
		{Address: "hr@acme.com", Source: discovery.SourceSiteCrawl, Confidence: 0.9, FoundOn: "https://acme.com/"},
		{Address: "jobs@acme.com", Source: discovery.SourceSiteCrawl, Confidence: 0.9, FoundOn: "https://acme.com/b"},
	}, got)
}

func TestCrawlStopsAtPageCap(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher()
	rootLinks := make([]string, 0, 199)
	for i := 1; i < 200; i++ {
		rootLinks = append(rootLinks, fmt.Sprintf("/p%d", i))
		next := fmt.Sprintf("/p%d", (i*7)%200)
		f.page(fmt.Sprintf("https://acme.com/p%d", i), html(links(next, "/")))
	}
	f.page("https://acme.com/", html(links(rootLinks...)))

	c, _ := newTestCrawler(t, Config{Delay: 0, Concurrency: 16}, Deps{Fetcher: f})
	c.Crawl(context.Background(), "acme.com")

	fetched := f.Fetched()
	require.Len(t, fetched, 50)
	unique := map[string]struct{}{}
	for _, u := range fetched {
		unique[u] = struct{}{}
	}
	require.Len(t, unique, 50)
}

func TestCrawlCustomCap(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/a", "/b", "/c", "/d"))).
		page("https://acme.com/a", html(links("/e"))).
		page("https://acme.com/b", html(""))
	c, _ := newTestCrawler(t, Config{MaxPages: 3, Concurrency: 1}, Deps{Fetcher: f})
	c.Crawl(context.Background(), "acme.com")

	require.Equal(t, []string{"https://acme.com/", "https://acme.com/a", "https://acme.com/b"}, f.Fetched())
}

func TestCrawlFiltersIrrelevantAndInvalid(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(`
			<p>hr@acme.com sales@acme.com recruiting@acme.com</p>
			<p>Careers@Acme.com careers@acme.com jobs..x@acme.com</p>
			`+links("/team"))).
		page("https://acme.com/team", html("HR@ACME.COM talent-jobs@partner.io"))
	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f})

	got := c.Crawl(context.Background(), "acme.com")
	require.Equal(t, []string{
		"hr@acme.com",
		"recruiting@acme.com",
		"Careers@Acme.com",
		"talent-jobs@partner.io",
	}, addresses(got))
	require.Equal(t, "https://acme.com/team", got[3].FoundOn)
}

func TestCrawlLinkRules(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links(
			"about",
			"#section",
			"mailto:hr@acme.com",
			"/contact?mailto:x",
			"javascript:void(0)",
			"tel:+15550100",
			"https://other.com/jobs",
			"//evil.com/path",
			"https://www.acme.com/careers#open",
			"HTTP://ACME.COM:80/team",
			"ftp://acme.com/file",
		)))
	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f})
	c.Crawl(context.Background(), "acme.com")

	fetched := f.Fetched()
	sort.Strings(fetched)
	require.Equal(t, []string{
		"http://acme.com/team",
		"https://acme.com/",
		"https://acme.com/about",
		"https://www.acme.com/careers",
	}, fetched)
}

func TestCrawlSkipsFailedPages(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/broken", "/gone", "/ok"))).
		page("https://acme.com/broken", html(links("/hidden"))).
		page("https://acme.com/hidden", html("hr@acme.com")).
		page("https://acme.com/ok", html("careers@acme.com"))
	f.errs["https://acme.com/broken"] = errors.New("connection reset")
	f.status["https://acme.com/gone"] = http.StatusGone

	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f})
	got := c.Crawl(context.Background(), "acme.com")

	require.Equal(t, []string{"careers@acme.com"}, addresses(got))
	require.NotContains(t, f.Fetched(), "https://acme.com/hidden")
}

func TestCrawlStopsWhenSiteRefuses(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/a", "/b", "/c"))).
		page("https://acme.com/c", html(links("/d", "/e")+"jobs@acme.com")).
		page("https://acme.com/d", html("hr@acme.com"))
	f.status["https://acme.com/a"] = http.StatusForbidden
	f.status["https://acme.com/b"] = http.StatusTooManyRequests

	c, p := newTestCrawler(t, Config{Concurrency: 1, MaxRefusals: 2}, Deps{Fetcher: f})
	got := c.Crawl(context.Background(), "acme.com")

	require.Equal(t, []string{"jobs@acme.com"}, addresses(got))
	require.Len(t, f.Fetched(), 4)
	require.NotContains(t, f.Fetched(), "https://acme.com/d")
	require.Equal(t, 1, p.count())
}

// loopbackFetcher sends https://acme.com traffic to a local test server.
type loopbackFetcher struct {
	inner   discovery.Fetcher
	baseURL string
}

func (l loopbackFetcher) Fetch(ctx context.Context, req discovery.FetchRequest) (discovery.FetchResponse, error) {
	req.URL = strings.Replace(req.URL, "https://acme.com", l.baseURL, 1)
	return l.inner.Fetch(ctx, req)
}

func TestCrawlStopsWhenLiveSiteRefuses(t *testing.T) {
	t.Parallel()

	var deepHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = fmt.Fprint(w, html(links("/r1", "/r2", "/r3", "/ok")))
	})
	for _, p := range []string{"/r1", "/r2", "/r3"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, html(links("/deep")+"careers@acme.com"))
	})
	mux.HandleFunc("/deep", func(w http.ResponseWriter, _ *http.Request) {
		deepHits.Add(1)
		_, _ = fmt.Fprint(w, html("jobs@acme.com"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f := loopbackFetcher{
		inner:   collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}),
		baseURL: srv.URL,
	}
	rec := &eventRecorder{}
	c, _ := newTestCrawler(t, Config{Concurrency: 1, MaxRefusals: 3}, Deps{Fetcher: f, Progress: rec})
	ctx := progress.WithRunID(context.Background(), uuid.NewString())
	got := c.Crawl(ctx, "acme.com")

	require.Equal(t, []string{"careers@acme.com"}, addresses(got))
	require.Zero(t, deepHits.Load())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	forbidden := 0
	for _, evt := range rec.events {
		if evt.StatusClass == progress.Status4xx {
			forbidden++
		}
	}
	require.Equal(t, 3, forbidden)
}

func TestCrawlFollowsRelativeLinksAfterRedirect(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/careers", "https://acme-corp.io/about"))).
		page("https://acme.com/careers", html("jobs@acme.com"))
	f.final["https://acme.com/"] = "https://acme-corp.io/"

	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f})
	got := c.Crawl(context.Background(), "acme.com")

	require.Equal(t, []string{"jobs@acme.com"}, addresses(got))
	require.Equal(t, "https://acme.com/careers", got[0].FoundOn)
	require.Equal(t, []string{"https://acme.com/", "https://acme.com/careers"}, f.Fetched())
}

// unverifiedFetcher reports every page as fetched without robots.txt.
type unverifiedFetcher struct {
	*siteFetcher
}

func (u unverifiedFetcher) Fetch(ctx context.Context, req discovery.FetchRequest) (discovery.FetchResponse, error) {
	resp, err := u.siteFetcher.Fetch(ctx, req)
	resp.RobotsUnverified = true
	return resp, err
}

func TestCrawlNotesUnverifiedRobots(t *testing.T) {
	t.Parallel()

	f := unverifiedFetcher{newSiteFetcher().page("https://acme.com/", html("hr@acme.com"))}
	rec := &eventRecorder{}
	c, _ := newTestCrawler(t, Config{RespectRobots: true}, Deps{Fetcher: f, Progress: rec})
	c.Crawl(progress.WithRunID(context.Background(), uuid.NewString()), "acme.com")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 1)
	require.Equal(t, robotsUnverifiedNote, rec.events[0].Note)
}

func TestCrawlPausesBetweenBatches(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/a"))).
		page("https://acme.com/a", html(links("/b"))).
		page("https://acme.com/b", html(""))
	c, p := newTestCrawler(t, Config{Delay: 250 * time.Millisecond}, Deps{Fetcher: f})
	c.Crawl(context.Background(), "acme.com")

	// Three single-page batches; no pause after the last one.
	require.Equal(t, 2, p.count())
	require.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, p.delays)
}

func TestCrawlCancellationReturnsPartial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/a")+"hr@acme.com")).
		page("https://acme.com/a", html("jobs@acme.com"))
	f.onFetch = func(url string) {
		if url == "https://acme.com/" {
			cancel()
		}
	}
	c, err := New(Config{Delay: time.Hour}, Deps{Fetcher: f})
	require.NoError(t, err)

	done := make(chan []discovery.Candidate, 1)
	go func() { done <- c.Crawl(ctx, "acme.com") }()

	select {
	case got := <-done:
		require.Empty(t, got, "root fetch observed the canceled context")
		require.Equal(t, []string{"https://acme.com/"}, f.Fetched())
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after cancellation")
	}
}

func TestCrawlCancellationDuringPauseKeepsResults(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/a")+"hr@acme.com")).
		page("https://acme.com/a", html("jobs@acme.com"))
	c, err := New(Config{Delay: time.Hour}, Deps{Fetcher: f})
	require.NoError(t, err)

	got := c.Crawl(ctx, "acme.com")
	require.Equal(t, []string{"hr@acme.com"}, addresses(got))
	require.Equal(t, []string{"https://acme.com/"}, f.Fetched())
}

func TestCrawlInvalidDomain(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher()
	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f})
	require.Empty(t, c.Crawl(context.Background(), ""))
	require.Empty(t, c.Crawl(context.Background(), "acme.com/path"))
	require.Empty(t, f.Fetched())
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Wait(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func TestCrawlUsesRateLimiter(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/a", "/b"))).
		page("https://acme.com/a", html("hr@acme.com")).
		page("https://acme.com/b", html("jobs@acme.com"))
	limiter := &MockLimiter{}
	limiter.On("Wait", mock.Anything, "https://acme.com/").Return(nil).Once()
	limiter.On("Wait", mock.Anything, "https://acme.com/a").Return(nil).Once()
	limiter.On("Wait", mock.Anything, "https://acme.com/b").Return(errors.New("rate limit wait: canceled")).Once()

	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f, Limiter: limiter})
	got := c.Crawl(context.Background(), "acme.com")

	require.Equal(t, []string{"hr@acme.com"}, addresses(got))
	require.NotContains(t, f.Fetched(), "https://acme.com/b")
	limiter.AssertExpectations(t)
}

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) ShouldPromote(resp discovery.FetchResponse) bool {
	return m.Called(resp.URL).Bool(0)
}

func TestCrawlRendersClientSidePages(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(`<div id="root"></div>`))
	renderer := newSiteFetcher().
		page("https://acme.com/", html(`<p>careers@acme.com</p>`+links("/jobs")))
	f.page("https://acme.com/jobs", html("recruitment@acme.com"))

	detector := &MockDetector{}
	detector.On("ShouldPromote", "https://acme.com/").Return(true).Once()
	detector.On("ShouldPromote", "https://acme.com/jobs").Return(false).Once()

	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f, Renderer: renderer, Detector: detector})
	got := c.Crawl(context.Background(), "acme.com")

	require.Equal(t, []string{"careers@acme.com", "recruitment@acme.com"}, addresses(got))
	require.Equal(t, []string{"https://acme.com/"}, renderer.Fetched())
	detector.AssertExpectations(t)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *eventRecorder) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func TestCrawlEmitsPageEvents(t *testing.T) {
	t.Parallel()

	f := newSiteFetcher().
		page("https://acme.com/", html(links("/missing")+"hr@acme.com"))
	rec := &eventRecorder{}
	c, _ := newTestCrawler(t, Config{}, Deps{Fetcher: f, Progress: rec})

	runID := uuid.New()
	ctx := progress.WithRunID(context.Background(), runID.String())
	c.Crawl(ctx, "acme.com")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	for _, evt := range rec.events {
		require.NoError(t, evt.Validate())
		require.Equal(t, progress.UUIDToBytes(runID), evt.RunID)
		require.Equal(t, "acme.com", evt.Site)
	}
	require.Equal(t, progress.Status2xx, rec.events[0].StatusClass)
	require.Equal(t, 1, rec.events[0].Candidates)
	require.Equal(t, progress.Status4xx, rec.events[1].StatusClass)
	require.NotEmpty(t, rec.events[1].Note)
}
