// Package sitecrawl walks a company website breadth-first and collects
// recruiting-related email addresses.
package sitecrawl

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/email"
	"github.com/JakeFAU/hr-contact-discovery/internal/metrics"
	"github.com/JakeFAU/hr-contact-discovery/internal/page"
	"github.com/JakeFAU/hr-contact-discovery/internal/progress"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxPages    = 50
	DefaultConcurrency = 8
	DefaultDelay       = time.Second
	DefaultMaxRefusals = 5
)

const robotsUnverifiedNote = "robots.txt unreachable, fetched as allowed"

// Config controls crawl bounds and pacing.
type Config struct {
	// MaxPages is the hard cap on pages visited per crawl.
	MaxPages int
	// Concurrency bounds in-flight fetches within a batch.
	Concurrency int
	// Delay is the politeness pause between batches. Zero disables it.
	Delay         time.Duration
	RespectRobots bool
	// MaxRefusals ends the crawl after this many 403/429 responses.
	MaxRefusals int
}

// RateLimiter paces fetches per host.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Deps bundles the crawler's collaborators. Only Fetcher is required.
type Deps struct {
	Fetcher discovery.Fetcher
	// Renderer re-fetches pages the Detector flags as client-rendered.
	Renderer discovery.Fetcher
	Detector discovery.HeadlessDetector
	Limiter  RateLimiter
	Progress progress.Emitter
	Logger   *zap.Logger
}

// Crawler implements discovery.SiteCrawler.
type Crawler struct {
	cfg      Config
	fetcher  discovery.Fetcher
	renderer discovery.Fetcher
	detector discovery.HeadlessDetector
	limiter  RateLimiter
	progress progress.Emitter
	logger   *zap.Logger
	pause    pauseController
}

// New builds a Crawler.
func New(cfg Config, deps Deps) (*Crawler, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.MaxRefusals <= 0 {
		cfg.MaxRefusals = DefaultMaxRefusals
	}
	c := &Crawler{
		cfg:      cfg,
		fetcher:  deps.Fetcher,
		renderer: deps.Renderer,
		detector: deps.Detector,
		limiter:  deps.Limiter,
		progress: deps.Progress,
		logger:   deps.Logger,
		pause:    &timerPauseController{},
	}
	if c.progress == nil {
		c.progress = progress.Nop{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

type pageResult struct {
	url        string
	status     int
	bytes      int
	duration   time.Duration
	candidates []discovery.Candidate
	links      []string
	err        error
	// robotsUnverified marks pages fetched without a readable robots.txt.
	robotsUnverified bool
}

// Crawl visits at most MaxPages pages of domain, starting at its root, and
// returns every valid, relevant address found, each once, in discovery
// order. Page failures are logged and skipped. When ctx ends the addresses
// gathered so far are returned.
func (c *Crawler) Crawl(ctx context.Context, domain string) []discovery.Candidate {
	seed, err := SeedURL(domain)
	if err != nil {
		c.logger.Info("crawl skipped", zap.String("domain", domain), zap.Error(err))
		return nil
	}
	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil
	}
	origin := seedURL.Hostname()
	logger := c.logger.With(zap.String("domain", origin))

	front := newFrontier(seed)
	found := make([]discovery.Candidate, 0)
	seenAddr := make(map[string]struct{})
	guard := newRefusalGuard(c.cfg.MaxRefusals)
	refused := false
	unverified := 0

	for front.pending() > 0 && front.visitedCount() < c.cfg.MaxPages {
		if ctx.Err() != nil {
			break
		}
		batch := front.next(c.cfg.MaxPages - front.visitedCount())
		results := c.fetchBatch(ctx, origin, batch)

		for _, res := range results {
			if guard.observe(res.status) {
				refused = true
			}
			if res.robotsUnverified {
				unverified++
			}
			if res.err != nil {
				logger.Debug("page skipped", zap.String("url", res.url), zap.Error(res.err))
				continue
			}
			for _, cand := range res.candidates {
				key := email.Key(cand.Address)
				if _, dup := seenAddr[key]; dup {
					continue
				}
				seenAddr[key] = struct{}{}
				found = append(found, cand)
			}
			for _, link := range res.links {
				front.enqueue(link)
			}
		}

		if refused {
			logger.Warn("site is refusing the crawler, stopping early", zap.Int("refusals", guard.count))
			break
		}
		if front.pending() > 0 && front.visitedCount() < c.cfg.MaxPages {
			c.pause.Pause(ctx, c.cfg.Delay)
		}
	}

	logger.Info("crawl finished",
		zap.Int("pages", front.visitedCount()),
		zap.Int("candidates", len(found)),
		zap.Bool("canceled", ctx.Err() != nil),
		zap.Bool("refused", refused),
		zap.Int("robots_unverified", unverified),
	)
	return found
}

// fetchBatch fetches urls on a bounded pool. Each worker writes only its own
// slot, so results come back in batch order.
func (c *Crawler) fetchBatch(ctx context.Context, origin string, urls []string) []pageResult {
	results := make([]pageResult, len(urls))
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = c.fetchPage(ctx, origin, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Crawler) fetchPage(ctx context.Context, origin, pageURL string) pageResult {
	res := pageResult{url: pageURL}
	start := time.Now()
	defer func() {
		res.duration = time.Since(start)
		c.emitPage(ctx, origin, res)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, pageURL); err != nil {
			res.err = err
			return res
		}
	}
	req := discovery.FetchRequest{
		URL:                   pageURL,
		RespectRobots:         c.cfg.RespectRobots,
		RespectRobotsProvided: true,
	}
	resp, err := c.fetcher.Fetch(ctx, req)
	// Refusals come back with their status and an error; the guard needs both.
	res.status = resp.StatusCode
	res.robotsUnverified = resp.RobotsUnverified
	if err != nil {
		res.err = fmt.Errorf("fetch: %w", err)
		return res
	}
	res.bytes = len(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return res
	}

	resp = c.maybeRender(ctx, req, resp)

	doc, err := page.Parse(resp.Body)
	if err != nil {
		res.err = err
		return res
	}
	res.candidates = extractCandidates(doc.Text(), pageURL)

	// Relative links belong to the requested page even when the fetch was
	// redirected to another host.
	base, err := url.Parse(pageURL)
	if err != nil {
		res.err = err
		return res
	}
	for _, href := range doc.Hrefs() {
		if link, ok := resolveLink(base, origin, href); ok {
			res.links = append(res.links, link)
		}
	}
	return res
}

func (c *Crawler) maybeRender(ctx context.Context, req discovery.FetchRequest, resp discovery.FetchResponse) discovery.FetchResponse {
	if c.renderer == nil || c.detector == nil || !c.detector.ShouldPromote(resp) {
		return resp
	}
	rendered, err := c.renderer.Fetch(ctx, req)
	if err != nil {
		c.logger.Debug("rendered fetch failed", zap.String("url", req.URL), zap.Error(err))
		return resp
	}
	metrics.ObserveHeadlessPromotion()
	return rendered
}

func extractCandidates(text, foundOn string) []discovery.Candidate {
	var out []discovery.Candidate
	for _, addr := range email.Extract(text) {
		if !email.Valid(addr) || !email.Relevant(addr) {
			continue
		}
		out = append(out, discovery.Candidate{
			Address:    addr,
			Source:     discovery.SourceSiteCrawl,
			Confidence: discovery.ConfidenceSiteCrawl,
			FoundOn:    foundOn,
		})
	}
	return out
}

func (c *Crawler) emitPage(ctx context.Context, origin string, res pageResult) {
	id, ok := progress.RunIDFromContext(ctx)
	if !ok {
		return
	}
	class := progress.ClassifyStatus(res.status)
	note := ""
	if res.err != nil {
		note = res.err.Error()
		if res.status == 0 {
			class = progress.StatusError
		}
	} else if res.robotsUnverified {
		note = robotsUnverifiedNote
	}
	c.progress.Emit(progress.Event{
		RunID:       id,
		TS:          time.Now().UTC(),
		Stage:       progress.StagePageFetched,
		Site:        origin,
		URL:         res.url,
		Bytes:       int64(res.bytes),
		Candidates:  len(res.candidates),
		StatusClass: class,
		Dur:         res.duration,
		Note:        note,
	})
}
