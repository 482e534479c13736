package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/progress"
)

// EngineDeps bundles the collaborators an Engine needs.
type EngineDeps struct {
	Resolver DomainResolver
	Patterns PatternGenerator
	Crawler  SiteCrawler
	Names    NameSearcher
	Clock    Clock
	IDs      IDGenerator
	Progress progress.Emitter
	Logger   *zap.Logger
}

// Engine orchestrates one discovery run per call. It holds no per-request
// state, so a single Engine may serve concurrent requests.
type Engine struct {
	resolver DomainResolver
	patterns PatternGenerator
	crawler  SiteCrawler
	names    NameSearcher
	clock    Clock
	ids      IDGenerator
	progress progress.Emitter
	logger   *zap.Logger
}

// NewEngine wires an Engine. Resolver, Patterns, Crawler and Names are
// required.
func NewEngine(deps EngineDeps) (*Engine, error) {
	switch {
	case deps.Resolver == nil:
		return nil, fmt.Errorf("domain resolver is required")
	case deps.Patterns == nil:
		return nil, fmt.Errorf("pattern generator is required")
	case deps.Crawler == nil:
		return nil, fmt.Errorf("site crawler is required")
	case deps.Names == nil:
		return nil, fmt.Errorf("name searcher is required")
	}
	e := &Engine{
		resolver: deps.Resolver,
		patterns: deps.Patterns,
		crawler:  deps.Crawler,
		names:    deps.Names,
		clock:    deps.Clock,
		ids:      deps.IDs,
		progress: deps.Progress,
		logger:   deps.Logger,
	}
	if e.clock == nil {
		e.clock = utcClock{}
	}
	if e.ids == nil {
		e.ids = uuidGenerator{}
	}
	if e.progress == nil {
		e.progress = progress.Nop{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// Discover runs the full pipeline for req: resolve the company domain,
// infer pattern addresses, crawl the site and, for name-only requests, run
// a web search. Stage failures are absorbed; the returned error is non-nil
// only when ctx ends, in which case the report still carries everything
// gathered so far.
func (e *Engine) Discover(ctx context.Context, req Request) (Report, error) {
	return e.DiscoverRun(ctx, "", req)
}

// DiscoverRun is Discover under a caller-chosen run ID, used when the run
// was registered before it started. An empty runID gets a fresh one.
func (e *Engine) DiscoverRun(ctx context.Context, runID string, req Request) (Report, error) {
	req = req.Normalize()
	report := Report{
		RunID:      runID,
		Request:    req,
		StartedAt:  e.clock.Now(),
		Candidates: []Candidate{},
	}
	if req.Empty() {
		report.FinishedAt = report.StartedAt
		return report, nil
	}

	if runID == "" {
		id, err := e.ids.NewID()
		if err != nil {
			e.logger.Warn("run id generation failed", zap.Error(err))
			id = uuid.NewString()
		}
		runID = id
	}
	report.RunID = runID
	ctx = progress.WithRunID(ctx, runID)
	logger := e.logger.With(zap.String("run_id", runID))
	e.emit(ctx, progress.Event{Stage: progress.StageRunStart})

	results := NewResultSet()
	runErr := e.run(ctx, req, &report, results, logger)

	report.Candidates = results.Candidates()
	report.FinishedAt = e.clock.Now()
	report.Partial = runErr != nil
	e.emit(ctx, progress.Event{
		Stage:      progress.StageRunDone,
		Candidates: len(report.Candidates),
		Dur:        nonNegative(report.FinishedAt.Sub(report.StartedAt)),
		Partial:    report.Partial,
	})
	logger.Info("discovery finished",
		zap.String("domain", report.Domain),
		zap.Int("candidates", len(report.Candidates)),
		zap.Bool("partial", report.Partial),
	)
	if runErr != nil {
		return report, runErr
	}
	return report, nil
}

func (e *Engine) run(ctx context.Context, req Request, report *Report, results *ResultSet, logger *zap.Logger) error {
	var domain string
	if req.CompanyName != "" {
		start := time.Now()
		res := e.resolver.Resolve(ctx, req.CompanyName)
		domain = res.Domain
		report.Domain = res.Domain
		report.DomainMethod = res.Method
		if res.Err != nil {
			logger.Info("domain search failed, using fallback",
				zap.String("company", req.CompanyName),
				zap.String("domain", res.Domain),
				zap.Error(res.Err),
			)
		}
		if domain != "" {
			e.emit(ctx, progress.Event{
				Stage:  progress.StageDomainResolved,
				Site:   domain,
				Method: string(res.Method),
				Dur:    time.Since(start),
			})
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("discovery canceled after domain resolution: %w", err)
		}
	}

	if domain != "" && req.Name != "" {
		results.AddAll(e.patterns.Generate(req.Name, domain))
	}

	if domain != "" {
		results.AddAll(e.crawler.Crawl(ctx, domain))
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("discovery canceled during site crawl: %w", err)
		}
	}

	if req.Name != "" && req.CompanyName == "" {
		results.AddAll(e.names.Search(ctx, req.Name))
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("discovery canceled during name search: %w", err)
		}
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, evt progress.Event) {
	id, ok := progress.RunIDFromContext(ctx)
	if !ok {
		return
	}
	evt.RunID = id
	if evt.TS.IsZero() {
		evt.TS = e.clock.Now()
	}
	e.progress.Emit(evt)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

type uuidGenerator struct{}

func (uuidGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
