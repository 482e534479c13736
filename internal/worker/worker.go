// Package worker executes discovery runs and records their outcome: run
// history, report archive and completion notification.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/metrics"
	"github.com/JakeFAU/hr-contact-discovery/internal/publisher"
	"github.com/JakeFAU/hr-contact-discovery/internal/queue"
	"github.com/JakeFAU/hr-contact-discovery/internal/storage"
	"github.com/JakeFAU/hr-contact-discovery/internal/store"
)

// Discoverer runs one discovery under a known run ID.
type Discoverer interface {
	DiscoverRun(ctx context.Context, runID string, req discovery.Request) (discovery.Report, error)
}

// Archiver stores an encoded report and returns its URI.
type Archiver interface {
	Save(ctx context.Context, report discovery.Report, body []byte) (string, error)
}

// Hasher fingerprints an encoded report.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives completion notifications; empty disables publishing.
	Topic string
	// PersistTimeout bounds the bookkeeping done after a run ends, which
	// runs detached from the run's own context.
	PersistTimeout time.Duration
}

// Deps bundles Worker collaborators. Engine, Runs, IDs and Clock are
// required.
type Deps struct {
	Engine    Discoverer
	Runs      store.RunStore
	Queue     queue.Queue
	Archive   Archiver
	Publisher publisher.Publisher
	Hasher    Hasher
	IDs       discovery.IDGenerator
	Clock     discovery.Clock
	Logger    *zap.Logger
}

// Worker executes runs either directly or by consuming the queue.
type Worker struct {
	engine    Discoverer
	runs      store.RunStore
	queue     queue.Queue
	archive   Archiver
	publisher publisher.Publisher
	hasher    Hasher
	ids       discovery.IDGenerator
	clock     discovery.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config) (*Worker, error) {
	switch {
	case deps.Engine == nil:
		return nil, fmt.Errorf("engine is required")
	case deps.Runs == nil:
		return nil, fmt.Errorf("run store is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		engine:    deps.Engine,
		runs:      deps.Runs,
		queue:     deps.Queue,
		archive:   deps.Archive,
		publisher: deps.Publisher,
		hasher:    deps.Hasher,
		ids:       deps.IDs,
		clock:     deps.Clock,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Register records a new queued run for req.
func (w *Worker) Register(ctx context.Context, req discovery.Request) (store.Run, error) {
	id, err := w.ids.NewID()
	if err != nil {
		return store.Run{}, fmt.Errorf("generate run id: %w", err)
	}
	now := w.clock.Now()
	run := store.Run{
		ID:          id,
		Status:      store.RunQueued,
		Request:     req.Normalize(),
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := w.runs.CreateRun(ctx, run); err != nil {
		return store.Run{}, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// Run blocks, consuming queue items until the context finishes or the
// queue closes.
func (w *Worker) Run(ctx context.Context) {
	if w.queue == nil {
		return
	}
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		run, err := w.runs.GetRun(ctx, item.RunID)
		if err != nil {
			w.logger.Error("load queued run failed", zap.String("run_id", item.RunID), zap.Error(err))
			continue
		}
		if _, err := w.Execute(ctx, run); err != nil {
			w.logger.Warn("run ended early", zap.String("run_id", item.RunID), zap.Error(err))
		}
	}
}

// Execute performs run and records the result. The returned run is the
// final stored state; the error is non-nil only when ctx ended before the
// engine finished, in which case the run is stored as partial.
func (w *Worker) Execute(ctx context.Context, run store.Run) (store.Run, error) {
	logger := w.logger.With(zap.String("run_id", run.ID))
	metrics.IncActiveRequests()
	defer metrics.DecActiveRequests()

	run.Status = store.RunRunning
	run.UpdatedAt = w.clock.Now()
	if err := w.runs.UpdateRun(ctx, run); err != nil {
		logger.Warn("mark run running failed", zap.Error(err))
	}

	report, runErr := w.engine.DiscoverRun(ctx, run.ID, run.Request)

	// Bookkeeping must survive the caller going away so partial results
	// are kept.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.PersistTimeout)
	defer cancel()

	run.Report = &report
	run.Status = finalStatus(report, runErr)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	w.archiveReport(persistCtx, &run, logger)

	run.UpdatedAt = w.clock.Now()
	if err := w.runs.UpdateRun(persistCtx, run); err != nil {
		logger.Error("record run failed", zap.Error(err))
	}
	w.publishResult(persistCtx, run, logger)
	metrics.ObserveDiscovery(string(run.Status), candidateSources(report.Candidates))

	logger.Info("run recorded",
		zap.String("status", string(run.Status)),
		zap.Int("candidates", len(report.Candidates)),
		zap.String("report_uri", run.ReportURI),
	)
	return run, runErr
}

func finalStatus(report discovery.Report, runErr error) store.RunStatus {
	switch {
	case runErr == nil:
		return store.RunSucceeded
	case report.Partial:
		return store.RunPartial
	default:
		return store.RunFailed
	}
}

func (w *Worker) archiveReport(ctx context.Context, run *store.Run, logger *zap.Logger) {
	if w.archive == nil && w.hasher == nil {
		return
	}
	body, err := storage.EncodeReport(*run.Report)
	if err != nil {
		logger.Error("encode report failed", zap.Error(err))
		return
	}
	if w.hasher != nil {
		hash, err := w.hasher.Hash(body)
		if err != nil {
			logger.Warn("hash report failed", zap.Error(err))
		}
		run.ReportHash = hash
	}
	if w.archive != nil {
		uri, err := w.archive.Save(ctx, *run.Report, body)
		if err != nil {
			logger.Error("archive report failed", zap.Error(err))
			return
		}
		run.ReportURI = uri
	}
}

func (w *Worker) publishResult(ctx context.Context, run store.Run, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	n := publisher.Notification{
		RunID:      run.ID,
		Status:     string(run.Status),
		Domain:     run.Report.Domain,
		Candidates: run.Report.Candidates,
		ReportURI:  run.ReportURI,
		ReportHash: run.ReportHash,
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, n)
	if err != nil {
		logger.Error("publish notification failed", zap.Error(err))
		return
	}
	logger.Debug("notification published", zap.String("message_id", id))
}

func candidateSources(cands []discovery.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, string(c.Source))
	}
	return out
}
