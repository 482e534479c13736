// Package dispatcher fans accepted runs out to a pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/hr-contact-discovery/internal/queue"
	"github.com/JakeFAU/hr-contact-discovery/internal/store"
	"github.com/JakeFAU/hr-contact-discovery/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   queue.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher. Every worker must consume the same queue.
func New(q queue.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes and every
// worker has returned. The queue is closed on the way out.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	d.queue.Close()
	wg.Wait()
}

// Submit enqueues a registered run for asynchronous execution.
func (d *Dispatcher) Submit(ctx context.Context, run store.Run) error {
	item := queue.Item{
		RunID:     run.ID,
		Request:   run.Request,
		Submitted: run.SubmittedAt,
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
