// Package queue carries accepted asynchronous runs to the worker pool.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// Item is one accepted run awaiting execution.
type Item struct {
	RunID     string
	Request   discovery.Request
	Submitted time.Time
}

// Queue is a context-aware FIFO of run items.
type Queue interface {
	Enqueue(ctx context.Context, item Item) error
	Dequeue(ctx context.Context) (Item, error)
	Close()
}
