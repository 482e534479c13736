// Package store defines run history persistence. Implementations live in
// subpackages; this package must not import database drivers or concrete
// clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

// Sentinel errors shared by all RunStore implementations.
var (
	ErrNotFound      = errors.New("run not found")
	ErrAlreadyExists = errors.New("run already exists")
)

// RunStatus tracks a run through its lifecycle.
type RunStatus string

// Run statuses.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	// RunPartial marks a run whose context ended before every stage ran.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunPartial, RunFailed:
		return true
	default:
		return false
	}
}

// Run is the service-level record of one discovery request.
type Run struct {
	ID          string            `json:"run_id"`
	Status      RunStatus         `json:"status"`
	Request     discovery.Request `json:"request"`
	SubmittedAt time.Time         `json:"submitted_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	// Report is nil until the run reaches a terminal status.
	Report     *discovery.Report `json:"report,omitempty"`
	ReportURI  string            `json:"report_uri,omitempty"`
	ReportHash string            `json:"report_hash,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// RunStore persists run records.
type RunStore interface {
	// CreateRun inserts a new run or returns ErrAlreadyExists.
	CreateRun(ctx context.Context, run Run) error
	// UpdateRun replaces an existing run or returns ErrNotFound.
	UpdateRun(ctx context.Context, run Run) error
	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns up to limit runs, most recently submitted first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// DefaultListLimit caps ListRuns when callers pass a non-positive limit.
const DefaultListLimit = 50
