package headless

import (
	"context"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

// Noop stands in for the browser when rendering is disabled. Every call
// fails with ErrDisabled so callers take their fallback path.
type Noop struct{}

// NewNoop creates a new Noop launcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Launch always returns ErrDisabled.
func (Noop) Launch(context.Context) (discovery.BrowserSession, error) {
	return nil, ErrDisabled
}

// Fetch always returns ErrDisabled.
func (Noop) Fetch(context.Context, discovery.FetchRequest) (discovery.FetchResponse, error) {
	return discovery.FetchResponse{}, ErrDisabled
}
