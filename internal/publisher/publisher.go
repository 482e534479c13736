// Package publisher announces finished discovery runs to downstream
// consumers. Backends live in the memory and pubsub subpackages.
package publisher

import (
	"context"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

// Publisher sends a JSON-encodable payload to a topic and returns the
// backend's message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the completion message body.
type Notification struct {
	RunID      string                `json:"run_id"`
	Status     string                `json:"status"`
	Domain     string                `json:"domain,omitempty"`
	Candidates []discovery.Candidate `json:"candidates"`
	ReportURI  string                `json:"report_uri,omitempty"`
	ReportHash string                `json:"report_hash,omitempty"`
}

// Attributes returns the message attributes used for subscription filters.
func (n Notification) Attributes() map[string]string {
	attrs := map[string]string{
		"run_id": n.RunID,
		"status": n.Status,
	}
	if n.Domain != "" {
		attrs["domain"] = n.Domain
	}
	return attrs
}

// Attributed is implemented by payloads that carry message attributes.
type Attributed interface {
	Attributes() map[string]string
}
