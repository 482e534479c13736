// Package namesearch looks up contact addresses for a person when no company
// is known.
package namesearch

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/email"
	"github.com/JakeFAU/hr-contact-discovery/internal/page"
)

// Renderer renders a search results page.
type Renderer interface {
	Render(ctx context.Context, query string) (string, error)
}

// Searcher implements discovery.NameSearcher with a single rendered search.
type Searcher struct {
	renderer Renderer
	logger   *zap.Logger
}

// New builds a Searcher.
func New(renderer Renderer, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{renderer: renderer, logger: logger}
}

// Query is the search issued for name.
func Query(name string) string {
	return name + " HR email contact"
}

// Search renders the results page for name and returns every valid address
// in its text. Links are not followed and no relevance filter is applied.
// Failures yield an empty result.
func (s *Searcher) Search(ctx context.Context, name string) []discovery.Candidate {
	if s.renderer == nil || name == "" {
		return nil
	}
	html, err := s.renderer.Render(ctx, Query(name))
	if err != nil {
		s.logger.Info("name search failed", zap.String("name", name), zap.Error(err))
		return nil
	}
	doc, err := page.ParseString(html)
	if err != nil {
		s.logger.Info("name search parse failed", zap.String("name", name), zap.Error(err))
		return nil
	}

	var out []discovery.Candidate
	for _, addr := range email.Extract(doc.Text()) {
		if !email.Valid(addr) {
			continue
		}
		out = append(out, discovery.Candidate{
			Address:    addr,
			Source:     discovery.SourceWebSearch,
			Confidence: discovery.ConfidenceWebSearch,
		})
	}
	return out
}
