// Package pattern infers likely mailbox addresses from common naming
// conventions.
package pattern

import (
	"strings"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/email"
)

// templates are expanded in order; {first} and {last} are replaced with the
// lowercased name tokens.
var templates = []string{
	"hr",
	"careers",
	"recruitment",
	"jobs",
	"{first}.{last}",
	"{first}{last}",
}

// Generator implements discovery.PatternGenerator.
type Generator struct{}

// New creates a Generator.
func New() *Generator {
	return &Generator{}
}

// Generate returns one candidate per template whose expansion is a valid
// address, in template order.
func (Generator) Generate(name, domain string) []discovery.Candidate {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil
	}
	first, last := splitName(name)
	replacer := strings.NewReplacer("{first}", first, "{last}", last)

	out := make([]discovery.Candidate, 0, len(templates))
	for _, tmpl := range templates {
		addr := replacer.Replace(tmpl) + "@" + domain
		if !email.Valid(addr) {
			continue
		}
		out = append(out, discovery.Candidate{
			Address:    addr,
			Source:     discovery.SourcePatternInference,
			Confidence: discovery.ConfidencePattern,
		})
	}
	return out
}

// splitName returns the first two whitespace-separated tokens, lowercased.
// A run of whitespace is one boundary; extra tokens are ignored.
func splitName(name string) (string, string) {
	fields := strings.Fields(strings.ToLower(name))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], fields[1]
	}
}
