// Package email validates, extracts, and classifies email addresses found in
// free text.
package email

import (
	"regexp"
	"strings"
)

const (
	maxLocalLength  = 64
	maxDomainLength = 253
	maxLabelLength  = 63
)

var (
	// addressPattern matches email-shaped substrings in page text.
	addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	localPattern = regexp.MustCompile("^[a-zA-Z0-9!#$%&'*+/=?^_`{|}~.-]+$")
	labelPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	tldPattern   = regexp.MustCompile(`^[a-zA-Z]{2,}$`)
)

// relevantTerms mark a mailbox as likely to reach recruiting staff.
var relevantTerms = []string{"hr", "career", "recruit", "job"}

// Valid reports whether candidate is a syntactically acceptable address.
// It never panics and has no side effects.
func Valid(candidate string) bool {
	local, domain, ok := strings.Cut(candidate, "@")
	if !ok || strings.Contains(domain, "@") {
		return false
	}
	return validLocal(local) && validDomain(domain)
}

func validLocal(local string) bool {
	if local == "" || len(local) > maxLocalLength {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	return localPattern.MatchString(local)
}

func validDomain(domain string) bool {
	if domain == "" || len(domain) > maxDomainLength {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > maxLabelLength || !labelPattern.MatchString(label) {
			return false
		}
	}
	return tldPattern.MatchString(labels[len(labels)-1])
}

// Extract returns every email-shaped substring of text in order of
// appearance. Duplicates are preserved; callers decide how to merge them.
func Extract(text string) []string {
	if text == "" {
		return nil
	}
	return addressPattern.FindAllString(text, -1)
}

// Relevant reports whether addr mentions a recruiting-related term,
// ignoring case.
func Relevant(addr string) bool {
	lower := strings.ToLower(addr)
	for _, term := range relevantTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Key returns the deduplication key for addr.
func Key(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
