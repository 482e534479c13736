// Package detector decides when a crawled page needs a rendered retry.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

const (
	defaultBodyLengthThreshold = 2048
	defaultMinTextLength       = 200
)

// shellSelectors match the mount points client-rendered frameworks leave in
// the server response.
const shellSelectors = `#__next, #root, #app, [data-reactroot], [ng-app], [data-server-rendered]`

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
	// MinTextLength is the visible text length above which a page is
	// considered server-rendered regardless of markers.
	MinTextLength int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = defaultBodyLengthThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold, MinTextLength: defaultMinTextLength}
}

// ShouldPromote decides whether a rendered fetch is required.
func (h *Heuristic) ShouldPromote(resp discovery.FetchResponse) bool {
	if resp.StatusCode != 200 || resp.UsedHeadless {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	doc.Find("script, style, noscript, template").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	if len(text) >= h.minText() {
		return false
	}
	return doc.Find(shellSelectors).Length() > 0
}

func (h *Heuristic) minText() int {
	if h.MinTextLength > 0 {
		return h.MinTextLength
	}
	return defaultMinTextLength
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Unterminated tag: the rest of the document counts as script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
