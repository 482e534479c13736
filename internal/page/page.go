// Package page wraps goquery for the handful of HTML queries discovery needs.
package page

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML. Malformed markup is tolerated the
// way browsers tolerate it; only read failures are reported.
func Parse(body []byte) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// ParseString is Parse for string input.
func ParseString(html string) (*Document, error) {
	return Parse([]byte(html))
}

// Text returns the text content of the body element, or of the whole
// document when there is no body.
func (d *Document) Text() string {
	body := d.doc.Find("body")
	if body.Length() == 0 {
		return d.doc.Text()
	}
	return body.Text()
}

// Hrefs returns the raw href of every anchor in document order.
func (d *Document) Hrefs() []string {
	var out []string
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, strings.TrimSpace(href))
		}
	})
	return out
}

// FirstHref returns the href of the first element matching selector that
// carries a non-empty href.
func (d *Document) FirstHref(selector string) (string, bool) {
	var (
		found string
		ok    bool
	)
	d.doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, has := s.Attr("href")
		href = strings.TrimSpace(href)
		if !has || href == "" {
			return true
		}
		found, ok = href, true
		return false
	})
	return found, ok
}
