// Package storage archives discovery reports to a blob store. Backends live
// in the memory, local and gcs subpackages.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
)

// BlobStore persists artifacts and returns a URI for later retrieval.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Defaults for Archive fields left empty.
const (
	DefaultPrefix      = "reports"
	DefaultContentType = "application/json"
)

// Archive writes reports to <prefix>/<yyyy-mm-dd>/<run_id>.json, dated by
// the run's start time in UTC.
type Archive struct {
	store       BlobStore
	prefix      string
	contentType string
}

// NewArchive wraps store. Empty prefix and content type take the defaults.
func NewArchive(store BlobStore, prefix, contentType string) *Archive {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Archive{store: store, prefix: prefix, contentType: contentType}
}

// Path returns the object path for report.
func (a *Archive) Path(report discovery.Report) string {
	day := report.StartedAt.UTC().Format("2006-01-02")
	return path.Join(a.prefix, day, report.RunID+".json")
}

// Save uploads body, the encoded form of report, and returns its URI.
func (a *Archive) Save(ctx context.Context, report discovery.Report, body []byte) (string, error) {
	if report.RunID == "" {
		return "", fmt.Errorf("report has no run id")
	}
	uri, err := a.store.PutObject(ctx, a.Path(report), a.contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive report %s: %w", report.RunID, err)
	}
	return uri, nil
}

// EncodeReport renders report as indented JSON followed by a newline.
func EncodeReport(report discovery.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}
