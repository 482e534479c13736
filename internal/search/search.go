// Package search runs web searches through a rendered browser session.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/hr-contact-discovery/internal/discovery"
	"github.com/JakeFAU/hr-contact-discovery/internal/page"
)

const (
	// DefaultBaseURL is the search endpoint queries are appended to.
	DefaultBaseURL = "https://www.google.com/search"
	// DefaultResultSelector matches organic result links.
	DefaultResultSelector = "div.g a"
)

// ErrNoResults is returned when a results page has no organic result link.
var ErrNoResults = errors.New("search returned no results")

// Config controls the search engine endpoint and result parsing.
type Config struct {
	BaseURL        string
	ResultSelector string
}

// Client renders search result pages.
type Client struct {
	launcher discovery.Launcher
	cfg      Config
	logger   *zap.Logger
}

// New builds a Client.
func New(launcher discovery.Launcher, cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = DefaultResultSelector
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{launcher: launcher, cfg: cfg, logger: logger}
}

// URL returns the results page address for query.
func (c *Client) URL(query string) string {
	return c.cfg.BaseURL + "?q=" + url.QueryEscape(query)
}

// Render loads the results page for query in a fresh browser session and
// returns its HTML. The session is closed before Render returns.
func (c *Client) Render(ctx context.Context, query string) (string, error) {
	if c.launcher == nil {
		return "", fmt.Errorf("render %q: no browser launcher", query)
	}
	session, err := c.launcher.Launch(ctx)
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			c.logger.Warn("browser session close failed", zap.Error(cerr))
		}
	}()

	html, err := session.Navigate(ctx, c.URL(query))
	if err != nil {
		return "", fmt.Errorf("navigate search results: %w", err)
	}
	return html, nil
}

// FirstResult returns the href of the first organic result in html.
func (c *Client) FirstResult(html string) (string, error) {
	doc, err := page.ParseString(html)
	if err != nil {
		return "", err
	}
	href, ok := doc.FirstHref(c.cfg.ResultSelector)
	if !ok {
		return "", ErrNoResults
	}
	return href, nil
}
