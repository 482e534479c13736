package sitecrawl

import (
	"fmt"
	"net/url"
	"strings"
)

// SeedURL returns the canonical root page for domain.
func SeedURL(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", fmt.Errorf("empty domain")
	}
	if strings.ContainsAny(domain, "/?#@ ") {
		return "", fmt.Errorf("domain %q is not a bare hostname", domain)
	}
	return NormalizeURL("https://" + domain + "/")
}

// NormalizeURL standardizes a URL so equivalent spellings share one
// frontier entry. It lowercases the scheme and host, removes default ports,
// drops the fragment, sorts query parameters and gives empty paths a "/".
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return normalize(u), nil
}

func normalize(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	if c.Scheme == "http" && strings.HasSuffix(c.Host, ":80") {
		c.Host = strings.TrimSuffix(c.Host, ":80")
	}
	if c.Scheme == "https" && strings.HasSuffix(c.Host, ":443") {
		c.Host = strings.TrimSuffix(c.Host, ":443")
	}
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" && c.RawPath == "" {
		c.Path = "/"
	}
	if c.RawQuery != "" {
		c.RawQuery = c.Query().Encode()
	}
	c.User = nil
	return c.String()
}

// hostKey is the comparison form of a hostname: lowercase with a single
// leading "www." removed.
func hostKey(host string) string {
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}

// sameSite reports whether host belongs to the crawl origin.
func sameSite(originHost, host string) bool {
	if originHost == "" || host == "" {
		return false
	}
	return hostKey(originHost) == hostKey(host)
}

// isRelativeLink applies the crawl's notion of a relative link: no scheme,
// not an in-page anchor and no mailto anywhere in it.
func isRelativeLink(href string, parsed *url.URL) bool {
	if parsed.Scheme != "" {
		return false
	}
	if strings.HasPrefix(href, "#") {
		return false
	}
	return !strings.Contains(strings.ToLower(href), "mailto:")
}

// resolveLink turns href found on the page at base into a canonical,
// followable URL. Path-relative links stay on the page's own host. Links that
// name a host, absolute or protocol-relative, must match the origin.
func resolveLink(base *url.URL, originHost, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	var target *url.URL
	switch {
	case isRelativeLink(href, parsed):
		if base == nil {
			return "", false
		}
		target = base.ResolveReference(parsed)
		if parsed.Host == "" {
			return normalize(target), true
		}
	case parsed.Scheme == "http" || parsed.Scheme == "https":
		target = parsed
	default:
		return "", false
	}

	scheme := strings.ToLower(target.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	if !sameSite(originHost, target.Hostname()) {
		return "", false
	}
	return normalize(target), true
}
