package sitecrawl

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedURL(t *testing.T) {
	t.Parallel()

	got, err := SeedURL("Acme.com")
	require.NoError(t, err)
	require.Equal(t, "https://acme.com/", got)

	for _, bad := range []string{"", "  ", "acme.com/careers", "user@acme.com", "acme .com", "acme.com?x=1"} {
		_, err := SeedURL(bad)
		require.Error(t, err, bad)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://Acme.COM", "https://acme.com/"},
		{"HTTPS://acme.com:443/jobs#open", "https://acme.com/jobs"},
		{"http://acme.com:80/", "http://acme.com/"},
		{"http://acme.com:8080/", "http://acme.com:8080/"},
		{"https://acme.com/search?b=2&a=1", "https://acme.com/search?a=1&b=2"},
		{"https://user:pw@acme.com/x", "https://acme.com/x"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}

	_, err := NormalizeURL("http://[::1")
	require.Error(t, err)
}

func TestSameSite(t *testing.T) {
	t.Parallel()

	require.True(t, sameSite("acme.com", "acme.com"))
	require.True(t, sameSite("acme.com", "WWW.Acme.com"))
	require.True(t, sameSite("www.acme.com", "acme.com"))
	require.False(t, sameSite("acme.com", "jobs.acme.com"))
	require.False(t, sameSite("acme.com", "acme.com.evil.io"))
	require.False(t, sameSite("acme.com", ""))
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://acme.com/about/team")
	require.NoError(t, err)

	tests := []struct {
		href   string
		want   string
		follow bool
	}{
		{"contact", "https://acme.com/about/contact", true},
		{"/careers", "https://acme.com/careers", true},
		{"../jobs?b=1&a=2", "https://acme.com/jobs?a=2&b=1", true},
		{"https://www.acme.com/hr", "https://www.acme.com/hr", true},
		{"http://acme.com/legacy", "http://acme.com/legacy", true},
		{"  /spaced  ", "https://acme.com/spaced", true},
		{"", "", false},
		{"#team", "", false},
		{"mailto:hr@acme.com", "", false},
		{"/contact?to=mailto:hr@acme.com", "", false},
		{"javascript:void(0)", "", false},
		{"https://partner.io/jobs", "", false},
		{"//cdn.acme.net/app.js", "", false},
		{"//www.acme.com/team", "https://www.acme.com/team", true},
		{"ftp://acme.com/file", "", false},
	}
	for _, tt := range tests {
		got, ok := resolveLink(base, "acme.com", tt.href)
		require.Equal(t, tt.follow, ok, tt.href)
		require.Equal(t, tt.want, got, tt.href)
	}
}

func TestFrontier(t *testing.T) {
	t.Parallel()

	f := newFrontier("https://acme.com/")
	require.True(t, f.enqueue("https://acme.com/a"))
	require.False(t, f.enqueue("https://acme.com/"))
	require.False(t, f.enqueue(""))
	require.Equal(t, 2, f.pending())

	batch := f.next(1)
	require.Equal(t, []string{"https://acme.com/"}, batch)
	require.Equal(t, 1, f.visitedCount())

	// Visited URLs are never queued again.
	require.False(t, f.enqueue("https://acme.com/"))
	require.Equal(t, []string{"https://acme.com/a"}, f.next(10))
	require.Nil(t, f.next(10))
	require.Nil(t, f.next(0))
	require.Equal(t, 2, f.visitedCount())
}
