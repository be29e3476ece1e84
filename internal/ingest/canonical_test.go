package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Example.ORG/grants/?utm_source=x&id=7#apply", "https://example.org/grants?id=7"},
		{"http://example.org:80/", "http://example.org/"},
		{"https://example.org:443/a/b/", "https://example.org/a/b"},
		{"https://example.org/p?fbclid=abc", "https://example.org/p"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalizeURL(tt.in), tt.in)
	}
}

func TestDedupKey_IgnoresSchemeAndWWW(t *testing.T) {
	a := DedupKey("http://www.foundation.org/apply/?utm_medium=email")
	b := DedupKey("https://foundation.org/apply")
	assert.Equal(t, a, b)
	assert.Equal(t, ExternalID("http://www.foundation.org/apply/"), ExternalID("https://foundation.org/apply"))
	assert.Len(t, ExternalID("https://foundation.org/apply"), 40)
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "nsf.gov", RegistrableDomain("https://www.research.nsf.gov/funding"))
	assert.Equal(t, "example.co.uk", RegistrableDomain("https://grants.example.co.uk/"))
	assert.Equal(t, "127.0.0.1", RegistrableDomain("http://127.0.0.1:8080/x"))
	assert.Equal(t, "", RegistrableDomain("::bad"))
}

func TestHost(t *testing.T) {
	assert.Equal(t, "grants.gov", Host("https://WWW.Grants.gov:443/search"))
}
