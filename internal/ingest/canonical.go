package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var trackingParamPrefixes = []string{"utm_"}

var trackingParams = []string{
	"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session", "s_cid", "msclkid", "_hsenc", "_hsmi",
}

// CanonicalizeURL lowercases scheme and host, drops default ports, fragments,
// tracking parameters and a trailing slash on non-root paths.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
		}
	}
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		for _, prefix := range trackingParamPrefixes {
			if strings.HasPrefix(strings.ToLower(k), prefix) {
				q.Del(k)
			}
		}
	}
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}

	return u.String()
}

// DedupKey identifies a page regardless of scheme or a leading "www.".
func DedupKey(rawURL string) string {
	canonical := CanonicalizeURL(rawURL)
	u, err := url.Parse(canonical)
	if err != nil || u.Host == "" {
		return strings.ToLower(canonical)
	}

	key := strings.TrimPrefix(u.Host, "www.") + u.EscapedPath()
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// ExternalID is the deterministic store key for a URL: sha1 hex of its DedupKey.
func ExternalID(rawURL string) string {
	sum := sha1.Sum([]byte(DedupKey(rawURL)))
	return hex.EncodeToString(sum[:])
}

// Host returns the lowercase hostname without port or "www." prefix.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// RegistrableDomain returns eTLD+1 for the URL's host (e.g. "nsf.gov" for
// "https://www.research.nsf.gov/x"). Hosts the public suffix list cannot
// reduce, such as IPs or localhost, are returned as-is.
func RegistrableDomain(rawURL string) string {
	host := Host(rawURL)
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
