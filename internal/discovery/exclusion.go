package discovery

import (
	"net/url"
	"sort"
	"strings"
)

// ExclusionSet is an immutable set of excluded hosts. A host is excluded when
// it equals an entry or is a subdomain of one. The "www." prefix is ignored
// on both sides.
type ExclusionSet struct {
	hosts map[string]struct{}
}

func NewExclusionSet(hosts ...string) ExclusionSet {
	s := ExclusionSet{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		if h = normalizeHost(h); h != "" {
			s.hosts[h] = struct{}{}
		}
	}
	return s
}

// With returns a copy that also excludes hosts.
func (s ExclusionSet) With(hosts ...string) ExclusionSet {
	out := s.clone()
	for _, h := range hosts {
		if h = normalizeHost(h); h != "" {
			out.hosts[h] = struct{}{}
		}
	}
	return out
}

// Without returns a copy with hosts removed.
func (s ExclusionSet) Without(hosts ...string) ExclusionSet {
	out := s.clone()
	for _, h := range hosts {
		delete(out.hosts, normalizeHost(h))
	}
	return out
}

func (s ExclusionSet) clone() ExclusionSet {
	out := ExclusionSet{hosts: make(map[string]struct{}, len(s.hosts))}
	for h := range s.hosts {
		out.hosts[h] = struct{}{}
	}
	return out
}

// Excludes reports whether the URL or bare host falls under an entry.
func (s ExclusionSet) Excludes(urlOrHost string) bool {
	host := normalizeHost(urlOrHost)
	if host == "" || len(s.hosts) == 0 {
		return false
	}
	for {
		if _, ok := s.hosts[host]; ok {
			return true
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			return false
		}
		host = host[i+1:]
	}
}

func (s ExclusionSet) Len() int { return len(s.hosts) }

// Hosts returns the entries in sorted order.
func (s ExclusionSet) Hosts() []string {
	out := make([]string, 0, len(s.hosts))
	for h := range s.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// normalizeHost accepts a URL or a host and returns the lowercase host
// without port, trailing dot or "www." prefix.
func normalizeHost(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Hostname()
	} else {
		if i := strings.IndexAny(s, "/?#"); i >= 0 {
			s = s[:i]
		}
		if i := strings.LastIndexByte(s, ':'); i >= 0 && !strings.Contains(s[:i], ":") {
			s = s[:i]
		}
	}
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}
