package parse

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeURL renders u in the canonical form used for per-run dedup: lowercase scheme
// and host, no default port, no fragment or query, no trailing slash except for the root.
// u is not modified.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = stripDefaultPort(n.Scheme, strings.ToLower(n.Host))
	n.Fragment, n.RawFragment = "", ""
	n.RawQuery, n.ForceQuery = "", false

	switch {
	case n.Path == "":
		n.Path = "/"
	case len(n.Path) > 1:
		n.Path = strings.TrimSuffix(n.Path, "/")
	}
	n.RawPath = ""
	return n.String()
}

func stripDefaultPort(scheme, host string) string {
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return h
	}
	return host
}

// ParseAndNormalize parses an absolute URL and returns its normalized form
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// DedupKey is the identity of a URL within one run. Unparseable input is its own key.
func DedupKey(rawURL string) string {
	n, _, err := ParseAndNormalize(rawURL)
	if err != nil {
		return rawURL
	}
	return n
}

// ResolveLink resolves href against base and keeps it only when it is an http(s) page on
// the same host. The result is normalized.
func ResolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(abs.Hostname(), base.Hostname()) {
		return "", false
	}
	return NormalizeURL(abs), true
}
