package parse

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"portal-harvester/pkg/utils"
)

// NormalizeURL standardizes a URL for comparison and storage.
// It lowercases the scheme and host, removes default ports, removes trailing slashes from
// paths (unless root "/"), ensures an empty path becomes "/", and drops fragment and query.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := canonical(u)
	normalized.RawQuery = ""
	return normalized.String()
}

// canonical returns a copy of u with scheme, host, port, path and fragment normalized.
// The query is left untouched for the caller to filter.
func canonical(u *url.URL) url.URL {
	normalized := *u
	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	if host, port, err := net.SplitHostPort(normalized.Host); err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
		normalized.RawPath = ""
	} else {
		for len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
			normalized.Path = normalized.Path[:len(normalized.Path)-1]
		}
		normalized.RawPath = ""
	}

	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.ForceQuery = false
	normalized.User = nil
	return normalized
}

// ParseAndNormalize parses a URL string with url.ParseRequestURI (requiring a scheme) and
// normalizes it with NormalizeURL.
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// Normalizer canonicalizes raw hyperlinks into frontier keys scoped to one domain.
// The zero value accepts any host and strips every query parameter.
type Normalizer struct {
	domain    string
	preserved map[string]bool
}

// NewNormalizer creates a Normalizer for the given domain. Query parameters named in
// preservedParams survive normalization; all others are dropped.
func NewNormalizer(domain string, preservedParams []string) *Normalizer {
	n := &Normalizer{
		domain:    strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "www."),
		preserved: make(map[string]bool, len(preservedParams)),
	}
	for _, p := range preservedParams {
		if p = strings.TrimSpace(p); p != "" {
			n.preserved[p] = true
		}
	}
	return n
}

// Domain returns the registrable domain the normalizer is scoped to
func (n *Normalizer) Domain() string {
	return n.domain
}

// InDomain reports whether host is the configured domain or one of its subdomains
func (n *Normalizer) InDomain(host string) bool {
	if n.domain == "" {
		return true
	}
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host == n.domain || strings.HasSuffix(host, "."+n.domain)
}

// Normalize resolves raw against base (which may be empty for absolute input) and returns
// the canonical key. Out-of-domain hosts and non-http(s) schemes yield ErrScopeViolation.
func (n *Normalizer) Normalize(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", utils.ErrParsing)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parsing '%s': %w", utils.ErrParsing, raw, err)
	}
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("%w: parsing base '%s': %w", utils.ErrParsing, base, err)
		}
		ref = baseURL.ResolveReference(ref)
	}

	scheme := strings.ToLower(ref.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme '%s' in '%s'", utils.ErrScopeViolation, ref.Scheme, raw)
	}
	if ref.Host == "" {
		return "", fmt.Errorf("%w: no host in '%s'", utils.ErrParsing, raw)
	}
	if !n.InDomain(ref.Hostname()) {
		return "", fmt.Errorf("%w: host '%s' outside '%s'", utils.ErrScopeViolation, ref.Hostname(), n.domain)
	}

	normalized := canonical(ref)
	normalized.RawQuery = n.filterQuery(ref.Query())
	return normalized.String(), nil
}

// filterQuery keeps preserved parameters, encoded with sorted keys and values
func (n *Normalizer) filterQuery(values url.Values) string {
	if len(n.preserved) == 0 || len(values) == 0 {
		return ""
	}
	kept := url.Values{}
	for key, vals := range values {
		if !n.preserved[key] {
			continue
		}
		sorted := append([]string(nil), vals...)
		sort.Strings(sorted)
		kept[key] = sorted
	}
	return kept.Encode()
}

// StripQueryParam removes one query parameter from an already normalized URL,
// keeping the remaining parameters in sorted order.
func StripQueryParam(rawURL, name string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: parsing '%s': %w", utils.ErrParsing, rawURL, err)
	}
	q := u.Query()
	q.Del(name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
