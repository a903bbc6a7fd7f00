package ingest

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	jobKeyPrefix   = "job:"
	videoKeyPrefix = "video:"
)

// JobKey returns the store key for a job record.
func JobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// CacheKey returns the store key for a cached result.
func CacheKey(fingerprint string) string {
	return videoKeyPrefix + fingerprint
}

// ValidateSourceURL accepts absolute http(s) URLs with a host.
func ValidateSourceURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidURL)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return u, nil
}

// NormalizeURL standardizes a URL so equivalent spellings share a cache entry.
// It lowercases the scheme and host, removes default ports, sorts query parameters,
// and drops the fragment.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// Fingerprint derives the stable cache fingerprint for a source URL.
func Fingerprint(h Hasher, rawURL string) (string, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	sum, err := h.Hash([]byte(normalized))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return sum, nil
}

// HostMatches reports whether the URL's host equals one of the domains or is a
// subdomain of one.
func HostMatches(rawURL string, domains []string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
