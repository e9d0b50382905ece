// Package urltext extracts download candidate URLs from free-form pasted
// text.
package urltext

import (
	"net/url"
	"regexp"
	"strings"
)

var urlRe = regexp.MustCompile(`https?://\S+`)

// ExtractURLs finds http(s) URLs in arbitrary text, trims trailing prose
// punctuation, normalizes them and de-duplicates while preserving first-seen
// order. Non-http(s) schemes are ignored.
func ExtractURLs(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, raw := range urlRe.FindAllString(text, -1) {
		cleaned := trimTrailingPunct(raw)
		if cleaned == "" {
			continue
		}
		normalized, ok := Normalize(cleaned)
		if !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

// ContainsMultipleURLs reports whether the text holds more than one distinct
// URL, for confirm-before-bulk-add UI flows.
func ContainsMultipleURLs(text string) bool {
	return len(ExtractURLs(text)) > 1
}

// Normalize validates and canonicalizes an http(s) URL: lowercased scheme
// and host, fragment stripped, default port removed. Path and query are
// preserved as written.
func Normalize(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}

	return u.String(), true
}

// trimTrailingPunct peels punctuation that commonly trails URLs in prose,
// markdown and chat messages.
func trimTrailingPunct(s string) string {
	return strings.TrimRight(s, `)]}>,.;:!?"'`)
}
