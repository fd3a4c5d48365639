package shared

import (
	"net/url"
	"path/filepath"
	"strings"
)

// URIScheme returns the lower-cased scheme of value, or "" when value is a
// plain path.  Single-letter schemes are Windows drive letters.
func URIScheme(value string) string {
	head, _, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found || len(head) < 2 || strings.ContainsAny(head, `/\`) {
		return ""
	}
	return strings.ToLower(head)
}

// FileURI turns an absolute path into a file:// URI.
func FileURI(absPath string) string {
	slashed := filepath.ToSlash(absPath)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return (&url.URL{Scheme: "file", Path: slashed}).String()
}

// ToURI returns value unchanged when it already has a scheme and the
// file:// URI of its absolute path otherwise.
func ToURI(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || URIScheme(trimmed) != "" {
		return trimmed
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return trimmed
	}
	return FileURI(abs)
}
