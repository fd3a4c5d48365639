package core

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// normalizeSchemaURI produces the registry key of a schema URI: surrounding
// whitespace and a trailing empty fragment are removed, and the scheme and
// host of absolute URIs are lower-cased.  Paths are left untouched.
func normalizeSchemaURI(uri string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(uri), "#")
	if trimmed == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("schema uri is required")
	}
	if !strings.Contains(trimmed, "://") {
		return trimmed, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid schema uri " + trimmed).
			WithCause(err)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), nil
}

// globMatcher compiles a file-association glob.  '*' spans any run of
// characters including path separators and '?' one character.  The match is
// anchored at the end only, so "*.yml" and "azure-pipelines.yml" both match
// full paths and URIs.
func globMatcher(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
