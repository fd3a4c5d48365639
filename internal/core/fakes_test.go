package core

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// testFetcher serves schema documents from memory and counts requests.
type testFetcher struct {
	mu      sync.Mutex
	content map[string]string
	calls   map[string]int
	delay   time.Duration
}

func newTestFetcher(content map[string]string) *testFetcher {
	return &testFetcher{content: content, calls: map[string]int{}}
}

func (f *testFetcher) Fetch(ctx context.Context, uri string) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	uri = strings.TrimSuffix(uri, "#")
	f.calls[uri]++
	text, ok := f.content[uri]
	if !ok {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("Resource not found.")
	}
	return text, nil
}

func (f *testFetcher) set(uri string, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content[uri] = text
}

func (f *testFetcher) count(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[uri]
}

type testPaths struct{}

func (testPaths) ResolveRelativePath(ref string, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func newTestService(content map[string]string) (*SchemaService, *testFetcher) {
	fetcher := newTestFetcher(content)
	return NewSchemaService(fetcher, testPaths{}), fetcher
}

// diskFetcher reads file:// schema URIs from disk.
type diskFetcher struct{}

func (diskFetcher) Fetch(ctx context.Context, uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.FromSlash(parsed.Path))
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("Resource not found.").
			WithCause(err)
	}
	return string(data), nil
}
