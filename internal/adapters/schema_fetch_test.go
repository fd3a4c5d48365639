package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
)

func TestFileSchemaFetcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type": "object"}`), 0644))

	fetcher := NewFileSchemaFetcher()
	for _, location := range []string{path, shared.FileURI(path)} {
		content, err := fetcher.Fetch(t.Context(), location)
		require.NoError(t, err)
		assert.Equal(t, `{"type": "object"}`, content)
	}

	_, err := fetcher.Fetch(t.Context(), shared.FileURI(filepath.Join(dir, "missing.json")))
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	_, err = fetcher.Fetch(t.Context(), "  ")
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestFileSchemaFetcherCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := NewFileSchemaFetcher().Fetch(ctx, "schema.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request canceled")
}

func TestHTTPSchemaFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/schema.json":
			_, _ = w.Write([]byte(`{"type": "string"}`))
		case "/forbidden.json":
			http.Error(w, "no access", http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	fetcher := NewHTTPSchemaFetcher(5, 1, 1)
	content, err := fetcher.Fetch(t.Context(), server.URL+"/schema.json")
	require.NoError(t, err)
	assert.Equal(t, `{"type": "string"}`, content)

	_, err = fetcher.Fetch(t.Context(), server.URL+"/missing.json")
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeNotFound, errbuilder.CodeOf(err))

	_, err = fetcher.Fetch(t.Context(), server.URL+"/forbidden.json")
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInternal, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "403")
}

func TestHTTPSchemaFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	content, err := NewHTTPSchemaFetcher(5, 3, 1).Fetch(t.Context(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "{}", content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPSchemaFetcherGivesUp(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	_, err := NewHTTPSchemaFetcher(5, 2, 1).Fetch(t.Context(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(2), calls.Load())
}

func TestNormalizeHTTPConfig(t *testing.T) {
	cfg := normalizeHTTPConfig(0, 0, 0)
	assert.Equal(t, defaultHTTPTimeout, cfg.timeout)
	assert.Equal(t, defaultHTTPRetries, cfg.retries)
	assert.Equal(t, defaultHTTPRetryDelay, cfg.baseDelay)

	cfg = normalizeHTTPConfig(2, 5, 50)
	assert.Equal(t, 2*time.Second, cfg.timeout)
	assert.Equal(t, 5, cfg.retries)
	assert.Equal(t, 50*time.Millisecond, cfg.baseDelay)
}

func TestHTTPRetryDelayIsCapped(t *testing.T) {
	cfg := normalizeHTTPConfig(1, 10, 500)
	delay := httpRetryDelay(8, cfg)
	assert.GreaterOrEqual(t, delay, maxHTTPRetryDelay)
	assert.LessOrEqual(t, delay, maxHTTPRetryDelay+maxHTTPRetryDelay/2)
}

type recordingFetcher struct {
	name string
	seen *[]string
}

func (f recordingFetcher) Fetch(ctx context.Context, uri string) (string, error) {
	*f.seen = append(*f.seen, f.name+" "+uri)
	return "{}", nil
}

func TestSchemaFetcherAdapterDispatch(t *testing.T) {
	var seen []string
	adapter := NewSchemaFetcherAdapter(recordingFetcher{name: "file", seen: &seen}, recordingFetcher{name: "http", seen: &seen})

	for _, uri := range []string{"file:///a.json", "schemas/b.json", `C:\schemas\c.json`, "https://example.test/d.json", "HTTP://example.test/e.json"} {
		_, err := adapter.Fetch(t.Context(), uri)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{
		"file file:///a.json",
		"file schemas/b.json",
		`file C:\schemas\c.json`,
		"http https://example.test/d.json",
		"http HTTP://example.test/e.json",
	}, seen)

	_, err := adapter.Fetch(t.Context(), "ftp://example.test/f.json")
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "ftp")
}
