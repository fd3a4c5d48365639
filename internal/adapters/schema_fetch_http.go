package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/ports"
	"github.com/Stuart-Wilcox/azure-pipelines-language-server/internal/shared"
)

const defaultHTTPTimeout = 30 * time.Second
const defaultHTTPRetries = 3
const defaultHTTPRetryDelay = 200 * time.Millisecond
const maxHTTPRetryDelay = 2 * time.Second
const maxSchemaBytes = 32 << 20

type httpRetryConfig struct {
	timeout   time.Duration
	retries   int
	baseDelay time.Duration
}

func normalizeHTTPConfig(timeoutSec int, retries int, delayMs int) httpRetryConfig {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	retryCount := retries
	if retryCount <= 0 {
		retryCount = defaultHTTPRetries
	}
	baseDelay := time.Duration(delayMs) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = defaultHTTPRetryDelay
	}
	return httpRetryConfig{
		timeout:   timeout,
		retries:   retryCount,
		baseDelay: baseDelay,
	}
}

// HTTPSchemaFetcher downloads schema documents over http and https.
// Transport failures, 429 and 5xx responses are retried with capped
// exponential backoff.
type HTTPSchemaFetcher struct {
	client *http.Client
	cfg    httpRetryConfig
}

func NewHTTPSchemaFetcher(timeoutSec int, retries int, delayMs int) HTTPSchemaFetcher {
	cfg := normalizeHTTPConfig(timeoutSec, retries, delayMs)
	return HTTPSchemaFetcher{
		client: &http.Client{Timeout: cfg.timeout},
		cfg:    cfg,
	}
}

func (f HTTPSchemaFetcher) Fetch(ctx context.Context, uri string) (string, error) {
	resp, err := f.doRequest(ctx, uri)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("Resource not found").
			WithCause(shared.HTTPStatusError(resp.StatusCode, uri))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("Request failed with status %d", resp.StatusCode)).
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, uri, strings.TrimSpace(string(body))))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSchemaBytes))
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("Unable to read response").
			WithCause(err)
	}
	log.Ctx(ctx).Debug().Str("uri", uri).Int("bytes", len(data)).Msg("schema downloaded")
	return string(data), nil
}

func (f HTTPSchemaFetcher) doRequest(ctx context.Context, url string) (*http.Response, error) {
	client := f.client
	if client == nil {
		client = &http.Client{Timeout: f.cfg.timeout}
	}
	cfg := f.cfg
	if cfg.retries <= 0 {
		cfg = normalizeHTTPConfig(0, 0, 0)
	}
	var lastErr error
	for attempt := 0; attempt < cfg.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("request canceled").
				WithCause(ctx.Err())
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to create request").
				WithCause(err)
		}
		req.Header.Set("Accept", "application/schema+json, application/json")
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeInternal).
					WithMsg("request canceled").
					WithCause(ctx.Err())
			}
			lastErr = err
			if attempt < cfg.retries-1 {
				time.Sleep(httpRetryDelay(attempt, cfg))
				continue
			}
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("request failed").
				WithCause(err)
		}
		if (resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests) && attempt < cfg.retries-1 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			log.Ctx(ctx).Debug().Str("uri", url).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retrying schema request")
			time.Sleep(httpRetryDelay(attempt, cfg))
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("request failed")
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("request failed").
		WithCause(lastErr)
}

func httpRetryDelay(attempt int, cfg httpRetryConfig) time.Duration {
	delay := cfg.baseDelay * time.Duration(1<<attempt)
	if delay > maxHTTPRetryDelay {
		delay = maxHTTPRetryDelay
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(delay/2+1))
	return delay + jitter
}

var _ ports.SchemaFetchPort = HTTPSchemaFetcher{}
