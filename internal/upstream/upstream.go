// Package upstream is the outbound HTTP client used to reach the single
// configured origin. It owns retry policy, response header filtering, and
// defends against path-based origin smuggling.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"apikeyproxy/internal/config"
	"apikeyproxy/internal/metrics"
)

// allowedResponseHeaders is the set of upstream response headers relayed
// back to the client. Everything else (including hop-by-hop headers and
// anything origin-specific like Set-Cookie) is dropped.
var allowedResponseHeaders = map[string]bool{
	"content-type":  true,
	"cache-control": true,
	"etag":          true,
	"last-modified": true,
	"expires":       true,
	"vary":          true,
}

// Response is the normalized shape of an upstream call result.
type Response struct {
	Status      int
	ContentType string
	Headers     map[string]string // filtered, lowercase-keyed
	Body        any               // decoded JSON if parseable, else raw string
	RawBody     []byte
	CacheControl string
}

// Client issues requests to the single configured upstream origin.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	retries int
}

// New builds a Client from config.HTTPClientConfig. BaseURL must already be
// origin-only (config.Load enforces this).
func New(cfg config.HTTPClientConfig) *Client {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: cfg.BaseURL,
		retries: retries,
	}
}

// Get issues a GET to path (which may include a query string) with the
// given forwarded headers, retrying transient failures.
func (c *Client) Get(ctx context.Context, path string, headers http.Header) (Response, error) {
	return c.requestRetrying(ctx, http.MethodGet, path, headers, nil)
}

// Post issues a POST to path with body, never retried.
func (c *Client) Post(ctx context.Context, path string, headers http.Header, body []byte) (Response, error) {
	return c.requestRaw(ctx, http.MethodPost, path, headers, body)
}

// requestRetrying retries GET calls on transient network errors or 5xx
// responses, up to c.retries extra attempts. POST is never retried by
// callers of this method (only Get routes through it).
func (c *Client) requestRetrying(ctx context.Context, method, path string, headers http.Header, body []byte) (Response, error) {
	var lastResp Response
	var lastErr error

	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.UpstreamRetryInc()
		}
		resp, err := c.requestRaw(ctx, method, path, headers, body)
		if err == nil && resp.Status < 500 {
			return resp, nil
		}
		lastResp, lastErr = resp, err
		if ctx.Err() != nil {
			break
		}
	}
	return lastResp, lastErr
}

// requestRaw performs a single HTTP round trip against the upstream origin.
func (c *Client) requestRaw(ctx context.Context, method, path string, headers http.Header, body []byte) (Response, error) {
	target, err := c.resolveTarget(path)
	if err != nil {
		return Response{}, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Response{}, err
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamResponse(method, 0, time.Since(start))
		return Response{}, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveUpstreamResponse(method, resp.StatusCode, time.Since(start))
		return Response{}, fmt.Errorf("reading upstream response: %w", err)
	}
	metrics.ObserveUpstreamResponse(method, resp.StatusCode, time.Since(start))

	return Response{
		Status:       resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		CacheControl: resp.Header.Get("Cache-Control"),
		Headers:      filterResponseHeaders(resp.Header),
		Body:         decodeBody(raw, resp.Header.Get("Content-Type")),
		RawBody:      raw,
	}, nil
}

// resolveTarget joins the configured base URL with path, rejecting any path
// that attempts to smuggle an absolute URL (scheme confusion / SSRF via a
// "//host" or "scheme://host" path segment).
func (c *Client) resolveTarget(path string) (string, error) {
	if strings.Contains(path, "://") {
		return "", fmt.Errorf("invalid upstream path: %q contains a scheme", path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid upstream path: %w", err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("invalid upstream path: %q resolves to an absolute URL", path)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

func filterResponseHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for k := range h {
		lk := strings.ToLower(k)
		if allowedResponseHeaders[lk] {
			out[lk] = h.Get(k)
		}
	}
	return out
}

// decodeBody tries to parse raw as JSON; on failure (or non-JSON content
// type) it falls back to the raw text so the body is never dropped.
func decodeBody(raw []byte, contentType string) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func looksLikeJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}
