// Package proxy implements the client-facing data plane: authentication,
// rate limiting, admission control, header hygiene, and the cache-aside
// dispatch to the single configured upstream origin.
package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"apikeyproxy/internal/audit"
	"apikeyproxy/internal/cachepolicy"
	"apikeyproxy/internal/cachestore"
	"apikeyproxy/internal/config"
	"apikeyproxy/internal/hasher"
	"apikeyproxy/internal/keyregistry"
	"apikeyproxy/internal/metrics"
	"apikeyproxy/internal/ratelimiter"
	"apikeyproxy/internal/upstream"
)

// Pipeline wires together every stage a proxied request passes through.
type Pipeline struct {
	cfg       config.Config
	keys      *keyregistry.Registry
	limiter   *ratelimiter.Limiter
	cache     *cachestore.Store
	client    *upstream.Client
	admission *Admission
	audit     *audit.Logger
}

// New returns a Pipeline ready to serve requests. audit may be nil, in which
// case auth-failure events are dropped instead of logged.
func New(cfg config.Config, keys *keyregistry.Registry, limiter *ratelimiter.Limiter, cache *cachestore.Store, client *upstream.Client, admission *Admission, auditLog *audit.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, keys: keys, limiter: limiter, cache: cache, client: client, admission: admission, audit: auditLog}
}

// ServeHTTP implements the full proxy pipeline for GET and POST requests
// under the public API prefix.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cacheLabel := "BYPASS"
	reqID := ensureRequestID(r)
	w.Header().Set("X-Request-Id", reqID)

	release, err := p.admission.Acquire(r.Context())
	if err != nil {
		writeError(w, err)
		observeProxyResponse(r.Method, err, start, cacheLabel)
		return
	}
	defer release()

	path, err := SanitizePath(r.URL.Path)
	if err != nil {
		httpErr := newHTTPError(http.StatusBadRequest, "invalid request path", err)
		writeError(w, httpErr)
		observeProxyResponse(r.Method, httpErr, start, cacheLabel)
		return
	}

	rawAPIKey := r.Header.Get("x-api-key")
	consumer, err := p.keys.Validate(r.Context(), rawAPIKey)
	if err != nil {
		httpErr := newHTTPError(http.StatusServiceUnavailable, "authentication backend unavailable", err)
		writeError(w, httpErr)
		observeProxyResponse(r.Method, httpErr, start, cacheLabel)
		return
	}
	if consumer == nil {
		status := http.StatusUnauthorized
		message := "invalid or missing api key"
		reason := "invalid_api_key"
		if d, rlErr := p.limiter.Allow(r.Context(), "preauth", clientIP(r), p.cfg.APIKeys.RateLimitWindowSeconds, p.cfg.APIKeys.RateLimitMaxRequests*5); rlErr == nil {
			setRateLimitHeaders(w, d)
			if !d.Allowed {
				status = http.StatusTooManyRequests
				message = "too many requests"
				reason = "preauth_rate_limited"
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
			}
		}
		httpErr := newHTTPError(status, message, nil)
		p.auditAuthFailure(reqID, reason, rawAPIKey, r)
		writeError(w, httpErr)
		observeProxyResponse(r.Method, httpErr, start, cacheLabel)
		return
	}

	d, err := p.limiter.Allow(r.Context(), "key", consumer.KeyID, p.cfg.APIKeys.RateLimitWindowSeconds, p.cfg.APIKeys.RateLimitMaxRequests)
	if err != nil {
		httpErr := newHTTPError(http.StatusServiceUnavailable, "rate limit backend unavailable", err)
		writeError(w, httpErr)
		observeProxyResponse(r.Method, httpErr, start, cacheLabel)
		return
	}
	setRateLimitHeaders(w, d)
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
		httpErr := newHTTPError(http.StatusTooManyRequests, "too many requests", nil)
		p.auditAuthFailure(reqID, "key_rate_limited", rawAPIKey, r)
		writeError(w, httpErr)
		observeProxyResponse(r.Method, httpErr, start, cacheLabel)
		return
	}

	cleanHeaders := CleanRequestHeaders(r.Header)
	injectServerKey(cleanHeaders, p.cfg.HTTPClient.ServerKey)

	switch r.Method {
	case http.MethodGet:
		cacheLabel = p.handleGet(w, r, path, cleanHeaders, rawAPIKey)
	case http.MethodPost:
		cacheLabel = p.handlePost(w, r, path, cleanHeaders)
	default:
		httpErr := newHTTPError(http.StatusNotFound, "method not supported", nil)
		writeError(w, httpErr)
		observeProxyResponse(r.Method, httpErr, start, cacheLabel)
		return
	}

	observeProxyResponse(r.Method, nil, start, cacheLabel)
}

// observeProxyResponse records the client-facing outcome of a pipeline run.
// A nil err means the response status came from cacheLabel's underlying
// CachedValue, which pipeline stages already wrote to the response; here we
// only need a representative status for the metric, so errors map to their
// HTTPError status and success maps to 200 (the common case — proxied
// non-200 statuses are still tagged by method/cache outcome).
func observeProxyResponse(method string, err error, start time.Time, cacheLabel string) {
	status := http.StatusOK
	if he, ok := err.(*HTTPError); ok {
		status = he.Status
	} else if err != nil {
		status = http.StatusBadGateway
	}
	metrics.ObserveProxyResponse(method, status, cacheLabel, time.Since(start))
}

// readBody reads a request body up to the configured limit, rejecting
// anything larger rather than buffering unboundedly.
func (p *Pipeline) readBody(r *http.Request) ([]byte, error) {
	limit := p.cfg.Proxy.BodyLimitBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	limited := io.LimitReader(r.Body, int64(limit)+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if len(body) > limit {
		return nil, newHTTPError(http.StatusRequestEntityTooLarge, "request body too large", nil)
	}
	return body, nil
}

func (p *Pipeline) handleGet(w http.ResponseWriter, r *http.Request, path string, headers http.Header, rawAPIKey string) string {
	pathWithQuery := path
	if r.URL.RawQuery != "" {
		pathWithQuery += "?" + r.URL.RawQuery
	}

	bypass := cachepolicy.ShouldBypass(r.Header, path, p.cfg.Cache.BypassPathPrefixes)

	load := func(ctx context.Context) (cachestore.LoaderResult, error) {
		resp, err := p.client.Get(ctx, pathWithQuery, headers)
		if err != nil {
			return cachestore.LoaderResult{}, newHTTPError(http.StatusBadGateway, "upstream request failed", err)
		}
		decision := cachepolicy.Decide(resp.Status, resp.CacheControl, cachepolicy.DecideOptions{
			IgnoreUpstreamControl: p.cfg.Cache.IgnoreUpstreamControl,
		})
		ttl := decision.TTLSeconds
		if ttl == 0 {
			ttl = p.cfg.Cache.TTLDefaultSeconds
		}
		cv := cachestore.CachedValue{
			Status:      resp.Status,
			Body:        resp.Body,
			ContentType: resp.ContentType,
			Headers:     resp.Headers,
		}
		return cachestore.LoaderResult{
			Value:           cv,
			Cacheable:       decision.Cacheable && !bypass,
			TTLSeconds:      ttl,
			StaleTTLSeconds: p.cfg.Cache.StaleTTLSeconds,
		}, nil
	}

	if bypass {
		lr, err := load(r.Context())
		if err != nil {
			writeError(w, err)
			return "BYPASS"
		}
		writeCachedValue(w, lr.Value, "BYPASS", "")
		return "BYPASS"
	}

	key := cachepolicy.BuildKey(r.Method, pathWithQuery, r.Header.Get("Accept"), r.Header.Get("Accept-Language"), rawAPIKey)
	result, err := p.cache.SWR(r.Context(), key, load)
	if err != nil {
		writeError(w, err)
		return "BYPASS"
	}
	writeCachedValue(w, result.Value, string(result.Status), cacheKeyHashFor(p.cfg.Cache.Debug, key))
	return string(result.Status)
}

// isJSONContentType reports whether ct names a JSON media type, per RFC 6839
// "+json" structured syntax suffixes as well as the plain application/json.
func isJSONContentType(ct string) bool {
	mt, _, found := strings.Cut(ct, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	if !found {
		mt = strings.ToLower(strings.TrimSpace(ct))
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// injectServerKey sets the server-side api_key header on an outbound
// upstream request, but only when the caller did not already supply one
// (api_key is an upstream credential distinct from the x-api-key the caller
// authenticates with, which CleanRequestHeaders never forwards).
func injectServerKey(headers http.Header, serverKey string) {
	if serverKey == "" || headers.Get("api_key") != "" {
		return
	}
	headers.Set("api_key", serverKey)
}

func (p *Pipeline) handlePost(w http.ResponseWriter, r *http.Request, path string, headers http.Header) string {
	body, err := p.readBody(r)
	if err != nil {
		if he, ok := err.(*HTTPError); ok {
			writeError(w, he)
		} else {
			writeError(w, newHTTPError(http.StatusBadRequest, "invalid request body", err))
		}
		return "BYPASS"
	}
	if len(body) > 0 && !isJSONContentType(r.Header.Get("Content-Type")) {
		writeError(w, newHTTPError(http.StatusUnsupportedMediaType, "request body must be application/json", nil))
		return "BYPASS"
	}
	resp, err := p.client.Post(r.Context(), path, headers, body)
	if err != nil {
		writeError(w, newHTTPError(http.StatusBadGateway, "upstream request failed", err))
		return "BYPASS"
	}
	cv := cachestore.CachedValue{
		Status:      resp.Status,
		Body:        resp.Body,
		ContentType: resp.ContentType,
		Headers:     resp.Headers,
	}
	writeCachedValue(w, cv, "BYPASS", "")
	return "BYPASS"
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimiter.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt, 10))
}

// auditAuthFailure records a failed auth/throttle decision, fingerprinting
// rawKey instead of logging it so the raw credential never reaches storage.
func (p *Pipeline) auditAuthFailure(reqID, reason, rawKey string, r *http.Request) {
	if p.audit == nil {
		return
	}
	fp := ""
	if rawKey != "" {
		fp = hasher.Fingerprint(rawKey)
	}
	p.audit.AuthFailure(reason, fp, clientIP(r), reqID)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
