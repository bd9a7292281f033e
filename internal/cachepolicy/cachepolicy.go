// Package cachepolicy holds the pure, side-effect-free rules that decide
// cacheability, TTL, and cache-key shape. Nothing in this package touches a
// store or the network, which keeps the policy auditable and easy to test
// in isolation from CacheStore's I/O.
package cachepolicy

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"apikeyproxy/internal/hasher"
)

// Decision is the result of evaluating an upstream response against the
// cache policy.
type Decision struct {
	Cacheable      bool
	TTLSeconds     int // 0 means "unset": caller applies its own default
	StaleTTLSeconds int
}

// DecideOptions carries the knobs that affect Decide beyond the response
// itself.
type DecideOptions struct {
	IgnoreUpstreamControl bool
}

// BuildKey returns the stable cache key for a request, per the CacheKey
// grammar: "proxy:" + METHOD + ":" + PATH_WITH_QUERY + ":" + headerFingerprint,
// where headerFingerprint mixes normalized Accept/Accept-Language with a
// salt derived from (never containing) the raw API key.
//
// Invariants enforced here:
//   - the raw apiKey value never appears as a substring of the returned key
//     (it only ever contributes via its SHA-256 digest);
//   - identical inputs produce identical keys;
//   - changing only apiKey changes the key;
//   - changing only the case of accept/accept-language does not change the key.
func BuildKey(method, pathWithQuery string, accept, acceptLanguage, apiKey string) string {
	normAccept := strings.ToLower(strings.TrimSpace(accept))
	normLang := strings.ToLower(strings.TrimSpace(acceptLanguage))

	var salt string
	if apiKey != "" {
		salt = hasher.Hex(method + ":" + pathWithQuery + ":" + apiKey)
	}

	fingerprint := normAccept + "|" + normLang + "|" + salt
	return "proxy:" + method + ":" + pathWithQuery + ":" + fingerprint
}

// Decide evaluates an upstream response's status and Cache-Control header
// and returns whether (and for how long) it may be cached. Rules are applied
// in the order documented in spec.md §4.1.
func Decide(status int, cacheControl string, opts DecideOptions) Decision {
	switch status {
	case 204, 304:
		return Decision{Cacheable: false}
	}
	if status < 200 || status >= 300 {
		return Decision{Cacheable: false}
	}
	if opts.IgnoreUpstreamControl {
		return Decision{Cacheable: true}
	}

	directives := parseCacheControl(cacheControl)
	if _, ok := directives["no-store"]; ok {
		return Decision{Cacheable: false}
	}
	if _, ok := directives["private"]; ok {
		return Decision{Cacheable: false}
	}

	if raw, ok := directives["s-maxage"]; ok {
		if ttl, ok := parseTTL(raw); ok {
			if ttl <= 0 {
				return Decision{Cacheable: false}
			}
			return Decision{Cacheable: true, TTLSeconds: ttl}
		}
	}
	if raw, ok := directives["max-age"]; ok {
		if ttl, ok := parseTTL(raw); ok {
			if ttl <= 0 {
				return Decision{Cacheable: false}
			}
			return Decision{Cacheable: true, TTLSeconds: ttl}
		}
	}

	return Decision{Cacheable: true}
}

// parseTTL parses a cache-control numeric directive value, floored to an
// integer number of seconds. Non-finite or unparsable values are rejected.
func parseTTL(raw string) (int, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}

// parseCacheControl splits a Cache-Control header into a directive map.
// Keys are lowercase; bare tokens map to "true"; quoted values are unquoted.
func parseCacheControl(headerValue string) map[string]string {
	directives := make(map[string]string)
	if headerValue == "" {
		return directives
	}
	for _, segment := range strings.Split(headerValue, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		kv := strings.SplitN(segment, "=", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		if key == "" {
			continue
		}
		if len(kv) == 2 {
			directives[key] = strings.Trim(strings.TrimSpace(kv[1]), "\"")
		} else {
			directives[key] = "true"
		}
	}
	return directives
}

// ShouldBypass reports whether a GET request must skip the cache entirely:
// either it carries credentials in the Authorization header (which would
// otherwise pollute a shared cache across users), or its base path matches
// a configured bypass prefix.
func ShouldBypass(requestHeaders http.Header, basePath string, bypassPathPrefixes []string) bool {
	if strings.TrimSpace(requestHeaders.Get("Authorization")) != "" {
		return true
	}
	normalized := normalizeBasePath(basePath)
	for _, prefix := range bypassPathPrefixes {
		if matchesBypassPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

func normalizeBasePath(p string) string {
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func matchesBypassPrefix(basePath, prefix string) bool {
	prefix = normalizeBasePath(prefix)
	if prefix == "/" {
		return true
	}
	if basePath == prefix {
		return true
	}
	return strings.HasPrefix(basePath, prefix+"/")
}
