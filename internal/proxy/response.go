package proxy

import (
	"encoding/json"
	"net/http"
	"strings"

	"apikeyproxy/internal/cachestore"
	"apikeyproxy/internal/hasher"
)

// writeCachedValue renders a CachedValue (fresh, cached, or freshly loaded)
// to the client, tagging the response with the X-Cache outcome header.
// cacheKeyHash is the debug x-cache-key-hash value; pass "" to omit it.
func writeCachedValue(w http.ResponseWriter, v cachestore.CachedValue, cacheLabel, cacheKeyHash string) {
	for k, val := range v.Headers {
		w.Header().Set(k, val)
	}
	status := statusOrDefault(v.Status)
	if v.ContentType != "" && status != http.StatusNoContent && status != http.StatusNotModified {
		w.Header().Set("Content-Type", v.ContentType)
	}
	w.Header().Set("X-Cache", cacheLabel)
	if cacheKeyHash != "" {
		w.Header().Set("X-Cache-Key-Hash", cacheKeyHash)
	}
	w.WriteHeader(status)

	if status == http.StatusNoContent || status == http.StatusNotModified {
		return
	}
	if strings.Contains(strings.ToLower(v.ContentType), "json") {
		if v.Body == nil {
			return
		}
		_ = json.NewEncoder(w).Encode(v.Body)
		return
	}
	if s, ok := v.Body.(string); ok {
		_, _ = w.Write([]byte(s))
	}
}

// cacheKeyHashFor returns the debug cache-key-hash value, or "" when cache
// debug is disabled.
func cacheKeyHashFor(debug bool, cacheKey string) string {
	if !debug || cacheKey == "" {
		return ""
	}
	return hasher.Fingerprint(cacheKey)
}

func statusOrDefault(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

// writeError renders an HTTPError (or a generic error mapped to 502) as a
// small JSON error body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	message := "upstream request failed"
	if he, ok := err.(*HTTPError); ok {
		status = he.Status
		message = he.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "BYPASS")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
