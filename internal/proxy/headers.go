package proxy

import (
	"net/http"
	"strings"
)

// hopByHopHeaders must never be forwarded across a proxy boundary (RFC 7230
// §6.1), plus host/content-length, which are request-framing headers this
// proxy must recompute rather than relay.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
	"content-length":      true,
}

// allowedRequestHeaders is the fixed allowlist of request headers relayed
// upstream, beyond any x-* header (which is allowed through except for the
// ones excluded below).
var allowedRequestHeaders = map[string]bool{
	"accept":          true,
	"accept-encoding": true,
	"accept-language": true,
	"api_key":         true,
	"authorization":   true,
	"content-type":    true,
	"user-agent":      true,
}

// excludedXHeaders are x-* headers that must never reach the upstream:
// x-api-key is the caller's credential (consumed for authentication, not
// forwarded), and x-forwarded-*/x-real-ip are client-network metadata this
// proxy does not pass through.
func excludedXHeader(lk string) bool {
	if lk == "x-api-key" || lk == "x-real-ip" {
		return true
	}
	return strings.HasPrefix(lk, "x-forwarded-")
}

// CleanRequestHeaders strips hop-by-hop headers (including any header
// dynamically named by a Connection token) and filters everything else down
// to the fixed allowlist plus x-* headers, excluding the caller-credential
// and client-network-metadata headers that must never reach the upstream.
func CleanRequestHeaders(h http.Header) http.Header {
	dynamic := dynamicHopByHop(h)

	out := make(http.Header)
	for k, vals := range h {
		lk := strings.ToLower(k)
		if hopByHopHeaders[lk] || dynamic[lk] {
			continue
		}
		isX := strings.HasPrefix(lk, "x-")
		if !allowedRequestHeaders[lk] && !isX {
			continue
		}
		if isX && excludedXHeader(lk) {
			continue
		}
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// dynamicHopByHop returns the lowercase header names listed as tokens inside
// the Connection header, which are themselves hop-by-hop for this request.
func dynamicHopByHop(h http.Header) map[string]bool {
	out := make(map[string]bool)
	for _, line := range h.Values("Connection") {
		for _, tok := range strings.Split(line, ",") {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok != "" {
				out[tok] = true
			}
		}
	}
	return out
}
