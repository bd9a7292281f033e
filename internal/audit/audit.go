// Package audit writes structured, line-delimited JSON events for
// security-relevant actions (api key lifecycle, admin cache invalidation,
// authentication failures). The event helpers record only derived
// identifiers (key IDs, fingerprints): raw API keys, bearer tokens, and cache
// keys are never logged.
package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"apikeyproxy/internal/hasher"
)

// Event is one structured audit log line.
type Event struct {
	Time   string         `json:"time"`
	Action string         `json:"action"`
	Result string         `json:"result"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Logger serializes Events to out, one JSON object per line, and optionally
// fans the same event out to a Loki push endpoint.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	lokiURL  string
	lokiHTTP *http.Client
}

// New returns a Logger writing to out. If the AUDIT_LOKI_URL environment
// variable is set, events are also pushed there as Loki log streams
// (fire-and-forget: push errors and responses are ignored).
func New(out io.Writer) *Logger {
	lokiURL := strings.TrimSpace(os.Getenv("AUDIT_LOKI_URL"))
	if lokiURL != "" && !strings.Contains(lokiURL, "/loki/api/v1/push") {
		lokiURL = strings.TrimRight(lokiURL, "/") + "/loki/api/v1/push"
	}
	return &Logger{
		out:      out,
		lokiURL:  lokiURL,
		lokiHTTP: &http.Client{Timeout: 200 * time.Millisecond},
	}
}

// Log records one audit event. result is conventionally "ok" or "error".
func (l *Logger) Log(action, result string, fields map[string]any) {
	ev := Event{
		Time:   time.Now().UTC().Format(time.RFC3339Nano),
		Action: action,
		Result: result,
		Fields: fields,
	}
	blob, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line := string(blob)
	blob = append(blob, '\n')

	l.mu.Lock()
	_, _ = l.out.Write(blob)
	l.mu.Unlock()

	l.pushLoki(action, result, line)
}

// pushLoki sends the event line to Loki as a single-entry stream, labeled by
// action and result. No-op when AUDIT_LOKI_URL is unset.
func (l *Logger) pushLoki(action, result, line string) {
	if l.lokiURL == "" {
		return
	}
	ts := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}{
		Streams: []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		}{
			{
				Stream: map[string]string{"app": "apikeyproxy-audit", "action": action, "result": result},
				Values: [][2]string{{ts, line}},
			},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, l.lokiURL, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.lokiHTTP.Do(req)
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

// KeyLifecycle records an api-key create/revoke/activate/delete action.
// It never logs the raw key, only its keyId.
func (l *Logger) KeyLifecycle(action, result, keyID, owner string) {
	l.Log(action, result, map[string]any{"keyId": keyID, "owner": owner})
}

// AdminInvalidate records a cache invalidation request. A non-empty target
// (a cache key or key prefix) is logged only as its fingerprint.
func (l *Logger) AdminInvalidate(result, scope, target string, removed int) {
	if target != "" {
		target = hasher.Fingerprint(target)
	}
	l.Log("admin.cache.invalidate", result, map[string]any{
		"scope":   scope,
		"target":  target,
		"removed": removed,
	})
}

// AuthFailure records a failed authentication or throttling decision,
// fingerprinting the offending credential instead of logging it raw.
func (l *Logger) AuthFailure(reason, fingerprint, remoteAddr, requestID string) {
	l.Log("auth.failure", "error", map[string]any{
		"reason":      reason,
		"fingerprint": fingerprint,
		"remoteAddr":  remoteAddr,
		"requestId":   requestID,
	})
}
