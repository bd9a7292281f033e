package audit_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"apikeyproxy/internal/audit"
)

func TestLog_WritesOneJSONLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.New(&buf)

	logger.Log("test.action", "ok", map[string]any{"k": "v"})
	logger.Log("test.action", "error", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var ev audit.Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("line not valid json: %v", err)
	}
	if ev.Action != "test.action" || ev.Result != "ok" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestKeyLifecycle_NeverLogsRawKey(t *testing.T) {
	var buf bytes.Buffer
	logger := audit.New(&buf)
	rawKey := "sk_supersecretvalue"

	logger.KeyLifecycle("key.create", "ok", "key-id-123", "alice")

	if strings.Contains(buf.String(), rawKey) {
		t.Fatalf("audit log must never contain a raw key")
	}
	if !strings.Contains(buf.String(), "key-id-123") {
		t.Fatalf("expected keyId to be present in audit log")
	}
}
