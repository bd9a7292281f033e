package upstream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"apikeyproxy/internal/config"
	"apikeyproxy/internal/upstream"
)

func newClient(t *testing.T, srv *httptest.Server, retries int) *upstream.Client {
	t.Helper()
	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	return upstream.New(config.HTTPClientConfig{
		BaseURL:   base,
		TimeoutMs: 2000,
		Retries:   retries,
	})
}

func TestGet_DecodesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "session=secret")
		w.WriteHeader(200)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newClient(t, srv, 0)
	resp, err := c.Get(context.Background(), "/thing", http.Header{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	m, ok := resp.Body.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("expected decoded json body, got %#v", resp.Body)
	}
	if _, leaked := resp.Headers["set-cookie"]; leaked {
		t.Fatalf("set-cookie must not be relayed")
	}
}

func TestGet_FallsBackToRawTextForNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(200)
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	c := newClient(t, srv, 0)
	resp, err := c.Get(context.Background(), "/thing", http.Header{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if resp.Body != "plain text" {
		t.Fatalf("expected raw text fallback, got %#v", resp.Body)
	}
}

func TestGet_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		if n == 1 {
			w.WriteHeader(503)
			return
		}
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newClient(t, srv, 1)
	resp, err := c.Get(context.Background(), "/thing", http.Header{})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected eventual 200, got %d", resp.Status)
	}
	if atomic.LoadInt64(&calls) != 2 {
		t.Fatalf("expected 2 calls (1 retry), got %d", calls)
	}
}

func TestPost_IsNeverRetried(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(503)
	}))
	defer srv.Close()

	c := newClient(t, srv, 3)
	resp, err := c.Post(context.Background(), "/thing", http.Header{}, []byte(`{}`))
	if err != nil {
		t.Fatalf("post failed: %v", err)
	}
	if resp.Status != 503 {
		t.Fatalf("expected 503, got %d", resp.Status)
	}
	if atomic.LoadInt64(&calls) != 1 {
		t.Fatalf("post must not retry, got %d calls", calls)
	}
}

func TestGet_RejectsAbsoluteURLSmuggling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	c := newClient(t, srv, 0)
	if _, err := c.Get(context.Background(), "http://evil.example/x", http.Header{}); err == nil {
		t.Fatalf("expected error for smuggled absolute URL path")
	}
	if _, err := c.Get(context.Background(), "//evil.example/x", http.Header{}); err == nil {
		t.Fatalf("expected error for protocol-relative smuggled path")
	}
}
