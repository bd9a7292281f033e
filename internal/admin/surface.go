// Package admin exposes the operator-facing HTTP surface: api key lifecycle
// management and cache invalidation. Every route requires a bearer token
// compared in constant time against the configured admin token.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"apikeyproxy/internal/audit"
	"apikeyproxy/internal/hasher"
	"apikeyproxy/internal/keyregistry"
	"apikeyproxy/internal/ratelimiter"
)

// Surface wires the admin HTTP handlers to the key registry, the cache
// invalidator, the audit logger, and a dedicated rate limit scope.
type Surface struct {
	keys        *keyregistry.Registry
	invalidator *Invalidator
	limiter     *ratelimiter.Limiter
	audit       *audit.Logger
	token       string
	rlWindow    int
	rlMax       int
}

// NewSurface returns a Surface. token is the expected bearer credential.
func NewSurface(keys *keyregistry.Registry, invalidator *Invalidator, limiter *ratelimiter.Limiter, auditLog *audit.Logger, token string, rlWindowSeconds, rlMaxRequests int) *Surface {
	return &Surface{
		keys:        keys,
		invalidator: invalidator,
		limiter:     limiter,
		audit:       auditLog,
		token:       token,
		rlWindow:    rlWindowSeconds,
		rlMax:       rlMaxRequests,
	}
}

// Routes registers every admin endpoint on mux.
func (s *Surface) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/api-keys", s.withAuth(s.createKey))
	mux.HandleFunc("GET /internal/api-keys", s.withAuth(s.listKeys))
	mux.HandleFunc("POST /internal/api-keys/{id}/revoke", s.withAuth(s.revokeKey))
	mux.HandleFunc("POST /internal/api-keys/{id}/activate", s.withAuth(s.activateKey))
	mux.HandleFunc("DELETE /internal/api-keys/{id}", s.withAuth(s.deleteKey))
	mux.HandleFunc("POST /internal/cache/invalidate", s.withAuth(s.invalidateCache))
}

func (s *Surface) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || !hasher.ConstantTimeEqual(token, s.token) {
			s.audit.Log("admin.auth", "error", map[string]any{"remoteAddr": r.RemoteAddr})
			writeJSONError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}

		d, err := s.limiter.Allow(r.Context(), "admin", clientAddr(r), s.rlWindow, s.rlMax)
		if err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "rate limit backend unavailable")
			return
		}
		if !d.Allowed {
			writeJSONError(w, http.StatusTooManyRequests, "too many admin requests")
			return
		}
		next(w, r)
	}
}

type createKeyRequest struct {
	Owner     string `json:"owner"`
	Label     string `json:"label"`
	Contact   string `json:"contact"`
	ExpiresAt string `json:"expiresAt"`
}

type createKeyResponse struct {
	RawKey string           `json:"key"`
	Record keyregistry.Record `json:"record"`
}

func (s *Surface) createKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Owner) == "" {
		writeJSONError(w, http.StatusBadRequest, "owner is required")
		return
	}

	raw, rec, err := s.keys.Create(r.Context(), keyregistry.CreateInput{
		Owner:     req.Owner,
		Label:     req.Label,
		Contact:   req.Contact,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		s.audit.KeyLifecycle("key.create", "error", "", req.Owner)
		writeJSONError(w, http.StatusInternalServerError, "failed to create key")
		return
	}
	s.audit.KeyLifecycle("key.create", "ok", rec.KeyID, rec.Owner)
	writeJSON(w, http.StatusCreated, createKeyResponse{RawKey: raw, Record: rec})
}

func (s *Surface) listKeys(w http.ResponseWriter, r *http.Request) {
	list, err := s.keys.List(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Surface) revokeKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.keys.Revoke(r.Context(), id); err != nil {
		s.audit.KeyLifecycle("key.revoke", "error", id, "")
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}
	s.audit.KeyLifecycle("key.revoke", "ok", id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Surface) activateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.keys.Activate(r.Context(), id); err != nil {
		s.audit.KeyLifecycle("key.activate", "error", id, "")
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}
	s.audit.KeyLifecycle("key.activate", "ok", id, "")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Surface) deleteKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.keys.Delete(r.Context(), id); err != nil {
		s.audit.KeyLifecycle("key.delete", "error", id, "")
		writeJSONError(w, http.StatusNotFound, "key not found")
		return
	}
	s.audit.KeyLifecycle("key.delete", "ok", id, "")
	w.WriteHeader(http.StatusNoContent)
}

type invalidateRequest struct {
	Scope  string `json:"scope"`  // "exact", "prefix", "all"
	Target string `json:"target"` // required for exact/prefix
}

type invalidateResponse struct {
	Removed int `json:"removed"`
}

func (s *Surface) invalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var removed int
	var err error
	switch req.Scope {
	case "exact":
		if req.Target == "" {
			writeJSONError(w, http.StatusBadRequest, "target is required for scope=exact")
			return
		}
		removed, err = s.invalidator.InvalidateExact(r.Context(), req.Target)
	case "prefix":
		if req.Target == "" {
			writeJSONError(w, http.StatusBadRequest, "target is required for scope=prefix")
			return
		}
		removed, err = s.invalidator.InvalidatePrefix(r.Context(), req.Target)
	case "all":
		removed, err = s.invalidator.InvalidateAll(r.Context())
	default:
		writeJSONError(w, http.StatusBadRequest, "scope must be one of exact, prefix, all")
		return
	}

	if err != nil {
		s.audit.AdminInvalidate("error", req.Scope, req.Target, removed)
		writeJSONError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	s.audit.AdminInvalidate("ok", req.Scope, req.Target, removed)
	writeJSON(w, http.StatusOK, invalidateResponse{Removed: removed})
}

func clientAddr(r *http.Request) string {
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
