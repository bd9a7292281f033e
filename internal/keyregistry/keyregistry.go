// Package keyregistry manages API key lifecycle (create/validate/list/
// revoke/activate/delete) over a statestore.Store. Raw keys are never
// stored — only their SHA-256 digest — and a raw key is handed back to the
// caller exactly once, at creation time.
package keyregistry

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"apikeyproxy/internal/hasher"
	"apikeyproxy/internal/statestore"
)

// Record is the persisted shape of an API key. Hash is sha256(rawKey); the
// raw key itself is never stored.
type Record struct {
	KeyID     string  `json:"keyId"`
	Hash      string  `json:"hash"`
	Owner     string  `json:"owner"`
	Label     string  `json:"label,omitempty"`
	Contact   string  `json:"contact,omitempty"`
	CreatedAt string  `json:"createdAt"`
	CreatedBy string  `json:"createdBy,omitempty"`
	Revoked   bool    `json:"revoked"`
	RevokedAt string  `json:"revokedAt,omitempty"`
	ExpiresAt string  `json:"expiresAt,omitempty"`
}

// Valid reports whether the record currently authenticates a caller: not
// revoked, and either unexpiring or not yet past ExpiresAt.
func (r Record) Valid(now time.Time) bool {
	if r.Revoked {
		return false
	}
	if r.ExpiresAt == "" {
		return true
	}
	exp, err := time.Parse(time.RFC3339, r.ExpiresAt)
	if err != nil {
		return false
	}
	return now.Before(exp)
}

// Consumer is the derived, per-request identity of a validated caller.
type Consumer struct {
	KeyID string
	Owner string
}

// CreateInput is the input to Create.
type CreateInput struct {
	Owner     string
	Label     string
	Contact   string
	CreatedBy string
	ExpiresAt string // RFC3339, optional
}

// ErrNotFound is returned by mutating operations when keyId does not exist.
var ErrNotFound = fmt.Errorf("keyregistry: key not found")

// Registry is the API key registry, namespaced under prefix in the state store.
type Registry struct {
	store  statestore.Store
	prefix string
}

// New returns a Registry rooted at prefix (e.g. "apikeys").
func New(store statestore.Store, prefix string) *Registry {
	return &Registry{store: store, prefix: prefix}
}

func (r *Registry) hashKey(hash string) string { return r.prefix + ":hash:" + hash }
func (r *Registry) keyKey(keyID string) string { return r.prefix + ":key:" + keyID }
func (r *Registry) indexKey() string           { return r.prefix + ":index" }

// Validate trims rawKey, hashes it, and resolves it to a Consumer iff a
// matching, currently-valid record exists. Any missing or invalid step
// returns (nil, nil) — not an error — so the caller can distinguish
// "invalid key" from "store unreachable" (store errors are returned).
func (r *Registry) Validate(ctx context.Context, rawKey string) (*Consumer, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, nil
	}
	hash := hasher.Hex(rawKey)

	keyID, ok, err := r.store.Get(ctx, r.hashKey(hash))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	raw, ok, err := r.store.Get(ctx, r.keyKey(keyID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, nil
	}
	if !rec.Valid(time.Now()) {
		return nil, nil
	}
	return &Consumer{KeyID: rec.KeyID, Owner: rec.Owner}, nil
}

// Create generates a new raw key and persists its record, hash index, and
// index-set membership. The raw key is returned only here.
func (r *Registry) Create(ctx context.Context, in CreateInput) (rawKey string, rec Record, err error) {
	rawKey, err = generateRawKey()
	if err != nil {
		return "", Record{}, err
	}
	rec = Record{
		KeyID:     uuid.NewString(),
		Hash:      hasher.Hex(rawKey),
		Owner:     in.Owner,
		Label:     in.Label,
		Contact:   in.Contact,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		CreatedBy: in.CreatedBy,
		ExpiresAt: in.ExpiresAt,
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return "", Record{}, err
	}
	if err := r.store.Set(ctx, r.keyKey(rec.KeyID), string(blob), 0); err != nil {
		return "", Record{}, err
	}
	if err := r.store.Set(ctx, r.hashKey(rec.Hash), rec.KeyID, 0); err != nil {
		return "", Record{}, err
	}
	if err := r.store.SAdd(ctx, r.indexKey(), rec.KeyID); err != nil {
		return "", Record{}, err
	}
	return rawKey, rec, nil
}

// List returns every known record ordered by CreatedAt descending,
// self-healing stale index entries whose record has since been deleted.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	ids, err := r.store.SMembers(ctx, r.indexKey())
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := r.store.Get(ctx, r.keyKey(id))
		if err != nil {
			return nil, err
		}
		if !ok {
			_ = r.store.SRem(ctx, r.indexKey(), id)
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			_ = r.store.SRem(ctx, r.indexKey(), id)
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (r *Registry) load(ctx context.Context, keyID string) (Record, error) {
	raw, ok, err := r.store.Get(ctx, r.keyKey(keyID))
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *Registry) save(ctx context.Context, rec Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, r.keyKey(rec.KeyID), string(blob), 0)
}

// Revoke flips a record's revoked flag to true.
func (r *Registry) Revoke(ctx context.Context, keyID string) error {
	rec, err := r.load(ctx, keyID)
	if err != nil {
		return err
	}
	rec.Revoked = true
	rec.RevokedAt = time.Now().UTC().Format(time.RFC3339)
	return r.save(ctx, rec)
}

// Activate flips a record's revoked flag to false.
func (r *Registry) Activate(ctx context.Context, keyID string) error {
	rec, err := r.load(ctx, keyID)
	if err != nil {
		return err
	}
	rec.Revoked = false
	rec.RevokedAt = ""
	return r.save(ctx, rec)
}

// Delete removes the record, its hash index entry, and its index membership.
func (r *Registry) Delete(ctx context.Context, keyID string) error {
	rec, err := r.load(ctx, keyID)
	if err != nil {
		return err
	}
	if _, err := r.store.Del(ctx, r.keyKey(keyID), r.hashKey(rec.Hash)); err != nil {
		return err
	}
	return r.store.SRem(ctx, r.indexKey(), keyID)
}

// generateRawKey returns a fresh "sk_"-prefixed key with 32 random bytes of
// entropy, base64url-encoded.
func generateRawKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
