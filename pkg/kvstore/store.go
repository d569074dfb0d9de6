// Package kvstore provides an encrypted-at-rest key/value abstraction
// over a string store, with per-record-class TTLs and an atomic
// exchange operation used for single-use authorization codes.
package kvstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/mcp-session-gateway/pkg/authcrypto"
)

// RecordClass namespaces keys so auth:*, session:* and mcp:* never
// collide.
type RecordClass string

// Record classes, matching the DATA MODEL table.
const (
	ClassClient       RecordClass = "auth:client"
	ClassPending      RecordClass = "auth:pending"
	ClassExchange     RecordClass = "auth:exch"
	ClassInstallation RecordClass = "auth:installation"
	ClassRefresh      RecordClass = "auth:refresh"
	ClassSessionOwner RecordClass = "session:owner"
)

// Default TTLs per record class.
const (
	TTLClientRegistration = 30 * 24 * time.Hour
	TTLPendingAuth        = 10 * time.Minute
	TTLTokenExchange      = 10 * time.Minute
	TTLInstallation       = 7 * 24 * time.Hour
	TTLRefreshIndex       = 7 * 24 * time.Hour
)

// ErrNotFound is returned when a key has expired or was never written.
// Callers MUST treat this the same as "expired" — the store makes no
// distinction between the two.
var ErrNotFound = errors.New("kvstore: not found")

// Store is the typed, encrypted KV abstraction every backend
// implements. lookupKey is always the raw secret (token, auth code);
// implementations fingerprint it internally and never log or persist
// it in the clear except for ClassClient and ClassSessionOwner, which
// are plaintext by design (see spec's DATA MODEL table).
type Store interface {
	// Save encrypts value under class+lookupKey with the given TTL.
	// Plaintext classes (ClassClient, ClassSessionOwner) store value
	// as-is.
	Save(ctx context.Context, class RecordClass, lookupKey string, value []byte, ttl time.Duration) error

	// Load decrypts and returns the value stored under class+lookupKey.
	// Returns ErrNotFound if absent or expired.
	Load(ctx context.Context, class RecordClass, lookupKey string) ([]byte, error)

	// Delete removes the record, if present.
	Delete(ctx context.Context, class RecordClass, lookupKey string) error

	// Exchange atomically swaps the record under class+lookupKey for
	// newValue, preserving its TTL, and returns the value that was
	// current immediately before the swap. It never creates a record:
	// if none exists, it returns ErrNotFound and newValue is discarded.
	// Callers implement single-use tokens by reading the current value,
	// rewriting it with an "already used" marker set, and comparing the
	// value Exchange returns against what they read beforehand — a
	// mismatch means another caller's swap landed in between, i.e. a
	// replay.
	Exchange(ctx context.Context, class RecordClass, lookupKey string, newValue []byte) ([]byte, error)
}

// encryptionKey derives the AES-256 key used to encrypt a class+value
// pair from the lookup key itself, per spec §4.1: "The key is the
// caller-supplied 64-hex-char token (interpreted as 32 raw bytes)."
// sha256 of the lookup key is used rather than requiring every caller
// to supply an exactly-64-hex-char secret, so shorter secrets (e.g.
// authorization codes) still derive a full-strength 32-byte key.
func encryptionKey(lookupKey string) [authcrypto.KeySize]byte {
	var key [authcrypto.KeySize]byte
	fp := authcrypto.Fingerprint(lookupKey) // 64 hex chars = 32 bytes, sha256 of lookupKey
	decoded, err := hex.DecodeString(fp)
	if err != nil {
		// Fingerprint always returns valid hex; unreachable in practice.
		return key
	}
	copy(key[:], decoded)
	return key
}

// isEncrypted reports whether a record class is stored ciphertext
// (everything except the two plaintext classes named in the DATA
// MODEL table).
func isEncrypted(class RecordClass) bool {
	return class != ClassClient && class != ClassSessionOwner
}

// SaveJSON is a convenience wrapper that JSON-marshals v before saving.
func SaveJSON(ctx context.Context, s Store, class RecordClass, lookupKey string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kvstore: marshal: %w", err)
	}
	return s.Save(ctx, class, lookupKey, b, ttl)
}

// LoadJSON is a convenience wrapper that JSON-unmarshals the loaded
// value into v.
func LoadJSON(ctx context.Context, s Store, class RecordClass, lookupKey string, v any) error {
	b, err := s.Load(ctx, class, lookupKey)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("kvstore: unmarshal: %w", err)
	}
	return nil
}

// ExchangeJSON JSON-marshals newValue, atomically swaps it in under
// class+lookupKey via Exchange, and JSON-unmarshals the value that was
// current immediately before the swap into previous.
func ExchangeJSON(ctx context.Context, s Store, class RecordClass, lookupKey string, newValue, previous any) error {
	encoded, err := json.Marshal(newValue)
	if err != nil {
		return fmt.Errorf("kvstore: marshal: %w", err)
	}
	b, err := s.Exchange(ctx, class, lookupKey, encoded)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, previous); err != nil {
		return fmt.Errorf("kvstore: unmarshal: %w", err)
	}
	return nil
}
