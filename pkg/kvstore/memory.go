package kvstore

import (
	"context"
	"sync"
	"time"

	"github.com/stacklok/mcp-session-gateway/pkg/authcrypto"
)

type memoryRecord struct {
	ciphertext string // used when the class is encrypted
	plaintext  []byte // used when the class is not encrypted
	expiresAt  time.Time
}

func (r memoryRecord) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && now.After(r.expiresAt)
}

// MemoryStore is an in-process Store backed by a mutex-guarded map,
// suitable for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

func mapKey(class RecordClass, lookupKey string) string {
	return string(class) + ":" + authcrypto.Fingerprint(lookupKey)
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, class RecordClass, lookupKey string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := memoryRecord{}
	if ttl > 0 {
		rec.expiresAt = m.now().Add(ttl)
	}

	if isEncrypted(class) {
		wire, err := authcrypto.Encrypt(value, encryptionKey(lookupKey))
		if err != nil {
			return err
		}
		rec.ciphertext = wire
	} else {
		rec.plaintext = append([]byte(nil), value...)
	}

	m.records[mapKey(class, lookupKey)] = rec
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, class RecordClass, lookupKey string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(class, lookupKey)
}

func (m *MemoryStore) loadLocked(class RecordClass, lookupKey string) ([]byte, error) {
	rec, ok := m.records[mapKey(class, lookupKey)]
	if !ok || rec.expired(m.now()) {
		return nil, ErrNotFound
	}
	return m.decodeLocked(class, lookupKey, rec)
}

func (m *MemoryStore) decodeLocked(class RecordClass, lookupKey string, rec memoryRecord) ([]byte, error) {
	if !isEncrypted(class) {
		return rec.plaintext, nil
	}
	return authcrypto.Decrypt(rec.ciphertext, encryptionKey(lookupKey))
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, class RecordClass, lookupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, mapKey(class, lookupKey))
	return nil
}

// Exchange implements Store: read the current value, rewrite the
// record with newValue while preserving its expiry, and return the
// value that was stored beforehand — all under a single lock, so
// concurrent callers serialize on the mutex rather than racing the
// data.
func (m *MemoryStore) Exchange(_ context.Context, class RecordClass, lookupKey string, newValue []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := mapKey(class, lookupKey)
	rec, ok := m.records[key]
	if !ok || rec.expired(m.now()) {
		return nil, ErrNotFound
	}

	previous, err := m.decodeLocked(class, lookupKey, rec)
	if err != nil {
		return nil, err
	}

	updated := memoryRecord{expiresAt: rec.expiresAt}
	if isEncrypted(class) {
		wire, err := authcrypto.Encrypt(newValue, encryptionKey(lookupKey))
		if err != nil {
			return nil, err
		}
		updated.ciphertext = wire
	} else {
		updated.plaintext = append([]byte(nil), newValue...)
	}
	m.records[key] = updated

	return previous, nil
}
