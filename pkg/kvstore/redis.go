package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/mcp-session-gateway/pkg/authcrypto"
	"github.com/stacklok/mcp-session-gateway/pkg/logger"
)

// exchangeScript atomically swaps the value at KEYS[1] for ARGV[1]
// while preserving its TTL, and returns the value that was stored
// immediately before the swap — or a false reply if the key doesn't
// exist, in which case nothing is written. Using a script rather than
// native `SET ... GET KEEPTTL` keeps the "don't create on miss"
// behavior atomic: a bare SET GET would happily create the key.
var exchangeScript = redis.NewScript(`
local old = redis.call("GET", KEYS[1])
if not old then
  return false
end
redis.call("SET", KEYS[1], ARGV[1], "KEEPTTL")
return old
`)

// RedisStore is a Store backed by go-redis/v9, suitable for
// multi-replica deployments where the session relay and the
// authorization core share state across gateway instances.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(class RecordClass, lookupKey string) string {
	return string(class) + ":" + authcrypto.Fingerprint(lookupKey)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, class RecordClass, lookupKey string, value []byte, ttl time.Duration) error {
	stored := value
	if isEncrypted(class) {
		wire, err := authcrypto.Encrypt(value, encryptionKey(lookupKey))
		if err != nil {
			return fmt.Errorf("kvstore: encrypt: %w", err)
		}
		stored = []byte(wire)
	}

	if err := s.client.Set(ctx, redisKey(class, lookupKey), stored, ttl).Err(); err != nil {
		logger.Errorw("kvstore: redis save failed", "class", class, "error", err)
		return fmt.Errorf("kvstore: redis set: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, class RecordClass, lookupKey string) ([]byte, error) {
	raw, err := s.client.Get(ctx, redisKey(class, lookupKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: redis get: %w", err)
	}
	return decodeIfEncrypted(class, lookupKey, raw)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, class RecordClass, lookupKey string) error {
	if err := s.client.Del(ctx, redisKey(class, lookupKey)).Err(); err != nil {
		return fmt.Errorf("kvstore: redis del: %w", err)
	}
	return nil
}

// Exchange implements Store via a Lua script so the swap-and-return-
// previous is atomic even across replicas sharing the same Redis
// instance.
func (s *RedisStore) Exchange(ctx context.Context, class RecordClass, lookupKey string, newValue []byte) ([]byte, error) {
	stored := newValue
	if isEncrypted(class) {
		wire, err := authcrypto.Encrypt(newValue, encryptionKey(lookupKey))
		if err != nil {
			return nil, fmt.Errorf("kvstore: encrypt: %w", err)
		}
		stored = []byte(wire)
	}

	res, err := exchangeScript.Run(ctx, s.client, []string{redisKey(class, lookupKey)}, stored).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: redis exchange: %w", err)
	}
	if res == nil {
		return nil, ErrNotFound
	}

	raw, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("kvstore: unexpected exchange result type %T", res)
	}

	return decodeIfEncrypted(class, lookupKey, []byte(raw))
}

func decodeIfEncrypted(class RecordClass, lookupKey string, raw []byte) ([]byte, error) {
	if !isEncrypted(class) {
		return raw, nil
	}
	plaintext, err := authcrypto.Decrypt(string(raw), encryptionKey(lookupKey))
	if err != nil {
		return nil, fmt.Errorf("kvstore: decrypt: %w", err)
	}
	return plaintext, nil
}
