package sign

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound reports a bidder with no published public key.
var ErrKeyNotFound = errors.New("public key not found")

// Registry is the shared keystore bidders publish their public keys to
// and the validator looks them up from.
type Registry interface {
	Register(ctx context.Context, bidderID string, pub *rsa.PublicKey) error
	Lookup(ctx context.Context, bidderID string) (*rsa.PublicKey, error)
}

// MemoryRegistry is a mutex-guarded in-memory registry for tests and
// single-process runs.
type MemoryRegistry struct {
	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// NewMemoryRegistry constructs an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{keys: make(map[string]*rsa.PublicKey)}
}

func (r *MemoryRegistry) Register(ctx context.Context, bidderID string, pub *rsa.PublicKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[bidderID] = pub
	return nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, bidderID string) (*rsa.PublicKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.keys[bidderID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return pub, nil
}

const registryHashKey = "gavel:keys"

// RedisRegistry stores PEM public keys in a Redis hash keyed by bidder
// id, so every service shares one keystore.
type RedisRegistry struct {
	client redis.UniversalClient
}

// NewRedisRegistry constructs a registry over an existing client.
func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Register(ctx context.Context, bidderID string, pub *rsa.PublicKey) error {
	pemBytes, err := MarshalPublicKey(pub)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, registryHashKey, bidderID, pemBytes).Err(); err != nil {
		return fmt.Errorf("register key %s: %w", bidderID, err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, bidderID string) (*rsa.PublicKey, error) {
	raw, err := r.client.HGet(ctx, registryHashKey, bidderID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("lookup key %s: %w", bidderID, err)
	}
	return ParsePublicKey([]byte(raw))
}
