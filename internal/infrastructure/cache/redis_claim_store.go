package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/receiving/backend/internal/domain/shared"
)

// releaseScript deletes the claim only when the caller still owns it,
// so a run that outlived its TTL cannot free a successor's claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimStore implements RunClaimStore using Redis.
// This is suitable for distributed deployments where multiple instances
// must coordinate who runs the join for a delivery key.
type RedisClaimStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClaimStore creates a new Redis-based claim store
func NewRedisClaimStore(cfg RedisConfig) (*RedisClaimStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClaimStore{
		client:    client,
		keyPrefix: "receiving:run-claim:",
	}, nil
}

// NewRedisClaimStoreWithClient creates a store with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisClaimStoreWithClient(client *redis.Client, keyPrefix string) *RedisClaimStore {
	if keyPrefix == "" {
		keyPrefix = "receiving:run-claim:"
	}
	return &RedisClaimStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Acquire attempts a compare-and-set claim on the key.
// SETNX with TTL makes the claim atomic across instances; the stored
// value is the winner's owner token and the TTL bounds how long a
// crashed run can hold the key.
func (s *RedisClaimStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	won, err := s.client.SetNX(ctx, s.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire run claim: %w", err)
	}
	if !won {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the claim via compare-and-delete on the owner token.
// Releasing with a stale token is a no-op.
func (s *RedisClaimStore) Release(ctx context.Context, key, token string) error {
	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, s.client, []string{s.keyPrefix + key}, token).Err(); err != nil {
		return fmt.Errorf("failed to release run claim: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisClaimStore) Close() error {
	return s.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (s *RedisClaimStore) GetClient() *redis.Client {
	return s.client
}

// Ensure RedisClaimStore implements RunClaimStore
var _ shared.RunClaimStore = (*RedisClaimStore)(nil)
