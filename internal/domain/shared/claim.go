package shared

import (
	"context"
	"time"
)

// RunClaimStore hands out single-writer claims per reconciliation key.
// Acquire is atomic compare-and-set: the first caller for a key wins,
// concurrent near-simultaneous callers lose and must coalesce silently.
// Claims are owned: the winner gets a token and only the holder of that
// token can release the claim. A run that outlives its TTL cannot free
// a successor's claim with a stale release.
type RunClaimStore interface {
	// Acquire attempts to claim the key for the duration of a run.
	// On a win it returns an opaque owner token and won=true; when
	// another run already holds the key it returns won=false.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, won bool, err error)

	// Release frees the claim only if token still owns it. Releasing
	// with a stale or unknown token is a no-op.
	Release(ctx context.Context, key, token string) error

	// Close closes the store and releases resources
	Close() error
}
