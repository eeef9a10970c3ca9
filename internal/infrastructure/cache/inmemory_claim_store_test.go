package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryClaimStore_AcquireRelease(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	token, won, err := store.Acquire(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
	assert.NotEmpty(t, token)

	// Second acquire on a held key loses
	_, won, err = store.Acquire(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, store.Release(ctx, "key-1", token))

	_, won, err = store.Acquire(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestInMemoryClaimStore_ExpiredClaimIsReacquirable(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	_, won, err := store.Acquire(ctx, "key-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, won)

	time.Sleep(20 * time.Millisecond)

	_, won, err = store.Acquire(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

// A run that outlives its TTL must not be able to free the claim a
// successor acquired in the meantime.
func TestInMemoryClaimStore_StaleReleaseKeepsSuccessorClaim(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	staleToken, won, err := store.Acquire(ctx, "key-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, won)

	time.Sleep(20 * time.Millisecond)

	_, won, err = store.Acquire(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	// The expired run releasing with its old token is a no-op.
	require.NoError(t, store.Release(ctx, "key-1", staleToken))

	_, won, err = store.Acquire(ctx, "key-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestInMemoryClaimStore_ReleaseUnheldIsNoOp(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()

	assert.NoError(t, store.Release(context.Background(), "never-acquired", "no-token"))
}

func TestInMemoryClaimStore_ConcurrentAcquireSingleWinner(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	const racers = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, won, err := store.Acquire(ctx, "contended", time.Minute)
			require.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestInMemoryClaimStore_IndependentKeys(t *testing.T) {
	store := NewInMemoryClaimStore()
	defer store.Close()
	ctx := context.Background()

	_, won, err := store.Acquire(ctx, "key-a", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	_, won, err = store.Acquire(ctx, "key-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, 2, store.Size())
}
