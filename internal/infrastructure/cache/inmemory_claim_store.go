package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/receiving/backend/internal/domain/shared"
)

// claimEntry represents a held run claim with its owner and expiration
type claimEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryClaimStore implements RunClaimStore using an in-memory map.
// This is suitable for single-instance deployments and testing. Claims
// expire after their TTL so a crashed run never blocks the key forever.
type InMemoryClaimStore struct {
	mu        sync.Mutex
	claims    map[string]claimEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryClaimStore creates a new in-memory claim store
// It starts a background goroutine to clean up expired claims
func NewInMemoryClaimStore() *InMemoryClaimStore {
	store := &InMemoryClaimStore{
		claims:   make(map[string]claimEntry),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Acquire attempts a compare-and-set claim on the key.
// The winner gets an owner token; losers get won=false.
func (s *InMemoryClaimStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.claims[key]; exists {
		if time.Now().Before(e.expiresAt) {
			return "", false, nil // Another run holds the claim
		}
		// Claim exists but expired, will be overwritten
	}

	token := uuid.NewString()
	s.claims[key] = claimEntry{
		token:     token,
		expiresAt: time.Now().Add(ttl),
	}

	return token, true, nil
}

// Release frees the claim only if token still owns it. A run whose
// claim expired and was re-acquired by a successor cannot delete the
// successor's claim.
func (s *InMemoryClaimStore) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.claims[key]; exists && e.token == token {
		delete(s.claims, key)
	}
	return nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (s *InMemoryClaimStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired claims
func (s *InMemoryClaimStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired claims from the store
func (s *InMemoryClaimStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.claims {
		if now.After(e.expiresAt) {
			delete(s.claims, key)
		}
	}
}

// Size returns the number of held claims (for testing/monitoring)
func (s *InMemoryClaimStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

// Ensure InMemoryClaimStore implements RunClaimStore
var _ shared.RunClaimStore = (*InMemoryClaimStore)(nil)
