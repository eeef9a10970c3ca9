package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	receivingapp "github.com/receiving/backend/internal/application/receiving"
)

// Ensure StubObjectStorage implements ExportStorage
var _ receivingapp.ExportStorage = (*StubObjectStorage)(nil)

// StubObjectStorage is an in-memory ExportStorage for development and
// tests. Download references are synthetic URLs, not reachable links.
type StubObjectStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStubObjectStorage creates a new in-memory storage stub
func NewStubObjectStorage() *StubObjectStorage {
	return &StubObjectStorage{
		objects: make(map[string][]byte),
	}
}

// EnsureBucket is a no-op for the stub
func (s *StubObjectStorage) EnsureBucket(ctx context.Context) error {
	return nil
}

// Upload stores the object in memory
func (s *StubObjectStorage) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[storageKey] = stored
	return nil
}

// GenerateDownloadURL returns a synthetic URL for a stored object
func (s *StubObjectStorage) GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.objects[storageKey]; !ok {
		return "", time.Time{}, fmt.Errorf("object not found: %s", storageKey)
	}
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	return "stub://exports/" + storageKey, time.Now().Add(expiresIn), nil
}

// Get returns a stored object (for tests)
func (s *StubObjectStorage) Get(storageKey string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[storageKey]
	return data, ok
}
