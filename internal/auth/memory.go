package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory key store for single-node deployments and
// tests. Keys configured statically in the config file land here.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*APIKey // hash -> key
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*APIKey),
	}
}

// NewMemoryStoreFromKeys seeds a store from plaintext keys, hashing each.
func NewMemoryStoreFromKeys(plainKeys []string) *MemoryStore {
	s := NewMemoryStore()
	for i, plain := range plainKeys {
		hash := HashKey(plain)
		s.keys[hash] = &APIKey{
			ID:        hash[:12],
			Name:      "static-" + string(rune('a'+i%26)),
			KeyHash:   hash,
			KeyPrefix: ExtractKeyPrefix(plain),
			CreatedAt: time.Now().UTC(),
		}
	}
	return s
}

// GetByHash returns the key whose hash matches, or ErrKeyNotFound.
func (s *MemoryStore) GetByHash(_ context.Context, hash string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	clone := *key
	return &clone, nil
}

// Create persists a new key.
func (s *MemoryStore) Create(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *key
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.keys[clone.KeyHash] = &clone
	return nil
}

// Revoke marks a key revoked by ID.
func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.keys {
		if key.ID == id {
			key.Revoked = true
			return nil
		}
	}
	return ErrKeyNotFound
}

// List returns all keys with hashes omitted.
func (s *MemoryStore) List(_ context.Context) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		clone := *key
		clone.KeyHash = ""
		out = append(out, &clone)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
