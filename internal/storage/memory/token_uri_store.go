package memory

import (
	"context"
	"fmt"
	"sync"

	"conway-token-lab/internal/domain"
	"conway-token-lab/internal/storage"
)

type tokenKey struct {
	contract string
	tokenID  uint64
}

// TokenURIStore is an in-memory implementation of storage.TokenURIStore.
type TokenURIStore struct {
	mu            sync.RWMutex
	byToken       map[tokenKey]*domain.TokenRecord // keyed by (contract, token_id)
	byFingerprint map[string]*domain.TokenRecord   // keyed by fingerprint (unique)
}

// NewTokenURIStore creates a new in-memory token-URI store.
func NewTokenURIStore() *TokenURIStore {
	return &TokenURIStore{
		byToken:       make(map[tokenKey]*domain.TokenRecord),
		byFingerprint: make(map[string]*domain.TokenRecord),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if the token or fingerprint exists.
func (s *TokenURIStore) Insert(_ context.Context, r *domain.TokenRecord) error {
	if r == nil || r.Contract == "" || r.Fingerprint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey{contract: r.Contract, tokenID: r.TokenID}
	if _, exists := s.byToken[key]; exists {
		return fmt.Errorf("token %s/%d: %w", r.Contract, r.TokenID, storage.ErrDuplicateKey)
	}
	if _, exists := s.byFingerprint[r.Fingerprint]; exists {
		return fmt.Errorf("fingerprint %s: %w", r.Fingerprint, storage.ErrDuplicateKey)
	}

	recCopy := *r
	s.byToken[key] = &recCopy
	s.byFingerprint[r.Fingerprint] = &recCopy
	return nil
}

// Get retrieves the record of one token. Returns ErrNotFound if not exists.
func (s *TokenURIStore) Get(_ context.Context, contract string, tokenID uint64) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byToken[tokenKey{contract: contract, tokenID: tokenID}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *r
	return &recCopy, nil
}

// GetByFingerprint retrieves a record by fingerprint. Returns ErrNotFound if not exists.
func (s *TokenURIStore) GetByFingerprint(_ context.Context, fingerprint string) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.byFingerprint[fingerprint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recCopy := *r
	return &recCopy, nil
}

var _ storage.TokenURIStore = (*TokenURIStore)(nil)
