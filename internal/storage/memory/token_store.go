package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.TokenIdentity
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byMint: make(map[string]*domain.TokenIdentity),
	}
}

// Insert adds a created token. Returns ErrDuplicateKey if mint already exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.TokenIdentity) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMint[t.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	tokenCopy := *t
	s.byMint[t.Mint] = &tokenCopy
	return nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.TokenIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tokenCopy := *t
	return &tokenCopy, nil
}

// List returns all tokens ordered by created_at ASC.
func (s *TokenStore) List(_ context.Context) ([]*domain.TokenIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenIdentity, 0, len(s.byMint))
	for _, t := range s.byMint {
		tokenCopy := *t
		result = append(result, &tokenCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Mint < result[j].Mint
	})

	return result, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
