package memory

import (
	"context"

	"github.com/xenking/loyalty-orders/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository on a Store.
type APIKeyRepository struct {
	s *Store
}

func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.Key, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	k, ok := r.s.keys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &k, nil
}

// Upsert stores k under its hash.
func (r *APIKeyRepository) Upsert(_ context.Context, k auth.Key) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for hash, existing := range r.s.keys {
		if existing.ID == k.ID {
			delete(r.s.keys, hash)
		}
	}
	r.s.keys[k.Hash] = k
	return nil
}
