package memory

import (
	"context"
	"sync"

	"propchain/internal/features/wallet/repository"
)

// Repository keeps the flag for the lifetime of the process only.
type Repository struct {
	mu      sync.RWMutex
	address string
}

func NewRepository() repository.FlagStore {
	return &Repository{}
}

func (r *Repository) SetConnected(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.address = address
	return nil
}

func (r *Repository) IsConnected(ctx context.Context) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.address != "", nil
}

func (r *Repository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.address = ""
	return nil
}
