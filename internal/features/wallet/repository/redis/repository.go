package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"propchain/internal/features/wallet/repository"
)

const keyConnected = "wallet:connected"

type Repository struct {
	client redis.Cmdable
}

func NewRepository(client redis.Cmdable) repository.FlagStore {
	return &Repository{client: client}
}

func (r *Repository) SetConnected(ctx context.Context, address string) error {
	// Флаг живет без TTL: переживает перезапуски до явного disconnect
	if err := r.client.Set(ctx, keyConnected, address, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist connected flag: %w", err)
	}
	return nil
}

func (r *Repository) IsConnected(ctx context.Context) (bool, error) {
	n, err := r.client.Exists(ctx, keyConnected).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read connected flag: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, keyConnected).Err(); err != nil {
		return fmt.Errorf("failed to clear connected flag: %w", err)
	}
	return nil
}
