package repository

import "context"

// FlagStore persists the "wallet was connected" flag between runs.
type FlagStore interface {
	// SetConnected помечает кошелек как подключенный
	SetConnected(ctx context.Context, address string) error

	// IsConnected сообщает, был ли кошелек подключен при прошлом запуске
	IsConnected(ctx context.Context) (bool, error)

	// Clear удаляет флаг
	Clear(ctx context.Context) error
}
