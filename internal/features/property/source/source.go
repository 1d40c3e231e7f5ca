package source

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"propchain/internal/features/property/models"
)

// Source loads the property collection visible to owner.
type Source interface {
	Fetch(ctx context.Context, owner common.Address) ([]models.Property, error)
}
