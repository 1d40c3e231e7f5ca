package source

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/common/logger"
	"propchain/internal/common/retry"
	"propchain/internal/features/property/models"
	"propchain/internal/platform/ethereum"
	"propchain/internal/platform/ipfs"
)

const defaultConcurrency = 4

// Chain reads the owner's requests from PropertyRegistry and merges each
// with its metadata document. A document that cannot be read or parsed
// leaves MetadataError set instead of failing the batch.
type Chain struct {
	client      ethereum.Client
	registry    *ethereum.Contract
	docs        ipfs.Store
	concurrency int
	policy      retry.Policy
	log         zerolog.Logger
}

func NewChain(client ethereum.Client, registry *ethereum.Contract, docs ipfs.Store, concurrency int, policy retry.Policy) *Chain {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Chain{
		client:      client,
		registry:    registry,
		docs:        docs,
		concurrency: concurrency,
		policy:      policy,
		log:         logger.Component("property-source"),
	}
}

func (s *Chain) Fetch(ctx context.Context, owner common.Address) ([]models.Property, error) {
	out, err := retry.Value(ctx, s.policy, func() ([]interface{}, error) {
		return s.client.Call(ctx, s.registry, "getUserRequests", owner)
	})
	if err != nil {
		return nil, apperrors.NewChainError("getUserRequests", err)
	}
	if len(out) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeChain, "Unexpected getUserRequests result")
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeChain, "Unexpected getUserRequests result")
	}

	items := make([]models.Property, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.load(gctx, id)
			if err != nil {
				return err
			}
			items[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Chain) load(ctx context.Context, id *big.Int) (models.Property, error) {
	out, err := retry.Value(ctx, s.policy, func() ([]interface{}, error) {
		return s.client.Call(ctx, s.registry, "getPropertyRequest", id)
	})
	if err != nil {
		return models.Property{}, apperrors.NewChainError("getPropertyRequest", err).
			WithDetail("request_id", id.String())
	}
	if len(out) != 5 {
		return models.Property{}, apperrors.New(apperrors.ErrCodeChain, "Unexpected getPropertyRequest result")
	}

	ipfsHash, _ := out[0].(string)
	rawStatus, _ := out[1].(uint8)
	tokenID, _ := out[2].(*big.Int)
	timestamp, _ := out[3].(*big.Int)
	requester, _ := out[4].(common.Address)

	status, ok := models.StatusFromChain(rawStatus)
	if !ok {
		return models.Property{}, apperrors.New(apperrors.ErrCodeChain, fmt.Sprintf("Unknown request status %d", rawStatus))
	}

	p := models.Property{
		ID:          id.String(),
		ContentHash: ipfsHash,
		Status:      status,
		Owner:       requester.Hex(),
	}
	if tokenID != nil {
		p.TokenID = tokenID.String()
	}
	if timestamp != nil {
		p.RequestedAt = time.Unix(timestamp.Int64(), 0).UTC()
	}

	if err := s.merge(ctx, &p); err != nil {
		p.MetadataError = apperrors.UserMessage(err)
		s.log.Warn().Err(err).Str("request_id", p.ID).Str("cid", ipfsHash).Msg("property metadata unavailable")
	}
	return p, nil
}

func (s *Chain) merge(ctx context.Context, p *models.Property) error {
	if p.ContentHash == "" {
		return apperrors.New(apperrors.ErrCodeMetadataFetch, "Request has no metadata hash")
	}
	raw, err := s.docs.Fetch(ctx, p.ContentHash)
	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return apperrors.NewMetadataError(p.ContentHash, err)
	}
	var meta models.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeMetadataFetch, "Metadata is not valid JSON")
	}
	p.ApplyMetadata(meta)
	return nil
}
