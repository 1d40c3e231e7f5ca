package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/common/logger"
	"propchain/internal/common/retry"
	"propchain/internal/features/action/guard"
	"propchain/internal/features/action/models"
	txmodels "propchain/internal/features/transaction/models"
	"propchain/internal/platform/ethereum"
	"propchain/internal/platform/ipfs"
)

// Wallet supplies the signing handle of the connected account.
type Wallet interface {
	Signer() *bind.TransactOpts
	Address() (common.Address, bool)
}

// Ledger records marketplace purchases.
type Ledger interface {
	Append(tx txmodels.Transaction) txmodels.Transaction
	Settle(id string, status txmodels.Status, chainTxHash string) (txmodels.Transaction, error)
}

type Notifier interface {
	Success(title, message string)
	Error(title, message string)
}

type Options struct {
	// RequestFee is sent with requestProperty, in wei.
	RequestFee  *big.Int
	InflightTTL time.Duration
	Policy      retry.Policy
}

// Service builds contract writes, submits them with the wallet signer and
// tracks each one until its receipt arrives.
type Service struct {
	chain     ethereum.Client
	contracts *ethereum.Contracts
	wallet    Wallet
	docs      ipfs.Store
	guard     guard.Guard
	ledger    Ledger
	notifier  Notifier
	opts      Options
	tracker   *Tracker
	log       zerolog.Logger

	mu        sync.RWMutex
	confirmed []func(models.Action)
	inflight  sync.WaitGroup
}

func NewService(chain ethereum.Client, contracts *ethereum.Contracts, wallet Wallet, docs ipfs.Store, g guard.Guard, ledger Ledger, notifier Notifier, opts Options) *Service {
	if opts.RequestFee == nil {
		opts.RequestFee = big.NewInt(0)
	}
	if opts.InflightTTL <= 0 {
		opts.InflightTTL = 30 * time.Minute
	}
	return &Service{
		chain:     chain,
		contracts: contracts,
		wallet:    wallet,
		docs:      docs,
		guard:     g,
		ledger:    ledger,
		notifier:  notifier,
		opts:      opts,
		tracker:   NewTracker(0),
		log:       logger.Component("actions"),
	}
}

// OnConfirmed registers fn to run after every confirmed action.
func (s *Service) OnConfirmed(fn func(models.Action)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, fn)
}

// RequestFee is the value sent with every property request, in wei.
func (s *Service) RequestFee() *big.Int { return new(big.Int).Set(s.opts.RequestFee) }

func (s *Service) Get(id string) (models.Action, bool) { return s.tracker.Get(id) }

func (s *Service) Recent(n int) []models.Action { return s.tracker.Recent(n) }

func (s *Service) Wait(ctx context.Context, id string) (models.Action, error) {
	return s.tracker.Wait(ctx, id)
}

// Drain waits for background confirmations, used on shutdown.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call is a single contract write.
type call struct {
	contract *ethereum.Contract
	method   string
	args     []interface{}
	value    *big.Int
	// pending is the status text while this transaction awaits its receipt.
	pending string
}

type plan struct {
	kind       models.Kind
	key        string
	params     map[string]string
	preparing  string
	submitting string
	calls      []call
	// prepare runs in the validating state and may replace calls.
	prepare   func(ctx context.Context) ([]call, map[string]string, error)
	confirmed func(hash string) string
	// submitted runs once the first transaction is accepted.
	submitted func(a models.Action) map[string]string
	// finished runs once with the terminal state and the last tx hash.
	finished func(state models.State, hash string)
}

func (s *Service) signer() (*bind.TransactOpts, error) {
	signer := s.wallet.Signer()
	if signer == nil {
		return nil, apperrors.NewNotConnectedError()
	}
	return signer, nil
}

func (s *Service) execute(ctx context.Context, signer *bind.TransactOpts, p plan) (models.Action, error) {
	ok, err := s.guard.Acquire(ctx, p.key, p.key, s.opts.InflightTTL)
	if err != nil {
		return models.Action{}, apperrors.Wrap(err, apperrors.ErrCodeCacheError, "Action guard unavailable")
	}
	if !ok {
		return models.Action{}, apperrors.NewInFlightError(p.key)
	}

	act := s.tracker.create(p.kind, p.key, p.params)
	log := s.log.With().Str("action_id", act.ID).Str("kind", string(p.kind)).Str("key", p.key).Logger()

	calls := p.calls
	if p.prepare != nil {
		act = s.tracker.update(act.ID, func(a *models.Action) { a.Status = p.preparing })
		prepared, result, err := p.prepare(ctx)
		if err != nil {
			return s.fail(log, act.ID, p, err), nil
		}
		calls = prepared
		act = s.tracker.update(act.ID, func(a *models.Action) {
			for k, v := range result {
				a.Result[k] = v
			}
		})
	}

	act = s.tracker.update(act.ID, func(a *models.Action) {
		a.State = models.StateSubmitting
		a.Status = p.submitting
	})

	tx, err := s.submit(ctx, signer, calls[0])
	if err != nil {
		return s.fail(log, act.ID, p, err), nil
	}
	log.Info().Str("tx", tx.Hash().Hex()).Str("method", calls[0].method).Msg("transaction submitted")

	act = s.tracker.update(act.ID, func(a *models.Action) {
		a.State = models.StatePendingConfirmation
		a.Status = calls[0].pending
		a.TxHashes = append(a.TxHashes, tx.Hash().Hex())
	})
	if p.submitted != nil {
		extra := p.submitted(act)
		act = s.tracker.update(act.ID, func(a *models.Action) {
			for k, v := range extra {
				a.Result[k] = v
			}
		})
	}

	// A submitted transaction cannot be unsent, so the wait outlives the request.
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.confirm(context.WithoutCancel(ctx), log, signer, act.ID, p, calls, tx)
	}()

	return act, nil
}

func (s *Service) submit(ctx context.Context, signer *bind.TransactOpts, c call) (ethereum.PendingTx, error) {
	opts := signer
	if c.value != nil && c.value.Sign() > 0 {
		opts = ethereum.WithValue(signer, c.value)
	}
	tx, err := s.chain.Transact(ctx, opts, c.contract, c.method, c.args...)
	if err != nil {
		return nil, apperrors.NewChainError(c.method, err)
	}
	return tx, nil
}

func (s *Service) confirm(ctx context.Context, log zerolog.Logger, signer *bind.TransactOpts, id string, p plan, calls []call, tx ethereum.PendingTx) {
	for i := range calls {
		if _, err := tx.Wait(ctx); err != nil {
			if errors.Is(err, ethereum.ErrReverted) {
				err = apperrors.Wrap(err, apperrors.ErrCodeTxReverted, "Transaction reverted").
					WithDetail("tx", tx.Hash().Hex())
			} else {
				err = apperrors.NewChainError(calls[i].method, err)
			}
			s.fail(log, id, p, err)
			return
		}
		log.Info().Str("tx", tx.Hash().Hex()).Str("method", calls[i].method).Msg("transaction confirmed")

		if i == len(calls)-1 {
			break
		}

		next := calls[i+1]
		var err error
		tx, err = s.submit(ctx, signer, next)
		if err != nil {
			s.fail(log, id, p, err)
			return
		}
		log.Info().Str("tx", tx.Hash().Hex()).Str("method", next.method).Msg("transaction submitted")
		s.tracker.update(id, func(a *models.Action) {
			a.Status = next.pending
			a.TxHashes = append(a.TxHashes, tx.Hash().Hex())
		})
	}

	hash := tx.Hash().Hex()
	status := p.confirmed(hash)
	s.release(log, p.key)
	if p.finished != nil {
		p.finished(models.StateConfirmed, hash)
	}
	s.notifier.Success(p.kind.Title(), status)
	act := s.tracker.update(id, func(a *models.Action) {
		a.State = models.StateConfirmed
		a.Status = status
	})

	s.mu.RLock()
	observers := append([]func(models.Action){}, s.confirmed...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(act)
	}
}

// fail moves the action to failed with the user-facing text of err.
// Side effects run before waiters wake up.
func (s *Service) fail(log zerolog.Logger, id string, p plan, err error) models.Action {
	msg := apperrors.UserMessage(err)
	log.Warn().Err(err).Msg("action failed")

	s.release(log, p.key)
	if p.finished != nil {
		current, _ := s.tracker.Get(id)
		p.finished(models.StateFailed, current.TxHash())
	}
	s.notifier.Error(p.kind.Title(), msg)
	return s.tracker.update(id, func(a *models.Action) {
		a.State = models.StateFailed
		a.Status = msg
		a.Error = msg
		a.ErrorCode = string(apperrors.CodeOf(err))
	})
}

func (s *Service) release(log zerolog.Logger, key string) {
	// context.Background: release must happen even after the request is gone
	if err := s.guard.Release(context.Background(), key); err != nil {
		log.Warn().Err(err).Msg("failed to release action guard")
	}
}

func (s *Service) read(ctx context.Context, c *ethereum.Contract, method string, args ...interface{}) ([]interface{}, error) {
	out, err := retry.Value(ctx, s.opts.Policy, func() ([]interface{}, error) {
		return s.chain.Call(ctx, c, method, args...)
	})
	if err != nil {
		return nil, apperrors.NewChainError(method, err)
	}
	if len(out) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeChain, fmt.Sprintf("Empty %s result", method))
	}
	return out, nil
}
