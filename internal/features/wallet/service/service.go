package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/common/logger"
	"propchain/internal/common/retry"
	"propchain/internal/common/validation"
	"propchain/internal/features/wallet/models"
	"propchain/internal/features/wallet/provider"
	"propchain/internal/features/wallet/repository"
)

const balancePlaces = 4

// Notifier receives user-facing toasts.
type Notifier interface {
	Success(title, message string)
	Error(title, message string)
	Info(title, message string)
}

// Service owns the single wallet session of the process.
type Service struct {
	provider provider.Provider
	flags    repository.FlagStore
	notifier Notifier
	policy   retry.Policy
	log      zerolog.Logger

	// transition keeps a session commit and the flag write after it together.
	transition sync.Mutex

	mu        sync.RWMutex
	session   models.Session
	signer    *bind.TransactOpts
	gen       uint64
	stopWatch func()
	observers []func(models.Session)
}

func NewService(p provider.Provider, flags repository.FlagStore, notifier Notifier, policy retry.Policy) *Service {
	return &Service{
		provider: p,
		flags:    flags,
		notifier: notifier,
		policy:   policy,
		log:      logger.Component("wallet"),
		session:  models.Disconnected(),
	}
}

// OnChange registers fn to run after every identity change (connect,
// disconnect, account switch). fn runs outside the session lock.
func (s *Service) OnChange(fn func(models.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Service) Session() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Signer returns the current signing handle, nil when disconnected.
func (s *Service) Signer() *bind.TransactOpts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer
}

// Address returns the connected account.
func (s *Service) Address() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.session.Connected {
		return common.Address{}, false
	}
	return common.HexToAddress(s.session.Address), true
}

func (s *Service) Connect(ctx context.Context) (models.Session, error) {
	return s.connect(ctx, false)
}

// RestoreIfPersisted reconnects without toasts when the flag from a previous run is set.
func (s *Service) RestoreIfPersisted(ctx context.Context) {
	ok, err := s.flags.IsConnected(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read connected flag")
		return
	}
	if !ok {
		return
	}
	if _, err := s.connect(ctx, true); err != nil {
		s.log.Warn().Err(err).Msg("failed to restore wallet session")
		return
	}
	s.log.Info().Str("address", s.Session().Address).Msg("wallet session restored")
}

func (s *Service) connect(ctx context.Context, quiet bool) (models.Session, error) {
	_, gen := s.snapshot()
	session, signer, err := s.open(ctx)
	if err == nil && !s.persist(ctx, gen, session, signer) {
		err = apperrors.New(apperrors.ErrCodeProvider, "Wallet session changed while connecting")
	}
	if err != nil {
		if !quiet {
			s.notifier.Error("Connection Failed", apperrors.UserMessage(err))
		}
		return s.Session(), err
	}
	s.watch()

	if !quiet {
		s.notifier.Success("Wallet Connected", session.ShortAddress())
	}
	s.log.Info().Str("address", session.Address).Msg("wallet connected")
	s.notify(session)
	return session, nil
}

func (s *Service) open(ctx context.Context) (models.Session, *bind.TransactOpts, error) {
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return models.Session{}, nil, providerError(err)
	}
	if len(accounts) == 0 {
		return models.Session{}, nil, apperrors.New(apperrors.ErrCodeProvider, "Wallet returned no accounts")
	}

	account := accounts[0]
	signer, err := s.provider.Signer(ctx, account)
	if err != nil {
		return models.Session{}, nil, providerError(err)
	}

	balance, err := s.balance(ctx, account)
	if err != nil {
		return models.Session{}, nil, providerError(err)
	}

	return models.Session{
		Address:   account.Hex(),
		Connected: true,
		Balance:   balance,
		UpdatedAt: time.Now(),
	}, signer, nil
}

func (s *Service) balance(ctx context.Context, account common.Address) (string, error) {
	wei, err := retry.Value(ctx, s.policy, func() (*big.Int, error) {
		return s.provider.Balance(ctx, account)
	})
	if err != nil {
		return "", err
	}
	return validation.FormatEther(wei, balancePlaces), nil
}

// Disconnect forgets the session locally. The wallet itself is not contacted.
func (s *Service) Disconnect(ctx context.Context) {
	s.stop()

	s.transition.Lock()
	s.replace(models.Disconnected(), nil)
	if err := s.flags.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to clear connected flag")
	}
	s.transition.Unlock()

	s.notifier.Info("Wallet Disconnected", "Your wallet has been disconnected")
	s.log.Info().Msg("wallet disconnected")
	s.notify(s.Session())
}

// HandleAccountsChanged applies an account list reported by the wallet.
// An empty list disconnects; otherwise the first account becomes active
// without prompting again.
func (s *Service) HandleAccountsChanged(ctx context.Context, accounts []common.Address) {
	current, gen := s.snapshot()
	if !current.Connected {
		return
	}
	if len(accounts) == 0 {
		s.Disconnect(ctx)
		return
	}

	account := accounts[0]
	signer, err := s.provider.Signer(ctx, account)
	if err != nil {
		s.log.Error().Err(err).Str("address", account.Hex()).Msg("failed to switch signer")
		s.notifier.Error("Account Switch Failed", apperrors.UserMessage(providerError(err)))
		return
	}

	balance, err := s.balance(ctx, account)
	if err != nil {
		s.log.Warn().Err(err).Str("address", account.Hex()).Msg("failed to refresh balance")
		balance = "0"
	}

	session := models.Session{
		Address:   account.Hex(),
		Connected: true,
		Balance:   balance,
		UpdatedAt: time.Now(),
	}
	// Disconnect or another switch won while the signer and balance were read.
	if !s.persist(ctx, gen, session, signer) {
		s.log.Debug().Str("address", session.Address).Msg("dropped stale account change")
		return
	}
	if current.Address != session.Address {
		s.notifier.Info("Account Changed", session.ShortAddress())
		s.log.Info().Str("from", current.Address).Str("to", session.Address).Msg("wallet account changed")
	}
	s.notify(session)
}

// RefreshBalance re-reads the balance of the connected account.
func (s *Service) RefreshBalance(ctx context.Context) (models.Session, error) {
	addr, ok := s.Address()
	if !ok {
		return s.Session(), apperrors.NewNotConnectedError()
	}
	balance, err := s.balance(ctx, addr)
	if err != nil {
		return s.Session(), providerError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Аккаунт мог смениться, пока шло чтение
	if s.session.Address == addr.Hex() {
		s.session.Balance = balance
		s.session.UpdatedAt = time.Now()
	}
	return s.session, nil
}

// Close stops the account subscription.
func (s *Service) Close() {
	s.stop()
}

func (s *Service) snapshot() (models.Session, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session, s.gen
}

func (s *Service) replace(session models.Session, signer *bind.TransactOpts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.signer = signer
	s.gen++
}

// commit replaces the session only if nothing else replaced it since gen was read.
func (s *Service) commit(gen uint64, session models.Session, signer *bind.TransactOpts) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.session = session
	s.signer = signer
	s.gen++
	return true
}

// persist commits a connected session and stores the flag for it.
func (s *Service) persist(ctx context.Context, gen uint64, session models.Session, signer *bind.TransactOpts) bool {
	s.transition.Lock()
	defer s.transition.Unlock()
	if !s.commit(gen, session, signer) {
		return false
	}
	if err := s.flags.SetConnected(ctx, session.Address); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist connected flag")
	}
	return true
}

func (s *Service) notify(session models.Session) {
	s.mu.RLock()
	observers := append([]func(models.Session){}, s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(session)
	}
}

func (s *Service) watch() {
	s.stop()

	updates, unsubscribe := s.provider.SubscribeAccounts()
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			unsubscribe()
		})
	}

	s.mu.Lock()
	s.stopWatch = stop
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case accounts, ok := <-updates:
				if !ok {
					return
				}
				s.HandleAccountsChanged(context.Background(), accounts)
			}
		}
	}()
}

func (s *Service) stop() {
	s.mu.Lock()
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func providerError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, provider.ErrUnavailable):
		return apperrors.Wrap(err, apperrors.ErrCodeProviderUnavailable, "No wallet found")
	case errors.Is(err, provider.ErrUserRejected):
		return apperrors.Wrap(err, apperrors.ErrCodeUserRejected, "Request rejected in wallet")
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeProvider, "Wallet provider error")
	}
}
