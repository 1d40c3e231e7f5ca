package provider

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fixtureSub struct {
	ch   chan []common.Address
	done chan struct{}
}

// Fixture is an in-memory wallet used in fixture mode and tests.
type Fixture struct {
	mu          sync.Mutex
	accounts    []common.Address
	balances    map[common.Address]*big.Int
	requestErr  error
	balanceErr  error
	subs        map[int]*fixtureSub
	nextSub     int
	requestHits int
}

func NewFixture(accounts ...common.Address) *Fixture {
	return &Fixture{
		accounts: accounts,
		balances: make(map[common.Address]*big.Int),
		subs:     make(map[int]*fixtureSub),
	}
}

func (f *Fixture) SetBalance(account common.Address, wei *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = wei
}

// FailRequests makes RequestAccounts return err until reset with nil.
func (f *Fixture) FailRequests(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestErr = err
}

func (f *Fixture) FailBalance(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceErr = err
}

// Requests reports how many times accounts were requested.
func (f *Fixture) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestHits
}

func (f *Fixture) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestHits++
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	if len(f.accounts) == 0 {
		return nil, ErrUnavailable
	}
	return append([]common.Address(nil), f.accounts...), nil
}

// Signer returns opts that sign nothing; the fixture chain never inspects signatures.
func (f *Fixture) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{
		From: account,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			return tx, nil
		},
	}, nil
}

func (f *Fixture) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (f *Fixture) SubscribeAccounts() (<-chan []common.Address, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	sub := &fixtureSub{ch: make(chan []common.Address, 8), done: make(chan struct{})}
	f.subs[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			close(sub.done)
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Emit replaces the account list and notifies subscribers, like a user
// switching or locking accounts in the wallet.
func (f *Fixture) Emit(accounts ...common.Address) {
	f.mu.Lock()
	f.accounts = append([]common.Address(nil), accounts...)
	subs := make([]*fixtureSub, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- append([]common.Address(nil), accounts...):
		case <-s.done:
		}
	}
}

// Subscribers is the number of active account subscriptions.
func (f *Fixture) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
