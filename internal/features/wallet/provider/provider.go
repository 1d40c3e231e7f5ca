package provider

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnavailable means there is no wallet to talk to.
	ErrUnavailable = errors.New("no wallet provider available")
	// ErrUserRejected means the wallet declined the request.
	ErrUserRejected = errors.New("user rejected the request")
)

// Provider is the wallet capability the session manager is built on.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error)
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	// SubscribeAccounts streams the full account list on every change,
	// first entry being the active account. unsubscribe never blocks.
	SubscribeAccounts() (updates <-chan []common.Address, unsubscribe func())
}
