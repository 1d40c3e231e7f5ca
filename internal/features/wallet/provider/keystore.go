package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader reads native balances from the chain.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// Keystore is the live provider: accounts come from an encrypted keystore
// directory, balances from the RPC node. Adding or removing key files while
// running is reported as an account change.
type Keystore struct {
	ks         *keystore.KeyStore
	preferred  common.Address
	passphrase string
	chainID    *big.Int
	balances   BalanceReader
}

func NewKeystore(dir, preferred, passphrase string, chainID int64, balances BalanceReader) (*Keystore, error) {
	if dir == "" {
		return nil, fmt.Errorf("keystore dir is empty")
	}
	k := &Keystore{
		ks:         keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP),
		passphrase: passphrase,
		chainID:    big.NewInt(chainID),
		balances:   balances,
	}
	if preferred != "" {
		if !common.IsHexAddress(preferred) {
			return nil, fmt.Errorf("invalid wallet account %q", preferred)
		}
		k.preferred = common.HexToAddress(preferred)
	}
	return k, nil
}

// ordered lists keystore accounts with the preferred one first.
func (k *Keystore) ordered() []common.Address {
	accs := k.ks.Accounts()
	out := make([]common.Address, 0, len(accs))
	for _, a := range accs {
		if a.Address == k.preferred {
			out = append([]common.Address{a.Address}, out...)
			continue
		}
		out = append(out, a.Address)
	}
	return out
}

func (k *Keystore) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	addrs := k.ordered()
	if len(addrs) == 0 {
		return nil, ErrUnavailable
	}
	if err := k.unlock(addrs[0]); err != nil {
		return nil, err
	}
	return addrs, nil
}

func (k *Keystore) unlock(addr common.Address) error {
	err := k.ks.Unlock(accounts.Account{Address: addr}, k.passphrase)
	if errors.Is(err, keystore.ErrDecrypt) {
		return fmt.Errorf("%w: could not decrypt key with given passphrase", ErrUserRejected)
	}
	return err
}

func (k *Keystore) Signer(ctx context.Context, account common.Address) (*bind.TransactOpts, error) {
	if err := k.unlock(account); err != nil {
		return nil, err
	}
	opts, err := bind.NewKeyStoreTransactorWithChainID(k.ks, accounts.Account{Address: account}, k.chainID)
	if err != nil {
		return nil, err
	}
	return opts, nil
}

func (k *Keystore) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	if k.balances == nil {
		return nil, ErrUnavailable
	}
	return k.balances.BalanceAt(ctx, account)
}

func (k *Keystore) SubscribeAccounts() (<-chan []common.Address, func()) {
	events := make(chan accounts.WalletEvent, 8)
	sub := k.ks.Subscribe(events)
	out := make(chan []common.Address, 8)
	done := make(chan struct{})

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case <-done:
				return
			case <-sub.Err():
				return
			case <-events:
				select {
				case out <- k.ordered():
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(func() { close(done) }) }
}
