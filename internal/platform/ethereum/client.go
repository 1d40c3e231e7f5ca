package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var ErrReverted = errors.New("transaction reverted")

// PendingTx is the handle returned by every write. Wait blocks until the
// transaction is mined and fails if the receipt reports a revert.
type PendingTx interface {
	Hash() common.Hash
	Wait(ctx context.Context) (*types.Receipt, error)
}

// Client builds contract calls against fixed (address, ABI) pairs.
type Client interface {
	Call(ctx context.Context, c *Contract, method string, args ...interface{}) ([]interface{}, error)
	Transact(ctx context.Context, opts *bind.TransactOpts, c *Contract, method string, args ...interface{}) (PendingTx, error)
}

// WithValue copies opts and attaches a payable value.
func WithValue(opts *bind.TransactOpts, value *big.Int) *bind.TransactOpts {
	o := *opts
	o.Value = value
	return &o
}

// RPCClient talks to a node over JSON-RPC.
type RPCClient struct {
	eth *ethclient.Client
}

func Dial(ctx context.Context, url string) (*RPCClient, error) {
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &RPCClient{eth: eth}, nil
}

func (r *RPCClient) Close() {
	r.eth.Close()
}

func (r *RPCClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return r.eth.BalanceAt(ctx, account, nil)
}

func (r *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	return r.eth.ChainID(ctx)
}

func (r *RPCClient) bound(c *Contract) *bind.BoundContract {
	return bind.NewBoundContract(c.Address, c.ABI, r.eth, r.eth, r.eth)
}

func (r *RPCClient) Call(ctx context.Context, c *Contract, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := r.bound(c).Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RPCClient) Transact(ctx context.Context, opts *bind.TransactOpts, c *Contract, method string, args ...interface{}) (PendingTx, error) {
	o := *opts
	o.Context = ctx
	tx, err := r.bound(c).Transact(&o, method, args...)
	if err != nil {
		return nil, err
	}
	return &rpcPendingTx{tx: tx, backend: r.eth}, nil
}

type rpcPendingTx struct {
	tx      *types.Transaction
	backend bind.DeployBackend
}

func (p *rpcPendingTx) Hash() common.Hash {
	return p.tx.Hash()
}

func (p *rpcPendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, ErrReverted
	}
	return receipt, nil
}
