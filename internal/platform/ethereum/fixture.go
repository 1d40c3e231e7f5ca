package ethereum

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Request statuses as stored by PropertyRegistry.
const (
	RequestPending uint8 = iota
	RequestVerified
	RequestRejected
	RequestWithdrawn
)

// SentTx is a write recorded by FixtureChain.
type SentTx struct {
	Contract string
	To       common.Address
	Method   string
	Args     []interface{}
	From     common.Address
	Value    *big.Int
	Hash     common.Hash
}

type fixtureRequest struct {
	ipfsHash  string
	status    uint8
	tokenID   *big.Int
	timestamp *big.Int
	requester common.Address
}

// FixtureChain is an in-memory stand-in for the deployed contracts. It keeps
// just enough state for the dashboard flows: roles, KYC, listings, escrows
// and property requests. Arguments are ABI-packed before use so a wrongly
// typed call fails here the same way it would against a node.
type FixtureChain struct {
	mu sync.Mutex

	roles    map[common.Hash]map[common.Address]bool
	kyc      map[common.Address]bool
	deeds    map[string]common.Address
	listings map[string]*big.Int
	escrows  map[string]common.Address
	requests []*fixtureRequest
	nextDeed int64
	nonce    uint64
	block    int64

	sent     []SentTx
	calls    []string
	failures map[string]error
	reverts  map[string]bool
	gate     chan struct{}

	now func() time.Time
}

func NewFixtureChain() *FixtureChain {
	return &FixtureChain{
		roles:    make(map[common.Hash]map[common.Address]bool),
		kyc:      make(map[common.Address]bool),
		deeds:    make(map[string]common.Address),
		listings: make(map[string]*big.Int),
		escrows:  make(map[string]common.Address),
		failures: make(map[string]error),
		reverts:  make(map[string]bool),
		now:      time.Now,
	}
}

func (f *FixtureChain) GrantRole(role common.Hash, account common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[role] == nil {
		f.roles[role] = make(map[common.Address]bool)
	}
	f.roles[role][account] = true
}

func (f *FixtureChain) SetEscrow(deedID int64, escrow common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.escrows[big.NewInt(deedID).String()] = escrow
}

// AddRequest seeds a property request and returns its id.
func (f *FixtureChain) AddRequest(requester common.Address, ipfsHash string, status uint8, requestedAt time.Time) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := &fixtureRequest{
		ipfsHash:  ipfsHash,
		status:    status,
		tokenID:   big.NewInt(0),
		timestamp: big.NewInt(requestedAt.Unix()),
		requester: requester,
	}
	if status == RequestVerified {
		f.nextDeed++
		req.tokenID = big.NewInt(f.nextDeed)
	}
	f.requests = append(f.requests, req)
	return big.NewInt(int64(len(f.requests) - 1))
}

// FailOn makes the next submissions of method fail before anything is sent.
func (f *FixtureChain) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

// RevertOn makes transactions calling method get mined with a failed receipt.
func (f *FixtureChain) RevertOn(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts[method] = true
}

// Hold blocks confirmations of transactions sent from now on until release is called.
func (f *FixtureChain) Hold() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			close(gate)
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
		})
	}
}

func (f *FixtureChain) Sent() []SentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentTx, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FixtureChain) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FixtureChain) KYCApproved(account common.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kyc[account]
}

func (f *FixtureChain) Listing(deedID int64) (*big.Int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.listings[big.NewInt(deedID).String()]
	return p, ok
}

func (f *FixtureChain) Call(ctx context.Context, c *Contract, method string, args ...interface{}) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c.Name+"."+method)
	if err := f.failures[method]; err != nil {
		return nil, err
	}
	if _, err := c.ABI.Pack(method, args...); err != nil {
		return nil, err
	}

	switch method {
	case "hasRole":
		role := common.Hash(args[0].([32]byte))
		return []interface{}{f.roles[role][args[1].(common.Address)]}, nil
	case "isApproved":
		return []interface{}{f.kyc[args[0].(common.Address)]}, nil
	case "escrowForDeed":
		return []interface{}{f.escrows[args[0].(*big.Int).String()]}, nil
	case "ownerOf":
		owner, ok := f.deeds[args[0].(*big.Int).String()]
		if !ok {
			return nil, fmt.Errorf("execution reverted: invalid token id")
		}
		return []interface{}{owner}, nil
	case "getUserRequests":
		owner := args[0].(common.Address)
		ids := []*big.Int{}
		for i, r := range f.requests {
			if r.requester == owner {
				ids = append(ids, big.NewInt(int64(i)))
			}
		}
		return []interface{}{ids}, nil
	case "getPropertyRequest":
		r, err := f.request(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{r.ipfsHash, r.status, new(big.Int).Set(r.tokenID), new(big.Int).Set(r.timestamp), r.requester}, nil
	}
	return nil, fmt.Errorf("fixture chain: unsupported call %s.%s", c.Name, method)
}

func (f *FixtureChain) Transact(ctx context.Context, opts *bind.TransactOpts, c *Contract, method string, args ...interface{}) (PendingTx, error) {
	if opts == nil {
		return nil, fmt.Errorf("no signer")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failures[method]; err != nil {
		return nil, err
	}
	if _, err := c.ABI.Pack(method, args...); err != nil {
		return nil, err
	}

	f.nonce++
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], f.nonce)
	hash := crypto.Keccak256Hash(buf[:], []byte(c.Name+"."+method))

	reverted := f.reverts[method] || !f.apply(opts, method, args)

	f.sent = append(f.sent, SentTx{
		Contract: c.Name,
		To:       c.Address,
		Method:   method,
		Args:     args,
		From:     opts.From,
		Value:    opts.Value,
		Hash:     hash,
	})

	f.block++
	return &fixturePendingTx{hash: hash, block: f.block, reverted: reverted, gate: f.gate}, nil
}

// apply mutates fixture state; false means the contract would revert.
func (f *FixtureChain) apply(opts *bind.TransactOpts, method string, args []interface{}) bool {
	switch method {
	case "mintDeed":
		f.nextDeed++
		f.deeds[big.NewInt(f.nextDeed).String()] = args[0].(common.Address)
	case "approveKYC":
		f.kyc[args[0].(common.Address)] = true
	case "revokeKYC":
		delete(f.kyc, args[0].(common.Address))
	case "listForSale":
		f.listings[args[0].(*big.Int).String()] = new(big.Int).Set(args[1].(*big.Int))
	case "unlist":
		delete(f.listings, args[0].(*big.Int).String())
	case "buy":
		key := args[0].(*big.Int).String()
		price, ok := f.listings[key]
		if !ok || opts.Value == nil || price.Cmp(opts.Value) != 0 {
			return false
		}
		delete(f.listings, key)
		f.deeds[key] = opts.From
	case "requestProperty":
		f.requests = append(f.requests, &fixtureRequest{
			ipfsHash:  args[0].(string),
			status:    RequestPending,
			tokenID:   big.NewInt(0),
			timestamp: big.NewInt(f.now().Unix()),
			requester: opts.From,
		})
	case "verifyProperty", "rejectProperty", "withdrawRequest":
		r, err := f.request(args[0].(*big.Int))
		if err != nil || r.status != RequestPending {
			return false
		}
		switch method {
		case "verifyProperty":
			f.nextDeed++
			r.status = RequestVerified
			r.tokenID = big.NewInt(f.nextDeed)
			f.deeds[r.tokenID.String()] = r.requester
		case "rejectProperty":
			r.status = RequestRejected
		default:
			if r.requester != opts.From {
				return false
			}
			r.status = RequestWithdrawn
		}
	}
	return true
}

func (f *FixtureChain) request(id *big.Int) (*fixtureRequest, error) {
	if !id.IsInt64() || id.Int64() < 0 || id.Int64() >= int64(len(f.requests)) {
		return nil, fmt.Errorf("execution reverted: unknown request %s", id)
	}
	return f.requests[id.Int64()], nil
}

type fixturePendingTx struct {
	hash     common.Hash
	block    int64
	reverted bool
	gate     chan struct{}
}

func (p *fixturePendingTx) Hash() common.Hash {
	return p.hash
}

func (p *fixturePendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	receipt := &types.Receipt{
		TxHash:      p.hash,
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(p.block),
	}
	if p.reverted {
		receipt.Status = types.ReceiptStatusFailed
		return receipt, ErrReverted
	}
	return receipt, nil
}
