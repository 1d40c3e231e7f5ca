package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propchain/internal/common/config"
	apperrors "propchain/internal/common/errors"
	"propchain/internal/features/action/guard"
	"propchain/internal/features/action/models"
	propmodels "propchain/internal/features/property/models"
	txmodels "propchain/internal/features/transaction/models"
	txservice "propchain/internal/features/transaction/service"
	"propchain/internal/platform/ethereum"
	"propchain/internal/platform/ipfs"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const validCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

type stubWallet struct {
	signer *bind.TransactOpts
}

func (w *stubWallet) Signer() *bind.TransactOpts { return w.signer }

func (w *stubWallet) Address() (common.Address, bool) {
	if w.signer == nil {
		return common.Address{}, false
	}
	return w.signer.From, true
}

type toast struct{ level, title, message string }

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []toast
}

func (r *recordingNotifier) Success(title, message string) { r.add("success", title, message) }
func (r *recordingNotifier) Error(title, message string)   { r.add("error", title, message) }

func (r *recordingNotifier) add(level, title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, toast{level, title, message})
}

func (r *recordingNotifier) all() []toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toast(nil), r.toasts...)
}

type env struct {
	svc      *Service
	chain    *ethereum.FixtureChain
	docs     *ipfs.MemoryStore
	ledger   *txservice.Ledger
	notifier *recordingNotifier
	wallet   *stubWallet
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := &config.Config{}
	cfg.Chain.TitleRegistry = "0x0000000000000000000000000000000000000001"
	cfg.Chain.KYCRegistry = "0x0000000000000000000000000000000000000002"
	cfg.Chain.Marketplace = "0x0000000000000000000000000000000000000003"
	cfg.Chain.PropertyRegistry = "0x0000000000000000000000000000000000000004"
	contracts, err := ethereum.NewContracts(cfg)
	require.NoError(t, err)

	e := &env{
		chain:    ethereum.NewFixtureChain(),
		docs:     ipfs.NewMemoryStore("https://gateway.example"),
		ledger:   txservice.NewLedger(),
		notifier: &recordingNotifier{},
		wallet:   &stubWallet{signer: &bind.TransactOpts{From: alice}},
	}
	e.svc = NewService(e.chain, contracts, e.wallet, e.docs, guard.NewMemoryGuard(), e.ledger, e.notifier, Options{
		RequestFee: big.NewInt(1000),
	})
	return e
}

func (e *env) wait(t *testing.T, a models.Action) models.Action {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := e.svc.Wait(ctx, a.ID)
	require.NoError(t, err)
	return done
}

func TestEscrowWithoutAddressFailsBeforeAnyWrite(t *testing.T) {
	e := newEnv(t)

	act, err := e.svc.ApproveAndExecuteEscrow(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, models.StateFailed, act.State)
	assert.Equal(t, "No escrow found for that deed", act.Status)
	assert.Equal(t, string(apperrors.ErrCodeNoEscrow), act.ErrorCode)
	assert.Empty(t, e.chain.Sent())
	assert.Contains(t, e.chain.Calls(), "Marketplace.escrowForDeed")
}

func TestEscrowApprovesThenExecutes(t *testing.T) {
	e := newEnv(t)
	escrow := common.HexToAddress("0x00000000000000000000000000000000000e5c40")
	e.chain.SetEscrow(42, escrow)

	act, err := e.svc.ApproveAndExecuteEscrow(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, escrow.Hex(), act.Result["escrow"])

	done := e.wait(t, act)
	assert.Equal(t, models.StateConfirmed, done.State)
	assert.Equal(t, "Escrow executed; deed should have transferred!", done.Status)
	assert.Len(t, done.TxHashes, 2)

	sent := e.chain.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "approveTx", sent[0].Method)
	assert.Equal(t, "executeTx", sent[1].Method)
	assert.Equal(t, escrow, sent[0].To)
	assert.Equal(t, big.NewInt(0), sent[1].Args[0])
}

func TestMintWithoutRoleSendsNothing(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.MintDeed(context.Background(), bob.Hex(), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.CodeOf(err))
	assert.Equal(t, "You do not hold the GOVERNMENT_ROLE", apperrors.UserMessage(err))
	assert.Empty(t, e.chain.Sent())
	assert.Empty(t, e.svc.Recent(0))
}

func TestMintWithRole(t *testing.T) {
	e := newEnv(t)
	e.chain.GrantRole(ethereum.GovernmentRole, alice)

	allowed, err := e.svc.CanMint(context.Background())
	require.NoError(t, err)
	assert.True(t, allowed)

	act, err := e.svc.MintDeed(context.Background(), bob.Hex(), validCID)
	require.NoError(t, err)
	done := e.wait(t, act)

	assert.Equal(t, models.StateConfirmed, done.State)
	assert.Equal(t, "Deed minted (check ownerOf). TxHash: "+done.TxHash(), done.Status)
	require.Len(t, e.chain.Sent(), 1)
	assert.Equal(t, []interface{}{bob}, e.chain.Sent()[0].Args)
}

func TestCanMintRequiresWallet(t *testing.T) {
	e := newEnv(t)
	e.wallet.signer = nil

	_, err := e.svc.CanMint(context.Background())
	assert.Equal(t, apperrors.ErrCodeNotConnected, apperrors.CodeOf(err))
}

func TestInvalidInputIsRejectedWithoutCalls(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := map[string]func() (models.Action, error){
		"kyc address": func() (models.Action, error) { return e.svc.ApproveKYC(ctx, "0x123") },
		"deed id":     func() (models.Action, error) { return e.svc.Unlist(ctx, "abc") },
		"price":       func() (models.Action, error) { return e.svc.ListForSale(ctx, "1", "-1") },
		"wei":         func() (models.Action, error) { return e.svc.Buy(ctx, "1", "1.5") },
		"request id":  func() (models.Action, error) { return e.svc.VerifyProperty(ctx, "") },
		"mint target": func() (models.Action, error) { return e.svc.MintDeed(ctx, "nobody", "") },
		"metadata": func() (models.Action, error) {
			return e.svc.RequestProperty(ctx, propmodels.Metadata{Title: ""})
		},
	}
	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := run()
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))
		})
	}
	assert.Empty(t, e.chain.Sent())
	assert.Empty(t, e.svc.Recent(0))
}

func TestActionsRequireWallet(t *testing.T) {
	e := newEnv(t)
	e.wallet.signer = nil

	_, err := e.svc.ApproveKYC(context.Background(), bob.Hex())
	assert.Equal(t, apperrors.ErrCodeNotConnected, apperrors.CodeOf(err))
	assert.Empty(t, e.chain.Sent())
}

func TestDuplicateActionIsRejectedWhilePending(t *testing.T) {
	e := newEnv(t)
	release := e.chain.Hold()

	first, err := e.svc.ApproveKYC(context.Background(), bob.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingConfirmation, first.State)
	assert.Equal(t, "Waiting for confirmation...", first.Status)

	_, err = e.svc.RevokeKYC(context.Background(), bob.Hex())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInFlight, apperrors.CodeOf(err))
	assert.Len(t, e.chain.Sent(), 1)

	release()
	done := e.wait(t, first)
	assert.Equal(t, models.StateConfirmed, done.State)
	assert.Equal(t, "Approved KYC for "+bob.Hex()+". Tx: "+done.TxHash(), done.Status)
	assert.True(t, e.chain.KYCApproved(bob))

	again, err := e.svc.RevokeKYC(context.Background(), bob.Hex())
	require.NoError(t, err)
	e.wait(t, again)
	assert.False(t, e.chain.KYCApproved(bob))
}

func TestSubmitErrorShowsProviderText(t *testing.T) {
	e := newEnv(t)
	e.chain.FailOn("listForSale", errors.New("insufficient funds for gas * price + value"))

	act, err := e.svc.ListForSale(context.Background(), "7", "1.5")
	require.NoError(t, err)

	assert.Equal(t, models.StateFailed, act.State)
	assert.Equal(t, "insufficient funds for gas * price + value", act.Status)
	assert.Equal(t, string(apperrors.ErrCodeChain), act.ErrorCode)
	assert.Empty(t, e.chain.Sent())

	toasts := e.notifier.all()
	require.Len(t, toasts, 1)
	assert.Equal(t, "error", toasts[0].level)

	// guard released after failure
	_, err = e.svc.ListForSale(context.Background(), "7", "1.5")
	assert.NoError(t, err)
}

func TestRevertedTransactionFails(t *testing.T) {
	e := newEnv(t)
	e.chain.RevertOn("unlist")

	act, err := e.svc.Unlist(context.Background(), "3")
	require.NoError(t, err)
	done := e.wait(t, act)

	assert.Equal(t, models.StateFailed, done.State)
	assert.Equal(t, string(apperrors.ErrCodeTxReverted), done.ErrorCode)
	assert.Equal(t, ethereum.ErrReverted.Error(), done.Status)
}

func TestListThenBuyRecordsSale(t *testing.T) {
	e := newEnv(t)

	listed, err := e.svc.ListForSale(context.Background(), "5", "0.25")
	require.NoError(t, err)
	assert.Equal(t, "250000000000000000", listed.Params["price_wei"])
	done := e.wait(t, listed)
	assert.Equal(t, "Deed 5 listed at 0.2500 ETH. Tx: "+done.TxHash(), done.Status)

	e.wallet.signer = &bind.TransactOpts{From: bob}
	bought, err := e.svc.Buy(context.Background(), "5", "250000000000000000")
	require.NoError(t, err)
	txID := bought.Result["transaction_id"]
	require.NotEmpty(t, txID)

	pending, ok := e.ledger.Get(txID)
	require.True(t, ok)
	assert.Equal(t, bob.Hex(), pending.From)
	assert.Equal(t, txmodels.CurrencyETH, pending.Currency)

	done = e.wait(t, bought)
	assert.Equal(t, models.StateConfirmed, done.State)
	assert.Equal(t, "Purchase completed. Tx: "+done.TxHash(), done.Status)

	settled, ok := e.ledger.Get(txID)
	require.True(t, ok)
	assert.Equal(t, txmodels.StatusCompleted, settled.Status)
	assert.Equal(t, done.TxHash(), settled.ChainTxHash)

	sent := e.chain.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "250000000000000000", sent[1].Value.String())
}

func TestBuyWithWrongValueSettlesAsFailed(t *testing.T) {
	e := newEnv(t)

	bought, err := e.svc.Buy(context.Background(), "9", "1")
	require.NoError(t, err)
	done := e.wait(t, bought)
	assert.Equal(t, models.StateFailed, done.State)

	tx, ok := e.ledger.Get(bought.Result["transaction_id"])
	require.True(t, ok)
	assert.Equal(t, txmodels.StatusFailed, tx.Status)
}

func TestRequestPropertyPublishesMetadata(t *testing.T) {
	e := newEnv(t)
	price := int64(450000)

	act, err := e.svc.RequestProperty(context.Background(), propmodels.Metadata{
		Title:       "Harbor Loft",
		Description: "Two floors above the marina",
		Price:       &price,
		Location:    "Seattle, WA",
		Area:        1400,
		Bedrooms:    2,
		Bathrooms:   1.5,
		YearBuilt:   2004,
	})
	require.NoError(t, err)

	cid := act.Result["cid"]
	require.NotEmpty(t, cid)
	raw, err := e.docs.Fetch(context.Background(), cid)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"title":"Harbor Loft"`)

	e.wait(t, act)
	sent := e.chain.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "requestProperty", sent[0].Method)
	assert.Equal(t, []interface{}{cid}, sent[0].Args)
	assert.Equal(t, big.NewInt(1000), sent[0].Value)
}

func TestReviewRequest(t *testing.T) {
	e := newEnv(t)
	id := e.chain.AddRequest(bob, validCID, ethereum.RequestPending, time.Now())

	act, err := e.svc.VerifyProperty(context.Background(), id.String())
	require.NoError(t, err)
	done := e.wait(t, act)
	assert.Equal(t, models.StateConfirmed, done.State)

	// already verified, so the contract reverts
	act, err = e.svc.RejectProperty(context.Background(), id.String())
	require.NoError(t, err)
	done = e.wait(t, act)
	assert.Equal(t, models.StateFailed, done.State)
}

func TestPreviewMetadata(t *testing.T) {
	e := newEnv(t)
	good := ipfs.CIDv0([]byte(`{"title":"Loft","bedrooms":2}`))
	e.docs.Put(good, []byte(`{"title":"Loft","bedrooms":2}`))
	bad := ipfs.CIDv0([]byte("plain text"))
	e.docs.Put(bad, []byte("plain text"))

	preview := e.svc.PreviewMetadata(context.Background(), good)
	assert.Empty(t, preview.Error)
	assert.Equal(t, "Loft", preview.Fields["title"])
	assert.Contains(t, preview.Pretty, "\n  \"bedrooms\": 2")

	for _, cid := range []string{bad, validCID, "not-a-cid"} {
		preview = e.svc.PreviewMetadata(context.Background(), cid)
		assert.Equal(t, "Not JSON or fetch failed. View raw file below.", preview.Error)
		assert.Equal(t, e.docs.RawURL(cid), preview.RawURL)
	}
}

func TestConfirmedObservers(t *testing.T) {
	e := newEnv(t)
	seen := make(chan models.Action, 1)
	e.svc.OnConfirmed(func(a models.Action) { seen <- a })

	act, err := e.svc.ApproveKYC(context.Background(), bob.Hex())
	require.NoError(t, err)

	select {
	case got := <-seen:
		assert.Equal(t, act.ID, got.ID)
		assert.Equal(t, models.StateConfirmed, got.State)
	case <-time.After(5 * time.Second):
		t.Fatal("observer not called")
	}
	require.NoError(t, e.svc.Drain(context.Background()))
}

func TestWaitUnknownAction(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Wait(context.Background(), "missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}
