package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propchain/internal/common/config"
	"propchain/internal/common/middleware"
	"propchain/internal/features/action/guard"
	"propchain/internal/features/action/models"
	"propchain/internal/features/action/service"
	notifmodels "propchain/internal/features/notification/models"
	txservice "propchain/internal/features/transaction/service"
	walletmodels "propchain/internal/features/wallet/models"
	"propchain/internal/platform/ethereum"
	"propchain/internal/platform/ipfs"
	"propchain/internal/web"
)

var operator = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")

type fakeWallet struct{ connected bool }

func (w fakeWallet) Signer() *bind.TransactOpts {
	if !w.connected {
		return nil
	}
	return &bind.TransactOpts{From: operator}
}

func (w fakeWallet) Address() (common.Address, bool) { return operator, w.connected }

func (w fakeWallet) Session() walletmodels.Session {
	if !w.connected {
		return walletmodels.Disconnected()
	}
	return walletmodels.Session{Address: operator.Hex(), Connected: true, Balance: "1.0000"}
}

type silent struct{}

func (silent) Success(string, string)                 {}
func (silent) Error(string, string)                   {}
func (silent) Recent(int) []notifmodels.Notification { return nil }

type harness struct {
	router *gin.Engine
	svc    *service.Service
	chain  *ethereum.FixtureChain
	docs   *ipfs.MemoryStore
}

func newHarness(t *testing.T, connected bool) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Chain.TitleRegistry = "0x0000000000000000000000000000000000000001"
	cfg.Chain.KYCRegistry = "0x0000000000000000000000000000000000000002"
	cfg.Chain.Marketplace = "0x0000000000000000000000000000000000000003"
	cfg.Chain.PropertyRegistry = "0x0000000000000000000000000000000000000004"
	contracts, err := ethereum.NewContracts(cfg)
	require.NoError(t, err)

	h := &harness{
		chain: ethereum.NewFixtureChain(),
		docs:  ipfs.NewMemoryStore("https://gateway.example"),
	}
	wallet := fakeWallet{connected: connected}
	h.svc = service.NewService(h.chain, contracts, wallet, h.docs, guard.NewMemoryGuard(), txservice.NewLedger(), silent{}, service.Options{})

	render, err := web.NewRenderer(wallet, silent{}, "https://explorer.example", "fixture")
	require.NoError(t, err)

	h.router = gin.New()
	h.router.SetHTMLTemplate(render.Templates())
	NewActionHandler(h.svc, render).RegisterRoutes(&h.router.RouterGroup, middleware.HandleErrorWrapper(zerolog.Nop(), render.Error))
	return h
}

func (h *harness) post(path string, form url.Values, accept string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestEscrowWithoutAddressRedirectsToFailedAction(t *testing.T) {
	h := newHarness(t, true)

	w := h.post("/actions/escrow", url.Values{"deed_id": {"42"}}, "")
	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/actions/"))

	page := h.get(location)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "No escrow found for that deed")
	assert.NotContains(t, page.Body.String(), `http-equiv="refresh"`)
	assert.Empty(t, h.chain.Sent())
}

func TestInvalidInputRendersErrorPage(t *testing.T) {
	h := newHarness(t, true)

	w := h.post("/actions/kyc/approve", url.Values{"address": {"0x12"}}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid address")
	assert.Empty(t, h.chain.Sent())
}

func TestNotConnected(t *testing.T) {
	h := newHarness(t, false)

	w := h.post("/actions/unlist", url.Values{"deed_id": {"1"}}, "application/json")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	page := h.get("/mint")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Connect your wallet to mint deeds")
}

func TestJSONSubmissionAndPolling(t *testing.T) {
	h := newHarness(t, true)
	release := h.chain.Hold()

	w := h.post("/actions/list", url.Values{"deed_id": {"3"}, "price_eth": {"1.25"}}, "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)
	var submitted models.Action
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.Equal(t, models.StatePendingConfirmation, submitted.State)

	page := h.get("/actions/" + submitted.ID)
	assert.Contains(t, page.Body.String(), `http-equiv="refresh"`)

	dup := h.post("/actions/unlist", url.Values{"deed_id": {"3"}}, "application/json")
	assert.Equal(t, http.StatusConflict, dup.Code)

	release()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.svc.Wait(ctx, submitted.ID)
	require.NoError(t, err)

	poll := h.get("/api/v1/actions/" + submitted.ID)
	require.Equal(t, http.StatusOK, poll.Code)
	var done models.Action
	require.NoError(t, json.Unmarshal(poll.Body.Bytes(), &done))
	assert.Equal(t, models.StateConfirmed, done.State)
	assert.Contains(t, done.Status, "Deed 3 listed at 1.2500 ETH")

	assert.Equal(t, http.StatusNotFound, h.get("/api/v1/actions/missing").Code)
}

func TestMintPage(t *testing.T) {
	h := newHarness(t, true)

	denied := h.get("/mint")
	assert.Contains(t, denied.Body.String(), "Access denied")

	h.chain.GrantRole(ethereum.GovernmentRole, operator)
	cid, err := h.docs.Publish(context.Background(), []byte(`{"title":"Harbor Loft"}`))
	require.NoError(t, err)

	page := h.get("/mint?cid=" + cid)
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), "Harbor Loft")
	assert.Contains(t, page.Body.String(), "https://gateway.example/ipfs/"+cid)

	missing := h.get("/mint?cid=QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	assert.Contains(t, missing.Body.String(), "Not JSON or fetch failed. View raw file below.")
}

func TestRequestPropertyForm(t *testing.T) {
	h := newHarness(t, true)

	bad := h.post("/actions/requests", url.Values{"title": {"Loft"}, "price": {"1.5"}}, "application/json")
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	w := h.post("/actions/requests", url.Values{
		"title":     {"Harbor Loft"},
		"location":  {"Seattle, WA"},
		"price":     {"450000"},
		"bedrooms":  {"2"},
		"bathrooms": {"1.5"},
		"images":    {"https://img.example/1.jpg, https://img.example/2.jpg"},
	}, "application/json")
	require.Equal(t, http.StatusAccepted, w.Code)

	var a models.Action
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	raw, err := h.docs.Fetch(context.Background(), a.Result["cid"])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":450000`)
	assert.Contains(t, string(raw), `"images":["https://img.example/1.jpg","https://img.example/2.jpg"]`)
}
