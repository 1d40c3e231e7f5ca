package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propchain/internal/common/middleware"
	notifmodels "propchain/internal/features/notification/models"
	"propchain/internal/features/property/models"
	"propchain/internal/features/property/source"
	"propchain/internal/features/property/store"
	txservice "propchain/internal/features/transaction/service"
	walletmodels "propchain/internal/features/wallet/models"
	"propchain/internal/web"
)

var owner = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")

type fakeWallet struct{ connected bool }

func (w fakeWallet) Address() (common.Address, bool) { return owner, w.connected }

func (w fakeWallet) Session() walletmodels.Session {
	if !w.connected {
		return walletmodels.Disconnected()
	}
	return walletmodels.Session{Address: owner.Hex(), Connected: true, Balance: "1.0000"}
}

type noNotes struct{}

func (noNotes) Recent(int) []notifmodels.Notification { return nil }

func newRouter(t *testing.T, connected bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.New(source.NewFixture())
	require.NoError(t, s.FetchAll(context.Background(), owner))

	wallet := fakeWallet{connected: connected}
	render, err := web.NewRenderer(wallet, noNotes{}, "https://explorer.example", "fixture")
	require.NoError(t, err)

	ledger := txservice.NewLedger()
	log := zerolog.Nop()

	r := gin.New()
	r.SetHTMLTemplate(render.Templates())
	NewPropertyHandler(s, wallet, ledger, render).
		RegisterRoutes(&r.RouterGroup, middleware.HandleErrorWrapper(log, render.Error))
	return r
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListFiltersByMinPrice(t *testing.T) {
	r := newRouter(t, false)

	w := get(r, "/api/v1/properties?min_price=500000")
	require.Equal(t, http.StatusOK, w.Code)

	var items []models.Property
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 4)
	for _, p := range items {
		assert.GreaterOrEqual(t, p.PriceValue(), int64(500000))
	}
}

func TestListRejectsBadFilterAsJSON(t *testing.T) {
	r := newRouter(t, false)

	w := get(r, "/api/v1/properties?min_bedrooms=lots")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListPageShowsResetLink(t *testing.T) {
	r := newRouter(t, false)

	w := get(r, "/properties?q=castle")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No properties found")
	assert.Contains(t, w.Body.String(), `href="/properties">Reset search and filters`)

	w = get(r, "/properties?min_bedrooms=lots&location=Austin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid bedrooms")
	assert.Contains(t, w.Body.String(), "Suburban Family Home")
}

func TestDetail(t *testing.T) {
	r := newRouter(t, false)

	w := get(r, "/properties/prop-3")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Beachfront Condo")

	w = get(r, "/properties/prop-99")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(r, "/api/v1/properties/prop-99")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboard(t *testing.T) {
	w := get(newRouter(t, false), "/dashboard")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Connect your wallet to see your properties")

	w = get(newRouter(t, true), "/dashboard")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Modern Downtown Apartment")
	// 425,000 + 350,000 for the two listings owned by the connected account
	assert.Contains(t, body, "$775,000")
	assert.Contains(t, body, "No transactions yet.")
}

func TestHome(t *testing.T) {
	w := get(newRouter(t, false), "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Featured")
}
