package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/common/middleware"
	"propchain/internal/features/wallet/models"
)

type stubWallet struct {
	session    models.Session
	connectErr error
	connects   int
}

func (s *stubWallet) Connect(ctx context.Context) (models.Session, error) {
	s.connects++
	if s.connectErr != nil {
		return models.Disconnected(), s.connectErr
	}
	s.session = models.Session{Address: "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1", Connected: true, Balance: "12.5000"}
	return s.session, nil
}

func (s *stubWallet) Disconnect(ctx context.Context) { s.session = models.Disconnected() }

func (s *stubWallet) RefreshBalance(ctx context.Context) (models.Session, error) {
	if !s.session.Connected {
		return s.session, apperrors.NewNotConnectedError()
	}
	return s.session, nil
}

func (s *stubWallet) Session() models.Session { return s.session }

func setupRouter(w *stubWallet) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	render := func(c *gin.Context, status int, appErr *apperrors.AppError) {
		c.String(status, appErr.Message)
	}
	NewWalletHandler(w).RegisterRoutes(&router.RouterGroup, middleware.HandleErrorWrapper(zerolog.Nop(), render))
	return router
}

func do(router *gin.Engine, method, path, referer string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestConnectFormRedirectsBack(t *testing.T) {
	wallet := &stubWallet{session: models.Disconnected()}
	router := setupRouter(wallet)

	w := do(router, http.MethodPost, "/wallet/connect", "http://example.com/dashboard")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	assert.True(t, wallet.session.Connected)

	// Failures surface as toasts, the form still returns.
	wallet.connectErr = apperrors.New(apperrors.ErrCodeUserRejected, "User rejected the request.")
	w = do(router, http.MethodPost, "/wallet/connect", "")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestSessionAPI(t *testing.T) {
	wallet := &stubWallet{session: models.Disconnected()}
	router := setupRouter(wallet)

	w := do(router, http.MethodPost, "/api/v1/session/balance", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/session/connect", "")
	require.Equal(t, http.StatusOK, w.Code)
	var session models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.True(t, session.Connected)
	assert.Equal(t, "12.5000", session.Balance)

	w = do(router, http.MethodPost, "/api/v1/session/disconnect", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	assert.False(t, session.Connected)
	assert.Equal(t, "0", session.Balance)
}

func TestConnectAPIReportsProviderError(t *testing.T) {
	wallet := &stubWallet{
		session:    models.Disconnected(),
		connectErr: apperrors.New(apperrors.ErrCodeUserRejected, "User rejected the request."),
	}
	router := setupRouter(wallet)

	w := do(router, http.MethodPost, "/api/v1/session/connect", "")
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
	assert.Contains(t, w.Body.String(), "User rejected the request.")
}
