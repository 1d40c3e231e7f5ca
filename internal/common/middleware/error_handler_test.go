package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "propchain/internal/common/errors"
)

type renderCall struct {
	status int
	code   apperrors.ErrorCode
}

func newRouter(t *testing.T) (*gin.Engine, *[]renderCall) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var calls []renderCall
	render := func(c *gin.Context, status int, appErr *apperrors.AppError) {
		calls = append(calls, renderCall{status, appErr.Code})
		c.String(status, "page:"+string(appErr.Code))
	}

	logger := zerolog.Nop()
	wrap := HandleErrorWrapper(logger, render)

	r := gin.New()
	r.Use(RequestID(), Logger(logger), ErrorHandler(logger, render))
	r.NoRoute(NoRoute(logger, render))

	r.GET("/api/v1/missing", wrap(func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFoundError("action", "x"))
	}))
	r.GET("/page/inflight", wrap(func(c *gin.Context) {
		_ = c.Error(apperrors.NewInFlightError("buy:42"))
	}))
	r.GET("/api/v1/plain", wrap(func(c *gin.Context) {
		_ = c.Error(errors.New("db exploded"))
	}))
	r.GET("/api/v1/panic", func(c *gin.Context) {
		panic("boom")
	})
	r.GET("/api/v1/ok", wrap(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}))
	return r, &calls
}

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAppErrorAsJSON(t *testing.T) {
	r, calls := newRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/missing", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	body := decode(t, w)
	assert.False(t, body.Success)
	assert.Equal(t, string(apperrors.ErrCodeNotFound), body.Code)
	assert.Equal(t, "req-1", body.RequestID)
	assert.Empty(t, *calls)
}

func TestAppErrorAsPage(t *testing.T) {
	r, calls := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/page/inflight", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "page:ACTION_IN_FLIGHT", w.Body.String())
	require.Len(t, *calls, 1)
}

func TestAcceptHeaderSelectsJSON(t *testing.T) {
	r, calls := newRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/page/inflight", nil)
	req.Header.Set("Accept", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeInFlight), decode(t, w).Code)
	assert.Empty(t, *calls)
}

func TestPlainErrorIsHidden(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/plain", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(apperrors.ErrCodeInternal), body.Code)
	assert.NotContains(t, body.Message, "db exploded")
	assert.Nil(t, body.Details)
}

func TestPanicRecovered(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(apperrors.ErrCodeInternal), body.Code)
	assert.Nil(t, body.Details)
}

func TestNoRoute(t *testing.T) {
	r, calls := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, *calls, 1)
	assert.Equal(t, apperrors.ErrCodeNotFound, (*calls)[0].code)
}

func TestSuccessPassesThrough(t *testing.T) {
	r, _ := newRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
