package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propchain/internal/features/notification/models"
	"propchain/internal/features/notification/service"
)

func TestDismissThenList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	notes := service.NewService(0)
	first := notes.Push(models.LevelSuccess, "Wallet connected", "")
	notes.Error("Transaction failed", "execution reverted")

	router := gin.New()
	NewNotificationHandler(notes).RegisterRoutes(&router.RouterGroup)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notifications/"+first.ID+"/dismiss", nil)
	req.Header.Set("Referer", "/properties?q=loft")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/properties?q=loft", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list []models.Notification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Transaction failed", list[0].Title)
	assert.Equal(t, models.LevelError, list[0].Level)
}
