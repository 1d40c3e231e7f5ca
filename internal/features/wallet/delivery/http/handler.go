package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"propchain/internal/features/wallet/models"
	"propchain/internal/web"
)

type WalletService interface {
	Connect(ctx context.Context) (models.Session, error)
	Disconnect(ctx context.Context)
	RefreshBalance(ctx context.Context) (models.Session, error)
	Session() models.Session
}

type WalletHandler struct {
	service WalletService
}

func NewWalletHandler(service WalletService) *WalletHandler {
	return &WalletHandler{service: service}
}

func (h *WalletHandler) RegisterRoutes(router *gin.RouterGroup, wrap func(gin.HandlerFunc) gin.HandlerFunc) {
	wallet := router.Group("/wallet")
	{
		wallet.POST("/connect", h.connect)
		wallet.POST("/disconnect", h.disconnect)
	}

	api := router.Group("/api/v1")
	{
		api.GET("/session", h.getSession)
		api.POST("/session/connect", wrap(h.connectJSON))
		api.POST("/session/disconnect", h.disconnectJSON)
		api.POST("/session/balance", wrap(h.refreshBalance))
	}
}

// connect reports failures through a toast, so the form always returns to
// the page it was posted from.
func (h *WalletHandler) connect(c *gin.Context) {
	_, _ = h.service.Connect(c.Request.Context())
	web.RedirectBack(c, "/")
}

func (h *WalletHandler) disconnect(c *gin.Context) {
	h.service.Disconnect(c.Request.Context())
	web.RedirectBack(c, "/")
}

// @Summary Current wallet session
// @Tags wallet
// @Produce json
// @Success 200 {object} models.Session
// @Router /api/v1/session [get]
func (h *WalletHandler) getSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Session())
}

func (h *WalletHandler) connectJSON(c *gin.Context) {
	session, err := h.service.Connect(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *WalletHandler) disconnectJSON(c *gin.Context) {
	h.service.Disconnect(c.Request.Context())
	c.JSON(http.StatusOK, h.service.Session())
}

func (h *WalletHandler) refreshBalance(c *gin.Context) {
	session, err := h.service.RefreshBalance(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, session)
}
