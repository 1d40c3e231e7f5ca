package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"propchain/internal/features/transaction/models"
	"propchain/internal/web"
)

type TransactionLister interface {
	Recent(n int) []models.Transaction
}

type TransactionHandler struct {
	ledger TransactionLister
	render *web.Renderer
}

func NewTransactionHandler(ledger TransactionLister, render *web.Renderer) *TransactionHandler {
	return &TransactionHandler{ledger: ledger, render: render}
}

func (h *TransactionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/transactions", h.page)
	router.GET("/api/v1/transactions", h.list)
}

func (h *TransactionHandler) page(c *gin.Context) {
	h.render.Page(c, http.StatusOK, "transactions", "Transactions", gin.H{
		"Transactions": h.ledger.Recent(0),
	})
}

func (h *TransactionHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Recent(0))
}
