package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/features/property/filter"
	"propchain/internal/features/property/models"
	txmodels "propchain/internal/features/transaction/models"
	"propchain/internal/web"
)

const dashboardTransactions = 5

type PropertyReader interface {
	All() []models.Property
	GetByID(id string) (models.Property, bool)
	Owned(owner string) []models.Property
	Featured() []models.Property
	Loading() bool
	LastError() error
}

type AccountReader interface {
	Address() (common.Address, bool)
}

type TransactionReader interface {
	Involving(address string) []txmodels.Transaction
}

type PropertyHandler struct {
	store  PropertyReader
	wallet AccountReader
	ledger TransactionReader
	render *web.Renderer
}

func NewPropertyHandler(store PropertyReader, wallet AccountReader, ledger TransactionReader, render *web.Renderer) *PropertyHandler {
	return &PropertyHandler{store: store, wallet: wallet, ledger: ledger, render: render}
}

func (h *PropertyHandler) RegisterRoutes(router *gin.RouterGroup, wrap func(gin.HandlerFunc) gin.HandlerFunc) {
	router.GET("/", h.home)
	router.GET("/properties", h.list)
	router.GET("/properties/:id", wrap(h.detail))
	router.GET("/dashboard", h.dashboard)

	api := router.Group("/api/v1/properties")
	{
		api.GET("", wrap(h.listJSON))
		api.GET("/:id", wrap(h.detailJSON))
	}
}

func (h *PropertyHandler) loadError() string {
	if err := h.store.LastError(); err != nil {
		return apperrors.UserMessage(err)
	}
	return ""
}

func (h *PropertyHandler) home(c *gin.Context) {
	h.render.Page(c, http.StatusOK, "home", "Home", gin.H{
		"Featured":  h.store.Featured(),
		"Loading":   h.store.Loading(),
		"LoadError": h.loadError(),
	})
}

// list tolerates bad filter values: the valid ones still apply and the
// first problem is shown above the results.
func (h *PropertyHandler) list(c *gin.Context) {
	query, err := filter.ParseQuery(c.Request.URL.Query())
	var queryError string
	if err != nil {
		queryError = apperrors.UserMessage(err)
	}

	all := h.store.All()
	h.render.Page(c, http.StatusOK, "properties", "Properties", gin.H{
		"Query":      query,
		"QueryError": queryError,
		"Items":      filter.Apply(all, query.Search, query.Filter),
		"Total":      len(all),
		"Statuses":   models.Statuses(),
		"Loading":    h.store.Loading(),
	})
}

func (h *PropertyHandler) detail(c *gin.Context) {
	p, ok := h.store.GetByID(c.Param("id"))
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError("property", c.Param("id")))
		return
	}
	h.render.Page(c, http.StatusOK, "property", p.DisplayTitle(), gin.H{"Property": p})
}

func (h *PropertyHandler) dashboard(c *gin.Context) {
	data := gin.H{}
	if addr, ok := h.wallet.Address(); ok {
		owned := h.store.Owned(addr.Hex())
		var value int64
		for _, p := range owned {
			value += p.PriceValue()
		}
		txs := h.ledger.Involving(addr.Hex())
		if len(txs) > dashboardTransactions {
			txs = txs[:dashboardTransactions]
		}
		data["Owned"] = owned
		data["PortfolioValue"] = value
		data["Transactions"] = txs
	}
	h.render.Page(c, http.StatusOK, "dashboard", "Dashboard", data)
}

// @Summary List properties
// @Tags properties
// @Produce json
// @Param q query string false "Search text"
// @Param min_price query int false "Minimum price"
// @Param max_price query int false "Maximum price"
// @Param min_bedrooms query int false "Minimum bedrooms"
// @Param location query string false "Location substring"
// @Param status query string false "Verification status"
// @Success 200 {array} models.Property
// @Failure 400 {object} middleware.ErrorResponse
// @Router /api/v1/properties [get]
func (h *PropertyHandler) listJSON(c *gin.Context) {
	query, err := filter.ParseQuery(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, filter.Apply(h.store.All(), query.Search, query.Filter))
}

func (h *PropertyHandler) detailJSON(c *gin.Context) {
	p, ok := h.store.GetByID(c.Param("id"))
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError("property", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, p)
}
