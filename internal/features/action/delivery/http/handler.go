package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/common/middleware"
	"propchain/internal/common/validation"
	"propchain/internal/features/action/models"
	"propchain/internal/features/action/service"
	propmodels "propchain/internal/features/property/models"
	"propchain/internal/web"
)

const recentActions = 20

type ActionHandler struct {
	service *service.Service
	render  *web.Renderer
}

func NewActionHandler(service *service.Service, render *web.Renderer) *ActionHandler {
	return &ActionHandler{service: service, render: render}
}

func (h *ActionHandler) RegisterRoutes(router *gin.RouterGroup, wrap func(gin.HandlerFunc) gin.HandlerFunc) {
	router.GET("/mint", wrap(h.mintPage))

	actions := router.Group("/actions")
	{
		actions.GET("", h.page)
		actions.GET("/:id", wrap(h.detail))

		actions.POST("/kyc/approve", wrap(h.approveKYC))
		actions.POST("/kyc/revoke", wrap(h.revokeKYC))
		actions.POST("/list", wrap(h.listForSale))
		actions.POST("/unlist", wrap(h.unlist))
		actions.POST("/buy", wrap(h.buy))
		actions.POST("/escrow", wrap(h.escrow))
		actions.POST("/mint", wrap(h.mint))
		actions.POST("/requests", wrap(h.requestProperty))
		actions.POST("/requests/verify", wrap(h.verifyProperty))
		actions.POST("/requests/reject", wrap(h.rejectProperty))
		actions.POST("/requests/withdraw", wrap(h.withdrawRequest))
	}

	api := router.Group("/api/v1/actions")
	{
		api.GET("", h.recentJSON)
		api.GET("/:id", wrap(h.detailJSON))
	}
}

func (h *ActionHandler) page(c *gin.Context) {
	h.render.Page(c, http.StatusOK, "actions", "Actions", gin.H{
		"Actions":    h.service.Recent(recentActions),
		"RequestFee": validation.FormatEther(h.service.RequestFee(), 4),
	})
}

func (h *ActionHandler) detail(c *gin.Context) {
	a, ok := h.service.Get(c.Param("id"))
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError("action", c.Param("id")))
		return
	}
	data := gin.H{"Action": a}
	if a.Pending() {
		data["Refresh"] = 2
	}
	h.render.Page(c, http.StatusOK, "action", a.Kind.Title(), data)
}

// @Summary Action status
// @Tags actions
// @Produce json
// @Param id path string true "Action ID"
// @Success 200 {object} models.Action
// @Failure 404 {object} middleware.ErrorResponse
// @Router /api/v1/actions/{id} [get]
func (h *ActionHandler) detailJSON(c *gin.Context) {
	a, ok := h.service.Get(c.Param("id"))
	if !ok {
		_ = c.Error(apperrors.NewNotFoundError("action", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *ActionHandler) recentJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Recent(recentActions))
}

// respond sends the tracked action to its status page, or as JSON when asked.
func (h *ActionHandler) respond(c *gin.Context, a models.Action, err error) {
	if err != nil {
		_ = c.Error(err)
		return
	}
	if middleware.WantsJSON(c) {
		c.JSON(http.StatusAccepted, a)
		return
	}
	c.Redirect(http.StatusSeeOther, "/actions/"+a.ID)
}

func (h *ActionHandler) run(field string, fn func(ctx context.Context, v string) (models.Action, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := fn(c.Request.Context(), c.PostForm(field))
		h.respond(c, a, err)
	}
}

func (h *ActionHandler) approveKYC(c *gin.Context) {
	h.run("address", h.service.ApproveKYC)(c)
}

func (h *ActionHandler) revokeKYC(c *gin.Context) {
	h.run("address", h.service.RevokeKYC)(c)
}

func (h *ActionHandler) unlist(c *gin.Context) {
	h.run("deed_id", h.service.Unlist)(c)
}

func (h *ActionHandler) escrow(c *gin.Context) {
	h.run("deed_id", h.service.ApproveAndExecuteEscrow)(c)
}

func (h *ActionHandler) verifyProperty(c *gin.Context) {
	h.run("request_id", h.service.VerifyProperty)(c)
}

func (h *ActionHandler) rejectProperty(c *gin.Context) {
	h.run("request_id", h.service.RejectProperty)(c)
}

func (h *ActionHandler) withdrawRequest(c *gin.Context) {
	h.run("request_id", h.service.WithdrawRequest)(c)
}

func (h *ActionHandler) listForSale(c *gin.Context) {
	a, err := h.service.ListForSale(c.Request.Context(), c.PostForm("deed_id"), c.PostForm("price_eth"))
	h.respond(c, a, err)
}

func (h *ActionHandler) buy(c *gin.Context) {
	a, err := h.service.Buy(c.Request.Context(), c.PostForm("deed_id"), c.PostForm("price_wei"))
	h.respond(c, a, err)
}

func (h *ActionHandler) mint(c *gin.Context) {
	a, err := h.service.MintDeed(c.Request.Context(), c.PostForm("recipient"), strings.TrimSpace(c.PostForm("cid")))
	h.respond(c, a, err)
}

// mintPage shows access denied instead of the form when the role is missing.
func (h *ActionHandler) mintPage(c *gin.Context) {
	cid := strings.TrimSpace(c.Query("cid"))
	data := gin.H{"CID": cid, "CanMint": false}

	allowed, err := h.service.CanMint(c.Request.Context())
	switch {
	case apperrors.CodeOf(err) == apperrors.ErrCodeNotConnected:
	case err != nil:
		_ = c.Error(err)
		return
	default:
		data["CanMint"] = allowed
		if allowed && cid != "" {
			preview := h.service.PreviewMetadata(c.Request.Context(), cid)
			data["Preview"] = &preview
		}
	}
	h.render.Page(c, http.StatusOK, "mint", "Mint deed", data)
}

type requestForm struct {
	Title       string `form:"title" binding:"required"`
	Description string `form:"description"`
	Location    string `form:"location"`
	Price       string `form:"price" binding:"omitempty,numeric"`
	Area        string `form:"area" binding:"omitempty,numeric"`
	Bedrooms    string `form:"bedrooms" binding:"omitempty,numeric"`
	Bathrooms   string `form:"bathrooms" binding:"omitempty,numeric"`
	YearBuilt   string `form:"year_built" binding:"omitempty,numeric"`
	Images      string `form:"images"`
}

func (f requestForm) metadata() (propmodels.Metadata, error) {
	m := propmodels.Metadata{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Location:    strings.TrimSpace(f.Location),
	}

	ints := []struct {
		name string
		raw  string
		set  func(int64)
	}{
		{"price", f.Price, func(v int64) { m.Price = &v }},
		{"area", f.Area, func(v int64) { m.Area = v }},
		{"bedrooms", f.Bedrooms, func(v int64) { m.Bedrooms = int(v) }},
		{"year built", f.YearBuilt, func(v int64) { m.YearBuilt = int(v) }},
	}
	for _, field := range ints {
		if field.raw == "" {
			continue
		}
		v, err := strconv.ParseInt(field.raw, 10, 64)
		if err != nil {
			return m, apperrors.NewValidationError(field.name, "must be a whole number")
		}
		field.set(v)
	}

	if f.Bathrooms != "" {
		v, err := strconv.ParseFloat(f.Bathrooms, 64)
		if err != nil {
			return m, apperrors.NewValidationError("bathrooms", "must be a number")
		}
		m.Bathrooms = v
	}

	for _, img := range strings.Split(f.Images, ",") {
		if img = strings.TrimSpace(img); img != "" {
			m.Images = append(m.Images, img)
		}
	}
	return m, nil
}

func (h *ActionHandler) requestProperty(c *gin.Context) {
	var form requestForm
	if err := c.ShouldBind(&form); err != nil {
		_ = c.Error(apperrors.NewValidationError("request", err.Error()))
		return
	}
	meta, err := form.metadata()
	if err != nil {
		_ = c.Error(err)
		return
	}
	a, err := h.service.RequestProperty(c.Request.Context(), meta)
	h.respond(c, a, err)
}
