package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"propchain/internal/features/notification/service"
	"propchain/internal/web"
)

type NotificationHandler struct {
	service *service.Service
}

func NewNotificationHandler(service *service.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/notifications/:id/dismiss", h.dismiss)
	router.GET("/api/v1/notifications", h.list)
}

func (h *NotificationHandler) dismiss(c *gin.Context) {
	h.service.Dismiss(c.Param("id"))
	web.RedirectBack(c, "/")
}

func (h *NotificationHandler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Recent(0))
}
