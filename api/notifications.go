package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/service/notification"
	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	service notification.NotificationUseCase
}

type notificationListResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func NewNotificationHandler(service notification.NotificationUseCase) *NotificationHandler {
	return &NotificationHandler{service: service}
}

func (h *NotificationHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.POST("/:id/read", h.markRead)
}

func (h *NotificationHandler) list(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	unreadOnly := false
	if raw := c.Query("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, errors.New("unread must be a boolean"))
			return
		}
		unreadOnly = v
	}

	ctx := c.Request.Context()
	list, err := h.service.ListFor(ctx, caller, unreadOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := h.service.CountUnread(ctx, caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, notificationListResponse{Notifications: list, Unread: unread})
}

func (h *NotificationHandler) markRead(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	n, err := h.service.MarkRead(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
