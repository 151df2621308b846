package notification

import (
	"net/http"
	"strconv"

	"salesops_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the dashboard notification feed.
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// HandleList returns one page of the feed, newest first.
// GET /api/v1/notifications
func (h *Handler) HandleList(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	items, total, err := h.service.List(c.Request.Context(), page, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{
		"items": items,
		"total": total,
		"page":  page,
	})
}

// HandleCountUnread returns the unread badge count.
// GET /api/v1/notifications/unread
func (h *Handler) HandleCountUnread(c *gin.Context) {
	count, err := h.service.CountUnread(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"count": count})
}

// HandleMarkRead marks one feed entry read.
// POST /api/v1/notifications/:id/read
func (h *Handler) HandleMarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "ok"})
}

// HandleMarkAllRead marks the whole feed read.
// POST /api/v1/notifications/read-all
func (h *Handler) HandleMarkAllRead(c *gin.Context) {
	marked, err := h.service.MarkAllRead(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"marked": marked})
}
