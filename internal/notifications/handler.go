package notifications

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/pkg/queue"
	"github.com/kmt-marshals/backend/pkg/response"
)

// Handler handles notification HTTP endpoints.
type Handler struct {
	repo   *Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(repo *Repository, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, queue: q, logger: logger}
}

// ListMine handles GET /users/me/notifications.
func (h *Handler) ListMine(c *gin.Context) {
	v, _ := c.Get("user_id")
	userID, _ := v.(uuid.UUID)
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.repo.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Internal(c, "failed to list notifications")
		return
	}
	response.OK(c, list)
}

// Resend handles POST /admin/notifications/:id/resend for a failed delivery.
func (h *Handler) Resend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	n, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			response.NotFound(c, "notification not found")
			return
		}
		response.Internal(c, "failed to load notification")
		return
	}
	if err := h.repo.ResetPending(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			response.BadRequest(c, "only failed notifications can be resent")
			return
		}
		response.Internal(c, "failed to reset notification")
		return
	}
	if h.queue == nil {
		response.ServiceUnavailable(c, "worker queue not configured")
		return
	}
	payload := queue.NotificationPayload{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Channel:        n.Channel,
		Kind:           n.Kind,
		Title:          n.Title,
		Body:           n.Body,
	}
	if err := h.queue.EnqueueNotification(c.Request.Context(), payload); err != nil {
		h.logger.Error("resend enqueue failed", zap.Error(err), zap.String("notification_id", id.String()))
		response.Internal(c, "failed to enqueue notification")
		return
	}
	response.OK(c, gin.H{"enqueued": true})
}
