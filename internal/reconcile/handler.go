package reconcile

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/pkg/queue"
	"github.com/kmt-marshals/backend/pkg/response"
)

// RunRequest is the body for POST /admin/reconcile.
type RunRequest struct {
	EventID *uuid.UUID `json:"event_id,omitempty"` // omit for a system-wide sweep
	Async   bool       `json:"async,omitempty"`    // enqueue for the worker instead of running inline
}

// Handler exposes admin reconciliation endpoints.
type Handler struct {
	reconciler *Reconciler
	queue      *queue.Queue
	logger     *zap.Logger
}

// NewHandler creates a reconcile handler. q may be nil when no worker queue
// is configured; async requests then fail with 503.
func NewHandler(reconciler *Reconciler, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reconciler: reconciler, queue: q, logger: logger}
}

// Run handles POST /admin/reconcile.
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if req.Async {
		if h.queue == nil {
			response.ServiceUnavailable(c, "worker queue not configured")
			return
		}
		if err := h.queue.EnqueueReconcile(c.Request.Context(), queue.ReconcilePayload{EventID: req.EventID}); err != nil {
			h.logger.Error("enqueue reconcile failed", zap.Error(err))
			response.Internal(c, "failed to enqueue reconciliation")
			return
		}
		response.OK(c, gin.H{"enqueued": true})
		return
	}

	report, err := h.reconciler.Run(c.Request.Context(), req.EventID)
	if err != nil {
		h.logger.Error("reconciliation failed", zap.Error(err))
		response.Internal(c, "reconciliation failed")
		return
	}
	response.OK(c, report)
}

// Preview handles GET /admin/reconcile/preview. Reports what a sweep would
// change without writing.
func (h *Handler) Preview(c *gin.Context) {
	var eventID *uuid.UUID
	if raw := c.Query("event_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(c, "invalid event_id")
			return
		}
		eventID = &id
	}

	report, err := h.reconciler.Preview().Run(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("reconciliation preview failed", zap.Error(err))
		response.Internal(c, "reconciliation preview failed")
		return
	}
	response.OK(c, report)
}
