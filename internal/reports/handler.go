package reports

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/pkg/response"
)

// Handler serves the admin reporting endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a reports handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Roster handles GET /events/:id/roster.
func (h *Handler) Roster(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	roster, err := h.repo.Roster(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("roster query failed", zap.String("event_id", eventID.String()), zap.Error(err))
		response.Internal(c, "failed to load roster")
		return
	}
	response.OK(c, gin.H{"event_id": eventID, "count": len(roster), "roster": roster})
}

// Events handles GET /reports/events.
func (h *Handler) Events(c *gin.Context) {
	summaries, err := h.repo.EventSummaries(c.Request.Context())
	if err != nil {
		h.logger.Error("event summaries query failed", zap.Error(err))
		response.Internal(c, "failed to load report")
		return
	}
	response.OK(c, gin.H{"count": len(summaries), "events": summaries})
}
