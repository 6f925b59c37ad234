package events

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/internal/capacity"
	"github.com/kmt-marshals/backend/internal/models"
	"github.com/kmt-marshals/backend/pkg/response"
)

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title        string     `json:"title" binding:"required"`
	Description  string     `json:"description"`
	Location     string     `json:"location" binding:"required"`
	StartsAt     time.Time  `json:"starts_at" binding:"required"`
	EndsAt       *time.Time `json:"ends_at"`
	MarshalTypes string     `json:"marshal_types"`
	MaxMarshals  int        `json:"max_marshals" binding:"required,min=1"`
}

// UpdateRequest is the body for PATCH /events/:id.
type UpdateRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Location     *string    `json:"location"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	MarshalTypes *string    `json:"marshal_types"`
	MaxMarshals  *int       `json:"max_marshals"`
	Status       *string    `json:"status"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo   *Repository
	calc   *capacity.Calculator
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, calc *capacity.Calculator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, calc: calc, logger: logger}
}

// Create handles POST /events (admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	createdBy, _ := c.Get("user_id")
	creatorID, _ := createdBy.(uuid.UUID)

	e := &models.Event{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		MarshalTypes: req.MarshalTypes,
		MaxMarshals:  req.MaxMarshals,
		Status:       models.EventStatusActive,
		CreatedBy:    creatorID,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{
		Status:          c.Query("status"),
		IncludeArchived: c.Query("archived") == "true",
		UpcomingOnly:    c.Query("upcoming") == "true",
	}
	list, err := h.repo.List(c.Request.Context(), f)
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// MarshalCount handles GET /events/:id/marshal-count, the capacity query
// surface other subsystems call. An unknown event reports zero capacity.
func (h *Handler) MarshalCount(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	count, err := h.calc.Count(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("marshal count failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Internal(c, "failed to compute marshal count")
		return
	}
	response.OK(c, count)
}

// Update handles PATCH /events/:id (admin).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Status != nil {
		switch *req.Status {
		case models.EventStatusActive, models.EventStatusCancelled, models.EventStatusCompleted:
		default:
			response.BadRequest(c, "invalid status")
			return
		}
	}
	if req.MaxMarshals != nil && *req.MaxMarshals < 1 {
		response.BadRequest(c, "max_marshals must be at least 1")
		return
	}

	p := UpdateParams{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		MarshalTypes: req.MarshalTypes,
		MaxMarshals:  req.MaxMarshals,
		Status:       req.Status,
	}
	if err := h.repo.Update(c.Request.Context(), id, p); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to update event")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// Archive handles DELETE /events/:id (admin). Events are archived, never
// hard-deleted, so ledger history stays intact.
func (h *Handler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if err := h.repo.Archive(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to archive event")
		return
	}
	response.NoContent(c)
}
