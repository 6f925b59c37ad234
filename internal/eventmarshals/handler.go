package eventmarshals

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/internal/auth"
	"github.com/kmt-marshals/backend/internal/capacity"
	"github.com/kmt-marshals/backend/internal/events"
	"github.com/kmt-marshals/backend/internal/models"
	"github.com/kmt-marshals/backend/pkg/response"
)

// InviteRequest is the body for POST /events/:id/invite. Exactly one of
// MarshalID or EmployeeID identifies the marshal.
type InviteRequest struct {
	MarshalID  *uuid.UUID `json:"marshal_id"`
	EmployeeID string     `json:"employee_id"`
}

// RespondRequest is the body for POST /events/:id/invitation/respond.
type RespondRequest struct {
	Action string `json:"action" binding:"required,oneof=accept decline"`
}

// RemoveRequest is the optional body for DELETE /events/:id/marshals/:marshalId.
type RemoveRequest struct {
	Reason string `json:"reason"`
}

// Store is the slice of the event marshals repository the handler drives.
type Store interface {
	Invite(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error)
	Get(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error)
	AcceptTx(ctx context.Context, eventID, marshalID uuid.UUID) error
	Decline(ctx context.Context, eventID, marshalID uuid.UUID) error
	DirectAddTx(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error)
	RemoveTx(ctx context.Context, eventID, marshalID uuid.UUID, reason string) (int64, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID, status string) ([]models.EventMarshal, error)
	ListForMarshal(ctx context.Context, marshalID uuid.UUID, pendingOnly bool) ([]models.EventMarshal, error)
}

// EventStore loads events for invitation checks.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// UserStore resolves the target marshal.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmployeeID(ctx context.Context, employeeID string) (*models.User, error)
}

// Notifier dispatches fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, kind, title, body string)
}

// Handler handles the admin invitation workflow.
type Handler struct {
	repo       Store
	eventRepo  EventStore
	userRepo   UserStore
	dispatcher Notifier
	logger     *zap.Logger
}

// NewHandler creates an event marshals handler.
func NewHandler(repo Store, eventRepo EventStore, userRepo UserStore, dispatcher Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, eventRepo: eventRepo, userRepo: userRepo, dispatcher: dispatcher, logger: logger}
}

// Invite handles POST /events/:id/invite (admin). Inviting does not count
// against capacity until the marshal accepts.
func (h *Handler) Invite(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	event, err := h.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	if event.Status != models.EventStatusActive || event.IsArchived {
		response.BadRequest(c, "event is not accepting marshals")
		return
	}

	user, err := h.resolveMarshal(c, req)
	if err != nil {
		return // response already written
	}

	em, err := h.repo.Invite(ctx, eventID, user.ID)
	if err != nil {
		if errors.Is(err, models.ErrDuplicateCommitment) {
			response.Conflict(c, "marshal already invited to this event")
			return
		}
		h.logger.Error("invite failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to invite marshal")
		return
	}

	h.dispatcher.Notify(ctx, user.ID, &eventID, models.NotificationKindInvitation,
		"Invitation: "+event.Title,
		"You have been invited to marshal "+event.Title+" at "+event.Location+".")
	response.Created(c, em)
}

// Respond handles POST /events/:id/invitation/respond. Accepting is a
// commit and passes the capacity guard inside the transaction.
func (h *Handler) Respond(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	marshalID := currentUserID(c)
	ctx := c.Request.Context()

	switch req.Action {
	case "accept":
		if err := h.repo.AcceptTx(ctx, eventID, marshalID); err != nil {
			switch {
			case errors.Is(err, capacity.ErrCapacityExceeded):
				response.Conflict(c, "event marshal capacity exceeded")
			case errors.Is(err, ErrNoLiveInvitation):
				response.NotFound(c, "no pending invitation for this event")
			default:
				h.logger.Error("accept invitation failed", zap.Error(err))
				response.Internal(c, "failed to accept invitation")
			}
			return
		}
		response.OK(c, gin.H{"status": models.EventMarshalStatusAccepted})
	case "decline":
		if err := h.repo.Decline(ctx, eventID, marshalID); err != nil {
			if errors.Is(err, ErrNoLiveInvitation) {
				response.NotFound(c, "no pending invitation for this event")
				return
			}
			response.Internal(c, "failed to decline invitation")
			return
		}
		response.OK(c, gin.H{"status": models.EventMarshalStatusDeclined})
	}
}

// DirectAdd handles POST /events/:id/marshals (admin): commit a marshal
// without the invitation round-trip.
func (h *Handler) DirectAdd(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()

	event, err := h.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, events.ErrEventNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}

	user, err := h.resolveMarshal(c, req)
	if err != nil {
		return
	}

	em, err := h.repo.DirectAddTx(ctx, eventID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, capacity.ErrCapacityExceeded):
			response.Conflict(c, "event marshal capacity exceeded")
		case errors.Is(err, models.ErrDuplicateCommitment):
			response.Conflict(c, "marshal already committed to this event")
		default:
			h.logger.Error("direct add failed", zap.Error(err), zap.String("event_id", eventID.String()))
			response.Internal(c, "failed to add marshal")
		}
		return
	}

	h.dispatcher.Notify(ctx, user.ID, &eventID, models.NotificationKindApproval,
		"Assigned to "+event.Title,
		"You have been added as a marshal for "+event.Title+".")
	response.Created(c, em)
}

// Remove handles DELETE /events/:id/marshals/:marshalId (admin). The
// removal is idempotent: absent rows report success.
func (h *Handler) Remove(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	marshalID, err := uuid.Parse(c.Param("marshalId"))
	if err != nil {
		response.BadRequest(c, "invalid marshal id")
		return
	}
	var req RemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "removed by admin"
	}
	ctx := c.Request.Context()

	touched, err := h.repo.RemoveTx(ctx, eventID, marshalID, reason)
	if err != nil {
		h.logger.Error("remove marshal failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to remove marshal")
		return
	}

	if touched > 0 {
		title := "Removed from event"
		if event, err := h.eventRepo.GetByID(ctx, eventID); err == nil {
			title = "Removed from " + event.Title
		}
		h.dispatcher.Notify(ctx, marshalID, &eventID, models.NotificationKindRemoval, title, reason)
	}
	response.OK(c, gin.H{"removed": touched > 0})
}

// ListByEvent handles GET /events/:id/marshals (admin).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID, c.Query("status"))
	if err != nil {
		response.Internal(c, "failed to list event marshals")
		return
	}
	response.OK(c, list)
}

// MyInvitations handles GET /users/me/invitations.
func (h *Handler) MyInvitations(c *gin.Context) {
	pendingOnly := c.Query("pending") == "true"
	list, err := h.repo.ListForMarshal(c.Request.Context(), currentUserID(c), pendingOnly)
	if err != nil {
		response.Internal(c, "failed to list invitations")
		return
	}
	response.OK(c, list)
}

// resolveMarshal loads the target marshal from the request body and writes
// the error response itself when resolution fails.
func (h *Handler) resolveMarshal(c *gin.Context, req InviteRequest) (*models.User, error) {
	ctx := c.Request.Context()
	var user *models.User
	var err error
	switch {
	case req.MarshalID != nil:
		user, err = h.userRepo.GetByID(ctx, *req.MarshalID)
	case req.EmployeeID != "":
		user, err = h.userRepo.GetByEmployeeID(ctx, req.EmployeeID)
	default:
		response.BadRequest(c, "marshal_id or employee_id required")
		return nil, errors.New("missing marshal identifier")
	}
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			response.NotFound(c, "marshal not found")
			return nil, err
		}
		response.Internal(c, "failed to load marshal")
		return nil, err
	}
	if !user.IsActive {
		response.BadRequest(c, "marshal account is deactivated")
		return nil, errors.New("marshal inactive")
	}
	return user, nil
}

func currentUserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get("user_id")
	id, _ := v.(uuid.UUID)
	return id
}
