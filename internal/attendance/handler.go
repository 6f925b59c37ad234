package attendance

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/internal/capacity"
	"github.com/kmt-marshals/backend/internal/events"
	"github.com/kmt-marshals/backend/internal/models"
	"github.com/kmt-marshals/backend/pkg/response"
)

// CancelRequest is the body for POST /events/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Store is the slice of the attendance repository the handler drives.
type Store interface {
	Create(ctx context.Context, a *models.Attendance) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Attendance, error)
	Operative(ctx context.Context, eventID, userID uuid.UUID) (*models.Attendance, error)
	GetInvitation(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error)
	AcceptInvitationTx(ctx context.Context, eventID, marshalID uuid.UUID) error
	ApproveTx(ctx context.Context, attendanceID, eventID uuid.UUID) error
	Reject(ctx context.Context, attendanceID uuid.UUID) error
	Cancel(ctx context.Context, eventID, userID uuid.UUID, reason string) (int64, error)
	CheckIn(ctx context.Context, eventID, userID uuid.UUID) error
	ListByEvent(ctx context.Context, eventID uuid.UUID, status string) ([]models.Attendance, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Attendance, error)
}

// EventStore loads events for registration checks.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// UserStore loads the registering marshal.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Notifier dispatches fire-and-forget notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, kind, title, body string)
}

// Handler handles the self-registration workflow.
type Handler struct {
	repo       Store
	eventRepo  EventStore
	userRepo   UserStore
	guard      *capacity.Guard
	dispatcher Notifier
	logger     *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(repo Store, eventRepo EventStore, userRepo UserStore, guard *capacity.Guard, dispatcher Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, eventRepo: eventRepo, userRepo: userRepo, guard: guard, dispatcher: dispatcher, logger: logger}
}

// Register handles POST /events/:id/register. A live invitation is merged
// into an acceptance instead of opening a second, competing registration.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID := currentUserID(c)
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
		response.BadRequest(c, "event is not open for registration")
		return
	}

	user, err := h.userRepo.GetByID(ctx, userID)
	if err != nil {
		response.NotFound(c, "user not found")
		return
	}
	if !user.IsActive {
		response.Forbidden(c, "account is deactivated")
		return
	}
	if !eligible(user, event) {
		response.Forbidden(c, "marshal type does not match event requirements")
		return
	}

	// Cross-ledger merge: a live invitation becomes an acceptance,
	// no new attendance row.
	invitation, err := h.repo.GetInvitation(ctx, eventID, userID)
	if err != nil {
		response.Internal(c, "failed to check invitations")
		return
	}
	if invitation != nil {
		switch invitation.Status {
		case models.EventMarshalStatusInvited:
			if err := h.repo.AcceptInvitationTx(ctx, eventID, userID); err != nil {
				h.commitError(c, err, "failed to accept invitation")
				return
			}
			h.dispatcher.Notify(ctx, userID, &eventID, models.NotificationKindApproval,
				"You are confirmed for "+event.Title,
				"Your invitation to marshal "+event.Title+" has been accepted.")
			response.OK(c, gin.H{"merged": true, "status": models.EventMarshalStatusAccepted})
			return
		case models.EventMarshalStatusAccepted, models.EventMarshalStatusApproved:
			response.Conflict(c, "already committed to this event")
			return
		}
		// declined invitations do not block a fresh self-registration
	}

	operative, err := h.repo.Operative(ctx, eventID, userID)
	if err != nil && !errors.Is(err, ErrAttendanceNotFound) {
		response.Internal(c, "failed to check registrations")
		return
	}
	if operative != nil {
		response.Conflict(c, "already registered for this event")
		return
	}

	if err := h.guard.Check(ctx, eventID); err != nil {
		h.commitError(c, err, "failed to check capacity")
		return
	}

	a := &models.Attendance{UserID: userID, EventID: eventID}
	if err := h.repo.Create(ctx, a); err != nil {
		h.logger.Error("create attendance failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to register")
		return
	}
	response.Created(c, a)
}

// Cancel handles POST /events/:id/cancel. Reports success even when there
// was nothing to cancel: the desired state is already achieved.
func (h *Handler) Cancel(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := currentUserID(c)

	touched, err := h.repo.Cancel(c.Request.Context(), eventID, userID, req.Reason)
	if err != nil {
		response.Internal(c, "failed to cancel registration")
		return
	}
	response.OK(c, gin.H{"cancelled": touched > 0})
}

// Approve handles POST /events/:id/attendance/:attendanceId/approve (admin).
// Approval is a commit, so it passes the capacity guard inside the
// transaction.
func (h *Handler) Approve(c *gin.Context) {
	eventID, attendanceID, ok := pathIDs(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	a, err := h.repo.GetByID(ctx, attendanceID)
	if err != nil {
		response.NotFound(c, "attendance not found")
		return
	}
	if a.EventID != eventID {
		response.BadRequest(c, "attendance does not belong to event")
		return
	}

	if err := h.repo.ApproveTx(ctx, attendanceID, eventID); err != nil {
		if errors.Is(err, ErrNotPending) {
			response.Conflict(c, "attendance is not pending")
			return
		}
		h.commitError(c, err, "failed to approve attendance")
		return
	}

	if event, err := h.eventRepo.GetByID(ctx, eventID); err == nil {
		h.dispatcher.Notify(ctx, a.UserID, &eventID, models.NotificationKindApproval,
			"Registration approved: "+event.Title,
			"Your registration for "+event.Title+" has been approved.")
	}
	response.OK(c, gin.H{"status": models.AttendanceStatusApproved})
}

// Reject handles POST /events/:id/attendance/:attendanceId/reject (admin).
func (h *Handler) Reject(c *gin.Context) {
	eventID, attendanceID, ok := pathIDs(c)
	if !ok {
		return
	}
	a, err := h.repo.GetByID(c.Request.Context(), attendanceID)
	if err != nil {
		response.NotFound(c, "attendance not found")
		return
	}
	if a.EventID != eventID {
		response.BadRequest(c, "attendance does not belong to event")
		return
	}
	if err := h.repo.Reject(c.Request.Context(), attendanceID); err != nil {
		if errors.Is(err, ErrNotPending) {
			response.Conflict(c, "attendance is not pending")
			return
		}
		response.Internal(c, "failed to reject attendance")
		return
	}
	response.OK(c, gin.H{"status": models.AttendanceStatusRejected})
}

// CheckIn handles POST /events/:id/checkin for an approved marshal on the day.
func (h *Handler) CheckIn(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userID := currentUserID(c)
	if err := h.repo.CheckIn(c.Request.Context(), eventID, userID); err != nil {
		if errors.Is(err, ErrAttendanceNotFound) {
			response.NotFound(c, "no approved registration to check in")
			return
		}
		response.Internal(c, "failed to check in")
		return
	}
	response.OK(c, gin.H{"checked_in": true})
}

// ListByEvent handles GET /events/:id/attendance (admin).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID, c.Query("status"))
	if err != nil {
		response.Internal(c, "failed to list attendance")
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /users/me/attendance.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.repo.ListByUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, list)
}

func (h *Handler) commitError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, capacity.ErrCapacityExceeded):
		response.Conflict(c, "event marshal capacity exceeded")
	case errors.Is(err, models.ErrDuplicateCommitment):
		response.Conflict(c, "already committed to this event")
	default:
		h.logger.Error(fallback, zap.Error(err))
		response.Internal(c, fallback)
	}
}

// eligible reports whether the marshal's capability tags intersect the
// event's required tags. Events with no tags accept any marshal.
func eligible(user *models.User, event *models.Event) bool {
	required := models.SplitTags(event.MarshalTypes)
	if len(required) == 0 {
		return true
	}
	for tag := range user.MarshalTypeSet() {
		if _, ok := required[tag]; ok {
			return true
		}
	}
	return false
}

func currentUserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get("user_id")
	id, _ := v.(uuid.UUID)
	return id
}

func pathIDs(c *gin.Context) (eventID, attendanceID uuid.UUID, ok bool) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return eventID, attendanceID, false
	}
	attendanceID, err = uuid.Parse(c.Param("attendanceId"))
	if err != nil {
		response.BadRequest(c, "invalid attendance id")
		return eventID, attendanceID, false
	}
	return eventID, attendanceID, true
}
