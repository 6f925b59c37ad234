package attendance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmt-marshals/backend/internal/capacity"
	"github.com/kmt-marshals/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	invitation    *models.EventMarshal
	operative     *models.Attendance
	acceptErr     error
	acceptCalls   int
	createCalls   int
	cancelTouched int64
}

func (s *stubStore) Create(_ context.Context, a *models.Attendance) error {
	s.createCalls++
	a.ID = uuid.New()
	a.Status = models.AttendanceStatusPending
	a.RegisteredAt = time.Now()
	return nil
}

func (s *stubStore) GetByID(_ context.Context, _ uuid.UUID) (*models.Attendance, error) {
	return nil, ErrAttendanceNotFound
}

func (s *stubStore) Operative(_ context.Context, _, _ uuid.UUID) (*models.Attendance, error) {
	if s.operative == nil {
		return nil, ErrAttendanceNotFound
	}
	return s.operative, nil
}

func (s *stubStore) GetInvitation(_ context.Context, _, _ uuid.UUID) (*models.EventMarshal, error) {
	return s.invitation, nil
}

func (s *stubStore) AcceptInvitationTx(_ context.Context, _, _ uuid.UUID) error {
	s.acceptCalls++
	return s.acceptErr
}

func (s *stubStore) ApproveTx(_ context.Context, _, _ uuid.UUID) error { return nil }
func (s *stubStore) Reject(_ context.Context, _ uuid.UUID) error       { return nil }

func (s *stubStore) Cancel(_ context.Context, _, _ uuid.UUID, _ string) (int64, error) {
	return s.cancelTouched, nil
}

func (s *stubStore) CheckIn(_ context.Context, _, _ uuid.UUID) error { return nil }

func (s *stubStore) ListByEvent(_ context.Context, _ uuid.UUID, _ string) ([]models.Attendance, error) {
	return nil, nil
}

func (s *stubStore) ListByUser(_ context.Context, _ uuid.UUID) ([]models.Attendance, error) {
	return nil, nil
}

type stubEventStore struct {
	event *models.Event
}

func (s *stubEventStore) GetByID(_ context.Context, _ uuid.UUID) (*models.Event, error) {
	return s.event, nil
}

type stubUserStore struct {
	user *models.User
}

func (s *stubUserStore) GetByID(_ context.Context, _ uuid.UUID) (*models.User, error) {
	return s.user, nil
}

type stubNotifier struct {
	kinds []string
}

func (s *stubNotifier) Notify(_ context.Context, _ uuid.UUID, _ *uuid.UUID, kind, _, _ string) {
	s.kinds = append(s.kinds, kind)
}

type capStub struct {
	max       int
	found     bool
	attendees []string
}

func (s *capStub) EventMaxMarshals(_ context.Context, _ uuid.UUID) (int, bool, error) {
	return s.max, s.found, nil
}

func (s *capStub) ApprovedAttendanceEmployeeIDs(_ context.Context, _ uuid.UUID) ([]string, error) {
	return s.attendees, nil
}

func (s *capStub) CommittedInvitationEmployeeIDs(_ context.Context, _ uuid.UUID) ([]string, error) {
	return nil, nil
}

func testGuard(max int, attendees ...string) *capacity.Guard {
	return capacity.NewGuard(capacity.NewCalculator(&capStub{max: max, found: true, attendees: attendees}, nil))
}

func registerContext(eventID, userID uuid.UUID) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/events/"+eventID.String()+"/register", nil)
	c.Params = gin.Params{{Key: "id", Value: eventID.String()}}
	c.Set("user_id", userID)
	return c, w
}

func activeEvent() *models.Event {
	return &models.Event{ID: uuid.New(), Title: "Round 3", Location: "Paddock", Status: models.EventStatusActive, MaxMarshals: 10}
}

func activeMarshal() *models.User {
	return &models.User{ID: uuid.New(), EmployeeID: "EMP-001", Role: models.RoleMarshal, IsActive: true}
}

func TestRegister_MergesLiveInvitation(t *testing.T) {
	event := activeEvent()
	user := activeMarshal()
	store := &stubStore{
		invitation: &models.EventMarshal{EventID: event.ID, MarshalID: user.ID, Status: models.EventMarshalStatusInvited},
	}
	notifier := &stubNotifier{}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{user: user}, testGuard(10), notifier, nil)

	c, w := registerContext(event.ID, user.ID)
	h.Register(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.acceptCalls, "invitation should be accepted in place")
	assert.Zero(t, store.createCalls, "merging must not open a second registration")
	assert.Equal(t, []string{models.NotificationKindApproval}, notifier.kinds)

	var body struct {
		Data struct {
			Merged bool   `json:"merged"`
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.Merged)
	assert.Equal(t, models.EventMarshalStatusAccepted, body.Data.Status)
}

func TestRegister_CommittedInvitationConflicts(t *testing.T) {
	event := activeEvent()
	user := activeMarshal()
	store := &stubStore{
		invitation: &models.EventMarshal{EventID: event.ID, MarshalID: user.ID, Status: models.EventMarshalStatusAccepted},
	}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{user: user}, testGuard(10), &stubNotifier{}, nil)

	c, w := registerContext(event.ID, user.ID)
	h.Register(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, store.acceptCalls)
	assert.Zero(t, store.createCalls)
}

func TestRegister_DeclinedInvitationDoesNotBlock(t *testing.T) {
	event := activeEvent()
	user := activeMarshal()
	store := &stubStore{
		invitation: &models.EventMarshal{EventID: event.ID, MarshalID: user.ID, Status: models.EventMarshalStatusDeclined},
	}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{user: user}, testGuard(10), &stubNotifier{}, nil)

	c, w := registerContext(event.ID, user.ID)
	h.Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Zero(t, store.acceptCalls)
	assert.Equal(t, 1, store.createCalls)
}

func TestRegister_RejectedAtCapacity(t *testing.T) {
	event := activeEvent()
	event.MaxMarshals = 1
	user := activeMarshal()
	store := &stubStore{}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{user: user}, testGuard(1, "EMP-002"), &stubNotifier{}, nil)

	c, w := registerContext(event.ID, user.ID)
	h.Register(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, store.createCalls)
}

func TestCancel_IdempotentWhenNothingToCancel(t *testing.T) {
	event := activeEvent()
	user := activeMarshal()
	store := &stubStore{cancelTouched: 0}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{user: user}, testGuard(10), &stubNotifier{}, nil)

	c, w := registerContext(event.ID, user.ID)
	h.Cancel(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Cancelled bool `json:"cancelled"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.Cancelled)
}
