package eventmarshals

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmt-marshals/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	removeTouched int64
	removeErr     error
	removeCalls   int
	removeReason  string
}

func (s *stubStore) Invite(_ context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error) {
	return &models.EventMarshal{EventID: eventID, MarshalID: marshalID, Status: models.EventMarshalStatusInvited}, nil
}

func (s *stubStore) Get(_ context.Context, _, _ uuid.UUID) (*models.EventMarshal, error) {
	return nil, ErrNoLiveInvitation
}

func (s *stubStore) AcceptTx(_ context.Context, _, _ uuid.UUID) error { return nil }
func (s *stubStore) Decline(_ context.Context, _, _ uuid.UUID) error  { return nil }

func (s *stubStore) DirectAddTx(_ context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error) {
	return &models.EventMarshal{EventID: eventID, MarshalID: marshalID, Status: models.EventMarshalStatusApproved}, nil
}

func (s *stubStore) RemoveTx(_ context.Context, _, _ uuid.UUID, reason string) (int64, error) {
	s.removeCalls++
	s.removeReason = reason
	return s.removeTouched, s.removeErr
}

func (s *stubStore) ListByEvent(_ context.Context, _ uuid.UUID, _ string) ([]models.EventMarshal, error) {
	return nil, nil
}

func (s *stubStore) ListForMarshal(_ context.Context, _ uuid.UUID, _ bool) ([]models.EventMarshal, error) {
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

func (s *stubUserStore) GetByEmployeeID(_ context.Context, _ string) (*models.User, error) {
	return s.user, nil
}

type notification struct {
	userID uuid.UUID
	kind   string
	title  string
	body   string
}

type stubNotifier struct {
	sent []notification
}

func (s *stubNotifier) Notify(_ context.Context, userID uuid.UUID, _ *uuid.UUID, kind, title, body string) {
	s.sent = append(s.sent, notification{userID: userID, kind: kind, title: title, body: body})
}

func removeContext(eventID, marshalID uuid.UUID, body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodDelete, "/events/"+eventID.String()+"/marshals/"+marshalID.String(), strings.NewReader(body))
	c.Params = gin.Params{
		{Key: "id", Value: eventID.String()},
		{Key: "marshalId", Value: marshalID.String()},
	}
	return c, w
}

func decodeRemoved(t *testing.T, w *httptest.ResponseRecorder) bool {
	t.Helper()
	var body struct {
		Data struct {
			Removed bool `json:"removed"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data.Removed
}

func TestRemove_CascadesBothLedgers(t *testing.T) {
	event := &models.Event{ID: uuid.New(), Title: "Hill Climb", Status: models.EventStatusActive}
	marshalID := uuid.New()
	store := &stubStore{removeTouched: 2}
	notifier := &stubNotifier{}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{}, notifier, nil)

	c, w := removeContext(event.ID, marshalID, `{"reason":"schedule conflict"}`)
	h.Remove(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeRemoved(t, w))
	assert.Equal(t, 1, store.removeCalls)
	assert.Equal(t, "schedule conflict", store.removeReason, "reason must reach the cancellation")

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, marshalID, notifier.sent[0].userID)
	assert.Equal(t, models.NotificationKindRemoval, notifier.sent[0].kind)
	assert.Equal(t, "Removed from Hill Climb", notifier.sent[0].title)
	assert.Equal(t, "schedule conflict", notifier.sent[0].body)
}

func TestRemove_DefaultsReasonWhenBodyOmitted(t *testing.T) {
	event := &models.Event{ID: uuid.New(), Title: "Rallycross", Status: models.EventStatusActive}
	store := &stubStore{removeTouched: 1}
	notifier := &stubNotifier{}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{}, notifier, nil)

	c, w := removeContext(event.ID, uuid.New(), "")
	h.Remove(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeRemoved(t, w))
	assert.Equal(t, "removed by admin", store.removeReason)
}

func TestRemove_AbsentRowsReportSuccess(t *testing.T) {
	event := &models.Event{ID: uuid.New(), Title: "Sprint", Status: models.EventStatusActive}
	store := &stubStore{removeTouched: 0}
	notifier := &stubNotifier{}
	h := NewHandler(store, &stubEventStore{event: event}, &stubUserStore{}, notifier, nil)

	c, w := removeContext(event.ID, uuid.New(), "")
	h.Remove(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeRemoved(t, w))
	assert.Equal(t, 1, store.removeCalls)
	assert.Empty(t, notifier.sent, "no notification when nothing was removed")
}
