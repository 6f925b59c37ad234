package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmt-marshals/backend/internal/models"
)

// memStore is an in-memory Store for sweep tests.
type memStore struct {
	attendances map[uuid.UUID]models.Attendance
	marshals    map[uuid.UUID]models.EventMarshal
	users       map[uuid.UUID]bool
	purged      int64
}

func newMemStore() *memStore {
	return &memStore{
		attendances: make(map[uuid.UUID]models.Attendance),
		marshals:    make(map[uuid.UUID]models.EventMarshal),
		users:       make(map[uuid.UUID]bool),
	}
}

func (m *memStore) addUser() uuid.UUID {
	id := uuid.New()
	m.users[id] = true
	return id
}

func (m *memStore) addAttendance(eventID, userID uuid.UUID, status string, registeredAt time.Time) uuid.UUID {
	a := models.Attendance{ID: uuid.New(), EventID: eventID, UserID: userID, Status: status, RegisteredAt: registeredAt}
	m.attendances[a.ID] = a
	return a.ID
}

func (m *memStore) addMarshal(eventID, marshalID uuid.UUID, status string, invitedAt time.Time, respondedAt *time.Time) uuid.UUID {
	em := models.EventMarshal{ID: uuid.New(), EventID: eventID, MarshalID: marshalID, Status: status, InvitedAt: invitedAt, RespondedAt: respondedAt}
	m.marshals[em.ID] = em
	return em.ID
}

func (m *memStore) Attendances(_ context.Context, eventID *uuid.UUID) ([]models.Attendance, error) {
	var out []models.Attendance
	for _, a := range m.attendances {
		if eventID == nil || a.EventID == *eventID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) EventMarshals(_ context.Context, eventID *uuid.UUID) ([]models.EventMarshal, error) {
	var out []models.EventMarshal
	for _, em := range m.marshals {
		if eventID == nil || em.EventID == *eventID {
			out = append(out, em)
		}
	}
	return out, nil
}

func (m *memStore) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	return m.users[userID], nil
}

func (m *memStore) CreateEventMarshal(_ context.Context, em *models.EventMarshal) error {
	for _, existing := range m.marshals {
		if existing.EventID == em.EventID && existing.MarshalID == em.MarshalID {
			return nil // mirrors ON CONFLICT DO NOTHING
		}
	}
	em.ID = uuid.New()
	m.marshals[em.ID] = *em
	return nil
}

func (m *memStore) DeleteAttendance(_ context.Context, id uuid.UUID) error {
	delete(m.attendances, id)
	return nil
}

func (m *memStore) DeleteEventMarshal(_ context.Context, id uuid.UUID) error {
	delete(m.marshals, id)
	return nil
}

func (m *memStore) PurgeGarbage(_ context.Context, _ *uuid.UUID) (int64, error) {
	n := m.purged
	m.purged = 0
	return n, nil
}

func TestOrphanSweep_RemovesApprovedAttendanceOfMissingUser(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	ghost := uuid.New() // never added to users
	orphanID := store.addAttendance(eventID, ghost, models.AttendanceStatusApproved, time.Now())
	keeper := store.addUser()
	keptID := store.addAttendance(eventID, keeper, models.AttendanceStatusApproved, time.Now())

	rec := NewReconciler(store, nil)
	report, err := rec.OrphanSweep(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansRemoved)
	assert.Zero(t, report.Failed)
	assert.NotContains(t, store.attendances, orphanID)
	assert.Contains(t, store.attendances, keptID)
}

func TestOrphanSweep_IgnoresNonApprovedRows(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	ghost := uuid.New()
	pendingID := store.addAttendance(eventID, ghost, models.AttendanceStatusPending, time.Now())

	rec := NewReconciler(store, nil)
	report, err := rec.OrphanSweep(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Zero(t, report.OrphansRemoved)
	assert.Contains(t, store.attendances, pendingID)
}

func TestMirrorRepair_CreatesMissingMarshalRow(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	registeredAt := time.Now().Add(-time.Hour)
	store.addAttendance(eventID, userID, models.AttendanceStatusApproved, registeredAt)

	rec := NewReconciler(store, nil)
	report, err := rec.MirrorRepair(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MirrorsCreated)

	var created *models.EventMarshal
	for _, em := range store.marshals {
		em := em
		if em.MarshalID == userID {
			created = &em
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, models.EventMarshalStatusAccepted, created.Status)
	assert.Equal(t, registeredAt, created.InvitedAt)
	require.NotNil(t, created.RespondedAt)
	assert.Equal(t, registeredAt, *created.RespondedAt)
}

func TestMirrorRepair_Idempotent(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	store.addAttendance(eventID, userID, models.AttendanceStatusApproved, time.Now())

	rec := NewReconciler(store, nil)
	report, err := rec.MirrorRepair(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MirrorsCreated)

	report, err = rec.MirrorRepair(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Zero(t, report.MirrorsCreated)
	assert.Len(t, store.marshals, 1)
}

func TestMirrorRepair_SkipsOrphans(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	ghost := uuid.New()
	store.addAttendance(eventID, ghost, models.AttendanceStatusApproved, time.Now())

	rec := NewReconciler(store, nil)
	report, err := rec.MirrorRepair(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Zero(t, report.MirrorsCreated)
	assert.Empty(t, store.marshals)
}

func TestResolveDuplicates_RejectionWinsOverAcceptedInvitation(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	now := time.Now()
	attID := store.addAttendance(eventID, userID, models.AttendanceStatusRejected, now)
	emID := store.addMarshal(eventID, userID, models.EventMarshalStatusAccepted, now.Add(time.Minute), nil)

	rec := NewReconciler(store, nil)
	report, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatesResolved)
	assert.NotContains(t, store.marshals, emID)
	assert.Contains(t, store.attendances, attID)
}

func TestResolveDuplicates_DeclineRemovesStaleAttendance(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	now := time.Now()
	attID := store.addAttendance(eventID, userID, models.AttendanceStatusApproved, now)
	emID := store.addMarshal(eventID, userID, models.EventMarshalStatusDeclined, now, nil)

	rec := NewReconciler(store, nil)
	report, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatesResolved)
	assert.NotContains(t, store.attendances, attID)
	assert.Contains(t, store.marshals, emID)
}

func TestResolveDuplicates_NewerRecordWins(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	old := time.Now().Add(-2 * time.Hour)
	newer := time.Now()

	// Attendance registered after the invitation response: marshal row loses.
	attID := store.addAttendance(eventID, userID, models.AttendanceStatusPending, newer)
	emID := store.addMarshal(eventID, userID, models.EventMarshalStatusAccepted, old, &old)

	rec := NewReconciler(store, nil)
	report, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatesResolved)
	assert.NotContains(t, store.marshals, emID)
	assert.Contains(t, store.attendances, attID)
}

func TestResolveDuplicates_OlderAttendanceLoses(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	old := time.Now().Add(-2 * time.Hour)
	newer := time.Now()

	attID := store.addAttendance(eventID, userID, models.AttendanceStatusPending, old)
	emID := store.addMarshal(eventID, userID, models.EventMarshalStatusAccepted, old, &newer)

	rec := NewReconciler(store, nil)
	report, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatesResolved)
	assert.NotContains(t, store.attendances, attID)
	assert.Contains(t, store.marshals, emID)
}

func TestResolveDuplicates_RemovesAllCompetingRowsInOnePass(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	old := time.Now().Add(-2 * time.Hour)
	newer := time.Now()

	// Two live rows for the same pair plus a declined invitation: one sweep
	// must clear the whole pair, not peel off one row per pass.
	store.addAttendance(eventID, userID, models.AttendanceStatusPending, old)
	store.addAttendance(eventID, userID, models.AttendanceStatusPending, newer)
	emID := store.addMarshal(eventID, userID, models.EventMarshalStatusDeclined, old, &old)

	rec := NewReconciler(store, nil)
	first, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.DuplicatesResolved)
	assert.Empty(t, store.attendances)
	assert.Contains(t, store.marshals, emID)

	second, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Zero(t, second.DuplicatesResolved)
}

func TestResolveDuplicates_KeepsTerminalHistoryWhenClearingPair(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	old := time.Now().Add(-3 * time.Hour)
	mid := time.Now().Add(-time.Hour)
	newer := time.Now()

	cancelledID := store.addAttendance(eventID, userID, models.AttendanceStatusCancelled, old)
	store.addAttendance(eventID, userID, models.AttendanceStatusPending, mid)
	store.addAttendance(eventID, userID, models.AttendanceStatusPending, newer)
	store.addMarshal(eventID, userID, models.EventMarshalStatusDeclined, old, &old)

	rec := NewReconciler(store, nil)
	report, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.DuplicatesResolved)
	assert.Contains(t, store.attendances, cancelledID)
	assert.Len(t, store.attendances, 1)
}

func TestResolveDuplicates_CanonicalPairUntouched(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	now := time.Now()
	attID := store.addAttendance(eventID, userID, models.AttendanceStatusApproved, now)
	emID := store.addMarshal(eventID, userID, models.EventMarshalStatusAccepted, now, &now)

	rec := NewReconciler(store, nil)
	report, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Zero(t, report.DuplicatesResolved)
	assert.Contains(t, store.attendances, attID)
	assert.Contains(t, store.marshals, emID)
}

func TestResolveDuplicates_OnlyNewestAttendanceIsOperative(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	userID := store.addUser()
	old := time.Now().Add(-3 * time.Hour)
	newer := time.Now()

	// Cancelled historical row plus a live approved one. The approved row
	// is operative and pairs canonically, so nothing is resolved.
	store.addAttendance(eventID, userID, models.AttendanceStatusCancelled, old)
	store.addAttendance(eventID, userID, models.AttendanceStatusApproved, newer)
	store.addMarshal(eventID, userID, models.EventMarshalStatusAccepted, newer, &newer)

	rec := NewReconciler(store, nil)
	report, err := rec.ResolveDuplicates(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Zero(t, report.DuplicatesResolved)
	assert.Len(t, store.attendances, 2)
}

func TestRun_AggregatesAllSweeps(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	now := time.Now()

	ghost := uuid.New()
	store.addAttendance(eventID, ghost, models.AttendanceStatusApproved, now) // orphan
	mirrored := store.addUser()
	store.addAttendance(eventID, mirrored, models.AttendanceStatusApproved, now) // needs mirror
	store.purged = 3

	rec := NewReconciler(store, nil)
	report, err := rec.Run(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansRemoved)
	assert.Equal(t, 1, report.MirrorsCreated)
	assert.Equal(t, 3, report.GarbagePurged)
	assert.Zero(t, report.Failed)
}

func TestRun_IdempotentSecondPass(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	now := time.Now()
	ghost := uuid.New()
	store.addAttendance(eventID, ghost, models.AttendanceStatusApproved, now)
	userID := store.addUser()
	store.addAttendance(eventID, userID, models.AttendanceStatusApproved, now)

	rec := NewReconciler(store, nil)
	first, err := rec.Run(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Positive(t, first.OrphansRemoved+first.MirrorsCreated)

	second, err := rec.Run(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, Report{}, second)
}

func TestPreview_ReportsWithoutWriting(t *testing.T) {
	store := newMemStore()
	eventID := uuid.New()
	now := time.Now()
	ghost := uuid.New()
	store.addAttendance(eventID, ghost, models.AttendanceStatusApproved, now)
	userID := store.addUser()
	store.addAttendance(eventID, userID, models.AttendanceStatusApproved, now)

	rec := NewReconciler(store, nil).Preview()
	report, err := rec.Run(context.Background(), &eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansRemoved)
	assert.Equal(t, 1, report.MirrorsCreated)

	assert.Len(t, store.attendances, 2)
	assert.Empty(t, store.marshals)
}
