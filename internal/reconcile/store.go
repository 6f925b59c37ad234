package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmt-marshals/backend/internal/models"
)

// PgStore implements Store over a pgx pool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a Postgres-backed reconciliation store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Attendances returns attendance rows, scoped to one event when eventID is set.
func (s *PgStore) Attendances(ctx context.Context, eventID *uuid.UUID) ([]models.Attendance, error) {
	q := `SELECT id, user_id, event_id, status, registered_at, checked_in_at, cancelled_at, COALESCE(cancellation_reason,'')
		FROM attendances`
	var args []interface{}
	if eventID != nil {
		q += ` WHERE event_id = $1`
		args = append(args, *eventID)
	}
	rows, err := s.pool.Query(ctx, q+` ORDER BY registered_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Attendance
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(&a.ID, &a.UserID, &a.EventID, &a.Status, &a.RegisteredAt, &a.CheckedInAt, &a.CancelledAt, &a.CancellationReason); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// EventMarshals returns invitation rows, scoped to one event when eventID is set.
func (s *PgStore) EventMarshals(ctx context.Context, eventID *uuid.UUID) ([]models.EventMarshal, error) {
	q := `SELECT id, event_id, marshal_id, status, invited_at, responded_at FROM event_marshals`
	var args []interface{}
	if eventID != nil {
		q += ` WHERE event_id = $1`
		args = append(args, *eventID)
	}
	rows, err := s.pool.Query(ctx, q+` ORDER BY invited_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EventMarshal
	for rows.Next() {
		var em models.EventMarshal
		if err := rows.Scan(&em.ID, &em.EventID, &em.MarshalID, &em.Status, &em.InvitedAt, &em.RespondedAt); err != nil {
			return nil, err
		}
		list = append(list, em)
	}
	return list, rows.Err()
}

// UserExists reports whether a user row exists.
func (s *PgStore) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// CreateEventMarshal inserts a mirror row. An existing (event, marshal)
// pair is left untouched, which keeps the repair idempotent under
// concurrent sweeps.
func (s *PgStore) CreateEventMarshal(ctx context.Context, em *models.EventMarshal) error {
	const q = `INSERT INTO event_marshals (event_id, marshal_id, status, invited_at, responded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, marshal_id) DO NOTHING`
	_, err := s.pool.Exec(ctx, q, em.EventID, em.MarshalID, em.Status, em.InvitedAt, em.RespondedAt)
	return err
}

// DeleteAttendance removes one attendance row.
func (s *PgStore) DeleteAttendance(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM attendances WHERE id = $1`, id)
	return err
}

// DeleteEventMarshal removes one invitation row.
func (s *PgStore) DeleteEventMarshal(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM event_marshals WHERE id = $1`, id)
	return err
}

// PurgeGarbage deletes rows carrying sentinel values ("undefined" statuses,
// zero-value foreign keys) persisted by a historical client bug. The
// current schema forbids new ones; this remains for databases that predate
// the check constraints.
func (s *PgStore) PurgeGarbage(ctx context.Context, eventID *uuid.UUID) (int64, error) {
	var total int64

	attQ := `DELETE FROM attendances WHERE (status IS NULL OR status = 'undefined' OR user_id = '00000000-0000-0000-0000-000000000000')`
	emQ := `DELETE FROM event_marshals WHERE (status IS NULL OR status = 'undefined' OR marshal_id = '00000000-0000-0000-0000-000000000000')`
	var args []interface{}
	if eventID != nil {
		attQ += ` AND event_id = $1`
		emQ += ` AND event_id = $1`
		args = append(args, *eventID)
	}

	tag, err := s.pool.Exec(ctx, attQ, args...)
	if err != nil {
		return total, err
	}
	total += tag.RowsAffected()

	tag, err = s.pool.Exec(ctx, emQ, args...)
	if err != nil {
		return total, err
	}
	total += tag.RowsAffected()
	return total, nil
}
