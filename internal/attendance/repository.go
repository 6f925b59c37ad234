package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmt-marshals/backend/internal/capacity"
	"github.com/kmt-marshals/backend/internal/models"
)

var (
	// ErrAttendanceNotFound is returned when an attendance lookup matches no row.
	ErrAttendanceNotFound = errors.New("attendance not found")
	// ErrNotPending is returned when an admin decision targets a row that
	// already left the pending state.
	ErrNotPending = errors.New("attendance is not pending")
)

const attendanceColumns = `id, user_id, event_id, status, registered_at, checked_in_at, cancelled_at, COALESCE(cancellation_reason,'')`

// Repository handles the self-registration ledger. Commit transitions run
// in a transaction that re-checks capacity under an event row lock.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAttendance(row pgx.Row) (*models.Attendance, error) {
	var a models.Attendance
	err := row.Scan(&a.ID, &a.UserID, &a.EventID, &a.Status, &a.RegisteredAt, &a.CheckedInAt, &a.CancelledAt, &a.CancellationReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttendanceNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a pending registration.
func (r *Repository) Create(ctx context.Context, a *models.Attendance) error {
	const q = `INSERT INTO attendances (user_id, event_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING id, status, registered_at`
	return r.pool.QueryRow(ctx, q, a.UserID, a.EventID).Scan(&a.ID, &a.Status, &a.RegisteredAt)
}

// GetByID returns one attendance row.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attendance, error) {
	return scanAttendance(r.pool.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE id = $1`, id))
}

// Operative returns the newest non-terminal attendance for a (user, event)
// pair, or ErrAttendanceNotFound. Older historical rows are ignored.
func (r *Repository) Operative(ctx context.Context, eventID, userID uuid.UUID) (*models.Attendance, error) {
	const q = `SELECT ` + attendanceColumns + ` FROM attendances
		WHERE event_id = $1 AND user_id = $2 AND status IN ('pending', 'approved')
		ORDER BY registered_at DESC LIMIT 1`
	return scanAttendance(r.pool.QueryRow(ctx, q, eventID, userID))
}

// GetInvitation returns the event_marshals row for a (event, marshal) pair,
// or nil when none exists. Registration consults it for the cross-ledger
// merge transition.
func (r *Repository) GetInvitation(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error) {
	const q = `SELECT id, event_id, marshal_id, status, invited_at, responded_at
		FROM event_marshals WHERE event_id = $1 AND marshal_id = $2`
	var em models.EventMarshal
	err := r.pool.QueryRow(ctx, q, eventID, marshalID).Scan(&em.ID, &em.EventID, &em.MarshalID, &em.Status, &em.InvitedAt, &em.RespondedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &em, nil
}

// AcceptInvitationTx converts a live invitation to accepted, the merge
// transition for a marshal who self-registers while invited. The capacity
// re-check and the status flip commit atomically; no attendance row is
// created.
func (r *Repository) AcceptInvitationTx(ctx context.Context, eventID, marshalID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := capacity.CheckTx(ctx, tx, eventID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE event_marshals SET status = 'accepted', responded_at = NOW()
		WHERE event_id = $1 AND marshal_id = $2 AND status = 'invited'`, eventID, marshalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrDuplicateCommitment
	}
	return tx.Commit(ctx)
}

// ApproveTx transitions a pending registration to approved after the
// in-transaction capacity check.
func (r *Repository) ApproveTx(ctx context.Context, attendanceID, eventID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := capacity.CheckTx(ctx, tx, eventID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE attendances SET status = 'approved' WHERE id = $1 AND status = 'pending'`, attendanceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return tx.Commit(ctx)
}

// Reject transitions a pending registration to rejected.
func (r *Repository) Reject(ctx context.Context, attendanceID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE attendances SET status = 'rejected' WHERE id = $1 AND status = 'pending'`, attendanceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// Cancel ends a marshal's commitment to an event from their side: every
// non-terminal attendance row becomes cancelled with the recorded reason,
// and a live or committed invitation is declined. Both ledgers move in one
// transaction. Returns the number of rows touched; zero means there was
// nothing to cancel, which is not an error.
func (r *Repository) Cancel(ctx context.Context, eventID, userID uuid.UUID, reason string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE attendances
		SET status = 'cancelled', cancelled_at = NOW(), cancellation_reason = NULLIF($1,'')
		WHERE event_id = $2 AND user_id = $3 AND status IN ('pending', 'approved')`, reason, eventID, userID)
	if err != nil {
		return 0, err
	}
	touched := tag.RowsAffected()

	tag, err = tx.Exec(ctx, `UPDATE event_marshals SET status = 'declined', responded_at = NOW()
		WHERE event_id = $1 AND marshal_id = $2 AND status IN ('invited', 'accepted', 'approved')`, eventID, userID)
	if err != nil {
		return 0, err
	}
	touched += tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return touched, nil
}

// CheckIn stamps checked_in_at on the operative approved attendance.
func (r *Repository) CheckIn(ctx context.Context, eventID, userID uuid.UUID) error {
	const q = `UPDATE attendances a SET checked_in_at = NOW()
		FROM (SELECT id FROM attendances
			WHERE event_id = $1 AND user_id = $2 AND status = 'approved'
			ORDER BY registered_at DESC LIMIT 1) op
		WHERE a.id = op.id AND a.checked_in_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, eventID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttendanceNotFound
	}
	return nil
}

// ListByEvent returns attendance rows for an event, optionally filtered by status.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, status string) ([]models.Attendance, error) {
	q := `SELECT ` + attendanceColumns + ` FROM attendances WHERE event_id = $1`
	args := []interface{}{eventID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	return r.collect(ctx, q+` ORDER BY registered_at DESC`, args...)
}

// ListByUser returns a marshal's registrations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Attendance, error) {
	return r.collect(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE user_id = $1 ORDER BY registered_at DESC`, userID)
}

func (r *Repository) collect(ctx context.Context, q string, args ...interface{}) ([]models.Attendance, error) {
	rows, err := r.pool.Query(ctx, q, args...)
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
