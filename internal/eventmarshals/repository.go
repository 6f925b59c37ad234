package eventmarshals

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

// ErrNoLiveInvitation is returned when a response targets an invitation
// that does not exist or already left the invited state.
var ErrNoLiveInvitation = errors.New("no live invitation")

const emColumns = `id, event_id, marshal_id, status, invited_at, responded_at`

// Repository handles the admin invitation ledger. The table's unique
// (event_id, marshal_id) constraint keeps this ledger deduplicated; commit
// transitions re-check capacity inside a transaction holding the event
// row lock.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event marshals repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Invite inserts an invitation. An existing row for the pair, whatever its
// status, makes the invite a duplicate.
func (r *Repository) Invite(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error) {
	const q = `INSERT INTO event_marshals (event_id, marshal_id, status)
		VALUES ($1, $2, 'invited')
		ON CONFLICT (event_id, marshal_id) DO NOTHING
		RETURNING ` + emColumns
	em, err := scanEventMarshal(r.pool.QueryRow(ctx, q, eventID, marshalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDuplicateCommitment
		}
		return nil, err
	}
	return em, nil
}

// Get returns the row for an (event, marshal) pair, or nil when none exists.
func (r *Repository) Get(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error) {
	em, err := scanEventMarshal(r.pool.QueryRow(ctx,
		`SELECT `+emColumns+` FROM event_marshals WHERE event_id = $1 AND marshal_id = $2`, eventID, marshalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return em, nil
}

// AcceptTx commits an invited marshal after the in-transaction capacity
// check.
func (r *Repository) AcceptTx(ctx context.Context, eventID, marshalID uuid.UUID) error {
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
		return ErrNoLiveInvitation
	}
	return tx.Commit(ctx)
}

// Decline marks an invited marshal as declined. Declining does not touch
// capacity, so no transaction is needed.
func (r *Repository) Decline(ctx context.Context, eventID, marshalID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE event_marshals SET status = 'declined', responded_at = NOW()
		WHERE event_id = $1 AND marshal_id = $2 AND status = 'invited'`, eventID, marshalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoLiveInvitation
	}
	return nil
}

// DirectAddTx commits a marshal without the invitation round-trip, the
// admin "add marshal" action. The insert lands already accepted.
func (r *Repository) DirectAddTx(ctx context.Context, eventID, marshalID uuid.UUID) (*models.EventMarshal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := capacity.CheckTx(ctx, tx, eventID); err != nil {
		return nil, err
	}
	const q = `INSERT INTO event_marshals (event_id, marshal_id, status, responded_at)
		VALUES ($1, $2, 'accepted', NOW())
		ON CONFLICT (event_id, marshal_id) DO NOTHING
		RETURNING ` + emColumns
	em, err := scanEventMarshal(tx.QueryRow(ctx, q, eventID, marshalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrDuplicateCommitment
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return em, nil
}

// RemoveTx takes a marshal off an event in both ledgers at once: the
// invitation row is deleted outright, any non-terminal attendance rows
// become cancelled with the recorded reason (history is preserved, not
// deleted). Removing an absent marshal touches nothing and is reported as
// success: the desired state already holds.
func (r *Repository) RemoveTx(ctx context.Context, eventID, marshalID uuid.UUID, reason string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM event_marshals WHERE event_id = $1 AND marshal_id = $2`, eventID, marshalID)
	if err != nil {
		return 0, err
	}
	touched := tag.RowsAffected()

	tag, err = tx.Exec(ctx, `UPDATE attendances
		SET status = 'cancelled', cancelled_at = NOW(), cancellation_reason = NULLIF($1,'')
		WHERE event_id = $2 AND user_id = $3 AND status IN ('pending', 'approved')`, reason, eventID, marshalID)
	if err != nil {
		return 0, err
	}
	touched += tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return touched, nil
}

// ListByEvent returns invitation rows for an event, optionally by status.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, status string) ([]models.EventMarshal, error) {
	q := `SELECT ` + emColumns + ` FROM event_marshals WHERE event_id = $1`
	args := []interface{}{eventID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY invited_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListForMarshal returns a marshal's invitations, newest first. pendingOnly
// narrows to invitations still awaiting a response.
func (r *Repository) ListForMarshal(ctx context.Context, marshalID uuid.UUID, pendingOnly bool) ([]models.EventMarshal, error) {
	q := `SELECT ` + emColumns + ` FROM event_marshals WHERE marshal_id = $1`
	if pendingOnly {
		q += ` AND status = 'invited'`
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY invited_at DESC`, marshalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func scanEventMarshal(row pgx.Row) (*models.EventMarshal, error) {
	var em models.EventMarshal
	if err := row.Scan(&em.ID, &em.EventID, &em.MarshalID, &em.Status, &em.InvitedAt, &em.RespondedAt); err != nil {
		return nil, err
	}
	return &em, nil
}

func collect(rows pgx.Rows) ([]models.EventMarshal, error) {
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
