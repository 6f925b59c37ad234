package capacity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	approvedAttendeesQuery = `SELECT u.employee_id
		FROM attendances a
		JOIN users u ON u.id = a.user_id
		WHERE a.event_id = $1 AND a.status = 'approved'`

	committedInvitationsQuery = `SELECT u.employee_id
		FROM event_marshals em
		JOIN users u ON u.id = em.marshal_id
		WHERE em.event_id = $1 AND em.status IN ('accepted', 'approved')`
)

// PgStore implements Store over a pgx pool.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a Postgres-backed capacity store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EventMaxMarshals returns the event's capacity ceiling.
func (s *PgStore) EventMaxMarshals(ctx context.Context, eventID uuid.UUID) (int, bool, error) {
	var max int
	err := s.pool.QueryRow(ctx, `SELECT max_marshals FROM events WHERE id = $1`, eventID).Scan(&max)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return max, true, nil
}

// ApprovedAttendanceEmployeeIDs projects approved attendances to employee IDs.
func (s *PgStore) ApprovedAttendanceEmployeeIDs(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	return collectStrings(s.pool.Query(ctx, approvedAttendeesQuery, eventID))
}

// CommittedInvitationEmployeeIDs projects accepted/approved invitations to employee IDs.
func (s *PgStore) CommittedInvitationEmployeeIDs(ctx context.Context, eventID uuid.UUID) ([]string, error) {
	return collectStrings(s.pool.Query(ctx, committedInvitationsQuery, eventID))
}

// CheckTx re-runs the capacity check inside an open transaction after
// taking a row lock on the event, making check-then-act atomic with the
// caller's subsequent write. Concurrent commits against the same event
// serialize on the lock instead of racing past a stale count.
func CheckTx(ctx context.Context, tx pgx.Tx, eventID uuid.UUID) error {
	var max int
	err := tx.QueryRow(ctx, `SELECT max_marshals FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&max)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCapacityExceeded
		}
		return err
	}

	attendees, err := collectStrings(tx.Query(ctx, approvedAttendeesQuery, eventID))
	if err != nil {
		return err
	}
	invited, err := collectStrings(tx.Query(ctx, committedInvitationsQuery, eventID))
	if err != nil {
		return err
	}
	committed := make(map[string]struct{}, len(attendees)+len(invited))
	for _, id := range attendees {
		committed[id] = struct{}{}
	}
	for _, id := range invited {
		committed[id] = struct{}{}
	}
	if len(committed) >= max {
		return ErrCapacityExceeded
	}
	return nil
}

func collectStrings(rows pgx.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
