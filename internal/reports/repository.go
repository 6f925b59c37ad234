package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RosterEntry is one committed marshal on an event, de-duplicated across
// both ledgers by employee ID, with the channels that committed them.
type RosterEntry struct {
	UserID         uuid.UUID `json:"user_id"`
	EmployeeID     string    `json:"employee_id"`
	FullName       string    `json:"full_name"`
	MarshalTypes   string    `json:"marshal_types"`
	SelfRegistered bool      `json:"self_registered"`
	AdminAssigned  bool      `json:"admin_assigned"`
	CommittedSince time.Time `json:"committed_since"`
	CheckedIn      bool      `json:"checked_in"`
}

// EventSummary is one event's commitment picture for the admin report.
type EventSummary struct {
	EventID      uuid.UUID `json:"event_id"`
	Title        string    `json:"title"`
	Location     string    `json:"location"`
	StartsAt     time.Time `json:"starts_at"`
	Status       string    `json:"status"`
	MaxMarshals  int       `json:"max_marshals"`
	Committed    int       `json:"committed"`
	Available    int       `json:"available"`
	Pending      int       `json:"pending"`
	Invited      int       `json:"invited"`
	OverCapacity bool      `json:"over_capacity"`
}

// Repository runs the reporting queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reports repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Roster returns the de-duplicated committed marshals for an event.
func (r *Repository) Roster(ctx context.Context, eventID uuid.UUID) ([]RosterEntry, error) {
	const q = `SELECT u.id, u.employee_id, u.full_name, u.marshal_types,
			BOOL_OR(s.src = 'attendance') AS self_registered,
			BOOL_OR(s.src = 'invitation') AS admin_assigned,
			MIN(s.since) AS committed_since,
			BOOL_OR(s.checked_in) AS checked_in
		FROM (
			SELECT a.user_id AS uid, 'attendance' AS src, a.registered_at AS since, a.checked_in_at IS NOT NULL AS checked_in
				FROM attendances a WHERE a.event_id = $1 AND a.status = 'approved'
			UNION ALL
			SELECT em.marshal_id, 'invitation', COALESCE(em.responded_at, em.invited_at), FALSE
				FROM event_marshals em WHERE em.event_id = $1 AND em.status IN ('accepted', 'approved')
		) s
		JOIN users u ON u.id = s.uid
		GROUP BY u.id, u.employee_id, u.full_name, u.marshal_types
		ORDER BY committed_since`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roster []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.UserID, &e.EmployeeID, &e.FullName, &e.MarshalTypes,
			&e.SelfRegistered, &e.AdminAssigned, &e.CommittedSince, &e.CheckedIn); err != nil {
			return nil, err
		}
		roster = append(roster, e)
	}
	return roster, rows.Err()
}

// EventSummaries returns per-event commitment counts against capacity for
// all non-archived events. Events over capacity (e.g. after an admin
// lowered max_marshals) are flagged rather than repaired.
func (r *Repository) EventSummaries(ctx context.Context) ([]EventSummary, error) {
	const q = `SELECT e.id, e.title, e.location, e.starts_at, e.status, e.max_marshals,
			(SELECT COUNT(DISTINCT u.employee_id) FROM (
				SELECT a.user_id AS uid FROM attendances a WHERE a.event_id = e.id AND a.status = 'approved'
				UNION
				SELECT em.marshal_id FROM event_marshals em WHERE em.event_id = e.id AND em.status IN ('accepted', 'approved')
			) s JOIN users u ON u.id = s.uid) AS committed,
			(SELECT COUNT(*) FROM attendances a WHERE a.event_id = e.id AND a.status = 'pending') AS pending,
			(SELECT COUNT(*) FROM event_marshals em WHERE em.event_id = e.id AND em.status = 'invited') AS invited
		FROM events e
		WHERE NOT e.is_archived
		ORDER BY e.starts_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []EventSummary
	for rows.Next() {
		var s EventSummary
		if err := rows.Scan(&s.EventID, &s.Title, &s.Location, &s.StartsAt, &s.Status, &s.MaxMarshals,
			&s.Committed, &s.Pending, &s.Invited); err != nil {
			return nil, err
		}
		s.Available = s.MaxMarshals - s.Committed
		s.OverCapacity = s.Committed > s.MaxMarshals
		list = append(list, s)
	}
	return list, rows.Err()
}
