package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmt-marshals/backend/internal/models"
)

// ErrEventNotFound is returned when an event lookup matches no row.
var ErrEventNotFound = errors.New("event not found")

const eventColumns = `id, title, COALESCE(description,''), location, starts_at, ends_at,
	marshal_types, max_marshals, status, is_archived, created_by, created_at, updated_at`

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, location, starts_at, ends_at, marshal_types, max_marshals, status, created_by)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	if e.Status == "" {
		e.Status = models.EventStatusActive
	}
	return r.pool.QueryRow(ctx, q, e.Title, e.Description, e.Location, e.StartsAt, e.EndsAt, e.MarshalTypes, e.MaxMarshals, e.Status, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var e models.Event
	err := r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id).
		Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt,
			&e.MarshalTypes, &e.MaxMarshals, &e.Status, &e.IsArchived, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

// ListFilter narrows the event listing.
type ListFilter struct {
	Status          string
	IncludeArchived bool
	UpcomingOnly    bool
}

// List returns events matching the filter, soonest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []interface{}
	if !f.IncludeArchived {
		q += ` AND NOT is_archived`
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $1`
	}
	if f.UpcomingOnly {
		q += ` AND starts_at > NOW()`
	}
	rows, err := r.pool.Query(ctx, q+` ORDER BY starts_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt,
			&e.MarshalTypes, &e.MaxMarshals, &e.Status, &e.IsArchived, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// UpdateParams holds the mutable event fields for PATCH. Nil pointers leave
// the stored value unchanged.
type UpdateParams struct {
	Title        *string
	Description  *string
	Location     *string
	StartsAt     *time.Time
	EndsAt       *time.Time
	MarshalTypes *string
	MaxMarshals  *int
	Status       *string
}

// Update applies the given fields. Lowering max_marshals below the current
// committed count is accepted; the capacity guard blocks further commits
// and the roster report flags the overflow.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) error {
	const q = `UPDATE events SET
		title = COALESCE($1, title),
		description = COALESCE($2, description),
		location = COALESCE($3, location),
		starts_at = COALESCE($4, starts_at),
		ends_at = COALESCE($5, ends_at),
		marshal_types = COALESCE($6, marshal_types),
		max_marshals = COALESCE($7, max_marshals),
		status = COALESCE($8, status),
		updated_at = NOW()
		WHERE id = $9`
	tag, err := r.pool.Exec(ctx, q, p.Title, p.Description, p.Location, p.StartsAt, p.EndsAt, p.MarshalTypes, p.MaxMarshals, p.Status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// Archive soft-deletes an event. History in both ledgers is preserved.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET is_archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}
