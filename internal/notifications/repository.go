package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmt-marshals/backend/internal/models"
)

// ErrNotificationNotFound is returned when a notification lookup matches no row.
var ErrNotificationNotFound = errors.New("notification not found")

// Repository handles the notifications log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending notification.
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	const q = `INSERT INTO notifications (user_id, event_id, kind, channel, title, body, status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), 'pending')
		RETURNING id, status, created_at`
	return r.pool.QueryRow(ctx, q, n.UserID, n.EventID, n.Kind, n.Channel, n.Title, n.Body).
		Scan(&n.ID, &n.Status, &n.CreatedAt)
}

// GetByID returns one notification.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	const q = `SELECT id, user_id, event_id, kind, channel, title, COALESCE(body,''), status, sent_at, COALESCE(error_message,''), created_at
		FROM notifications WHERE id = $1`
	var n models.Notification
	err := r.pool.QueryRow(ctx, q, id).Scan(&n.ID, &n.UserID, &n.EventID, &n.Kind, &n.Channel, &n.Title, &n.Body, &n.Status, &n.SentAt, &n.ErrorMessage, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

// ListByUser returns a user's notifications, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const q = `SELECT id, user_id, event_id, kind, channel, title, COALESCE(body,''), status, sent_at, COALESCE(error_message,''), created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventID, &n.Kind, &n.Channel, &n.Title, &n.Body, &n.Status, &n.SentAt, &n.ErrorMessage, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkSent records successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET status = 'sent', sent_at = NOW(), error_message = NULL WHERE id = $1`, id)
	return err
}

// MarkFailed records a delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET status = 'failed', error_message = $1 WHERE id = $2`, reason, id)
	return err
}

// ResetPending returns a failed notification to pending for a resend.
func (r *Repository) ResetPending(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET status = 'pending', error_message = NULL WHERE id = $1 AND status = 'failed'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
