package notifications

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/internal/models"
	"github.com/kmt-marshals/backend/pkg/queue"
)

// Dispatcher records outbound notifications and hands them to the worker
// queue. Dispatch is fire-and-forget: failures are logged here and never
// surface to the mutation that triggered them.
type Dispatcher struct {
	repo   *Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. q may be nil, in which case
// notifications are logged to the table but not delivered until a worker
// queue is configured.
func NewDispatcher(repo *Repository, q *queue.Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{repo: repo, queue: q, logger: logger}
}

// Notify enqueues a push and an email notification for the user. Errors
// are logged and swallowed per the dispatch contract.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, eventID *uuid.UUID, kind, title, body string) {
	for _, channel := range []string{models.NotificationChannelPush, models.NotificationChannelEmail} {
		n := &models.Notification{
			UserID:  userID,
			EventID: eventID,
			Kind:    kind,
			Channel: channel,
			Title:   title,
			Body:    body,
		}
		if err := d.repo.Create(ctx, n); err != nil {
			d.logger.Warn("notification log failed",
				zap.Error(err), zap.String("user_id", userID.String()), zap.String("kind", kind))
			continue
		}
		if d.queue == nil {
			continue
		}
		payload := queue.NotificationPayload{
			NotificationID: n.ID,
			UserID:         userID,
			Channel:        channel,
			Kind:           kind,
			Title:          title,
			Body:           body,
		}
		if err := d.queue.EnqueueNotification(ctx, payload); err != nil {
			d.logger.Warn("notification enqueue failed",
				zap.Error(err), zap.String("notification_id", n.ID.String()))
		}
	}
}
