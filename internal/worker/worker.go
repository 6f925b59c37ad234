package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/internal/auth"
	"github.com/kmt-marshals/backend/internal/models"
	"github.com/kmt-marshals/backend/internal/notifications"
	"github.com/kmt-marshals/backend/internal/reconcile"
	"github.com/kmt-marshals/backend/pkg/queue"
)

// Processor drains the job queues: delivers queued notifications over
// their channel and runs background ledger reconciliation sweeps.
type Processor struct {
	notifRepo  *notifications.Repository
	userRepo   *auth.Repository
	reconciler *reconcile.Reconciler
	email      notifications.Sender
	push       notifications.Sender
	queue      *queue.Queue
	logger     *zap.Logger
}

// NewProcessor creates a job processor.
func NewProcessor(notifRepo *notifications.Repository, userRepo *auth.Repository, reconciler *reconcile.Reconciler, email, push notifications.Sender, q *queue.Queue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		notifRepo:  notifRepo,
		userRepo:   userRepo,
		reconciler: reconciler,
		email:      email,
		push:       push,
		queue:      q,
		logger:     logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeNotification:
		return p.processNotification(ctx, job)
	case queue.JobTypeReconcile:
		return p.processReconcile(ctx, job)
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (p *Processor) processNotification(ctx context.Context, job *queue.Job) error {
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	n, err := p.notifRepo.GetByID(ctx, payload.NotificationID)
	if err != nil {
		if errors.Is(err, notifications.ErrNotificationNotFound) {
			p.logger.Warn("notification row gone, dropping job", zap.String("notification_id", payload.NotificationID.String()))
			return nil
		}
		return fmt.Errorf("load notification: %w", err)
	}
	if n.Status == models.NotificationStatusSent {
		p.logger.Info("notification already sent", zap.String("notification_id", n.ID.String()))
		return nil
	}

	user, err := p.userRepo.GetByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			if markErr := p.notifRepo.MarkFailed(ctx, n.ID, "recipient not found"); markErr != nil {
				p.logger.Error("mark failed", zap.Error(markErr), zap.String("notification_id", n.ID.String()))
			}
			return nil
		}
		return fmt.Errorf("load recipient: %w", err)
	}

	var sender notifications.Sender
	switch payload.Channel {
	case models.NotificationChannelEmail:
		sender = p.email
	case models.NotificationChannelPush:
		sender = p.push
	default:
		return fmt.Errorf("unknown channel: %s", payload.Channel)
	}

	if err := sender.Send(ctx, user, payload.Title, payload.Body); err != nil {
		if errors.Is(err, notifications.ErrRecipientUnreachable) {
			// No address on this channel. Not retryable.
			if markErr := p.notifRepo.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
				p.logger.Error("mark failed", zap.Error(markErr), zap.String("notification_id", n.ID.String()))
			}
			return nil
		}
		if job.Attempt+1 >= queue.MaxRetries {
			if markErr := p.notifRepo.MarkFailed(ctx, n.ID, err.Error()); markErr != nil {
				p.logger.Error("mark failed", zap.Error(markErr), zap.String("notification_id", n.ID.String()))
			}
		}
		return fmt.Errorf("send %s: %w", payload.Channel, err)
	}

	if err := p.notifRepo.MarkSent(ctx, n.ID); err != nil {
		p.logger.Error("mark sent failed", zap.Error(err), zap.String("notification_id", n.ID.String()))
		return fmt.Errorf("mark sent: %w", err)
	}
	p.logger.Info("notification delivered",
		zap.String("notification_id", n.ID.String()),
		zap.String("channel", payload.Channel),
		zap.String("kind", payload.Kind))
	return nil
}

func (p *Processor) processReconcile(ctx context.Context, job *queue.Job) error {
	var payload queue.ReconcilePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	report, err := p.reconciler.Run(ctx, payload.EventID)
	scope := "all events"
	if payload.EventID != nil {
		scope = payload.EventID.String()
	}
	p.logger.Info("reconciliation sweep finished",
		zap.String("scope", scope),
		zap.Int("orphans_removed", report.OrphansRemoved),
		zap.Int("mirrors_created", report.MirrorsCreated),
		zap.Int("duplicates_resolved", report.DuplicatesResolved),
		zap.Int("garbage_purged", report.GarbagePurged),
		zap.Int("failed", report.Failed))
	if err != nil {
		return fmt.Errorf("reconcile sweep: %w", err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, key, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, key, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
