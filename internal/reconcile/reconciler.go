// Package reconcile repairs drift between the two commitment ledgers:
// the self-registration attendances table and the admin-driven
// event_marshals table. Every sweep is idempotent and treats individual
// record failures as non-fatal.
package reconcile

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kmt-marshals/backend/internal/models"
)

// Store is the persistence surface the reconciler works over. A nil
// eventID scopes queries system-wide.
type Store interface {
	Attendances(ctx context.Context, eventID *uuid.UUID) ([]models.Attendance, error)
	EventMarshals(ctx context.Context, eventID *uuid.UUID) ([]models.EventMarshal, error)
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	CreateEventMarshal(ctx context.Context, em *models.EventMarshal) error
	DeleteAttendance(ctx context.Context, id uuid.UUID) error
	DeleteEventMarshal(ctx context.Context, id uuid.UUID) error
	// PurgeGarbage deletes rows holding sentinel "undefined" statuses or
	// zero-value foreign keys left behind by a historical data-entry bug.
	PurgeGarbage(ctx context.Context, eventID *uuid.UUID) (int64, error)
}

// Report aggregates the outcome of a sweep. Failed counts records that
// errored and were skipped; a non-zero Failed never aborts the batch.
type Report struct {
	OrphansRemoved     int `json:"orphans_removed"`
	MirrorsCreated     int `json:"mirrors_created"`
	DuplicatesResolved int `json:"duplicates_resolved"`
	GarbagePurged      int `json:"garbage_purged"`
	Failed             int `json:"failed"`
}

func (r *Report) merge(other Report) {
	r.OrphansRemoved += other.OrphansRemoved
	r.MirrorsCreated += other.MirrorsCreated
	r.DuplicatesResolved += other.DuplicatesResolved
	r.GarbagePurged += other.GarbagePurged
	r.Failed += other.Failed
}

// Reconciler restores the invariant that every committed marshal appears
// in exactly one canonical record per event.
type Reconciler struct {
	store  Store
	logger *zap.Logger
	dryRun bool
}

// NewReconciler creates a reconciler.
func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, logger: logger}
}

// Preview returns a reconciler that reports what would change without
// writing anything.
func (r *Reconciler) Preview() *Reconciler {
	return &Reconciler{store: r.store, logger: r.logger, dryRun: true}
}

// Run executes all sweeps in order and returns the aggregate report.
func (r *Reconciler) Run(ctx context.Context, eventID *uuid.UUID) (Report, error) {
	var report Report

	rep, err := r.OrphanSweep(ctx, eventID)
	if err != nil {
		return report, err
	}
	report.merge(rep)

	rep, err = r.MirrorRepair(ctx, eventID)
	if err != nil {
		return report, err
	}
	report.merge(rep)

	rep, err = r.ResolveDuplicates(ctx, eventID)
	if err != nil {
		return report, err
	}
	report.merge(rep)

	rep, err = r.PurgeGarbage(ctx, eventID)
	if err != nil {
		return report, err
	}
	report.merge(rep)

	r.logger.Info("reconciliation complete",
		zap.Int("orphans_removed", report.OrphansRemoved),
		zap.Int("mirrors_created", report.MirrorsCreated),
		zap.Int("duplicates_resolved", report.DuplicatesResolved),
		zap.Int("garbage_purged", report.GarbagePurged),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// OrphanSweep deletes approved attendances whose user no longer exists.
func (r *Reconciler) OrphanSweep(ctx context.Context, eventID *uuid.UUID) (Report, error) {
	var report Report
	attendances, err := r.store.Attendances(ctx, eventID)
	if err != nil {
		return report, err
	}
	for _, a := range attendances {
		if a.Status != models.AttendanceStatusApproved {
			continue
		}
		exists, err := r.store.UserExists(ctx, a.UserID)
		if err != nil {
			r.recordError(&report, "orphan sweep: user lookup", a.ID, err)
			continue
		}
		if exists {
			continue
		}
		if r.dryRun {
			report.OrphansRemoved++
			continue
		}
		if err := r.store.DeleteAttendance(ctx, a.ID); err != nil {
			r.recordError(&report, "orphan sweep: delete attendance", a.ID, err)
			continue
		}
		report.OrphansRemoved++
	}
	return report, nil
}

// MirrorRepair creates a missing event_marshals row for every approved
// attendance whose user has none for the event. Timestamps are backfilled
// from registered_at so the repair does not invent an invitation time.
func (r *Reconciler) MirrorRepair(ctx context.Context, eventID *uuid.UUID) (Report, error) {
	var report Report
	attendances, err := r.store.Attendances(ctx, eventID)
	if err != nil {
		return report, err
	}
	marshals, err := r.store.EventMarshals(ctx, eventID)
	if err != nil {
		return report, err
	}
	mirrored := make(map[[2]uuid.UUID]struct{}, len(marshals))
	for _, em := range marshals {
		mirrored[[2]uuid.UUID{em.EventID, em.MarshalID}] = struct{}{}
	}

	for _, a := range attendances {
		if a.Status != models.AttendanceStatusApproved {
			continue
		}
		if _, ok := mirrored[[2]uuid.UUID{a.EventID, a.UserID}]; ok {
			continue
		}
		exists, err := r.store.UserExists(ctx, a.UserID)
		if err != nil || !exists {
			// orphaned rows are the orphan sweep's job
			if err != nil {
				r.recordError(&report, "mirror repair: user lookup", a.ID, err)
			}
			continue
		}
		if r.dryRun {
			report.MirrorsCreated++
			mirrored[[2]uuid.UUID{a.EventID, a.UserID}] = struct{}{}
			continue
		}
		registeredAt := a.RegisteredAt
		em := &models.EventMarshal{
			EventID:     a.EventID,
			MarshalID:   a.UserID,
			Status:      models.EventMarshalStatusAccepted,
			InvitedAt:   registeredAt,
			RespondedAt: &registeredAt,
		}
		if err := r.store.CreateEventMarshal(ctx, em); err != nil {
			r.recordError(&report, "mirror repair: create event marshal", a.ID, err)
			continue
		}
		mirrored[[2]uuid.UUID{a.EventID, a.UserID}] = struct{}{}
		report.MirrorsCreated++
	}
	return report, nil
}

// ResolveDuplicates repairs (event, user) pairs tracked inconsistently by
// both ledgers. Rejection on either side wins and removes the other side's
// row; otherwise the chronologically newer row survives and the older
// duplicate in the opposite ledger is deleted.
func (r *Reconciler) ResolveDuplicates(ctx context.Context, eventID *uuid.UUID) (Report, error) {
	var report Report
	attendances, err := r.store.Attendances(ctx, eventID)
	if err != nil {
		return report, err
	}
	marshals, err := r.store.EventMarshals(ctx, eventID)
	if err != nil {
		return report, err
	}

	// Only the most recent attendance per pair is operative, but when the
	// attendance side loses, every non-terminal row for the pair has to go:
	// leaving an older row behind would just surface it as the operative
	// row on the next sweep.
	operative := make(map[[2]uuid.UUID]models.Attendance, len(attendances))
	nonTerminal := make(map[[2]uuid.UUID][]models.Attendance, len(attendances))
	for _, a := range attendances {
		key := [2]uuid.UUID{a.EventID, a.UserID}
		if prev, ok := operative[key]; !ok || a.RegisteredAt.After(prev.RegisteredAt) {
			operative[key] = a
		}
		if !a.IsTerminal() {
			nonTerminal[key] = append(nonTerminal[key], a)
		}
	}

	for _, em := range marshals {
		key := [2]uuid.UUID{em.EventID, em.MarshalID}
		att, ok := operative[key]
		if !ok {
			continue
		}
		if isCanonicalPair(att, em) {
			continue
		}

		switch {
		case att.Status == models.AttendanceStatusRejected:
			// rejection wins over whatever the other ledger says
			if err := r.delete(ctx, &report, "event marshal", em.ID, r.store.DeleteEventMarshal); err != nil {
				continue
			}
		case em.Status == models.EventMarshalStatusDeclined:
			if !r.deleteAttendanceRows(ctx, &report, nonTerminal[key]) {
				continue
			}
		default:
			emAt := em.InvitedAt
			if em.RespondedAt != nil {
				emAt = *em.RespondedAt
			}
			if att.RegisteredAt.After(emAt) {
				if err := r.delete(ctx, &report, "event marshal", em.ID, r.store.DeleteEventMarshal); err != nil {
					continue
				}
			} else {
				if !r.deleteAttendanceRows(ctx, &report, nonTerminal[key]) {
					continue
				}
			}
		}
		report.DuplicatesResolved++
	}
	return report, nil
}

// PurgeGarbage removes rows holding placeholder values that should never
// have been persisted.
func (r *Reconciler) PurgeGarbage(ctx context.Context, eventID *uuid.UUID) (Report, error) {
	var report Report
	if r.dryRun {
		return report, nil
	}
	n, err := r.store.PurgeGarbage(ctx, eventID)
	if err != nil {
		r.logger.Warn("garbage purge failed", zap.Error(err))
		report.Failed++
		return report, nil
	}
	report.GarbagePurged = int(n)
	return report, nil
}

// isCanonicalPair reports whether the dual entries are the expected
// approved-attendance/committed-invitation pairing (or two terminal rows
// that no longer compete).
func isCanonicalPair(att models.Attendance, em models.EventMarshal) bool {
	if att.Status == models.AttendanceStatusApproved && em.IsCommitted() {
		return true
	}
	if att.Status == models.AttendanceStatusPending && em.Status == models.EventMarshalStatusInvited {
		// both sides still in flight; nothing to resolve yet
		return true
	}
	if att.IsTerminal() && (em.Status == models.EventMarshalStatusDeclined) {
		return true
	}
	if att.Status == models.AttendanceStatusCancelled && !em.IsCommitted() {
		return true
	}
	return false
}

// deleteAttendanceRows removes every competing attendance row for a pair.
// Reports false when any delete failed so the caller skips the resolved
// count and the next sweep retries the pair.
func (r *Reconciler) deleteAttendanceRows(ctx context.Context, report *Report, rows []models.Attendance) bool {
	ok := true
	for _, a := range rows {
		if err := r.delete(ctx, report, "attendance", a.ID, r.store.DeleteAttendance); err != nil {
			ok = false
		}
	}
	return ok
}

func (r *Reconciler) delete(ctx context.Context, report *Report, what string, id uuid.UUID, fn func(context.Context, uuid.UUID) error) error {
	if r.dryRun {
		return nil
	}
	if err := fn(ctx, id); err != nil {
		r.recordError(report, "duplicate resolution: delete "+what, id, err)
		return err
	}
	return nil
}

func (r *Reconciler) recordError(report *Report, op string, id uuid.UUID, err error) {
	report.Failed++
	r.logger.Warn("reconciliation record skipped",
		zap.String("op", op),
		zap.String("record_id", id.String()),
		zap.Error(err),
	)
}
