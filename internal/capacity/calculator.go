// Package capacity computes the de-duplicated committed-marshal count for
// an event and guards capacity-sensitive mutations against the event's
// max_marshals ceiling.
package capacity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrCapacityExceeded is returned when a commit would breach max_marshals.
// It is a business rejection, not a system error.
var ErrCapacityExceeded = errors.New("event marshal capacity exceeded")

// Count is the capacity query result for an event. Available may be
// negative when an event is over-committed; callers clamp it, not the
// calculator.
type Count struct {
	Accepted    int `json:"accepted"`
	Available   int `json:"available"`
	MaxMarshals int `json:"max_marshals"`
}

// Store is the slice of persistence the calculator reads.
type Store interface {
	// EventMaxMarshals returns the capacity ceiling for an event.
	// found is false when the event does not exist.
	EventMaxMarshals(ctx context.Context, eventID uuid.UUID) (max int, found bool, err error)
	// ApprovedAttendanceEmployeeIDs returns the employee IDs of users with
	// an approved attendance for the event.
	ApprovedAttendanceEmployeeIDs(ctx context.Context, eventID uuid.UUID) ([]string, error)
	// CommittedInvitationEmployeeIDs returns the employee IDs of marshals
	// with an accepted or approved event_marshals row for the event.
	CommittedInvitationEmployeeIDs(ctx context.Context, eventID uuid.UUID) ([]string, error)
}

// Calculator computes committed-marshal counts. The two ledgers are keyed
// independently (user_id vs marshal_id) but both reference the same user;
// joining on the business employee_id is what collapses a marshal present
// in both ledgers into one committed slot.
type Calculator struct {
	store  Store
	logger *zap.Logger
}

// NewCalculator creates a calculator over the given store.
func NewCalculator(store Store, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{store: store, logger: logger}
}

// Count returns the de-duplicated committed count against the event's
// capacity. A missing event yields a zero Count and no error: callers
// degrade to "no capacity" instead of failing. This asymmetry with the
// rest of the API is deliberate and relied upon by the guard.
func (c *Calculator) Count(ctx context.Context, eventID uuid.UUID) (Count, error) {
	max, found, err := c.store.EventMaxMarshals(ctx, eventID)
	if err != nil {
		return Count{}, err
	}
	if !found {
		c.logger.Debug("capacity query for unknown event", zap.String("event_id", eventID.String()))
		return Count{}, nil
	}

	attendees, err := c.store.ApprovedAttendanceEmployeeIDs(ctx, eventID)
	if err != nil {
		return Count{}, err
	}
	invited, err := c.store.CommittedInvitationEmployeeIDs(ctx, eventID)
	if err != nil {
		return Count{}, err
	}

	committed := make(map[string]struct{}, len(attendees)+len(invited))
	for _, id := range attendees {
		committed[id] = struct{}{}
	}
	for _, id := range invited {
		committed[id] = struct{}{}
	}

	return Count{
		Accepted:    len(committed),
		Available:   max - len(committed),
		MaxMarshals: max,
	}, nil
}

// Guard rejects commit operations once the committed count has reached the
// event's ceiling. It is a read-then-decide precondition; the transactional
// variant in CheckTx is what makes the check atomic with the write.
type Guard struct {
	calc *Calculator
}

// NewGuard creates a capacity guard over a calculator.
func NewGuard(calc *Calculator) *Guard {
	return &Guard{calc: calc}
}

// Check returns ErrCapacityExceeded when the event has no remaining
// capacity. Unknown events report zero capacity and are rejected the same
// way, per the calculator's fail-safe.
func (g *Guard) Check(ctx context.Context, eventID uuid.UUID) error {
	count, err := g.calc.Count(ctx, eventID)
	if err != nil {
		return err
	}
	if count.Accepted >= count.MaxMarshals {
		return ErrCapacityExceeded
	}
	return nil
}
