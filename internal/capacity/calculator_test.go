package capacity

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	max       int
	found     bool
	attendees []string
	invited   []string
	err       error
}

func (s *stubStore) EventMaxMarshals(_ context.Context, _ uuid.UUID) (int, bool, error) {
	return s.max, s.found, s.err
}

func (s *stubStore) ApprovedAttendanceEmployeeIDs(_ context.Context, _ uuid.UUID) ([]string, error) {
	return s.attendees, s.err
}

func (s *stubStore) CommittedInvitationEmployeeIDs(_ context.Context, _ uuid.UUID) ([]string, error) {
	return s.invited, s.err
}

func TestCount_DeduplicatesAcrossLedgers(t *testing.T) {
	store := &stubStore{
		max:       10,
		found:     true,
		attendees: []string{"EMP-001", "EMP-002", "EMP-003"},
		invited:   []string{"EMP-002", "EMP-004"},
	}
	calc := NewCalculator(store, nil)

	count, err := calc.Count(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 4, count.Accepted)
	assert.Equal(t, 6, count.Available)
	assert.Equal(t, 10, count.MaxMarshals)
}

func TestCount_SingleLedgerOnly(t *testing.T) {
	store := &stubStore{
		max:       5,
		found:     true,
		attendees: []string{"EMP-001"},
	}
	calc := NewCalculator(store, nil)

	count, err := calc.Count(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, count.Accepted)
	assert.Equal(t, 4, count.Available)
}

func TestCount_UnknownEventReturnsZero(t *testing.T) {
	store := &stubStore{found: false}
	calc := NewCalculator(store, nil)

	count, err := calc.Count(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, Count{}, count)
}

func TestCount_OverCommittedEventGoesNegative(t *testing.T) {
	store := &stubStore{
		max:       2,
		found:     true,
		attendees: []string{"EMP-001", "EMP-002"},
		invited:   []string{"EMP-003"},
	}
	calc := NewCalculator(store, nil)

	count, err := calc.Count(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, count.Accepted)
	assert.Equal(t, -1, count.Available)
}

func TestCount_StoreErrorPropagates(t *testing.T) {
	store := &stubStore{err: errors.New("connection refused")}
	calc := NewCalculator(store, nil)

	_, err := calc.Count(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestGuard_AllowsWhenCapacityRemains(t *testing.T) {
	store := &stubStore{max: 2, found: true, attendees: []string{"EMP-001"}}
	guard := NewGuard(NewCalculator(store, nil))

	assert.NoError(t, guard.Check(context.Background(), uuid.New()))
}

func TestGuard_RejectsAtCapacity(t *testing.T) {
	store := &stubStore{
		max:       1,
		found:     true,
		attendees: []string{"EMP-001"},
	}
	guard := NewGuard(NewCalculator(store, nil))

	err := guard.Check(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestGuard_DuplicateInBothLedgersDoesNotFillEvent(t *testing.T) {
	// One marshal in both ledgers occupies one slot, not two.
	store := &stubStore{
		max:       2,
		found:     true,
		attendees: []string{"EMP-001"},
		invited:   []string{"EMP-001"},
	}
	guard := NewGuard(NewCalculator(store, nil))

	assert.NoError(t, guard.Check(context.Background(), uuid.New()))
}

func TestGuard_RejectsUnknownEvent(t *testing.T) {
	store := &stubStore{found: false}
	guard := NewGuard(NewCalculator(store, nil))

	err := guard.Check(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}
