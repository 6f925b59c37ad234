package models

import "errors"

// ErrDuplicateCommitment is returned when a marshal is already committed to
// an event through the same ledger. Cross-ledger overlap is merged, never
// same-ledger overlap.
var ErrDuplicateCommitment = errors.New("marshal already committed to event")
