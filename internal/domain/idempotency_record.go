package domain

import "time"

// IdempotencyRecord is one row of the reservation table. Result stays nil
// until the owning execution commits it.
type IdempotencyRecord struct {
	ID        int64
	Key       string
	Result    []byte
	CreatedAt time.Time
}

func (r IdempotencyRecord) Resolved() bool { return r.Result != nil }
