package idempotency

import "errors"

var (
	// ErrDuplicateKey is returned by Store.Reserve when another caller already
	// owns the key. The coordinator turns it into a wait; callers never see it.
	ErrDuplicateKey = errors.New("idempotency: key already reserved")

	// ErrStoreBusy is returned by Store.Transact when the store could not open
	// a write transaction in time, for example a SQLite database locked by
	// another writer. The coordinator retries the reservation within the wait
	// bound; callers never see it.
	ErrStoreBusy = errors.New("idempotency: store busy")

	// ErrCoordinationTimeout means the wait bound was exhausted before the owner
	// committed a result. Retrying with the same key is safe.
	ErrCoordinationTimeout = errors.New("idempotency: timed out waiting for concurrent request")

	// ErrResultAlreadySet signals a second write to a resolved record. It is a
	// bug, not a retryable condition.
	ErrResultAlreadySet = errors.New("idempotency: result already set")

	ErrInvalidKey = errors.New("idempotency: invalid key")
)
