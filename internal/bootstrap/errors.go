package bootstrap

import "errors"

var (
	ErrMissingDBURL       = errors.New("DATABASE_URL is required for STORAGE=pg")
	ErrUnknownStorage     = errors.New("unknown STORAGE")
	ErrUnknownIdemBackend = errors.New("unknown IDEMPOTENCY_BACKEND")
)
