package application

import "context"

// Worker is a background loop run by cmd/worker, such as record retention.
// Start blocks until ctx is canceled.
type Worker interface {
	Start(ctx context.Context)
}
