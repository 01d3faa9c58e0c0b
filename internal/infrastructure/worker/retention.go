package worker

import (
	"context"
	"time"

	"receipts-service/internal/application"
	infraconfig "receipts-service/internal/infrastructure/config"

	"go.uber.org/zap"
)

var _ application.Worker = (*RetentionWorker)(nil)

// RetentionWorker periodically deletes resolved idempotency records older than
// Retention. Unresolved reservations are left to their owners.
type RetentionWorker struct {
	Records   application.RecordPurger
	Retention time.Duration

	PollEvery  time.Duration
	BatchLimit int
	Log        *zap.Logger
	Now        func() time.Time
}

func (w *RetentionWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	if w.Retention <= 0 {
		log.Info("retention_worker_disabled")
		<-ctx.Done()
		return
	}
	if w.PollEvery <= 0 {
		w.PollEvery = infraconfig.DefaultWorkerPoll
	}
	if w.BatchLimit <= 0 {
		w.BatchLimit = infraconfig.DefaultWorkerBatch
	}
	if w.Now == nil {
		w.Now = time.Now
	}

	t := time.NewTicker(w.PollEvery)
	defer t.Stop()

	log.Info("retention_worker_started",
		zap.Duration("poll_every", w.PollEvery),
		zap.Duration("retention", w.Retention),
	)
	for {
		select {
		case <-ctx.Done():
			log.Info("retention_worker_stopped")
			return
		case <-t.C:
			w.tick(ctx, log)
		}
	}
}

// tick drains expired records batch by batch until a short batch.
func (w *RetentionWorker) tick(ctx context.Context, log *zap.Logger) {
	cutoff := w.Now().Add(-w.Retention)
	var total int64
	for ctx.Err() == nil {
		n, err := w.Records.Purge(ctx, cutoff, w.BatchLimit)
		if err != nil {
			log.Warn("purge_failed", zap.Error(err))
			return
		}
		total += n
		if n < int64(w.BatchLimit) {
			break
		}
	}
	if total > 0 {
		log.Info("purge_done", zap.Int64("deleted", total), zap.Time("cutoff", cutoff))
	}
}
