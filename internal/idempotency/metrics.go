package idempotency

import "github.com/VictoriaMetrics/metrics"

var (
	bypassTotal             = metrics.NewCounter(`idempotency_bypass_total`)
	executionsTotal         = metrics.NewCounter(`idempotency_executions_total`)
	fastReplaysTotal        = metrics.NewCounter(`idempotency_replays_total{path="fast"}`)
	waitReplaysTotal        = metrics.NewCounter(`idempotency_replays_total{path="wait"}`)
	conflictsTotal          = metrics.NewCounter(`idempotency_conflicts_total`)
	storeBusyTotal          = metrics.NewCounter(`idempotency_store_busy_total`)
	timeoutsTotal           = metrics.NewCounter(`idempotency_timeouts_total`)
	operationFailuresTotal  = metrics.NewCounter(`idempotency_operation_failures_total`)
	protocolViolationsTotal = metrics.NewCounter(`idempotency_protocol_violations_total`)
	waitDuration            = metrics.NewHistogram(`idempotency_wait_duration_seconds`)
)
