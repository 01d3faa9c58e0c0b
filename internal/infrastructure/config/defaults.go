package config

import "time"

const (
	DefaultHTTPPort        = "8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultWorkerPoll      = 30 * time.Second
	DefaultWorkerBatch     = 500
	DefaultPGMaxConns      = 10
	DefaultPGMinConns      = 1
	DefaultPGLockTimeout   = 50 * time.Millisecond
	DefaultSQLiteBusy      = 5 * time.Second
	DefaultSQLiteTxBusy    = 10 * time.Millisecond
	DefaultRedisLease      = 30 * time.Second
)
