package config

import (
	"os"
	"strconv"
	"time"

	infraconfig "receipts-service/internal/infrastructure/config"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port            string
	ShutdownTimeout time.Duration
	// Storage: pg | sqlite | memory
	Storage     string
	DatabaseURL string
	SQLitePath  string
	// Idempotency
	IdempotencyBackend string // store | redis
	WaitAttempts       int
	WaitDelay          time.Duration
	Coalesce           bool
	Retention          time.Duration
	// Redis (idempotency)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
	RedisLease    time.Duration
	// Worker
	WorkerPoll      time.Duration
	WorkerBatchSize int
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func msDef(key string, def time.Duration) time.Duration {
	ms := atoiDef(getEnv(key, ""), int(def.Milliseconds()))
	return time.Duration(ms) * time.Millisecond
}

func boolDef(key string, def bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return b
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                getEnv("ENV", "local"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnv("PORT", infraconfig.DefaultHTTPPort),
		ShutdownTimeout:    msDef("SHUTDOWN_TIMEOUT_MS", infraconfig.DefaultShutdownTimeout),
		Storage:            getEnv("STORAGE", "pg"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "receipts.db"),
		IdempotencyBackend: getEnv("IDEMPOTENCY_BACKEND", "store"),
		WaitAttempts:       atoiDef(getEnv("IDEMPOTENCY_WAIT_ATTEMPTS", "5"), 5),
		WaitDelay:          msDef("IDEMPOTENCY_WAIT_DELAY_MS", 50*time.Millisecond),
		Coalesce:           boolDef("IDEMPOTENCY_COALESCE", false),
		Retention:          msDef("IDEMPOTENCY_RETENTION_MS", 0),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(getEnv("REDIS_DB", "0"), 0),
		RedisTTL:           msDef("IDEMPOTENCY_TTL_MS", 24*time.Hour),
		RedisLease:         msDef("IDEMPOTENCY_LEASE_MS", infraconfig.DefaultRedisLease),
		WorkerPoll:         msDef("WORKER_POLL_MS", infraconfig.DefaultWorkerPoll),
		WorkerBatchSize:    atoiDef(getEnv("WORKER_BATCH_LIMIT", "500"), infraconfig.DefaultWorkerBatch),
	}
}
