package bootstrap

import (
	"context"
	"fmt"

	"receipts-service/internal/application"
	"receipts-service/internal/config"
	"receipts-service/internal/idempotency"
	httpserver "receipts-service/internal/infrastructure/http"
	"receipts-service/internal/infrastructure/logx"
	"receipts-service/internal/infrastructure/memory"
	"receipts-service/internal/infrastructure/pg"
	redisstore "receipts-service/internal/infrastructure/redis"
	"receipts-service/internal/infrastructure/sqlite"
	"receipts-service/internal/infrastructure/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend is everything a storage choice contributes: the receipt table, the
// reservation table living next to it and the unit of work that spans both.
type Backend struct {
	Name     string
	Receipts application.ReceiptRepo
	Records  idempotency.Store
	Purger   application.RecordPurger
	Transact idempotency.TransactFunc
	Ping     func(ctx context.Context) error
}

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

// ProvideBackend opens the storage selected by STORAGE. For pg the embedded
// migrations run before the backend is returned.
func ProvideBackend(ctx context.Context, log *zap.Logger, cfg config.Config) (Backend, func(), error) {
	switch cfg.Storage {
	case "pg":
		if cfg.DatabaseURL == "" {
			return Backend{}, func() {}, ErrMissingDBURL
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return Backend{}, func() {}, err
		}
		if err := pg.RunMigrations(ctx, db); err != nil {
			db.Close()
			return Backend{}, func() {}, err
		}
		records := pg.NewIdempotencyStore(db, cfg.WaitDelay)
		uow := &pg.UnitOfWork{Pool: db.Pool}
		cleanup := func() {
			log.Info("closing pg")
			db.Close()
		}
		return Backend{
			Name:     "pg",
			Receipts: pg.NewReceiptRepo(db),
			Records:  records,
			Purger:   records,
			Transact: uow.Do,
			Ping:     db.Ping,
		}, cleanup, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return Backend{}, func() {}, err
		}
		records := sqlite.NewIdempotencyStore(db)
		cleanup := func() {
			log.Info("closing sqlite")
			_ = db.Close()
		}
		return Backend{
			Name:     "sqlite",
			Receipts: sqlite.NewReceiptRepo(db),
			Records:  records,
			Purger:   records,
			Transact: db.Do,
			Ping:     db.Ping,
		}, cleanup, nil
	case "memory":
		records := memory.NewIdempotencyStore()
		return Backend{
			Name:     "memory",
			Receipts: memory.NewReceiptRepo(),
			Records:  records,
			Purger:   records,
			Transact: records.Transact,
			Ping:     func(context.Context) error { return nil },
		}, func() {}, nil
	default:
		return Backend{}, func() {}, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Storage)
	}
}

// ProvideRedisClient returns nil unless IDEMPOTENCY_BACKEND=redis.
func ProvideRedisClient(cfg config.Config) (*redis.Client, func(), error) {
	if cfg.IdempotencyBackend != "redis" {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

// ProvideIdempotencyStore picks the reservation table. With redis the backend
// transaction still wraps the operation so receipts commit before the result.
func ProvideIdempotencyStore(cfg config.Config, b Backend, client *redis.Client) (idempotency.Store, error) {
	switch cfg.IdempotencyBackend {
	case "", "store":
		return b.Records, nil
	case "redis":
		return idempotency.WithOuterTx(redisstore.New(client, cfg.RedisTTL, cfg.RedisLease), b.Transact), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIdemBackend, cfg.IdempotencyBackend)
	}
}

func ProvideCoordinator(store idempotency.Store, cfg config.Config, log *zap.Logger) *idempotency.Coordinator {
	opts := []idempotency.Option{
		idempotency.WithLogger(log),
		idempotency.WithWaitPolicy(idempotency.WaitPolicy{MaxAttempts: cfg.WaitAttempts, Delay: cfg.WaitDelay}),
	}
	if cfg.Coalesce {
		opts = append(opts, idempotency.WithCoalescing())
	}
	return idempotency.NewCoordinator(store, opts...)
}

func ProvideReceiptService(b Backend, c *idempotency.Coordinator) *application.ReceiptService {
	return application.NewReceiptService(b.Receipts, c)
}

func ProvideHTTPServer(svc *application.ReceiptService, b Backend) *httpserver.Server {
	srv := httpserver.NewServer(svc)
	srv.SetReadyCheck(b.Ping)
	return srv
}

func ProvideRetentionWorker(b Backend, cfg config.Config, log *zap.Logger) application.Worker {
	return &worker.RetentionWorker{
		Records:    b.Purger,
		Retention:  cfg.Retention,
		PollEvery:  cfg.WorkerPoll,
		BatchLimit: cfg.WorkerBatchSize,
		Log:        log.With(zap.String("storage", b.Name)),
	}
}
