//go:build wireinject

package bootstrap

import (
	"context"

	"receipts-service/internal/application"
	"receipts-service/internal/idempotency"
	httpserver "receipts-service/internal/infrastructure/http"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideConfig,
	ProvideBackend,
)

var idempotencySet = wire.NewSet(
	ProvideRedisClient,
	ProvideIdempotencyStore,
	ProvideCoordinator,
)

// API injector: builds *httpserver.Server + Cleanup
func InitAPI(ctx context.Context) (*httpserver.Server, func(), error) {
	wire.Build(
		infraSet,
		idempotencySet,
		ProvideReceiptService,
		ProvideHTTPServer,
	)
	return nil, nil, nil
}

// Worker injector: builds application.Worker + Cleanup
func InitWorker(ctx context.Context) (application.Worker, func(), error) {
	wire.Build(
		infraSet,
		ProvideRetentionWorker,
	)
	return nil, nil, nil
}

// Backend injector used by the admin CLI.
func InitBackend(ctx context.Context) (Backend, func(), error) {
	wire.Build(infraSet)
	return Backend{}, nil, nil
}

// Store injector used by the admin CLI.
func InitStore(ctx context.Context) (idempotency.Store, func(), error) {
	wire.Build(infraSet, ProvideRedisClient, ProvideIdempotencyStore)
	return nil, nil, nil
}
