// Package di provides dependency injection configuration for the Shelfmark
// sync daemon.
package di

import (
	"github.com/samber/do/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/config"
	"github.com/shelfmarkapp/shelfmark-sync/internal/di/providers"
	"github.com/shelfmarkapp/shelfmark-sync/internal/logger"
	"github.com/shelfmarkapp/shelfmark-sync/internal/remote"
	"github.com/shelfmarkapp/shelfmark-sync/internal/service"
	"github.com/shelfmarkapp/shelfmark-sync/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideValidator)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)

	// Remote layer
	do.Provide(injector, providers.ProvideRemoteClient)

	// Business services
	do.Provide(injector, providers.ProvideSessionHolder)
	do.Provide(injector, providers.ProvideLibraryService)
	do.Provide(injector, providers.ProvideQueueService)
	do.Provide(injector, providers.ProvideSyncService)
	do.Provide(injector, providers.ProvideHealthService)

	// Workers
	do.Provide(injector, providers.ProvideFlushWorker)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services. This triggers lazy initialization of
// everything the daemon runs.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*validation.Validator](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*remote.Client](injector)

	_ = do.MustInvoke[*service.SessionHolder](injector)
	_ = do.MustInvoke[*service.LibraryService](injector)
	_ = do.MustInvoke[*service.QueueService](injector)
	_ = do.MustInvoke[*service.SyncService](injector)
	_ = do.MustInvoke[*service.HealthService](injector)

	_ = do.MustInvoke[*providers.FlushWorker](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
