package providers

import (
	"github.com/samber/do/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/config"
	"github.com/shelfmarkapp/shelfmark-sync/internal/logger"
	"github.com/shelfmarkapp/shelfmark-sync/internal/remote"
	"github.com/shelfmarkapp/shelfmark-sync/internal/service"
	"github.com/shelfmarkapp/shelfmark-sync/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideSessionHolder provides the holder for the last authenticated session.
func ProvideSessionHolder(i do.Injector) (*service.SessionHolder, error) {
	return service.NewSessionHolder(), nil
}

// ProvideLibraryService provides the library service.
func ProvideLibraryService(i do.Injector) (*service.LibraryService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*remote.Client](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLibraryService(storeHandle.Store, client, validator, log.Logger), nil
}

// ProvideQueueService provides the queue service.
func ProvideQueueService(i do.Injector) (*service.QueueService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewQueueService(storeHandle.Store, log.Logger), nil
}

// ProvideSyncService provides the sync service.
func ProvideSyncService(i do.Injector) (*service.SyncService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*remote.Client](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSyncService(storeHandle.Store, client, sseHandle.Manager, log.Logger, cfg.Sync.BatchSize), nil
}

// ProvideHealthService provides the remote health service.
func ProvideHealthService(i do.Injector) (*service.HealthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*remote.Client](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewHealthService(storeHandle.Store, client, log.Logger), nil
}
