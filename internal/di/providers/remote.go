package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/config"
	"github.com/shelfmarkapp/shelfmark-sync/internal/logger"
	"github.com/shelfmarkapp/shelfmark-sync/internal/remote"
)

// ProvideRemoteClient provides the client for the hosted store. The client id
// comes from the local database so the remote can tell this device's writes
// apart from other devices on the same account.
func ProvideRemoteClient(i do.Injector) (*remote.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	clientID, err := storeHandle.ClientID(context.Background())
	if err != nil {
		return nil, err
	}

	client := remote.New(remote.Config{
		BaseURL:  cfg.Remote.BaseURL,
		APIKey:   cfg.Remote.APIKey,
		ClientID: clientID,
		Timeout:  cfg.Remote.Timeout,
	}, log.Logger)

	if client.Configured() {
		log.Info("Remote store configured", "url", cfg.Remote.BaseURL, "client_id", clientID)
	} else {
		log.Info("No remote store configured, running offline only")
	}

	return client, nil
}
