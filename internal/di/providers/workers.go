package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/config"
	"github.com/shelfmarkapp/shelfmark-sync/internal/logger"
	"github.com/shelfmarkapp/shelfmark-sync/internal/service"
)

// FlushWorker periodically drains the sync queues for the last authenticated
// session, so queued work catches up without any user action.
type FlushWorker struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (w *FlushWorker) Shutdown() error {
	w.cancel()
	return nil
}

// ProvideFlushWorker provides the background flush worker.
func ProvideFlushWorker(i do.Injector) (*FlushWorker, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	syncService := do.MustInvoke[*service.SyncService](i)
	sessions := do.MustInvoke[*service.SessionHolder](i)

	interval := cfg.Sync.FlushInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				result, err := syncService.FlushAll(ctx, sessions.Current())
				if err != nil {
					log.Warn("Background flush failed", "error", err)
					continue
				}
				if result.Synced > 0 || result.Failed > 0 {
					log.Info("Background flush completed",
						"synced", result.Synced,
						"failed", result.Failed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Background flush worker started", "interval", interval.String())

	return &FlushWorker{cancel: cancel}, nil
}
