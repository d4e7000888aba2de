package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/api"
	"github.com/shelfmarkapp/shelfmark-sync/internal/config"
	"github.com/shelfmarkapp/shelfmark-sync/internal/logger"
	"github.com/shelfmarkapp/shelfmark-sync/internal/service"
	"github.com/shelfmarkapp/shelfmark-sync/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the local HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	libraryService := do.MustInvoke[*service.LibraryService](i)
	queueService := do.MustInvoke[*service.QueueService](i)
	syncService := do.MustInvoke[*service.SyncService](i)
	healthService := do.MustInvoke[*service.HealthService](i)
	sessions := do.MustInvoke[*service.SessionHolder](i)

	sseHandler := sse.NewHandler(sseHandle.Manager, log.Logger)

	services := api.Services{
		Library:  libraryService,
		Queue:    queueService,
		Sync:     syncService,
		Health:   healthService,
		Sessions: sessions,
	}

	handler := api.NewServer(services, sseHandler, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
