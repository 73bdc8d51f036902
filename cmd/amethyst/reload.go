package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/an-empty-string/amethyst/internal/adminsrv"
	"github.com/an-empty-string/amethyst/internal/config"
	"github.com/an-empty-string/amethyst/internal/server"
	"github.com/an-empty-string/amethyst/internal/tlsmgr"
)

// handleReload implements spec.md §4.9's SIGHUP reconfiguration: re-read
// the config file, rebuild the routing table, and clear every host's TLS
// context cache so the next handshake re-derives or reloads its
// certificate. In-flight connections are never disrupted — the router
// swap is a single atomic pointer store (gemini.Router is immutable once
// built), and ClearCache only affects future SNI lookups.
func handleReload(ctx context.Context, configPath string, srv *server.Server, admin *adminsrv.Server, tlsMgr *tlsmgr.Manager, logger *slog.Logger) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sighup:
			logger.Info("SIGHUP received, reloading configuration", "path", configPath)
			cfg, err := config.Load(configPath)
			if err != nil {
				logger.Error("reload failed: config load", "error", err)
				continue
			}

			router, err := cfg.BuildRouter(logger)
			if err != nil {
				logger.Error("reload failed: router build", "error", err)
				continue
			}

			srv.SetRouter(router)
			if admin != nil {
				admin.SetRouter(router)
			}
			tlsMgr.ClearCache()
			logger.Info("reload complete")
		}
	}
}
