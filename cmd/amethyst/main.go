// Command amethyst is a Gemini protocol server: TLS termination with
// per-host SNI certificates, one-line request parsing, host-and-prefix
// routing to resources, and the reference filesystem resource with
// .meta configuration and CGI support (spec.md §1). See spec.md §6 for
// the CLI/runtime contract this entrypoint implements.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/an-empty-string/amethyst/internal/accesslog"
	"github.com/an-empty-string/amethyst/internal/adminsrv"
	"github.com/an-empty-string/amethyst/internal/cache"
	_ "github.com/an-empty-string/amethyst/internal/cache/loader"
	"github.com/an-empty-string/amethyst/internal/config"
	"github.com/an-empty-string/amethyst/internal/ratelimit"
	_ "github.com/an-empty-string/amethyst/internal/resource"
	_ "github.com/an-empty-string/amethyst/internal/resource/fsres"
	"github.com/an-empty-string/amethyst/internal/server"
	"github.com/an-empty-string/amethyst/internal/tlsmgr"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <config-file>\n", os.Args[0])
		os.Exit(1)
	}
	configPath := os.Args[1]

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	tlsMgr, err := cfg.BuildTLSManager(logger)
	if err != nil {
		logger.Error("failed to build TLS manager", "error", err)
		os.Exit(1)
	}

	router, err := cfg.BuildRouter(logger)
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	counter, err := cache.NewFromConfig(cfg.RateLimit.Driver, cfg.RateLimit.Drivers)
	if err != nil {
		logger.Error("failed to build rate limit cache", "error", err)
		os.Exit(1)
	}
	rlCfg := ratelimit.DefaultConfig()
	if cfg.RateLimit.ConnectionsPerWindow > 0 {
		rlCfg.ConnectionsPerWindow = cfg.RateLimit.ConnectionsPerWindow
	}
	if cfg.RateLimit.WindowSeconds > 0 {
		rlCfg.Window = time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	}
	limiter := ratelimit.New(counter, rlCfg, logger)

	srvCfg := server.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Port),
		MaxConnections: cfg.MaxConnections,
	}
	srv := server.New(srvCfg, tlsMgr, router, limiter, logger)

	if cfg.AccessLog.SQLitePath != "" {
		accessLog, err := accesslog.Open(cfg.AccessLog.SQLitePath)
		if err != nil {
			logger.Error("failed to open access log", "error", err)
			os.Exit(1)
		}
		defer accessLog.Close()
		srv.SetAccessLog(accessLog)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var admin *adminsrv.Server
	if cfg.AdminAddr != "" {
		admin = adminsrv.New(cfg.AdminAddr, tlsmgr.SharedChallenges(), logger)
		admin.SetRouter(router)
		go func() {
			if err := admin.ListenAndServe(ctx); err != nil {
				logger.Error("admin surface error", "error", err)
			}
		}()
	}

	go handleReload(ctx, configPath, srv, admin, tlsMgr, logger)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("amethyst started", "port", cfg.Port)
	<-ctx.Done()
	logger.Info("shutdown signal received")
}
