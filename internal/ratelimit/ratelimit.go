// Package ratelimit provides per-peer-IP connection admission control
// (§B.6), generalizing the teacher's HTTP request-rate limiter (one
// increment per HTTP request, keyed by a trusted-proxy-derived client IP)
// to one increment per accepted TCP connection, keyed by the raw peer IP
// — Gemini has no forwarding headers to trust, and admission happens
// before any protocol data has been read.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/an-empty-string/amethyst/internal/cache"
)

// Config controls the admission window.
type Config struct {
	// ConnectionsPerWindow is the maximum number of connections a single
	// peer IP may open within Window before being refused.
	ConnectionsPerWindow int64
	Window               time.Duration
}

// DefaultConfig allows 120 connections per minute per peer: generous
// enough for a page with several inline links fetched in quick
// succession, while still bounding one abusive peer.
func DefaultConfig() Config {
	return Config{ConnectionsPerWindow: 120, Window: time.Minute}
}

// Limiter admits or refuses connections by peer IP.
type Limiter struct {
	counter cache.Counter
	cfg     Config
	logger  *slog.Logger
}

// New builds a Limiter backed by counter. A zero Config is replaced with
// DefaultConfig.
func New(counter cache.Counter, cfg Config, logger *slog.Logger) *Limiter {
	if cfg.ConnectionsPerWindow == 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{counter: counter, cfg: cfg, logger: logger}
}

// Allow charges one connection against peerIP's budget and reports
// whether it falls within the configured window. On a counter error the
// connection is admitted — a rate limiter that fails closed would turn a
// cache-backend outage into a full server outage.
func (l *Limiter) Allow(ctx context.Context, peerIP string) bool {
	count, err := l.counter.Increment(ctx, "connlimit:"+peerIP, 1, l.cfg.Window)
	if err != nil {
		l.logger.Warn("rate limit check failed, admitting connection", "peer", peerIP, "error", err)
		return true
	}
	return count <= l.cfg.ConnectionsPerWindow
}
