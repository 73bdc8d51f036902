// Package adminsrv is the optional operator-facing HTTP surface
// (SPEC_FULL.md §B.2): health checks, a debug routing dump, and the ACME
// HTTP-01 challenge responder. It never serves Gemini content — a
// disjoint management plane on its own port, generalizing the teacher's
// internal/platform/server chi wiring (internal/wellknown's
// chi.NewRouter + plain http.HandlerFunc routes is the closest shape)
// from OCM HTTP endpoints to admin endpoints.
package adminsrv

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/an-empty-string/amethyst/internal/gemini"
	"github.com/an-empty-string/amethyst/internal/tlsmgr"
)

// Server is the admin HTTP listener.
type Server struct {
	addr       string
	logger     *slog.Logger
	httpServer *http.Server
	router     atomic.Pointer[gemini.Router]
	challenges *tlsmgr.HTTP01Challenges
	ready      atomic.Bool
}

// New builds an admin server bound to addr. challenges may be nil if no
// host uses ACME mode, in which case the challenge route 404s.
func New(addr string, challenges *tlsmgr.HTTP01Challenges, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		logger:     logger.With("component", "adminsrv"),
		challenges: challenges,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/debug/hosts", s.handleDebugHosts)
	r.Get("/.well-known/acme-challenge/{token}", s.handleACMEChallenge)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// SetRouter installs the live Gemini routing table, used by /debug/hosts
// and to flip /healthz ready once a config has loaded successfully.
func (s *Server) SetRouter(router *gemini.Router) {
	s.router.Store(router)
	s.ready.Store(true)
}

// ListenAndServe blocks serving admin HTTP traffic until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.httpServer.Shutdown(context.Background())
	}()

	s.logger.Info("admin surface listening", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type hostDump struct {
	Host   string   `json:"host"`
	Mounts []string `json:"mounts"`
}

func (s *Server) handleDebugHosts(w http.ResponseWriter, r *http.Request) {
	router := s.router.Load()
	if router == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	dump := make([]hostDump, 0, len(router.Hosts))
	for _, hr := range router.Hosts {
		hd := hostDump{Host: hr.Host}
		for _, m := range hr.Mounts {
			hd.Mounts = append(hd.Mounts, m.PrefixPath)
		}
		dump = append(dump, hd)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dump)
}

func (s *Server) handleACMEChallenge(w http.ResponseWriter, r *http.Request) {
	if s.challenges == nil {
		http.NotFound(w, r)
		return
	}
	token := chi.URLParam(r, "token")
	keyAuth, ok := s.challenges.KeyAuthorization(token)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(keyAuth))
}
