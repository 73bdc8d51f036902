// Package server implements the Gemini connection server (spec §4.8):
// a TLS listener accepting one request per connection, bounded by a
// connection-admission rate limiter and a weighted semaphore, generalized
// from the teacher's HTTP server lifecycle (internal/platform/server)
// into the raw accept-loop shape a line-oriented protocol without
// persistent connections or request multiplexing actually needs.
package server

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/an-empty-string/amethyst/internal/accesslog"
	"github.com/an-empty-string/amethyst/internal/gemini"
	"github.com/an-empty-string/amethyst/internal/ratelimit"
	"github.com/an-empty-string/amethyst/internal/tlsmgr"
)

const (
	// maxURLBytes is the largest request line spec.md allows, excluding
	// the CRLF terminator.
	maxURLBytes = 1024

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 30 * time.Second

	defaultPort = 1965
)

var (
	errURLTooLong = errors.New("URL too long!")
	errBadUTF8    = errors.New("URL must be UTF-8")
)

// Config controls one Server's listener and admission policy.
type Config struct {
	// Addr is the TCP listen address, e.g. ":1965".
	Addr string
	// MaxConnections bounds concurrently-handled connections. 0 uses a
	// generous default rather than being unbounded outright, so a
	// misconfigured deployment still has some backpressure.
	MaxConnections int64
}

// DefaultConfig returns the conventional Gemini port with a generous
// concurrency bound.
func DefaultConfig() Config {
	return Config{Addr: fmt.Sprintf(":%d", defaultPort), MaxConnections: 4096}
}

// Server is the Gemini connection server: it owns the TLS listener, the
// live routing table, and admission control, and hands each accepted
// connection to the router for exactly one request/response cycle.
type Server struct {
	cfg     Config
	tlsMgr  *tlsmgr.Manager
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	sem     *semaphore.Weighted
	port    int

	router    atomic.Pointer[gemini.Router]
	accessLog atomic.Pointer[accesslog.Log]

	mu       sync.Mutex
	listener net.Listener
}

// New builds a Server. limiter may be nil to disable connection-level
// admission control entirely.
func New(cfg Config, tlsMgr *tlsmgr.Manager, router *gemini.Router, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultConfig().MaxConnections
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		tlsMgr:  tlsMgr,
		limiter: limiter,
		logger:  logger.With("component", "server"),
		sem:     semaphore.NewWeighted(cfg.MaxConnections),
		port:    parsePort(cfg.Addr, defaultPort),
	}
	s.router.Store(router)
	return s
}

// Port implements gemini.ServerInfo.
func (s *Server) Port() int { return s.port }

// SetRouter atomically replaces the live routing table — the Go
// equivalent of spec.md §4.9's "Config.load replaces hosts and rebuilds
// the router", safe to call concurrently with in-flight requests since
// readers load the pointer once per request.
func (s *Server) SetRouter(router *gemini.Router) {
	s.router.Store(router)
}

// SetAccessLog installs the optional persisted access log (SPEC_FULL
// §B.5). A nil log (the default) disables persistence; only the
// mandatory stdout line is produced.
func (s *Server) SetAccessLog(log *accesslog.Log) {
	s.accessLog.Store(log)
}

// ListenAndServe opens the TLS listener and serves connections until ctx
// is cancelled or Shutdown is called. It always returns a non-nil error,
// except on a clean shutdown (ctx cancellation or explicit Shutdown),
// where it returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	shuttingDown := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-shuttingDown:
		}
	}()
	defer close(shuttingDown)

	s.logger.Info("listening", "addr", s.cfg.Addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept error", "error", err)
			continue
		}

		peerHost := peerHostOf(conn)
		if s.limiter != nil && !s.limiter.Allow(ctx, peerHost) {
			s.logger.Warn("connection refused by rate limiter", "peer", peerHost)
			conn.Close()
			continue
		}

		if !s.sem.TryAcquire(1) {
			s.logger.Warn("connection refused: at capacity", "peer", peerHost)
			conn.Close()
			continue
		}

		go func() {
			defer s.sem.Release(1)
			s.handle(ctx, conn)
		}()
	}
}

// Shutdown closes the listener, causing ListenAndServe to return. It does
// not wait for in-flight connections — spec.md §5 says reload (and, by
// extension, shutdown of the listening socket) must not disrupt requests
// already being served.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func peerHostOf(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func parsePort(addr string, fallback int) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(portStr)
	if err != nil {
		return fallback
	}
	return n
}

// handle runs the full lifecycle of one accepted connection: TLS
// handshake, one request line read, routing, one response write, close.
// Ordering is strictly sequential within a connection, per spec.md §5.
func (s *Server) handle(ctx context.Context, raw net.Conn) {
	defer raw.Close()

	connID := uuid.NewString()
	logger := s.logger.With("conn_id", connID, "peer", raw.RemoteAddr().String())

	tlsConn := tls.Server(raw, s.tlsMgr.ServerTLSConfig())
	tlsConn.SetDeadline(time.Now().Add(handshakeTimeout))
	if err := tlsConn.Handshake(); err != nil {
		logger.Debug("tls handshake failed", "error", err)
		return
	}

	conn := &gemini.Connection{
		ID:       connID,
		Server:   s,
		PeerAddr: raw.RemoteAddr(),
	}
	if certs := tlsConn.ConnectionState().PeerCertificates; len(certs) > 0 {
		conn.PeerCert = certs[0]
	}

	start := time.Now()
	rawURL, err := readRequestLine(tlsConn)
	if err != nil {
		if resp, ok := requestLineErrorResponse(err); ok {
			tlsConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			writeResponse(tlsConn, resp)
		}
		logger.Debug("request line read failed", "error", err)
		return
	}

	reqCtx := &gemini.Context{Ctx: ctx, Conn: conn}
	resp := s.route(reqCtx, rawURL, logger)

	tlsConn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := writeResponse(tlsConn, resp); err != nil {
		logger.Warn("write error", "error", err)
	}

	logger.Info(fmt.Sprintf("%s %s %s", rawURL, resp.Status, resp.Meta),
		"url", rawURL,
		"status", int(resp.Status),
		"status_name", resp.Status.Name(),
		"meta", resp.Meta,
		"duration", time.Since(start),
	)

	if log := s.accessLog.Load(); log != nil {
		fingerprint := ""
		if conn.PeerCert != nil {
			fingerprint = fmt.Sprintf("%x", sha256.Sum256(conn.PeerCert.Raw))
		}
		entry := accesslog.Entry{
			Timestamp:           start,
			ConnID:              connID,
			Host:                reqCtx.Host,
			Path:                reqCtx.OrigPath,
			Status:              int(resp.Status),
			Meta:                resp.Meta,
			PeerCertFingerprint: fingerprint,
		}
		if err := log.Record(ctx, entry); err != nil {
			logger.Warn("access log write failed", "error", err)
		}
	}
}

// route delegates to the live router, converting any panic a resource
// lets escape into a TEMPORARY_FAILURE response — the boundary
// internal/gemini's Resource doc comment promises exists at this layer.
func (s *Server) route(reqCtx *gemini.Context, rawURL string, logger *slog.Logger) (resp gemini.Response) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic handling request", "panic", p, "url", rawURL)
			resp = gemini.Fail(gemini.TemporaryFailure, "Internal server error")
		}
	}()

	router := s.router.Load()
	return router.Route(reqCtx, rawURL)
}

// readRequestLine reads up to maxURLBytes of request line, requiring a
// CRLF terminator and valid UTF-8, per spec.md §4.8 steps 1-2.
func readRequestLine(conn net.Conn) (string, error) {
	r := bufio.NewReader(conn)
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' && len(buf) > 0 && buf[len(buf)-1] == '\r' {
			buf = buf[:len(buf)-1]
			break
		}
		buf = append(buf, b)
		// The terminator's CR may sit one byte past the URL limit.
		if len(buf) > maxURLBytes+1 || (len(buf) == maxURLBytes+1 && b != '\r') {
			return "", errURLTooLong
		}
	}
	if !utf8.Valid(buf) {
		return "", errBadUTF8
	}
	return string(buf), nil
}

// requestLineErrorResponse maps a readRequestLine error to a response, if
// one is well-defined. Connection-level errors (EOF, reset, timeout) have
// no well-defined response — the peer is already gone.
func requestLineErrorResponse(err error) (gemini.Response, bool) {
	switch {
	case errors.Is(err, errURLTooLong):
		return gemini.Fail(gemini.BadRequest, "URL too long!"), true
	case errors.Is(err, errBadUTF8):
		return gemini.Fail(gemini.BadRequest, "URL must be UTF-8"), true
	default:
		return gemini.Response{}, false
	}
}

// writeResponse writes the status line, and — for success statuses only
// — the body, per spec.md §4.8 step 4.
func writeResponse(w io.Writer, resp gemini.Response) error {
	header := fmt.Sprintf("%d %s\r\n", int(resp.Status), resp.Meta)
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if resp.Status.IsSuccess() && len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			return err
		}
	}
	return nil
}
