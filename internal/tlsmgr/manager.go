package tlsmgr

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Mode selects how a host's certificate is obtained.
type Mode string

const (
	// ModeAuto issues and renews a self-signed certificate locally.
	ModeAuto Mode = "auto"
	// ModeStatic loads an operator-supplied certificate/key pair as-is.
	ModeStatic Mode = "static"
	// ModeACME obtains and renews a certificate from an ACME CA (additive
	// to spec.md's auto/static split; see SPEC_FULL.md §B.1).
	ModeACME Mode = "acme"
)

// HostTLSConfig is one host's TLS policy, as decoded from configuration.
type HostTLSConfig struct {
	// Hosts is the set of hostnames this certificate must cover; Hosts[0]
	// becomes the certificate's Common Name in auto mode.
	Hosts []string
	Mode  Mode

	CertPath string
	KeyPath  string

	ACMEEmail      string
	ACMEDirectory  string
	ACMEStorageDir string
}

// cacheEntry holds a derived certificate and its cache expiry. Expiry is
// the zero Time for "valid until reconfigure" (static mode).
type cacheEntry struct {
	cert   *tls.Certificate
	expiry time.Time // zero means no expiry
}

func (e *cacheEntry) expired() bool {
	return !e.expiry.IsZero() && !e.expiry.After(time.Now())
}

// hostSlot is the manager's per-host state: its configuration plus a
// single-slot cache guarded by its own lock, so one host's re-derivation
// never blocks another's handshake.
type hostSlot struct {
	cfg    HostTLSConfig
	logger *slog.Logger

	mu    sync.Mutex
	cache *cacheEntry
	acme  *acmeManager
}

// Manager dispatches SNI handshakes to per-host certificate state and
// implements spec.md §4.3's context cache and renewal policy.
type Manager struct {
	logger *slog.Logger

	mu    sync.RWMutex
	hosts map[string]*hostSlot // keyed by normalized primary host
}

// NewManager builds an empty Manager. Call AddHost for each configured
// host before serving traffic.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger, hosts: make(map[string]*hostSlot)}
}

// AddHost registers (or replaces) the TLS policy for a set of hostnames,
// keyed by its primary (first) host.
func (m *Manager) AddHost(cfg HostTLSConfig) error {
	if len(cfg.Hosts) == 0 {
		return errNoHosts
	}
	slot := &hostSlot{cfg: cfg, logger: m.logger.With("tls_host", cfg.Hosts[0])}
	if cfg.Mode == ModeACME {
		slot.acme = newACMEManager(cfg, slot.logger)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts[normalizeHostKey(cfg.Hosts[0])] = slot
	return nil
}

// ClearCache invalidates every cached certificate, forcing the next
// handshake for each host to re-derive. This is what a SIGHUP reload
// calls after replacing the routing table.
func (m *Manager) ClearCache() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, slot := range m.hosts {
		slot.mu.Lock()
		slot.cache = nil
		slot.mu.Unlock()
	}
}

// ServerTLSConfig returns the partial, SNI-dispatching *tls.Config to
// install on the listener. Per spec.md §4.3 it disables TLS <= 1.1,
// requests but does not require a client certificate, and never verifies
// the client certificate's hostname (Gemini client certs are identity
// tokens, not hostname-bound credentials).
func (m *Manager) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		ClientAuth:     tls.RequestClientCert,
		GetCertificate: m.getCertificate,
	}
}

// getCertificate is the SNI callback. An unknown host fails the
// handshake (the caller's tls.Config carries no fallback certificate, so
// Go's runtime emits its own handshake_failure alert). A lookup that
// succeeds but whose context construction errors logs and returns the
// error, which has the same effect: the handshake fails.
func (m *Manager) getCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	host := normalizeHostKey(hello.ServerName)

	m.mu.RLock()
	slot, ok := m.hosts[host]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tlsmgr: no certificate configured for %q", hello.ServerName)
	}

	return slot.certificate()
}

// certificate returns the cached certificate if unexpired, otherwise
// re-derives it via this host's policy and re-caches.
func (s *hostSlot) certificate() (*tls.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache != nil && !s.cache.expired() {
		return s.cache.cert, nil
	}

	cert, expiry, err := s.derive()
	if err != nil {
		s.logger.Error("failed to derive TLS certificate", "error", err)
		return nil, err
	}

	s.cache = &cacheEntry{cert: cert, expiry: expiry}
	return cert, nil
}

func (s *hostSlot) derive() (*tls.Certificate, time.Time, error) {
	switch s.cfg.Mode {
	case ModeStatic:
		cert, err := tls.LoadX509KeyPair(s.cfg.CertPath, s.cfg.KeyPath)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("static cert: %w", err)
		}
		// No expiry: valid until an explicit reconfigure clears the cache.
		return &cert, time.Time{}, nil

	case ModeACME:
		cert, err := s.acme.certificate()
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("acme cert: %w", err)
		}
		return cert, time.Time{}, nil

	case ModeAuto, "":
		cert, err := loadOrIssueSelfSigned(s.cfg.Hosts, s.cfg.CertPath, s.cfg.KeyPath)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("self-signed cert: %w", err)
		}
		leaf := cert.Leaf
		if leaf == nil {
			parsed, err := parseLeaf(cert.Certificate[0])
			if err != nil {
				return nil, time.Time{}, err
			}
			leaf = parsed
		}
		return &cert, leaf.NotAfter, nil

	default:
		return nil, time.Time{}, fmt.Errorf("unknown TLS mode %q", s.cfg.Mode)
	}
}
