package tlsmgr

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

const legoProductionURL = "https://acme-v02.api.letsencrypt.org/directory"

// acmeUser implements lego's registration.User.
type acmeUser struct {
	Email        string                 `json:"email"`
	Registration *registration.Resource `json:"registration"`
	key          crypto.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.Email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.Registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

// HTTP01Challenges is the shared token store mounted on the admin HTTP
// surface (SPEC_FULL.md §B.2) at /.well-known/acme-challenge/. A single
// store is shared by every acmeManager, since the HTTP listener is
// process-wide but certificates are per-host.
type HTTP01Challenges struct {
	tokens sync.Map // token -> keyAuthorization
}

func (p *HTTP01Challenges) Present(domain, token, keyAuth string) error {
	p.tokens.Store(token, keyAuth)
	return nil
}

func (p *HTTP01Challenges) CleanUp(domain, token, keyAuth string) error {
	p.tokens.Delete(token)
	return nil
}

// KeyAuthorization looks up a presented challenge token, for the admin
// HTTP handler to serve.
func (p *HTTP01Challenges) KeyAuthorization(token string) (string, bool) {
	v, ok := p.tokens.Load(token)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// sharedChallenges is created at package initialization. cmd/amethyst
// hands it to the admin HTTP surface through SharedChallenges, and every
// acmeManager installs it as its HTTP-01 provider when it first obtains a
// certificate.
var sharedChallenges = &HTTP01Challenges{}

// SharedChallenges returns the process-wide HTTP-01 token store so the
// admin HTTP surface can mount a handler for it.
func SharedChallenges() *HTTP01Challenges { return sharedChallenges }

// acmeManager obtains and renews one host's certificate via ACME,
// generalizing the teacher's single-global-certificate ACMEManager to one
// instance per ACME-enabled host.
type acmeManager struct {
	cfg    HostTLSConfig
	logger *slog.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
}

func newACMEManager(cfg HostTLSConfig, logger *slog.Logger) *acmeManager {
	return &acmeManager{cfg: cfg, logger: logger}
}

// certificate returns the current certificate, obtaining one (from disk or
// from the ACME server) on first use. Subsequent calls return the cached
// value for the life of this acmeManager: the hostSlot caches ACME
// certificates with no expiry, and ClearCache does not reset m.cert, so a
// certificate is not renewed while the process runs.
func (m *acmeManager) certificate() (*tls.Certificate, error) {
	m.mu.RLock()
	cert := m.cert
	m.mu.RUnlock()
	if cert != nil {
		return cert, nil
	}
	return m.obtain()
}

func (m *acmeManager) obtain() (*tls.Certificate, error) {
	if len(m.cfg.Hosts) == 0 {
		return nil, errNoHosts
	}
	if m.cfg.ACMEEmail == "" {
		return nil, errors.New("tlsmgr: acme mode requires an email address")
	}

	storageDir := m.cfg.ACMEStorageDir
	if storageDir == "" {
		return nil, errors.New("tlsmgr: acme mode requires a storage directory")
	}
	if err := os.MkdirAll(storageDir, 0o700); err != nil {
		return nil, fmt.Errorf("acme storage dir: %w", err)
	}

	if cert, err := m.loadPersisted(storageDir); err == nil {
		m.mu.Lock()
		m.cert = cert
		m.mu.Unlock()
		return cert, nil
	}

	user, err := m.loadOrCreateUser(storageDir)
	if err != nil {
		return nil, fmt.Errorf("acme user: %w", err)
	}

	directory := m.cfg.ACMEDirectory
	if directory == "" {
		directory = legoProductionURL
	}

	legoCfg := lego.NewConfig(user)
	legoCfg.CADirURL = directory
	legoCfg.Certificate.KeyType = certcrypto.RSA4096

	client, err := lego.NewClient(legoCfg)
	if err != nil {
		return nil, fmt.Errorf("acme client: %w", err)
	}

	if err := client.Challenge.SetHTTP01Provider(sharedChallenges); err != nil {
		return nil, fmt.Errorf("acme http-01 provider: %w", err)
	}

	if user.Registration == nil {
		reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
		if err != nil {
			return nil, fmt.Errorf("acme registration: %w", err)
		}
		user.Registration = reg
		if err := m.saveUser(storageDir, user); err != nil {
			m.logger.Warn("failed to persist ACME account", "error", err)
		}
	}

	cert, err := m.obtainWithRetry(client)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cert = cert
	m.mu.Unlock()
	return cert, nil
}

// obtainWithRetry wraps the ACME issuance round-trip in an exponential
// backoff so a transient CA outage at startup doesn't fail the whole
// server; a permanent failure (bad domain, rate limit) still surfaces
// after the retry budget is exhausted.
func (m *acmeManager) obtainWithRetry(client *lego.Client) (*tls.Certificate, error) {
	op := func() (*tls.Certificate, error) {
		res, err := client.Certificate.Obtain(certificate.ObtainRequest{
			Domains: m.cfg.Hosts,
			Bundle:  true,
		})
		if err != nil {
			return nil, err
		}

		if err := m.persist(m.cfg.ACMEStorageDir, res); err != nil {
			return nil, backoff.Permanent(err)
		}

		cert, err := tls.X509KeyPair(res.Certificate, res.PrivateKey)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("parse issued certificate: %w", err))
		}
		return &cert, nil
	}

	return backoff.Retry(context.Background(), op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(5),
	)
}

func (m *acmeManager) persist(dir string, res *certificate.Resource) error {
	certFile := filepath.Join(dir, m.cfg.Hosts[0]+".cert.pem")
	keyFile := filepath.Join(dir, m.cfg.Hosts[0]+".key.pem")
	if err := os.WriteFile(certFile, res.Certificate, 0o644); err != nil {
		return fmt.Errorf("write cert: %w", err)
	}
	if err := os.WriteFile(keyFile, res.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	m.logger.Info("obtained ACME certificate", "hosts", m.cfg.Hosts, "cert_file", certFile)
	return nil
}

func (m *acmeManager) loadPersisted(dir string) (*tls.Certificate, error) {
	certFile := filepath.Join(dir, m.cfg.Hosts[0]+".cert.pem")
	keyFile := filepath.Join(dir, m.cfg.Hosts[0]+".key.pem")

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	if cert.Leaf == nil {
		leaf, err := parseLeaf(cert.Certificate[0])
		if err != nil {
			return nil, err
		}
		cert.Leaf = leaf
	}
	if !cert.Leaf.NotAfter.After(time.Now().Add(7 * 24 * time.Hour)) {
		return nil, errors.New("persisted certificate is near expiry, renewing")
	}
	return &cert, nil
}

func (m *acmeManager) loadOrCreateUser(dir string) (*acmeUser, error) {
	userFile := filepath.Join(dir, m.cfg.Hosts[0]+".account.json")
	keyFile := filepath.Join(dir, m.cfg.Hosts[0]+".account.key")

	if userData, err := os.ReadFile(userFile); err == nil {
		if keyData, err := os.ReadFile(keyFile); err == nil {
			user := &acmeUser{}
			if err := json.Unmarshal(userData, user); err == nil {
				if key, err := certcrypto.ParsePEMPrivateKey(keyData); err == nil {
					user.key = key
					return user, nil
				}
			}
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate account key: %w", err)
	}
	return &acmeUser{Email: m.cfg.ACMEEmail, key: key}, nil
}

func (m *acmeManager) saveUser(dir string, user *acmeUser) error {
	userFile := filepath.Join(dir, m.cfg.Hosts[0]+".account.json")
	keyFile := filepath.Join(dir, m.cfg.Hosts[0]+".account.key")

	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(userFile, data, 0o600); err != nil {
		return err
	}
	return os.WriteFile(keyFile, certcrypto.PEMEncode(user.key), 0o600)
}

var _ challenge.Provider = (*HTTP01Challenges)(nil)
