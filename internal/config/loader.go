package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/an-empty-string/amethyst/internal/gemini"
	"github.com/an-empty-string/amethyst/internal/resource"
	"github.com/an-empty-string/amethyst/internal/tlsmgr"
)

const defaultPort = 1965

// Load reads and parses a TOML config file at path, applying defaults.
// It does not build the router or TLS manager — call BuildRouter and
// BuildTLSManager for that, separately, so a reload can rebuild the router
// without rebuilding the TLS manager.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	for i := range c.Hosts {
		h := &c.Hosts[i]
		if h.TLS.Mode == "" {
			h.TLS.Mode = "auto"
		}
		if h.TLS.CertPath == "" {
			h.TLS.CertPath = defaultStatePath(h.Name, "cert.pem")
		}
		if h.TLS.KeyPath == "" {
			h.TLS.KeyPath = defaultStatePath(h.Name, "key.pem")
		}
	}
}

// defaultStatePath mirrors the Python original's
// os.path.join(os.getenv("STATE_DIRECTORY", "."), f"{host}.{suffix}"), the
// conventional systemd StateDirectory= layout.
func defaultStatePath(host, suffix string) string {
	dir := os.Getenv("STATE_DIRECTORY")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s", host, suffix))
}

func (c *Config) validate() error {
	if len(c.Hosts) == 0 {
		return fmt.Errorf("config: server can't run without any hosts")
	}
	seen := make(map[string]bool, len(c.Hosts))
	for _, h := range c.Hosts {
		if h.Name == "" {
			return fmt.Errorf("config: host entry missing \"name\"")
		}
		if seen[h.Name] {
			return fmt.Errorf("config: duplicate host %q", h.Name)
		}
		seen[h.Name] = true
	}
	return nil
}

// BuildRouter constructs the routing table for the currently-loaded
// config, instantiating a fresh resource per path mount. Per spec.md §4,
// "each config entry yields a fresh resource instance in practice" —
// resources are never shared by reference across a reload.
func (c *Config) BuildRouter(logger *slog.Logger) (*gemini.Router, error) {
	router := gemini.NewRouter(c.Port)
	for _, h := range c.Hosts {
		hr := &gemini.HostRoute{Host: h.Name}
		for prefix, rcfg := range h.Paths {
			components, err := gemini.NormalizePath(prefix)
			if err != nil {
				return nil, fmt.Errorf("config: host %q: invalid path prefix %q: %w", h.Name, prefix, err)
			}
			res, err := resource.Build(rcfg, logger.With("host", h.Name, "prefix", prefix))
			if err != nil {
				return nil, fmt.Errorf("config: host %q: path %q: %w", h.Name, prefix, err)
			}
			hr.Mounts = append(hr.Mounts, gemini.Mount{
				Prefix:     components,
				PrefixPath: prefix,
				Resource:   res,
			})
		}
		router.AddHost(hr)
	}
	return router, nil
}

// BuildTLSManager constructs the TLS manager for the currently-loaded
// config. Unlike BuildRouter, this is normally called once at startup;
// a reload instead calls Manager.ClearCache and relies on each host's
// existing policy, since the TLS manager (unlike the router) is not
// rebuilt wholesale — only its cached certificates are invalidated, per
// spec.md §4.9.
func (c *Config) BuildTLSManager(logger *slog.Logger) (*tlsmgr.Manager, error) {
	mgr := tlsmgr.NewManager(logger)
	for _, h := range c.Hosts {
		hosts := append([]string{h.Name}, h.AltNames...)
		err := mgr.AddHost(tlsmgr.HostTLSConfig{
			Hosts:          hosts,
			Mode:           tlsmgr.Mode(h.TLS.Mode),
			CertPath:       h.TLS.CertPath,
			KeyPath:        h.TLS.KeyPath,
			ACMEEmail:      h.TLS.ACMEEmail,
			ACMEDirectory:  h.TLS.ACMEDirectory,
			ACMEStorageDir: h.TLS.ACMEStorageDir,
		})
		if err != nil {
			return nil, fmt.Errorf("config: host %q: tls: %w", h.Name, err)
		}
	}
	return mgr, nil
}
