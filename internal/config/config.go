// Package config loads amethyst's TOML configuration document (spec.md
// §4.9) and assembles it into the live objects the rest of the server
// consumes: a *tlsmgr.Manager and a *gemini.Router. It is the Go home of
// the original Python Config/HostConfig/TLSConfig dataclasses, using the
// teacher's TOML-struct-with-tags idiom in place of dataclass defaults.
package config

// Config is the root of the configuration document.
type Config struct {
	// Port is the Gemini listen port. Default 1965.
	Port int `toml:"port"`

	// MaxConnections bounds concurrently-handled connections (SPEC_FULL
	// §B.7). 0 uses server.DefaultConfig's bound.
	MaxConnections int64 `toml:"max_connections"`

	// AdminAddr, if set, starts the admin/health HTTP surface (SPEC_FULL
	// §B.2) on this address. Empty disables it.
	AdminAddr string `toml:"admin_addr"`

	AccessLog AccessLogConfig `toml:"access_log"`
	RateLimit RateLimitConfig `toml:"ratelimit"`

	// Hosts is the set of virtual hosts this server answers for. At least
	// one is required (spec.md §4: "Server can't run without any hosts").
	Hosts []HostConfig `toml:"hosts"`
}

// AccessLogConfig controls the optional persisted access log (SPEC_FULL
// §B.5), additive to the mandatory stdout access log line.
type AccessLogConfig struct {
	// SQLitePath, if set, persists every request to a SQLite database at
	// this path. Empty disables persistence.
	SQLitePath string `toml:"sqlite_path"`
}

// RateLimitConfig controls connection-admission rate limiting (SPEC_FULL
// §B.6).
type RateLimitConfig struct {
	// Driver selects the counter backend: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// ConnectionsPerWindow is the per-peer-IP admission budget. 0 uses
	// ratelimit.DefaultConfig's value.
	ConnectionsPerWindow int64 `toml:"connections_per_window"`
	// WindowSeconds is the budget's window, in seconds: a fixed window
	// that starts at a peer's first counted connection. 0 uses
	// ratelimit.DefaultConfig's value.
	WindowSeconds int `toml:"window_seconds"`

	// Drivers holds per-driver configuration tables, e.g.
	// [ratelimit.drivers.redis] addr = "localhost:6379". Typed as
	// map[string]any (not map[string]map[string]any) to match
	// cache.NewFromConfig's signature directly.
	Drivers map[string]any `toml:"drivers"`
}

// HostConfig is one virtual host: its TLS policy and its mounted
// resources.
type HostConfig struct {
	// Name is the host's primary hostname. Additional SAN-only aliases
	// are not modeled separately; spec.md's HostConfig is one name per
	// TLSConfig, so additional names belong in AltNames.
	Name string `toml:"name"`

	// AltNames are additional hostnames the same certificate should
	// cover (the TLS policy's SubjectAltName list), without being
	// separately routable hosts of their own.
	AltNames []string `toml:"alt_names"`

	TLS HostTLSConfig `toml:"tls"`

	// Paths maps a URL path prefix to a resource config table. The
	// table's "type" key selects the registered resource.Factory;
	// remaining keys are that resource's own config.
	Paths map[string]map[string]any `toml:"paths"`
}

// HostTLSConfig is one host's TLS policy, decoded from its [hosts.tls]
// block.
type HostTLSConfig struct {
	// Mode is "auto" (self-signed, local renewal; the default), "static"
	// (operator-supplied cert/key), or "acme" (SPEC_FULL §B.1).
	Mode string `toml:"mode"`

	CertPath string `toml:"cert_path"`
	KeyPath  string `toml:"key_path"`

	ACMEEmail      string `toml:"acme_email"`
	ACMEDirectory  string `toml:"acme_directory"`
	ACMEStorageDir string `toml:"acme_storage_dir"`
}
