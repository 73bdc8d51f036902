package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/an-empty-string/amethyst/internal/config"
	_ "github.com/an-empty-string/amethyst/internal/resource" // redirect
	_ "github.com/an-empty-string/amethyst/internal/resource/fsres"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "amethyst.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[hosts]]
name = "example.org"

[hosts.paths."/"]
type = "redirect"
to = "gemini://example.org/moved"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 1965 {
		t.Errorf("Port = %d, want default 1965", cfg.Port)
	}
	if cfg.Hosts[0].TLS.Mode != "auto" {
		t.Errorf("TLS.Mode = %q, want default \"auto\"", cfg.Hosts[0].TLS.Mode)
	}
	if cfg.Hosts[0].TLS.CertPath == "" || cfg.Hosts[0].TLS.KeyPath == "" {
		t.Error("expected default cert/key paths to be filled in")
	}
}

func TestLoadRejectsNoHosts(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `port = 1965`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for config with no hosts")
	}
}

func TestLoadRejectsDuplicateHostNames(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[hosts]]
name = "example.org"
[hosts.paths."/"]
type = "redirect"
to = "gemini://example.org/"

[[hosts]]
name = "example.org"
[hosts.paths."/"]
type = "redirect"
to = "gemini://example.org/"
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected error for duplicate host name")
	}
}

func TestBuildRouterAndTLSManager(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
port = 1966

[[hosts]]
name = "example.org"

[hosts.paths."/"]
type = "filesystem"
root = "`+filepath.ToSlash(dir)+`"

[hosts.paths."/go"]
type = "redirect"
to = "gemini://example.org/"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	router, err := cfg.BuildRouter(logger)
	if err != nil {
		t.Fatalf("BuildRouter: %v", err)
	}
	if router.Port != 1966 {
		t.Errorf("router.Port = %d, want 1966", router.Port)
	}
	if _, ok := router.Hosts["example.org"]; !ok {
		t.Fatal("expected example.org to be routed")
	}

	mgr, err := cfg.BuildTLSManager(logger)
	if err != nil {
		t.Fatalf("BuildTLSManager: %v", err)
	}
	if mgr.ServerTLSConfig() == nil {
		t.Fatal("expected a non-nil TLS config")
	}
}

func TestBuildRouterRejectsUnknownResourceType(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[hosts]]
name = "example.org"
[hosts.paths."/"]
type = "does-not-exist"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if _, err := cfg.BuildRouter(logger); err == nil {
		t.Fatal("expected error for unknown resource type")
	}
}
