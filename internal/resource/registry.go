// Package resource holds the process-wide resource-type registry and the
// resource implementations that ship with the server itself (redirects;
// the filesystem resource lives in its own package, internal/resource/fsres,
// since it is large enough to deserve one).
package resource

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/an-empty-string/amethyst/internal/gemini"
)

// Factory builds a Resource from its remaining config fields. args is the
// resource's config table with the "type" key already removed.
type Factory func(args map[string]any, logger *slog.Logger) (gemini.Resource, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a resource type to the registry. Typically called from an
// init() in the package that defines the resource type. The registry is
// append-once: registering the same name twice is an error, since config
// construction assumes a type name resolves to exactly one behavior for
// the life of the process.
func Register(name string, factory Factory) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("resource type %q already registered", name)
	}
	registry[name] = factory
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(name string, factory Factory) {
	if err := Register(name, factory); err != nil {
		panic(err)
	}
}

// Get returns the factory for a registered resource type, or nil if name
// is unknown.
func Get(name string) Factory {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredTypes returns the names of all registered resource types.
func RegisteredTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Build constructs a Resource from a config table by looking up its "type"
// field in the registry and calling the returned factory with the rest of
// the table.
func Build(config map[string]any, logger *slog.Logger) (gemini.Resource, error) {
	typeName, ok := config["type"].(string)
	if !ok || typeName == "" {
		return nil, fmt.Errorf("resource config missing string \"type\" field")
	}

	factory := Get(typeName)
	if factory == nil {
		return nil, fmt.Errorf("unknown resource type %q", typeName)
	}

	args := make(map[string]any, len(config))
	for k, v := range config {
		if k == "type" {
			continue
		}
		args[k] = v
	}

	return factory(args, logger)
}
