// Package redis provides a Valkey/Redis-protocol cache driver via
// valkey-go, for operators sharing rate-limit counters across multiple
// amethyst replicas. Registered as "redis" in the cache driver registry.
// Fails fast at construction if the backend is unreachable.
package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/an-empty-string/amethyst/internal/cache"
)

func init() {
	cache.RegisterDriver("redis", func(config map[string]any) cache.CacheWithCounter {
		cfg := DefaultConfig()
		if config != nil {
			if v, ok := config["addr"].(string); ok && v != "" {
				cfg.Addr = v
			}
			if v, ok := config["password"].(string); ok {
				cfg.Password = v
			}
			if v, ok := config["db"]; ok {
				if db, ok := toInt(v); ok {
					cfg.DB = db
				}
			}
			if v, ok := config["dial_timeout_ms"]; ok {
				if ms, ok := toInt(v); ok && ms > 0 {
					cfg.DialTimeout = time.Duration(ms) * time.Millisecond
				}
			}
			if v, ok := config["default_ttl_seconds"]; ok {
				if secs, ok := toInt(v); ok && secs > 0 {
					cfg.DefaultTTL = time.Duration(secs) * time.Second
				}
			}
		}

		c, err := New(cfg)
		if err != nil {
			panic(fmt.Sprintf("redis cache driver failed to initialize: %v", err))
		}
		return c
	})
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Config holds Valkey/Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	DefaultTTL  time.Duration
}

// DefaultConfig returns sensible defaults for a local Redis/Valkey instance.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		DefaultTTL:  cache.TTLConnRateLimit,
	}
}

// Cache implements cache.CacheWithCounter against a Valkey/Redis server.
type Cache struct {
	client        valkey.Client
	defaultTTL    time.Duration
	counterScript *valkey.Lua
}

// counterLuaScript atomically increments a counter and sets its TTL only
// on first creation, so repeated increments within a window don't reset it.
const counterLuaScript = `
local current = redis.call('INCRBY', KEYS[1], ARGV[1])
if current == tonumber(ARGV[1]) then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return current
`

// New connects to Redis/Valkey and verifies it is reachable before
// returning.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
		Dialer: net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: new client: %w", err)
	}

	c := &Cache{
		client:        client,
		defaultTTL:    cfg.DefaultTTL,
		counterScript: valkey.NewLuaScript(counterLuaScript),
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := c.healthCheck(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: health check: %w", err)
	}

	return c, nil
}

func (c *Cache) healthCheck(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	testKey := "__amethyst_cache_health_check__"
	if err := c.counterScript.Exec(ctx, c.client, []string{testKey}, []string{"1", "1000"}).Error(); err != nil {
		return fmt.Errorf("counter script: %w", err)
	}
	c.client.Do(ctx, c.client.B().Del().Key(testKey).Build())
	return nil
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return resp.AsBytes()
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return c.client.Do(ctx, c.client.B().Set().Key(key).Value(string(value)).Px(ttl).Build()).Error()
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(key).Build()).Error()
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	resp := c.client.Do(ctx, c.client.B().Exists().Key(key).Build())
	if err := resp.Error(); err != nil {
		return false, err
	}
	count, err := resp.AsInt64()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	result := c.counterScript.Exec(ctx, c.client, []string{key}, []string{
		strconv.FormatInt(delta, 10),
		strconv.FormatInt(ttl.Milliseconds(), 10),
	})
	if err := result.Error(); err != nil {
		return 0, err
	}
	return result.AsInt64()
}

func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	resp := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return resp.AsInt64()
}

func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
