// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Environment-driven configuration and a thread-safe config store with
// atomic snapshots and reload listeners.

package control

import (
	"fmt"
	"sync"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every configuration variable.
const EnvPrefix = "HIOLOAD"

// DefaultWriteQuotaBytes bounds the bytes a writer may have pending at its
// peer before the writable signal stops being watched as satisfied. It stands
// in for per-portal quotas, which the primitive does not expose.
const DefaultWriteQuotaBytes = 2 << 20

// Config holds all library configuration.
type Config struct {
	// WriteQuotaBytes is the pending-bytes bound used for the writable signal.
	WriteQuotaBytes uint64 `envconfig:"WRITE_QUOTA_BYTES" default:"2097152"`
	// MessageMinCapacity is the capacity reserved for every new message.
	MessageMinCapacity int `envconfig:"MESSAGE_MIN_CAPACITY" default:"32"`
	// AsyncDispatch runs portal trap callbacks on a goroutine pool.
	AsyncDispatch bool `envconfig:"ASYNC_DISPATCH" default:"false"`
	// DispatchPoolSize caps the goroutine pool used by AsyncDispatch.
	DispatchPoolSize int32 `envconfig:"DISPATCH_POOL_SIZE" default:"64"`
	// HandleShards is the number of shards in the trap and message registries.
	HandleShards int `envconfig:"HANDLE_SHARDS" default:"16"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// LogDevelopment switches to colored console logs.
	LogDevelopment bool `envconfig:"LOG_DEV" default:"false"`
	// EnableMetrics registers prometheus collectors.
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		WriteQuotaBytes:    DefaultWriteQuotaBytes,
		MessageMinCapacity: 32,
		AsyncDispatch:      false,
		DispatchPoolSize:   64,
		HandleShards:       16,
		LogLevel:           "info",
		LogDevelopment:     false,
		EnableMetrics:      true,
	}
}

// Validate rejects values the library cannot run with.
func (c *Config) Validate() error {
	if c.WriteQuotaBytes == 0 {
		return fmt.Errorf("write quota must be positive")
	}
	if c.MessageMinCapacity <= 0 {
		return fmt.Errorf("message minimum capacity must be positive, got %d", c.MessageMinCapacity)
	}
	if c.HandleShards <= 0 {
		return fmt.Errorf("handle shards must be positive, got %d", c.HandleShards)
	}
	return nil
}

// ConfigStore holds the active configuration and notifies listeners on change.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store with cfg, or defaults when cfg is nil.
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = Default()
	}
	return &ConfigStore{config: *cfg}
}

// Snapshot returns a copy of the active configuration.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Update validates and applies a new configuration, then invokes listeners
// synchronously with the new snapshot.
func (cs *ConfigStore) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := make([]func(Config), len(cs.listeners))
	copy(listeners, cs.listeners)
	cs.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnReload registers a listener called after every successful Update.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
