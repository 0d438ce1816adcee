package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittoacl/pkg/acl/cache"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values ("", 0, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans are defaulted by Load through viper, since false is a valid
//     explicit value
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyACLDefaults(&cfg.ACL)
	applyCacheDefaults(&cfg.Cache)
	applyStoreDefaults(&cfg.Store)
	applyGCDefaults(&cfg.GC)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyACLDefaults(cfg *ACLConfig) {
	if cfg.Umask == "" {
		cfg.Umask = "022"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = cache.DefaultSize
	}
}

func applyGCDefaults(cfg *GCConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
}

// applyStoreDefaults sets store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.Local == nil {
		cfg.Local = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = "/tmp/dittoacl-badger"
	}
	if _, ok := cfg.Local["root"]; !ok {
		cfg.Local["root"] = "/tmp/dittoacl-local"
	}
	if _, ok := cfg.S3["key_prefix"]; !ok {
		cfg.S3["key_prefix"] = "dittoacl/"
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
func GetDefaultConfig() *Config {
	cfg := &Config{
		ACL: ACLConfig{
			Enabled:      true,
			RootOverride: true,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
