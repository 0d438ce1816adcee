package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittoacl/pkg/acl/cache"
	"github.com/marmos91/dittoacl/pkg/identity"
	"github.com/spf13/viper"
)

// Config represents the complete DittoACL configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOACL_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Store
// section carries one map per store type and only the map matching the
// selected type is decoded, by the factory, into that type.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ACL controls the POSIX ACL feature of the mount
	ACL ACLConfig `mapstructure:"acl" yaml:"acl"`

	// Cache controls the decoded ACL cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Identity maps on-disk ids to principals
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`

	// Store selects and configures the attribute and inode store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Metrics controls Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// GC controls the background collector of orphaned ACLs
	GC GCConfig `mapstructure:"gc" yaml:"gc"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ACLConfig controls the ACL feature.
type ACLConfig struct {
	// Enabled turns POSIX ACL support on for the mount (the "acl" mount flag)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Umask is applied to new inodes whose parent has no default ACL.
	// Octal string, e.g. "022".
	Umask string `mapstructure:"umask" yaml:"umask" validate:"required"`

	// RootOverride lets uid 0 change the ACLs of any inode
	RootOverride bool `mapstructure:"root_override" yaml:"root_override"`
}

// UmaskBits parses Umask.
func (c ACLConfig) UmaskBits() (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(c.Umask, "0o"), 8, 32)
	if err != nil {
		return 0, fmt.Errorf("umask %q is not an octal number", c.Umask)
	}
	if v > 0o777 {
		return 0, fmt.Errorf("umask %q exceeds 0777", c.Umask)
	}
	return uint32(v), nil
}

// CacheConfig controls the decoded ACL cache.
type CacheConfig struct {
	// Enabled turns the cache on. Without it every Get reads the store.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// MaxEntries bounds the number of cached (inode, type) slots
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries" validate:"gte=0"`
}

// IdentityConfig defines the id maps used to resolve named ACL entries.
//
// Both maps empty means the identity mapping: every 32-bit id maps to itself.
type IdentityConfig struct {
	UIDMap []identity.Range `mapstructure:"uid_map" yaml:"uid_map" validate:"dive"`
	GIDMap []identity.Range `mapstructure:"gid_map" yaml:"gid_map" validate:"dive"`
}

// StoreConfig specifies the metadata store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type StoreConfig struct {
	// Type specifies which store implementation to use
	// Valid values: memory, badger, s3, local
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger s3 local"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`

	// Local contains configuration of the host-xattr store
	// Only used when Type = "local"
	Local map[string]any `mapstructure:"local" yaml:"local"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	// Enabled initializes the metrics registry
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Textfile, when set, receives the collected metrics in the Prometheus
	// text format on shutdown (node_exporter textfile collector)
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// GCConfig controls the orphaned ACL collector.
type GCConfig struct {
	// Enabled runs the collector in the background while the runtime is open
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval between two collections, e.g. "24h"
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`

	// DryRun logs orphans without removing them
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOACL_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOACL_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOACL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans whose zero value is not the default. Registering the keys
	// also lets AutomaticEnv see them during Unmarshal.
	v.SetDefault("acl.enabled", true)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", cache.DefaultSize)
	v.SetDefault("acl.root_override", true)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("gc.enabled", false)
	v.SetDefault("gc.dry_run", false)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("store.type", "memory")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/dittoacl/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoacl")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoacl")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
