// Package config manages mongomgrd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete mongomgrd configuration.
type Config struct {
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Pool    PoolConfig    `koanf:"pool"`
	Seeds   []SeedConfig  `koanf:"seeds"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9216").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// PoolConfig holds the connection-pool tuning shared by every configured
// deployment; seed entries have no per-seed override.
type PoolConfig struct {
	// PingInterval is the period of mongomgrd's refresh loop and is passed to
	// Manager.SetIntervals. The manager does not throttle pings with it: a
	// cached connection is re-pinged on every acquisition.
	PingInterval time.Duration `koanf:"ping_interval"`

	// IsMasterInterval is the minimum interval between topology probes of
	// an already-classified connection.
	IsMasterInterval time.Duration `koanf:"ismaster_interval"`

	// SelectionWindow is the default latency acceptance window applied
	// during server selection (spec.md §3 "default 15").
	SelectionWindow time.Duration `koanf:"selection_window"`
}

// SeedConfig describes one deployment to maintain connections against.
// Each entry becomes a connmgr.SeedSet on daemon startup.
type SeedConfig struct {
	// Name identifies this deployment in logs and metrics labels.
	Name string `koanf:"name"`

	// Hosts is the seed list, each as "host:port".
	Hosts []string `koanf:"hosts"`

	// DeploymentType is one of "standalone", "replica_set", "multi_router".
	DeploymentType string `koanf:"deployment_type"`

	// ReplicaSetName is the expected replica set name; required when
	// DeploymentType is "replica_set".
	ReplicaSetName string `koanf:"replica_set_name"`

	// AuthDB, Username, Password are shared across every host in this
	// deployment (spec.md §4.4 member credential inheritance). All three
	// empty means no authentication.
	AuthDB   string `koanf:"auth_db"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// ReadPreference is one of "primary", "primary_preferred",
	// "secondary", "secondary_preferred", "nearest".
	ReadPreference string `koanf:"read_preference"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9216",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Pool: PoolConfig{
			PingInterval:     10 * time.Second,
			IsMasterInterval: 10 * time.Second,
			SelectionWindow:  15 * time.Millisecond,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for mongomgrd configuration.
// Variables are named MONGOMGR_<section>_<key>, e.g., MONGOMGR_METRICS_ADDR.
// Every underscore after the prefix becomes a key separator, so keys that
// themselves contain an underscore (e.g. pool.ping_interval) cannot be set
// from the environment.
const envPrefix = "MONGOMGR_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (MONGOMGR_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	MONGOMGR_METRICS_ADDR  -> metrics.addr
//	MONGOMGR_LOG_LEVEL     -> log.level
//	MONGOMGR_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms MONGOMGR_METRICS_ADDR -> metrics.addr. Strips the
// MONGOMGR_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"pool.ping_interval":     defaults.Pool.PingInterval.String(),
		"pool.ismaster_interval": defaults.Pool.IsMasterInterval.String(),
		"pool.selection_window":  defaults.Pool.SelectionWindow.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrSeedNoHosts indicates a seed entry has no hosts.
	ErrSeedNoHosts = errors.New("seed hosts must not be empty")

	// ErrSeedInvalidDeploymentType indicates a seed's deployment_type is
	// unrecognized.
	ErrSeedInvalidDeploymentType = errors.New("seed deployment_type must be standalone, replica_set, or multi_router")

	// ErrSeedReplicaSetMissingName indicates a replica_set seed has no
	// replica_set_name.
	ErrSeedReplicaSetMissingName = errors.New("replica_set seed requires replica_set_name")

	// ErrSeedInvalidReadPreference indicates a seed's read_preference is
	// unrecognized.
	ErrSeedInvalidReadPreference = errors.New("seed read_preference is unrecognized")

	// ErrDuplicateSeedName indicates two seed entries share the same name.
	ErrDuplicateSeedName = errors.New("duplicate seed name")
)

// ValidDeploymentTypes lists the recognized deployment_type strings.
var ValidDeploymentTypes = map[string]bool{
	"standalone":   true,
	"replica_set":  true,
	"multi_router": true,
}

// ValidReadPreferences lists the recognized read_preference strings.
var ValidReadPreferences = map[string]bool{
	"":                    true,
	"primary":             true,
	"primary_preferred":   true,
	"secondary":           true,
	"secondary_preferred": true,
	"nearest":             true,
}

// Validate checks the configuration for logical errors. Returns the first
// validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}

	return validateSeeds(cfg.Seeds)
}

func validateSeeds(seeds []SeedConfig) error {
	seen := make(map[string]struct{}, len(seeds))

	for i, s := range seeds {
		if len(s.Hosts) == 0 {
			return fmt.Errorf("seeds[%d]: %w", i, ErrSeedNoHosts)
		}
		if !ValidDeploymentTypes[s.DeploymentType] {
			return fmt.Errorf("seeds[%d] deployment_type %q: %w", i, s.DeploymentType, ErrSeedInvalidDeploymentType)
		}
		if s.DeploymentType == "replica_set" && s.ReplicaSetName == "" {
			return fmt.Errorf("seeds[%d]: %w", i, ErrSeedReplicaSetMissingName)
		}
		if !ValidReadPreferences[s.ReadPreference] {
			return fmt.Errorf("seeds[%d] read_preference %q: %w", i, s.ReadPreference, ErrSeedInvalidReadPreference)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("seeds[%d] name %q: %w", i, s.Name, ErrDuplicateSeedName)
		}
		seen[s.Name] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
