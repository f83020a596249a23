package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mguindin/mongomgr/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Metrics.Addr != ":9216" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9216")
	}

	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	if cfg.Pool.PingInterval != 10*time.Second {
		t.Errorf("Pool.PingInterval = %v, want %v", cfg.Pool.PingInterval, 10*time.Second)
	}

	if cfg.Pool.SelectionWindow != 15*time.Millisecond {
		t.Errorf("Pool.SelectionWindow = %v, want %v", cfg.Pool.SelectionWindow, 15*time.Millisecond)
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
metrics:
  addr: ":9300"
  path: "/custom-metrics"
log:
  level: "debug"
  format: "text"
pool:
  ping_interval: "5s"
  ismaster_interval: "5s"
  selection_window: "25ms"
seeds:
  - name: "primary-set"
    hosts: ["db1:27017", "db2:27017"]
    deployment_type: "replica_set"
    replica_set_name: "rs0"
    read_preference: "primary_preferred"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9300" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9300")
	}

	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if cfg.Pool.SelectionWindow != 25*time.Millisecond {
		t.Errorf("Pool.SelectionWindow = %v, want %v", cfg.Pool.SelectionWindow, 25*time.Millisecond)
	}

	if len(cfg.Seeds) != 1 {
		t.Fatalf("Seeds count = %d, want 1", len(cfg.Seeds))
	}
	seed := cfg.Seeds[0]
	if seed.Name != "primary-set" {
		t.Errorf("Seeds[0].Name = %q, want %q", seed.Name, "primary-set")
	}
	if len(seed.Hosts) != 2 {
		t.Errorf("Seeds[0].Hosts count = %d, want 2", len(seed.Hosts))
	}
	if seed.DeploymentType != "replica_set" {
		t.Errorf("Seeds[0].DeploymentType = %q, want %q", seed.DeploymentType, "replica_set")
	}
	if seed.ReplicaSetName != "rs0" {
		t.Errorf("Seeds[0].ReplicaSetName = %q, want %q", seed.ReplicaSetName, "rs0")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	yamlContent := `
log:
  level: "warn"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Metrics.Addr != ":9216" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9216")
	}

	if cfg.Pool.PingInterval != 10*time.Second {
		t.Errorf("Pool.PingInterval = %v, want default %v", cfg.Pool.PingInterval, 10*time.Second)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty metrics addr",
			modify: func(cfg *config.Config) {
				cfg.Metrics.Addr = ""
			},
			wantErr: config.ErrEmptyMetricsAddr,
		},
		{
			name: "seed with no hosts",
			modify: func(cfg *config.Config) {
				cfg.Seeds = []config.SeedConfig{{Name: "a", DeploymentType: "standalone"}}
			},
			wantErr: config.ErrSeedNoHosts,
		},
		{
			name: "seed with unknown deployment type",
			modify: func(cfg *config.Config) {
				cfg.Seeds = []config.SeedConfig{{Name: "a", Hosts: []string{"h:1"}, DeploymentType: "bogus"}}
			},
			wantErr: config.ErrSeedInvalidDeploymentType,
		},
		{
			name: "replica set without name",
			modify: func(cfg *config.Config) {
				cfg.Seeds = []config.SeedConfig{{Name: "a", Hosts: []string{"h:1"}, DeploymentType: "replica_set"}}
			},
			wantErr: config.ErrSeedReplicaSetMissingName,
		},
		{
			name: "duplicate seed names",
			modify: func(cfg *config.Config) {
				cfg.Seeds = []config.SeedConfig{
					{Name: "a", Hosts: []string{"h:1"}, DeploymentType: "standalone"},
					{Name: "a", Hosts: []string{"h:2"}, DeploymentType: "standalone"},
				}
			},
			wantErr: config.ErrDuplicateSeedName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "unknown", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got := config.ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/config.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("MONGOMGR_METRICS_ADDR", ":9400")
	t.Setenv("MONGOMGR_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9400" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9400")
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
}

// writeTemp creates a temporary YAML file and returns its path. The file is
// automatically cleaned up when the test finishes.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "mongomgr.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
