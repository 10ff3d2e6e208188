// ABOUTME: Tests for medtrack configuration management.
// ABOUTME: Covers defaults, file loading, env overrides, validation, save, and backend selection.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harperreed/medtrack/internal/storage"
	"github.com/rs/zerolog"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.HorizonDays != 7 || cfg.ReportPeriodDays != 7 || cfg.LowStockThreshold != 5 {
		t.Errorf("day defaults = %d/%d/%d", cfg.HorizonDays, cfg.ReportPeriodDays, cfg.LowStockThreshold)
	}
	if cfg.Narrative.Provider != "rules" || cfg.Narrative.Timeout != 20*time.Second {
		t.Errorf("narrative = %+v", cfg.Narrative)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("redis ttl = %v, want 24h", cfg.Redis.TTL)
	}
	if cfg.Trend.Window != 3 || cfg.Trend.Threshold != 0.05 {
		t.Errorf("trend = %+v", cfg.Trend)
	}
	if cfg.Schedule.ReportCron != "0 7 * * 1" {
		t.Errorf("report cron = %q", cfg.Schedule.ReportCron)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "backend": "badger",
  "recipient_id": "mom",
  "horizon_days": 10,
  "narrative": {"provider": "openai", "timeout": "5s"},
  "redis": {"addr": "localhost:6379"}
}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("MEDTRACK_HORIZON_DAYS", "14")
	t.Setenv("MEDTRACK_LOG_LEVEL", "debug")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend != BackendBadger || cfg.RecipientID != "mom" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.HorizonDays != 14 {
		t.Errorf("HorizonDays = %d, want env override 14", cfg.HorizonDays)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Narrative.Timeout != 5*time.Second {
		t.Errorf("Narrative.Timeout = %v, want 5s", cfg.Narrative.Timeout)
	}
	if cfg.Narrative.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q, want provider env fallback", cfg.Narrative.APIKey)
	}

	opts := cfg.NarrativeOptions()
	if opts.Provider != "openai" || opts.RedisAddr != "localhost:6379" || opts.CacheTTL != 24*time.Hour {
		t.Errorf("NarrativeOptions = %+v", opts)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"horizon_days": 0}`), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "horizon_days") {
		t.Errorf("expected horizon_days validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Backend = "markdown" }, "unknown backend"},
		{"postgres without dsn", func(c *Config) { c.Backend = BackendPostgres }, "postgres_dsn"},
		{"postgres with dsn", func(c *Config) { c.Backend = BackendPostgres; c.PostgresDSN = "postgres://x" }, ""},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"unknown provider", func(c *Config) { c.Narrative.Provider = "claude" }, "narrative provider"},
		{"zero timeout", func(c *Config) { c.Narrative.Timeout = 0 }, "narrative.timeout"},
		{"bad cron", func(c *Config) { c.Schedule.ExtendCron = "every night" }, "schedule.extend_cron"},
		{"negative threshold", func(c *Config) { c.LowStockThreshold = -1 }, "low_stock_threshold"},
		{"zero trend window", func(c *Config) { c.Trend.Window = 0 }, "trend.window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medtrack", "config.json")

	cfg := Default()
	cfg.RecipientID = "dad"
	cfg.Timezone = "UTC"
	cfg.Narrative.Timeout = 45 * time.Second
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 600", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.RecipientID != "dad" || loaded.Timezone != "UTC" || loaded.Narrative.Timeout != 45*time.Second {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}

func TestSettingsMasksKey(t *testing.T) {
	cfg := Default()
	cfg.Narrative.APIKey = "secret"

	masked := cfg.Settings(false)["narrative"].(map[string]any)["api_key"]
	if masked != "****" {
		t.Errorf("api_key = %v, want masked", masked)
	}
	revealed := cfg.Settings(true)["narrative"].(map[string]any)["api_key"]
	if revealed != "secret" {
		t.Errorf("api_key = %v, want secret", revealed)
	}
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	if err != nil || loc != time.Local {
		t.Errorf("default location = %v, %v", loc, err)
	}

	cfg.Timezone = "UTC"
	if loc, err := cfg.Location(); err != nil || loc.String() != "UTC" {
		t.Errorf("UTC location = %v, %v", loc, err)
	}
}

func TestOpenStorage(t *testing.T) {
	tests := []struct {
		backend string
		check   func(t *testing.T, dir string)
	}{
		{BackendSQLite, func(t *testing.T, dir string) {
			if _, err := os.Stat(filepath.Join(dir, "medtrack.db")); err != nil {
				t.Errorf("sqlite file missing: %v", err)
			}
		}},
		{BackendBadger, func(t *testing.T, dir string) {
			nonEmpty, err := storage.IsDirNonEmpty(filepath.Join(dir, "kv"))
			if err != nil || !nonEmpty {
				t.Errorf("badger dir empty: %v", err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			dir := t.TempDir()
			cfg := Default()
			cfg.Backend = tt.backend
			cfg.DataDir = dir

			repo, err := cfg.OpenStorage(context.Background(), zerolog.Nop())
			if err != nil {
				t.Fatalf("OpenStorage failed: %v", err)
			}
			defer repo.Close()
			tt.check(t, dir)
		})
	}

	if _, err := OpenBackend(context.Background(), "markdown", t.TempDir(), "", zerolog.Nop()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/tmp/foo", "/tmp/foo"},
		{"~", home},
		{"~/data/medtrack", filepath.Join(home, "data/medtrack")},
		{"data/medtrack", "data/medtrack"},
	}

	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/medtrack-test"}
	if got := cfg.GetDataDir(); got != "/tmp/medtrack-test" {
		t.Errorf("GetDataDir() = %q", got)
	}
	if got := cfg.ReportsDir(); got != "/tmp/medtrack-test/reports" {
		t.Errorf("ReportsDir() = %q", got)
	}

	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	if got := (&Config{}).GetDataDir(); got != "/tmp/xdg/medtrack" {
		t.Errorf("default GetDataDir() = %q", got)
	}
}
