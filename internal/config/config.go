// ABOUTME: Medtrack configuration loaded from a JSON file with MEDTRACK_ environment overrides.
// ABOUTME: Also builds the configured storage backend, narrator options, and logger options.

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/medtrack/internal/adherence"
	"github.com/harperreed/medtrack/internal/logging"
	"github.com/harperreed/medtrack/internal/narrative"
	"github.com/harperreed/medtrack/internal/storage"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// EnvPrefix prefixes every environment override, e.g. MEDTRACK_NARRATIVE_PROVIDER.
const EnvPrefix = "MEDTRACK"

// Config stores medtrack configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default), "badger", or "postgres".
	Backend string `mapstructure:"backend"`

	// DataDir is the root directory for local data. SQLite puts medtrack.db
	// here, Badger uses kv/, and scheduled reports go to reports/.
	// Supports ~ expansion. Defaults to ~/.local/share/medtrack.
	DataDir string `mapstructure:"data_dir"`

	PostgresDSN string `mapstructure:"postgres_dsn"`

	// RecipientID is the default care recipient for commands that take one.
	RecipientID string `mapstructure:"recipient_id"`
	Timezone    string `mapstructure:"timezone"`

	HorizonDays       int    `mapstructure:"horizon_days"`
	ReportPeriodDays  int    `mapstructure:"report_period_days"`
	LowStockThreshold int    `mapstructure:"low_stock_threshold"`
	Locale            string `mapstructure:"locale"`

	Narrative NarrativeConfig `mapstructure:"narrative"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Trend     TrendConfig     `mapstructure:"trend"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// NarrativeConfig selects the report text generator.
type NarrativeConfig struct {
	Provider string        `mapstructure:"provider"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig enables the narrative cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrendConfig holds the trend rule constants.
type TrendConfig struct {
	Window    int     `mapstructure:"window"`
	Threshold float64 `mapstructure:"threshold"`
}

// ScheduleConfig holds the daemon's cron expressions.
type ScheduleConfig struct {
	ExtendCron string `mapstructure:"extend_cron"`
	ReportCron string `mapstructure:"report_cron"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("data_dir", "")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("recipient_id", "default")
	v.SetDefault("timezone", "Local")
	v.SetDefault("horizon_days", 7)
	v.SetDefault("report_period_days", 7)
	v.SetDefault("low_stock_threshold", 5)
	v.SetDefault("locale", "en")

	v.SetDefault("narrative.provider", narrative.ProviderRules)
	v.SetDefault("narrative.model", "")
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.base_url", "")
	v.SetDefault("narrative.timeout", "20s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("trend.window", adherence.DefaultTrendOptions.Window)
	v.SetDefault("trend.threshold", adherence.DefaultTrendOptions.Threshold)

	v.SetDefault("schedule.extend_cron", "10 0 * * *")
	v.SetDefault("schedule.report_cron", "0 7 * * 1")
}

// Default returns the built-in configuration without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "medtrack", "config.json")
}

// Load reads the config file at path (GetConfigPath when empty), applies
// MEDTRACK_ environment overrides, and validates the result. A missing file
// is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Narrative.APIKey == "" {
		cfg.Narrative.APIKey = providerKeyFromEnv(cfg.Narrative.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// providerKeyFromEnv falls back to the provider's conventional variable.
func providerKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case narrative.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case narrative.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return ""
	}
}

// Validate checks that the configuration can be used.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendSQLite, BackendBadger:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (use sqlite, badger, or postgres)", c.Backend))
	}

	if c.HorizonDays < 1 {
		errs = append(errs, fmt.Errorf("horizon_days must be at least 1, got %d", c.HorizonDays))
	}
	if c.ReportPeriodDays < 1 {
		errs = append(errs, fmt.Errorf("report_period_days must be at least 1, got %d", c.ReportPeriodDays))
	}
	if c.LowStockThreshold < 0 {
		errs = append(errs, fmt.Errorf("low_stock_threshold must not be negative, got %d", c.LowStockThreshold))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(c.Narrative.Provider) {
	case "", narrative.ProviderRules, narrative.ProviderOpenAI, narrative.ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown narrative provider %q (use rules, openai, or gemini)", c.Narrative.Provider))
	}
	if c.Narrative.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("narrative.timeout must be positive, got %s", c.Narrative.Timeout))
	}

	if c.Trend.Window < 1 {
		errs = append(errs, fmt.Errorf("trend.window must be at least 1, got %d", c.Trend.Window))
	}
	if c.Trend.Threshold < 0 {
		errs = append(errs, fmt.Errorf("trend.threshold must not be negative, got %g", c.Trend.Threshold))
	}

	for key, spec := range map[string]string{
		"schedule.extend_cron": c.Schedule.ExtendCron,
		"schedule.report_cron": c.Schedule.ReportCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

// Location returns the configured time zone. "" and "Local" mean the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// ReportsDir is where scheduled reports are written.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.GetDataDir(), "reports")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage opens the configured Repository backend.
func (c *Config) OpenStorage(ctx context.Context, log zerolog.Logger) (storage.Repository, error) {
	return OpenBackend(ctx, c.Backend, c.GetDataDir(), c.PostgresDSN, log)
}

// OpenBackend opens a named backend. Local backends live under dataDir.
func OpenBackend(ctx context.Context, backend, dataDir, dsn string, log zerolog.Logger) (storage.Repository, error) {
	switch backend {
	case BackendSQLite, "":
		db, err := storage.Open(filepath.Join(dataDir, "medtrack.db"))
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendBadger:
		kv, err := storage.OpenKV(filepath.Join(dataDir, "kv"), log)
		if err != nil {
			return nil, err
		}
		return kv, nil
	case BackendPostgres:
		if dsn == "" {
			return nil, errors.New("postgres backend needs a DSN")
		}
		pg, err := storage.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// NarrativeOptions converts the narrative and redis sections for narrative.New.
func (c *Config) NarrativeOptions() narrative.Options {
	return narrative.Options{
		Provider:      c.Narrative.Provider,
		Model:         c.Narrative.Model,
		APIKey:        c.Narrative.APIKey,
		BaseURL:       c.Narrative.BaseURL,
		RedisAddr:     c.Redis.Addr,
		RedisPassword: c.Redis.Password,
		RedisDB:       c.Redis.DB,
		CacheTTL:      c.Redis.TTL,
	}
}

// LoggingOptions converts the log section for logging.New.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}

// TrendOptions converts the trend section.
func (c *Config) TrendOptions() adherence.TrendOptions {
	return adherence.TrendOptions{Window: c.Trend.Window, Threshold: c.Trend.Threshold}
}

// Settings returns the configuration as nested maps keyed like the config
// file, with durations as strings. The API key is masked unless reveal is set.
func (c *Config) Settings(reveal bool) map[string]any {
	key := c.Narrative.APIKey
	if key != "" && !reveal {
		key = "****"
	}
	return map[string]any{
		"backend":             c.Backend,
		"data_dir":            c.DataDir,
		"postgres_dsn":        c.PostgresDSN,
		"recipient_id":        c.RecipientID,
		"timezone":            c.Timezone,
		"horizon_days":        c.HorizonDays,
		"report_period_days":  c.ReportPeriodDays,
		"low_stock_threshold": c.LowStockThreshold,
		"locale":              c.Locale,
		"narrative": map[string]any{
			"provider": c.Narrative.Provider,
			"model":    c.Narrative.Model,
			"api_key":  key,
			"base_url": c.Narrative.BaseURL,
			"timeout":  c.Narrative.Timeout.String(),
		},
		"redis": map[string]any{
			"addr":     c.Redis.Addr,
			"password": c.Redis.Password,
			"db":       c.Redis.DB,
			"ttl":      c.Redis.TTL.String(),
		},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"trend": map[string]any{
			"window":    c.Trend.Window,
			"threshold": c.Trend.Threshold,
		},
		"schedule": map[string]any{
			"extend_cron": c.Schedule.ExtendCron,
			"report_cron": c.Schedule.ReportCron,
		},
	}
}

// Save writes the config to path (GetConfigPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = GetConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c.Settings(true), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
