package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/basket/udo/internal/otel"
)

const (
	defaultReminderMinutes = 30
	defaultRecentSessions  = 5
	defaultSummaryChars    = 300
)

type Config struct {
	HomeDir string `yaml:"-"`

	// ContextFilePath is where the rendered context document is written.
	// Empty means <home>/current-context.md.
	ContextFilePath string `yaml:"context_file_path"`
	LogLevel        string `yaml:"log_level"`

	ReminderEnabled         bool `yaml:"reminder_enabled"`
	ReminderIntervalMinutes int  `yaml:"reminder_interval_minutes"`
	// ReminderSchedule is a 5-field cron expression. When set it replaces
	// the fixed interval.
	ReminderSchedule string `yaml:"reminder_schedule"`

	AutoHandoffOnClose bool `yaml:"auto_handoff_on_close"`
	AutoSaveOnClose    bool `yaml:"auto_save_on_close"`

	RecentSessions int `yaml:"recent_sessions"`
	SummaryChars   int `yaml:"summary_chars"`

	OTel otel.Config `yaml:"otel"`

	// Missing is set when config.yaml does not exist yet.
	Missing bool `yaml:"-"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// IndexPath returns the global project index inside the home directory.
func (c Config) IndexPath() string {
	return filepath.Join(c.HomeDir, "index.json")
}

// ProjectsDir returns the parent directory of all external storage paths.
func (c Config) ProjectsDir() string {
	return filepath.Join(c.HomeDir, "projects")
}

// CatalogPath returns the sqlite session catalog path.
func (c Config) CatalogPath() string {
	return filepath.Join(c.HomeDir, "catalog.db")
}

// ReminderInterval returns the reminder period as a duration.
func (c Config) ReminderInterval() time.Duration {
	return time.Duration(c.ReminderIntervalMinutes) * time.Minute
}

// Fingerprint returns a stable hash of the settings that affect a running watcher.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "ctx=%s|log=%s|rem=%t/%d/%s|close=%t/%t|recent=%d|chars=%d",
		c.ContextFilePath, c.LogLevel,
		c.ReminderEnabled, c.ReminderIntervalMinutes, c.ReminderSchedule,
		c.AutoHandoffOnClose, c.AutoSaveOnClose,
		c.RecentSessions, c.SummaryChars)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	return Config{
		LogLevel:                "info",
		ReminderEnabled:         true,
		ReminderIntervalMinutes: defaultReminderMinutes,
		AutoHandoffOnClose:      true,
		AutoSaveOnClose:         true,
		RecentSessions:          defaultRecentSessions,
		SummaryChars:            defaultSummaryChars,
		OTel: otel.Config{
			Exporter:    "none",
			ServiceName: "udo",
		},
	}
}

// HomeDir returns the global udo directory. UDO_HOME overrides ~/.udo.
func HomeDir() string {
	if override := os.Getenv("UDO_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".udo")
}

// Load reads config.yaml from the home directory, layering env overrides on
// top. A missing file yields the defaults with Missing set.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create udo home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.Missing = true
		} else {
			return cfg, fmt.Errorf("read config.yaml: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// WriteDefault writes a config.yaml holding the defaults. An existing file is
// left untouched and reported through the bool result.
func WriteDefault(homeDir string) (bool, error) {
	path := ConfigPath(homeDir)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		return false, fmt.Errorf("create udo home: %w", err)
	}
	cfg := defaultConfig()
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config.yaml: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return false, fmt.Errorf("write config.yaml: %w", err)
	}
	return true, nil
}

// Set updates a single top-level key in config.yaml, preserving other settings.
func Set(homeDir, key, value string) error {
	path := ConfigPath(homeDir)
	raw, err := loadRawConfig(path)
	if err != nil {
		return err
	}
	raw[key] = parseScalar(value)
	return saveRawConfig(path, raw)
}

func loadRawConfig(path string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config.yaml: %w", err)
		}
	}
	return raw, nil
}

func saveRawConfig(path string, raw map[string]interface{}) error {
	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create udo home: %w", err)
	}
	return os.WriteFile(path, out, 0o644)
}

// parseScalar keeps `udo config set reminder_enabled false` typed in yaml.
func parseScalar(v string) interface{} {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return v
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.ContextFilePath) == "" {
		cfg.ContextFilePath = filepath.Join(cfg.HomeDir, "current-context.md")
	} else if strings.HasPrefix(cfg.ContextFilePath, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.ContextFilePath = filepath.Join(home, cfg.ContextFilePath[2:])
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ReminderIntervalMinutes <= 0 {
		cfg.ReminderIntervalMinutes = defaultReminderMinutes
	}
	if cfg.RecentSessions <= 0 {
		cfg.RecentSessions = defaultRecentSessions
	}
	if cfg.SummaryChars <= 0 {
		cfg.SummaryChars = defaultSummaryChars
	}
	cfg.ReminderSchedule = strings.TrimSpace(cfg.ReminderSchedule)
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "udo"
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("UDO_CONTEXT_FILE"); raw != "" {
		cfg.ContextFilePath = raw
	}
	if raw := os.Getenv("UDO_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("UDO_REMINDER_INTERVAL_MINUTES"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.ReminderIntervalMinutes = v
		}
	}
	if raw := os.Getenv("UDO_OTEL_EXPORTER"); raw != "" {
		cfg.OTel.Enabled = raw != "none"
		cfg.OTel.Exporter = raw
	}
	if raw := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); raw != "" {
		cfg.OTel.Endpoint = raw
	}
}
