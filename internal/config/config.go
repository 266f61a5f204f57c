// Package config loads and persists the tool configuration at
// ~/.kobo-notion-sync/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mrlokans/kobo-notion-sync/internal/entities"
)

// ErrNotFound is returned when no config file exists yet; the caller
// should direct the user to the setup wizard.
var ErrNotFound = errors.New("configuration not found, run setup first")

// ConfigurationError marks config problems distinctly from sync failures
// so the CLI can map them to the right exit code.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// DedupStrategy selects how already-synced highlights are recognized.
type DedupStrategy string

const (
	// DedupByDate compares device last-read dates against the remote
	// tracking property. The default.
	DedupByDate DedupStrategy = "date"
	// DedupByCache consults the local hash cache per highlight.
	DedupByCache DedupStrategy = "cache"
)

type (
	Config struct {
		Notion   Notion
		Device   Device
		Sync     Sync
		Schedule Schedule
	}

	Notion struct {
		DatabaseID     string
		WorkspaceName  string
		HasDescription bool
		HasTimeSpent   bool
	}

	Device struct {
		MountPath string // empty means auto-detect
	}

	Sync struct {
		DedupStrategy DedupStrategy
		Notifications bool
	}

	Schedule struct {
		Enabled bool
		Time    string // HH:MM, local time
	}
)

// Dir returns the configuration directory, ~/.kobo-notion-sync.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".kobo-notion-sync"), nil
}

func defaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.workspace_name", "")
	v.SetDefault("notion.has_description", false)
	v.SetDefault("notion.has_time_spent", false)
	v.SetDefault("device.mount_path", "")
	v.SetDefault("sync.dedup_strategy", string(DedupByDate))
	v.SetDefault("sync.notifications", true)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.time", "09:00")

	return v
}

// Load reads the default config file.
func Load() (*Config, error) {
	path, err := defaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates a config file at an explicit path.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, ErrNotFound
	}

	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	cfg := &Config{
		Notion: Notion{
			DatabaseID:     v.GetString("notion.database_id"),
			WorkspaceName:  v.GetString("notion.workspace_name"),
			HasDescription: v.GetBool("notion.has_description"),
			HasTimeSpent:   v.GetBool("notion.has_time_spent"),
		},
		Device: Device{
			MountPath: v.GetString("device.mount_path"),
		},
		Sync: Sync{
			DedupStrategy: DedupStrategy(v.GetString("sync.dedup_strategy")),
			Notifications: v.GetBool("sync.notifications"),
		},
		Schedule: Schedule{
			Enabled: v.GetBool("schedule.enabled"),
			Time:    v.GetString("schedule.time"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field formats. Called on load and before save.
func (c *Config) Validate() error {
	if c.Notion.DatabaseID == "" {
		return &ConfigurationError{Field: "notion.database_id", Reason: "missing, run setup first"}
	}
	if !entities.ValidUUID(c.Notion.DatabaseID) {
		return &ConfigurationError{Field: "notion.database_id", Reason: "must be a UUID (8-4-4-4-12 hex)"}
	}
	switch c.Sync.DedupStrategy {
	case DedupByDate, DedupByCache:
	default:
		return &ConfigurationError{Field: "sync.dedup_strategy", Reason: `must be "date" or "cache"`}
	}
	if c.Schedule.Enabled && !entities.ValidScheduleTime(c.Schedule.Time) {
		return &ConfigurationError{Field: "schedule.time", Reason: "must be HH:MM"}
	}
	return nil
}

// Save validates and writes the config to the default location, creating
// the directory on first run.
func (c *Config) Save() error {
	path, err := defaultPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to an explicit path.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := newViper(path)
	v.Set("notion.database_id", c.Notion.DatabaseID)
	v.Set("notion.workspace_name", c.Notion.WorkspaceName)
	v.Set("notion.has_description", c.Notion.HasDescription)
	v.Set("notion.has_time_spent", c.Notion.HasTimeSpent)
	v.Set("device.mount_path", c.Device.MountPath)
	v.Set("sync.dedup_strategy", string(c.Sync.DedupStrategy))
	v.Set("sync.notifications", c.Sync.Notifications)
	v.Set("schedule.enabled", c.Schedule.Enabled)
	v.Set("schedule.time", c.Schedule.Time)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
