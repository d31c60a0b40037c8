package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Event store kinds.
const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config is the daemon configuration loaded from sequencer.yaml.
type Config struct {
	Version int `yaml:"version"`
	Room    struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"room"`
	Network struct {
		UIPort int `yaml:"ui_port"`
	} `yaml:"network"`
	Driver struct {
		TickRateHz int      `yaml:"tick_rate_hz"`
		MaxDelta   Duration `yaml:"max_delta"`
	} `yaml:"driver"`
	Timelines struct {
		Dir   string `yaml:"dir"`
		Watch bool   `yaml:"watch"`
	} `yaml:"timelines"`
	Schedules []Schedule `yaml:"schedules"`
	Timezone  string     `yaml:"timezone"`
	Events    struct {
		Store      string `yaml:"store"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"events"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Schedule starts a timeline on a cron expression.
type Schedule struct {
	Timeline string `yaml:"timeline"`
	Cron     string `yaml:"cron"`
	Subject  string `yaml:"subject"`
}

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *Config) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// TickRate returns the driver tick rate, defaulting to 60Hz.
func (c *Config) TickRate() int {
	if c.Driver.TickRateHz <= 0 {
		return 60
	}
	return c.Driver.TickRateHz
}

// MaxDelta returns the per-tick delta clamp; 0 disables clamping.
func (c *Config) MaxDelta() time.Duration {
	return time.Duration(c.Driver.MaxDelta)
}

// TimelineDir returns the directory timeline files are loaded from.
func (c *Config) TimelineDir() string {
	if c.Timelines.Dir == "" {
		return "timelines"
	}
	return c.Timelines.Dir
}

// EventStore returns the configured event store kind.
func (c *Config) EventStore() string {
	if c.Events.Store == "" {
		return StoreNone
	}
	return c.Events.Store
}

// SQLitePath returns the sqlite event database path.
func (c *Config) SQLitePath() string {
	if c.Events.SQLitePath == "" {
		return "data/events.db"
	}
	return c.Events.SQLitePath
}

// LogLevel returns the log level, defaulting to info.
func (c *Config) LogLevel() string {
	if c.Log.Level == "" {
		return "info"
	}
	return c.Log.Level
}

// LogFormat returns console or json, defaulting to console.
func (c *Config) LogFormat() string {
	if c.Log.Format == "" {
		return "console"
	}
	return c.Log.Format
}

// Location returns the timezone schedules run in.
func (c *Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported sequencer.yaml version: %d", c.Version)
	}
	switch c.EventStore() {
	case StoreNone, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("unknown event store: %s", c.Events.Store)
	}
	switch c.LogFormat() {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}
	if c.Driver.MaxDelta < 0 {
		return fmt.Errorf("driver.max_delta must not be negative")
	}
	for i, s := range c.Schedules {
		if s.Timeline == "" {
			return fmt.Errorf("schedules[%d]: timeline required", i)
		}
		if s.Cron == "" {
			return fmt.Errorf("schedules[%d]: cron required", i)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Parse decodes and validates a sequencer.yaml document.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
