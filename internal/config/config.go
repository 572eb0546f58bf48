// Package config loads and validates the autoposter configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServerAddress     = ":8070"
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultAuthWait          = 60 * time.Second
	defaultNavigationTimeout = 60 * time.Second
	defaultSettleDelay       = 2 * time.Second
	defaultStreamMaxDuration = 10 * time.Minute
	defaultStreamKeepalive   = 5 * time.Second
	defaultQueueSize         = 64
	defaultWorkers           = 2
)

// Config is the root configuration for the service.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sessions SessionsConfig `yaml:"sessions"`
	Browser  BrowserConfig  `yaml:"browser"`
	Posting  PostingConfig  `yaml:"posting"`
	Runner   RunnerConfig   `yaml:"runner"`
	Stream   StreamConfig   `yaml:"stream"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionsConfig controls the session store and interactive authentication.
type SessionsConfig struct {
	Dir string `yaml:"dir"`
	// LoginURL is the page opened for interactive authentication.
	LoginURL string `yaml:"login_url"`
	// AuthWait bounds how long the operator has to complete a manual login.
	AuthWait time.Duration `yaml:"auth_wait"`
	// MarkerCookie is the cookie whose presence signals a completed login.
	MarkerCookie string `yaml:"marker_cookie"`
}

// BrowserConfig controls the chromedp driver.
type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	// SettleDelay is waited after layout-shifting actions (image upload,
	// dropdown open) before the next field is located.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// PostingConfig controls the posting orchestrator.
type PostingConfig struct {
	CreateURL     string `yaml:"create_url"`
	Category      string `yaml:"category"`
	Condition     string `yaml:"condition"`
	Availability  string `yaml:"availability"`
	ScreenshotDir string `yaml:"screenshot_dir"`
}

// RunnerConfig controls the run queue.
type RunnerConfig struct {
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	CronSpec  string `yaml:"cron_spec"` // optional: enqueue "run pending" on this schedule
}

// StreamConfig controls the SSE status stream.
type StreamConfig struct {
	MaxDuration       time.Duration `yaml:"max_duration"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if c.Sessions.Dir == "" {
		return errors.New("sessions.dir is required")
	}
	if c.Posting.CreateURL == "" {
		return errors.New("posting.create_url is required")
	}
	if c.Sessions.AuthWait <= 0 {
		return fmt.Errorf("sessions.auth_wait must be positive, got %v", c.Sessions.AuthWait)
	}
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("runner.workers must be positive, got %d", c.Runner.Workers)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Sessions.AuthWait == 0 {
		cfg.Sessions.AuthWait = defaultAuthWait
	}
	if cfg.Browser.NavigationTimeout == 0 {
		cfg.Browser.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.Browser.SettleDelay == 0 {
		cfg.Browser.SettleDelay = defaultSettleDelay
	}
	if cfg.Posting.Category == "" {
		cfg.Posting.Category = "Furniture"
	}
	if cfg.Posting.Condition == "" {
		cfg.Posting.Condition = "New"
	}
	if cfg.Posting.Availability == "" {
		cfg.Posting.Availability = "In stock"
	}
	if cfg.Posting.ScreenshotDir == "" {
		cfg.Posting.ScreenshotDir = "screenshots"
	}
	if cfg.Runner.Workers == 0 {
		cfg.Runner.Workers = defaultWorkers
	}
	if cfg.Runner.QueueSize == 0 {
		cfg.Runner.QueueSize = defaultQueueSize
	}
	if cfg.Stream.MaxDuration == 0 {
		cfg.Stream.MaxDuration = defaultStreamMaxDuration
	}
	if cfg.Stream.KeepaliveInterval == 0 {
		cfg.Stream.KeepaliveInterval = defaultStreamKeepalive
	}
}

// overrideWithEnvVars overrides configuration with environment variables.
func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SESSIONS_DIR"); v != "" {
		cfg.Sessions.Dir = v
	}
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("AUTOPOSTER_PORT"); v != "" {
		cfg.Server.Address = ":" + v
	}
}

// Load reads, defaults, env-overrides and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses common boolean string representations.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
