package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SMTPConfig contains the outbound submission settings.
type SMTPConfig struct {
	Addr          string        `yaml:"addr"`
	From          string        `yaml:"from"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	ImplicitTLS   bool          `yaml:"implicit_tls"`
	PermalinkBase string        `yaml:"permalink_base"`
	Timeout       time.Duration `yaml:"timeout"`
}

// SchedulerConfig controls the durable tick scheduler.
type SchedulerConfig struct {
	CallbackURL   string        `yaml:"callback_url"`
	SigningKey    string        `yaml:"signing_key"`
	StorePath     string        `yaml:"store_path"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

// UnsubscribeConfig signs and targets the per-recipient opt-out links.
type UnsubscribeConfig struct {
	Secret  string `yaml:"secret"`
	BaseURL string `yaml:"base_url"`
}

type APIConfig struct {
	Key string `yaml:"key"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/sendero/app.db"
	}
	if cfg.Scheduler.StorePath == "" {
		cfg.Scheduler.StorePath = "/var/lib/sendero/jobs"
	}
	if cfg.Scheduler.PollInterval == 0 {
		cfg.Scheduler.PollInterval = time.Second
	}
	if cfg.Scheduler.RetryInterval == 0 {
		cfg.Scheduler.RetryInterval = 5 * time.Second
	}
	if cfg.Scheduler.MaxRetries == 0 {
		cfg.Scheduler.MaxRetries = 3
	}
	if cfg.SMTP.Timeout == 0 {
		cfg.SMTP.Timeout = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.SMTP.Addr == "" {
		return fmt.Errorf("smtp.addr is required")
	}
	if cfg.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required")
	}
	if cfg.Scheduler.CallbackURL == "" {
		return fmt.Errorf("scheduler.callback_url is required")
	}
	if cfg.Scheduler.SigningKey == "" {
		return fmt.Errorf("scheduler.signing_key is required")
	}
	if len(cfg.Scheduler.SigningKey) < 32 {
		return fmt.Errorf("scheduler.signing_key must be at least 32 characters")
	}
	if cfg.Unsubscribe.Secret == "" {
		return fmt.Errorf("unsubscribe.secret is required")
	}
	if len(cfg.Unsubscribe.Secret) < 32 {
		return fmt.Errorf("unsubscribe.secret must be at least 32 characters")
	}
	if cfg.Unsubscribe.BaseURL == "" {
		return fmt.Errorf("unsubscribe.base_url is required")
	}
	if cfg.API.Key == "" {
		return fmt.Errorf("api.key is required")
	}
	return nil
}
