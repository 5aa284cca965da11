// Package config loads the settings of the medic daemon from a YAML file, .env
// files and MEDIC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/capatazlib/go-medic/backend/compose"
	"github.com/capatazlib/go-medic/health"
)

// DefaultListenAddr is the address of the control API
const DefaultListenAddr = "127.0.0.1:8480"

// Config represents the configuration of the medic daemon
type Config struct {
	ServerID string        `yaml:"server_id"`
	Listen   string        `yaml:"listen"`
	Log      LogConfig     `yaml:"log"`
	Compose  ComposeConfig `yaml:"compose"`
	Monitor  MonitorConfig `yaml:"monitor"`
	Store    StoreConfig   `yaml:"store"`
	Slack    SlackConfig   `yaml:"slack"`
	Mail     MailConfig    `yaml:"mail"`
}

// LogConfig sets the format and destination of the daemon logs
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File enables a rotating log file besides stdout
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ComposeConfig sets the docker compose project that is monitored
type ComposeConfig struct {
	Binary      string `yaml:"binary"`
	ProjectDir  string `yaml:"project_dir"`
	ProjectName string `yaml:"project_name"`
	Profile     string `yaml:"profile"`
	NamePrefix  string `yaml:"name_prefix"`
}

// MonitorConfig mirrors the health.HealthMonitor options
type MonitorConfig struct {
	CheckInterval       time.Duration `yaml:"check_interval"`
	StartupDelay        time.Duration `yaml:"startup_delay"`
	RestartingTimeout   time.Duration `yaml:"restarting_timeout"`
	RemediationCooldown time.Duration `yaml:"remediation_cooldown"`
	MaxAttempts         uint32        `yaml:"max_attempts"`
	AttemptResetWindow  time.Duration `yaml:"attempt_reset_window"`
	CriticalServices    []string      `yaml:"critical_services"`
	DiagnosticLines     int           `yaml:"diagnostic_lines"`

	StatusTimeout       time.Duration `yaml:"status_timeout"`
	LogsTimeout         time.Duration `yaml:"logs_timeout"`
	RestartTimeout      time.Duration `yaml:"restart_timeout"`
	RecreateTimeout     time.Duration `yaml:"recreate_timeout"`
	RecreateSettleDelay time.Duration `yaml:"recreate_settle_delay"`
	SinkTimeout         time.Duration `yaml:"sink_timeout"`
	PublishTimeout      time.Duration `yaml:"publish_timeout"`
}

// StoreConfig enables the SQLite event store when Path is set
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SlackConfig enables the Slack sink when WebhookURL is set
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
	AllEvents  bool   `yaml:"all_events"`
}

// MailConfig enables the mail sink when Host is set
type MailConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	To       []string      `yaml:"to"`
	StartTLS bool          `yaml:"starttls"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is provided
func Default() Config {
	hostname, _ := os.Hostname()
	return Config{
		ServerID: hostname,
		Listen:   DefaultListenAddr,
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Compose: ComposeConfig{
			Binary:     compose.DefaultBinary,
			ProjectDir: compose.DefaultProjectDir,
			Profile:    compose.DefaultProfile,
			NamePrefix: compose.DefaultNamePrefix,
		},
		Monitor: MonitorConfig{
			CheckInterval:       health.DefaultCheckInterval,
			StartupDelay:        health.DefaultStartupDelay,
			RestartingTimeout:   health.DefaultRestartingTimeout,
			RemediationCooldown: health.DefaultRemediationCooldown,
			MaxAttempts:         health.DefaultMaxRemediationAttempts,
			AttemptResetWindow:  health.DefaultAttemptResetWindow,
			CriticalServices:    append([]string(nil), health.DefaultCriticalServices...),
			DiagnosticLines:     health.DefaultDiagnosticLines,
			StatusTimeout:       health.DefaultStatusTimeout,
			LogsTimeout:         health.DefaultLogsTimeout,
			RestartTimeout:      health.DefaultRestartTimeout,
			RecreateTimeout:     health.DefaultRecreateTimeout,
			RecreateSettleDelay: health.DefaultRecreateSettleDelay,
			SinkTimeout:         health.DefaultSinkTimeout,
			PublishTimeout:      health.DefaultPublishTimeout,
		},
		Mail: MailConfig{
			Port:    587,
			Timeout: 10 * time.Second,
		},
	}
}

// LoadEnvFiles loads the given .env files into the process environment;
// missing files are ignored and variables already set are not overridden
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		err := godotenv.Load(file)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return nil
}

// Load reads the YAML file at path on top of the defaults, applies the MEDIC_*
// environment overrides and validates the result. A missing file falls back to
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration is usable
func (cfg Config) Validate() error {
	if cfg.ServerID == "" {
		return errors.New("server_id is required")
	}
	if cfg.Listen == "" {
		return errors.New("listen address is required")
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	if cfg.Compose.ProjectDir == "" {
		return errors.New("compose.project_dir is required")
	}

	m := cfg.Monitor
	for name, d := range map[string]time.Duration{
		"check_interval":       m.CheckInterval,
		"restarting_timeout":   m.RestartingTimeout,
		"attempt_reset_window": m.AttemptResetWindow,
		"status_timeout":       m.StatusTimeout,
		"logs_timeout":         m.LogsTimeout,
		"restart_timeout":      m.RestartTimeout,
		"recreate_timeout":     m.RecreateTimeout,
		"sink_timeout":         m.SinkTimeout,
		"publish_timeout":      m.PublishTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("monitor.%s must be positive, got %s", name, d)
		}
	}
	if m.StartupDelay < 0 || m.RemediationCooldown < 0 || m.RecreateSettleDelay < 0 {
		return errors.New("monitor delays can't be negative")
	}
	if m.RecreateSettleDelay >= m.RecreateTimeout {
		return fmt.Errorf(
			"monitor.recreate_settle_delay (%s) must be lower than monitor.recreate_timeout (%s)",
			m.RecreateSettleDelay, m.RecreateTimeout,
		)
	}
	if m.MaxAttempts == 0 {
		return errors.New("monitor.max_attempts must be at least 1")
	}

	if cfg.Mail.Host != "" {
		if cfg.Mail.From == "" || len(cfg.Mail.To) == 0 {
			return errors.New("mail.from and mail.to are required when mail.host is set")
		}
		if cfg.Mail.Port <= 0 {
			return fmt.Errorf("mail.port must be positive, got %d", cfg.Mail.Port)
		}
	}
	return nil
}

// HealthOpts returns the monitor options of the configuration
func (cfg Config) HealthOpts() []health.Opt {
	m := cfg.Monitor
	return []health.Opt{
		health.WithCheckInterval(m.CheckInterval),
		health.WithStartupDelay(m.StartupDelay),
		health.WithRestartingTimeout(m.RestartingTimeout),
		health.WithRemediationCooldown(m.RemediationCooldown),
		health.WithMaxRemediationAttempts(m.MaxAttempts),
		health.WithAttemptResetWindow(m.AttemptResetWindow),
		health.WithCriticalServices(m.CriticalServices...),
		health.WithDiagnosticLines(m.DiagnosticLines),
		health.WithStatusTimeout(m.StatusTimeout),
		health.WithLogsTimeout(m.LogsTimeout),
		health.WithRestartTimeout(m.RestartTimeout),
		health.WithRecreateTimeout(m.RecreateTimeout),
		health.WithRecreateSettleDelay(m.RecreateSettleDelay),
		health.WithSinkTimeout(m.SinkTimeout),
		health.WithPublishTimeout(m.PublishTimeout),
	}
}

// ComposeOpts returns the backend options of the configuration
func (cfg Config) ComposeOpts() []compose.Opt {
	c := cfg.Compose
	return []compose.Opt{
		compose.WithRunner(compose.ExecRunner{Binary: c.Binary}),
		compose.WithProjectDir(c.ProjectDir),
		compose.WithProjectName(c.ProjectName),
		compose.WithProfile(c.Profile),
		compose.WithNamePrefix(c.NamePrefix),
	}
}

func splitList(value string) []string {
	acc := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			acc = append(acc, item)
		}
	}
	return acc
}
