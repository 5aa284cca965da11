package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "MEDIC_"

type envLookup func(string) (string, bool)

type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

func stringVar(set func(*Config, string)) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		set(cfg, value)
		return nil
	}
}

func durationVar(set func(*Config, time.Duration)) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		set(cfg, d)
		return nil
	}
}

func intVar(set func(*Config, int)) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		set(cfg, n)
		return nil
	}
}

func boolVar(set func(*Config, bool)) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		set(cfg, b)
		return nil
	}
}

var envBindings = []envBinding{
	{"SERVER_ID", stringVar(func(c *Config, v string) { c.ServerID = v })},
	{"LISTEN", stringVar(func(c *Config, v string) { c.Listen = v })},

	{"LOG_LEVEL", stringVar(func(c *Config, v string) { c.Log.Level = v })},
	{"LOG_FORMAT", stringVar(func(c *Config, v string) { c.Log.Format = v })},
	{"LOG_FILE", stringVar(func(c *Config, v string) { c.Log.File = v })},

	{"COMPOSE_BINARY", stringVar(func(c *Config, v string) { c.Compose.Binary = v })},
	{"COMPOSE_DIR", stringVar(func(c *Config, v string) { c.Compose.ProjectDir = v })},
	{"COMPOSE_PROJECT", stringVar(func(c *Config, v string) { c.Compose.ProjectName = v })},
	{"COMPOSE_PROFILE", stringVar(func(c *Config, v string) { c.Compose.Profile = v })},

	{"CHECK_INTERVAL", durationVar(func(c *Config, d time.Duration) { c.Monitor.CheckInterval = d })},
	{"STARTUP_DELAY", durationVar(func(c *Config, d time.Duration) { c.Monitor.StartupDelay = d })},
	{"RESTARTING_TIMEOUT", durationVar(func(c *Config, d time.Duration) { c.Monitor.RestartingTimeout = d })},
	{"REMEDIATION_COOLDOWN", durationVar(func(c *Config, d time.Duration) { c.Monitor.RemediationCooldown = d })},
	{"ATTEMPT_RESET_WINDOW", durationVar(func(c *Config, d time.Duration) { c.Monitor.AttemptResetWindow = d })},
	{"MAX_ATTEMPTS", intVar(func(c *Config, n int) {
		if n < 0 {
			n = 0
		}
		c.Monitor.MaxAttempts = uint32(n)
	})},
	{"CRITICAL_SERVICES", stringVar(func(c *Config, v string) { c.Monitor.CriticalServices = splitList(v) })},

	{"STORE_PATH", stringVar(func(c *Config, v string) { c.Store.Path = v })},

	{"SLACK_WEBHOOK_URL", stringVar(func(c *Config, v string) { c.Slack.WebhookURL = v })},
	{"SLACK_CHANNEL", stringVar(func(c *Config, v string) { c.Slack.Channel = v })},
	{"SLACK_USERNAME", stringVar(func(c *Config, v string) { c.Slack.Username = v })},

	{"SMTP_HOST", stringVar(func(c *Config, v string) { c.Mail.Host = v })},
	{"SMTP_PORT", intVar(func(c *Config, n int) { c.Mail.Port = n })},
	{"SMTP_USERNAME", stringVar(func(c *Config, v string) { c.Mail.Username = v })},
	{"SMTP_PASSWORD", stringVar(func(c *Config, v string) { c.Mail.Password = v })},
	{"SMTP_STARTTLS", boolVar(func(c *Config, b bool) { c.Mail.StartTLS = b })},
	{"MAIL_FROM", stringVar(func(c *Config, v string) { c.Mail.From = v })},
	{"MAIL_TO", stringVar(func(c *Config, v string) { c.Mail.To = splitList(v) })},
}

// applyEnv overrides the configuration with the MEDIC_* variables that are set
func applyEnv(cfg *Config, lookup envLookup) error {
	for _, binding := range envBindings {
		name := EnvPrefix + binding.name
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := binding.apply(cfg, value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}
