package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-medic/health"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.ServerID = "srv-1"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"sing-box", "wireguard", "admin"}, cfg.Monitor.CriticalServices)
	assert.Equal(t, "/opt/moav", cfg.Compose.ProjectDir)
	assert.Equal(t, time.Minute, cfg.Monitor.CheckInterval)
	assert.Equal(t, uint32(3), cfg.Monitor.MaxAttempts)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("MEDIC_SERVER_ID", "srv-1")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, cfg.Listen)
	assert.Equal(t, "srv-1", cfg.ServerID)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "medic.yaml", `
server_id: edge-7
listen: 0.0.0.0:9000
log:
  level: debug
  format: json
compose:
  project_dir: /srv/stack
  profile: ""
monitor:
  check_interval: 30s
  remediation_cooldown: 10m
  max_attempts: 5
  critical_services: [db, proxy]
store:
  path: /var/lib/medic/events.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "edge-7", cfg.ServerID)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/srv/stack", cfg.Compose.ProjectDir)
	assert.Equal(t, "", cfg.Compose.Profile)
	assert.Equal(t, 30*time.Second, cfg.Monitor.CheckInterval)
	assert.Equal(t, 10*time.Minute, cfg.Monitor.RemediationCooldown)
	assert.Equal(t, uint32(5), cfg.Monitor.MaxAttempts)
	assert.Equal(t, []string{"db", "proxy"}, cfg.Monitor.CriticalServices)
	assert.Equal(t, "/var/lib/medic/events.db", cfg.Store.Path)

	// untouched keys keep their defaults
	assert.Equal(t, health.DefaultRestartingTimeout, cfg.Monitor.RestartingTimeout)
	assert.Equal(t, "moav-", cfg.Compose.NamePrefix)
	assert.Len(t, cfg.HealthOpts(), 15)
	assert.Len(t, cfg.ComposeOpts(), 5)
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		content string
	}{
		{desc: "malformed yaml", content: "monitor: [\n"},
		{desc: "bad duration", content: "monitor:\n  check_interval: soon\n"},
		{desc: "zero interval", content: "monitor:\n  check_interval: 0s\n"},
		{desc: "unknown log format", content: "log:\n  format: xml\n"},
		{desc: "unknown log level", content: "log:\n  level: chatty\n"},
		{desc: "settle delay above recreate timeout", content: "monitor:\n  recreate_timeout: 1s\n  recreate_settle_delay: 2s\n"},
		{desc: "mail without recipients", content: "mail:\n  host: smtp.example.com\n  from: medic@example.com\n"},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			t.Setenv("MEDIC_SERVER_ID", "srv-1")
			_, err := Load(writeFile(t, "medic.yaml", tc.content))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MEDIC_SERVER_ID":         "srv-9",
		"MEDIC_CHECK_INTERVAL":    "2m",
		"MEDIC_MAX_ATTEMPTS":      "4",
		"MEDIC_CRITICAL_SERVICES": "auth, wireguard,,",
		"MEDIC_SMTP_PORT":         "2525",
		"MEDIC_SMTP_STARTTLS":     "true",
		"MEDIC_MAIL_TO":           "ops@example.com,oncall@example.com",
		"MEDIC_SLACK_USERNAME":    "edge-medic",
	}
	lookup := func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, applyEnv(&cfg, lookup))

	assert.Equal(t, "srv-9", cfg.ServerID)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.CheckInterval)
	assert.Equal(t, uint32(4), cfg.Monitor.MaxAttempts)
	assert.Equal(t, []string{"auth", "wireguard"}, cfg.Monitor.CriticalServices)
	assert.Equal(t, 2525, cfg.Mail.Port)
	assert.True(t, cfg.Mail.StartTLS)
	assert.Equal(t, []string{"ops@example.com", "oncall@example.com"}, cfg.Mail.To)
	assert.Equal(t, "edge-medic", cfg.Slack.Username)
}

func TestApplyEnvRejectsInvalidValues(t *testing.T) {
	cfg := Default()
	err := applyEnv(&cfg, func(name string) (string, bool) {
		if name == "MEDIC_STARTUP_DELAY" {
			return "later", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "MEDIC_STARTUP_DELAY")
}

func TestLoadEnvFiles(t *testing.T) {
	path := writeFile(t, ".env", "MEDIC_TEST_ONLY_VALUE=from-dotenv\n")
	t.Setenv("MEDIC_TEST_ONLY_VALUE", "")
	require.NoError(t, os.Unsetenv("MEDIC_TEST_ONLY_VALUE"))

	require.NoError(t, LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "from-dotenv", os.Getenv("MEDIC_TEST_ONLY_VALUE"))
}
