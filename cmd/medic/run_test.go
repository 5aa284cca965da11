package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/capatazlib/go-capataz/cap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-medic/config"
	"github.com/capatazlib/go-medic/metrics"
)

func TestNewSinksDefaults(t *testing.T) {
	ll, _ := test.NewNullLogger()
	cfg := config.Default()

	sinks, store, err := newSinks(context.Background(), cfg, ll, metrics.NewCollector(prometheus.NewRegistry()))
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.Len(t, sinks, 2)
	assert.Contains(t, sinks, "log")
	assert.Contains(t, sinks, "metrics")
}

func TestNewSinksEnabled(t *testing.T) {
	ll, _ := test.NewNullLogger()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "events.db")
	cfg.Slack.WebhookURL = "http://127.0.0.1:1/hook"
	cfg.Mail.Host = "smtp.example.com"
	cfg.Mail.From = "medic@example.com"
	cfg.Mail.To = []string{"ops@example.com"}

	sinks, store, err := newSinks(context.Background(), cfg, ll, metrics.NewCollector(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	for _, name := range []string{"log", "metrics", "store", "slack", "mail"} {
		assert.Contains(t, sinks, name)
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, _, err := newLogger(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medic.log")
	log, closeLog, err := newLogger(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, closeLog())
	assert.FileExists(t, path)
}

func TestLivenessStartsHealthy(t *testing.T) {
	live := newLiveness()
	status := live.Report()
	assert.True(t, status.Healthy)
	assert.Empty(t, status.Failing)
}

func TestLivenessReportsFailedWorkers(t *testing.T) {
	live := newLiveness()

	spec := cap.NewSupervisorSpec(
		"medic",
		cap.WithNodes(
			cap.NewWorker("broken", func(context.Context) error {
				return errors.New("boom")
			}, cap.WithRestart(cap.Temporary)),
			cap.NewWorker("steady", func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			}),
		),
		cap.WithNotifier(live.HandleEvent),
	)
	sup, err := spec.Start(context.Background())
	require.NoError(t, err)
	defer func() { _ = sup.Terminate() }()

	assert.Eventually(t, func() bool {
		return !live.Report().Healthy
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"medic/broken"}, live.Report().Failing)
}
