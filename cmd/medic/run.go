package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/capatazlib/go-capataz/cap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-medic/api"
	"github.com/capatazlib/go-medic/audit"
	"github.com/capatazlib/go-medic/audit/mail"
	"github.com/capatazlib/go-medic/audit/slack"
	"github.com/capatazlib/go-medic/audit/sqlstore"
	"github.com/capatazlib/go-medic/backend/compose"
	"github.com/capatazlib/go-medic/config"
	"github.com/capatazlib/go-medic/health"
	"github.com/capatazlib/go-medic/metrics"
	"github.com/capatazlib/go-medic/publish"
)

const (
	// supervision tree failures tolerated before /healthz reports unhealthy
	maxTreeFailures = 0
	// time a failing worker may take to come back before it is reported
	maxTreeRestartDuration = 30 * time.Second
)

// liveness reports the health of the supervision tree on /healthz
type liveness struct {
	hc *cap.HealthcheckMonitor
}

func newLiveness() *liveness {
	return &liveness{hc: cap.NewHealthcheckMonitor(maxTreeFailures, maxTreeRestartDuration)}
}

func (l *liveness) HandleEvent(ev cap.Event) {
	l.hc.HandleEvent(ev)
}

func (l *liveness) Report() api.Liveness {
	report := l.hc.GetHealthReport()
	if report.IsHealthyReport() {
		return api.Liveness{Healthy: true}
	}
	failing := make([]string, 0, len(report.GetFailedProcesses()))
	for name := range report.GetFailedProcesses() {
		failing = append(failing, name)
	}
	for name := range report.GetDelayedRestartProcesses() {
		if !report.GetFailedProcesses()[name] {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return api.Liveness{Healthy: false, Failing: failing}
}

func newLogEventNotifier(ll logrus.FieldLogger) cap.EventNotifier {
	return func(ev cap.Event) {
		entry := ll.WithField("process_runtime_name", ev.GetProcessRuntimeName())
		if err := ev.Err(); err != nil {
			entry.WithError(err).Warn(ev.GetTag().String())
			return
		}
		entry.Debug(ev.GetTag().String())
	}
}

// newSinks builds the audit sinks enabled in the configuration. The returned
// store is nil when no event store is configured.
func newSinks(
	ctx context.Context,
	cfg config.Config,
	ll logrus.FieldLogger,
	collector *metrics.Collector,
) (map[string]health.Sink, *sqlstore.Store, error) {
	sinks := map[string]health.Sink{
		"log":     audit.NewLogSink(ll),
		"metrics": collector,
	}

	var store *sqlstore.Store
	if cfg.Store.Path != "" {
		var err error
		store, err = sqlstore.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks["store"] = store
	}

	if cfg.Slack.WebhookURL != "" {
		opts := []slack.Opt{slack.WithChannel(cfg.Slack.Channel)}
		if cfg.Slack.Username != "" {
			opts = append(opts, slack.WithUsername(cfg.Slack.Username))
		}
		if cfg.Slack.AllEvents {
			opts = append(opts, slack.WithAllEvents())
		}
		sink, err := slack.New(cfg.Slack.WebhookURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		sinks["slack"] = sink
	}

	if cfg.Mail.Host != "" {
		sink, err := mail.New(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			To:       cfg.Mail.To,
			StartTLS: cfg.Mail.StartTLS,
			Timeout:  cfg.Mail.Timeout,
		}, nil)
		if err != nil {
			return nil, nil, err
		}
		sinks["mail"] = sink
	}

	return sinks, store, nil
}

// newMonitorWorker runs the health monitor for as long as the worker lives
func newMonitorWorker(monitor *health.HealthMonitor, serverID string) cap.Node {
	return cap.NewWorker("monitor", func(ctx context.Context) error {
		if err := monitor.Start(ctx, serverID); err != nil {
			return err
		}
		<-ctx.Done()
		if err := monitor.Stop(); err != nil && !errors.Is(err, health.ErrNotStarted) {
			return err
		}
		return nil
	})
}

func run(c *cli.Context) error {
	if err := config.LoadEnvFiles(c.StringSlice("env-file")...); err != nil {
		return errorf("%s", err)
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return errorf("invalid configuration: %s", err)
	}

	log, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return errorf("invalid log settings: %s", err)
	}
	defer closeLog()
	ll := log.WithField("server_id", cfg.ServerID)

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	sinks, store, err := newSinks(ctx, cfg, ll, collector)
	if err != nil {
		return errorf("failed to build audit sinks: %s", err)
	}
	if store != nil {
		defer store.Close()
	}

	fanout := audit.NewFanout(
		sinks,
		audit.WithSinkTimeout(cfg.Monitor.SinkTimeout),
		audit.WithOnSinkFailure(func(name string, err error) {
			ll.WithError(err).WithField("sink", name).Warn("audit sink failed")
		}),
		audit.WithOnSinkTimeout(func(name string) {
			ll.WithField("sink", name).Warn("audit sink timed out")
		}),
	)

	hub := publish.NewHub(ll)
	defer hub.Close()

	backend := compose.New(append(cfg.ComposeOpts(), compose.WithLogger(ll))...)
	monitor := health.New(
		backend,
		fanout,
		append(
			cfg.HealthOpts(),
			health.WithLogger(ll),
			health.WithPublisher(hub),
			health.WithPublisher(collector),
		)...,
	)

	live := newLiveness()

	srvOpts := []api.Opt{
		api.WithStatusStream(hub),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		api.WithLiveness(live.Report),
	}
	if store != nil {
		srvOpts = append(srvOpts, api.WithEventStore(store))
	}
	server := api.NewServer(ll, monitor, srvOpts...)
	httpNode, err := server.NewHTTPNode(&http.Server{Addr: cfg.Listen})
	if err != nil {
		return errorf("failed to build control api: %s", err)
	}

	logNotifier := newLogEventNotifier(ll.WithField("component", "supervisor"))
	spec := cap.NewSupervisorSpec(
		"medic",
		cap.WithNodes(
			newMonitorWorker(monitor, cfg.ServerID),
			httpNode,
		),
		cap.WithNotifier(func(ev cap.Event) {
			logNotifier(ev)
			live.HandleEvent(ev)
		}),
	)

	sup, err := spec.Start(ctx)
	if err != nil {
		ll.WithError(err).Error("could not start supervision tree")
		return errorf("failed to start: %s", err)
	}
	ll.WithField("sinks", fanout.Names()).Info("medic started")

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	crashed := make(chan error, 1)
	go func() { crashed <- sup.Wait() }()

	select {
	case sig := <-done:
		ll.WithField("signal", sig.String()).Info("shutting down")
	case err := <-crashed:
		if err != nil {
			ll.WithError(err).Error("supervision tree crashed")
			return errorf("supervision tree crashed: %s", err)
		}
		return nil
	}

	if err := sup.Terminate(); err != nil {
		ll.WithError(err).Error("supervision tree terminated with errors")
		return errorf("shutdown failed: %s", err)
	}
	return nil
}
