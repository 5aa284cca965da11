package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CycleResult is the outcome of a single check cycle
type CycleResult struct {
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at"`
	// Skipped is true when the cycle was abandoned before evaluating services
	Skipped      bool               `json:"skipped"`
	SkipReason   string             `json:"skip_reason,omitempty"`
	Remediations []RemediationEvent `json:"remediations"`
	Snapshot     Snapshot           `json:"snapshot"`
}

// HealthMonitor observes the services of a Backend and remediates the ones
// stuck in a failure condition, escalating from a soft restart to a hard
// recreate on consecutive failures.
type HealthMonitor struct {
	backend    Backend
	sink       Sink
	settings   settings
	tolerance  attemptTolerance
	rules      issueRules
	escalation escalation
	ll         logrus.FieldLogger

	// cycleSem serializes check cycles, scheduled and manual ones alike
	cycleSem chan struct{}

	mu           sync.Mutex
	observations map[string]*Observation
	lastSnapshot Snapshot
	serverID     string
	running      bool
	// epoch changes on every Start and Stop; cycles started before it
	// discard their results
	epoch     uint64
	cancel    context.CancelFunc
	scheduler *cron.Cron
}

// New creates a HealthMonitor for the given backend. Remediation events are
// handed to sink, which may be nil.
func New(backend Backend, sink Sink, opts ...Opt) *HealthMonitor {
	s := defaultSettings()
	for _, optFn := range opts {
		optFn(&s)
	}
	if sink == nil {
		sink = nopSink
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}

	return &HealthMonitor{
		backend:  backend,
		sink:     sink,
		settings: s,
		tolerance: attemptTolerance{
			MaxAttempts: s.maxAttempts,
			ResetWindow: s.attemptResetWindow,
			Cooldown:    s.remediationCooldown,
		},
		rules:        newIssueRules(s.restartingTimeout, s.criticalServices),
		escalation:   defaultEscalation,
		ll:           s.logger.WithField("component", "health-monitor"),
		cycleSem:     make(chan struct{}, 1),
		observations: make(map[string]*Observation),
	}
}

// Start schedules the first check cycle after the startup delay and then one
// every check interval. Events are tagged with the given server ID.
//
// Cancelling ctx stops the monitor.
func (m *HealthMonitor) Start(ctx context.Context, serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.epoch++
	epoch := m.epoch

	scheduler := newScheduler(m.ll)
	scheduler.Schedule(
		newDelayedSchedule(time.Now(), m.settings.startupDelay, m.settings.checkInterval),
		cron.FuncJob(func() { m.scheduledCycle(runCtx, epoch) }),
	)
	scheduler.Start()

	// a new run never inherits history from cycles run while stopped
	m.observations = make(map[string]*Observation)
	m.lastSnapshot = Snapshot{}
	m.running = true
	m.serverID = serverID
	m.cancel = cancel
	m.scheduler = scheduler

	go func() {
		<-runCtx.Done()
		if ctx.Err() != nil {
			m.stopEpoch(epoch)
		}
	}()

	m.ll.WithFields(logrus.Fields{
		"server_id":      serverID,
		"startup_delay":  m.settings.startupDelay.String(),
		"check_interval": m.settings.checkInterval.String(),
	}).Info("health monitor started")
	return nil
}

// Stop cancels the schedule and forgets every observation. Remediation actions
// in flight may complete, but their results are discarded.
func (m *HealthMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotStarted
	}
	m.stopLocked()
	return nil
}

func (m *HealthMonitor) stopEpoch(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running && m.epoch == epoch {
		m.stopLocked()
	}
}

func (m *HealthMonitor) stopLocked() {
	m.epoch++
	m.running = false
	m.cancel()
	// cron.Stop does not wait for a running job; that job notices the epoch
	// change and drops its results
	m.scheduler.Stop()
	m.scheduler = nil
	m.cancel = nil
	m.serverID = ""
	m.observations = make(map[string]*Observation)
	m.lastSnapshot = Snapshot{}
	m.ll.Info("health monitor stopped")
}

// IsRunning indicates if the monitor has a schedule in place
func (m *HealthMonitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// CheckNow runs one check cycle immediately and returns once it completes. It
// shares the entry point of scheduled cycles, so it waits for a running cycle
// to finish first. The returned error is non-nil only when ctx is done before
// the cycle could start; once started, the cycle runs to completion even if
// ctx is cancelled.
func (m *HealthMonitor) CheckNow(ctx context.Context) (CycleResult, error) {
	select {
	case m.cycleSem <- struct{}{}:
	case <-ctx.Done():
		return CycleResult{}, fmt.Errorf("could not start check cycle: %w", ctx.Err())
	}
	defer func() { <-m.cycleSem }()

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	return m.runCheckCycle(context.WithoutCancel(ctx), epoch), nil
}

// Observations returns a copy of the current observation of every service
func (m *HealthMonitor) Observations() map[string]Observation {
	m.mu.Lock()
	defer m.mu.Unlock()

	acc := make(map[string]Observation, len(m.observations))
	for name, obs := range m.observations {
		acc[name] = *obs
	}
	return acc
}

// Snapshot returns the status published by the last completed check cycle
func (m *HealthMonitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSnapshot
}

func (m *HealthMonitor) scheduledCycle(ctx context.Context, epoch uint64) {
	select {
	case m.cycleSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-m.cycleSem }()

	// actions in flight when the monitor stops run to completion; the epoch
	// check discards their results
	result := m.runCheckCycle(context.WithoutCancel(ctx), epoch)
	if !result.Skipped {
		m.ll.WithFields(logrus.Fields{
			"services":     len(result.Snapshot.Services),
			"remediations": len(result.Remediations),
			"overall":      result.Snapshot.Overall,
		}).Debug("health check complete")
	}
}

// runCheckCycle queries the backend, evaluates every reported service and
// prunes the observations of services that disappeared. Callers must hold
// cycleSem.
func (m *HealthMonitor) runCheckCycle(ctx context.Context, epoch uint64) CycleResult {
	result := CycleResult{Started: m.settings.clock()}
	skip := func(reason string) CycleResult {
		result.Skipped = true
		result.SkipReason = reason
		result.Finished = m.settings.clock()
		return result
	}

	m.ll.Debug("running health check")

	listCtx, cancel := context.WithTimeout(ctx, m.settings.statusTimeout)
	services, err := m.backend.ListServices(listCtx)
	cancel()

	if err != nil {
		m.ll.WithError(err).Warn("could not get service status, skipping health check")
		return skip(fmt.Sprintf("service status unavailable: %v", err))
	}
	if len(services) == 0 {
		m.ll.Info("no services found, skipping health check")
		return skip("no services reported")
	}

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ev, remediated, err := m.checkService(ctx, epoch, name, services[name])
		if errors.Is(err, errMonitorStopped) {
			return skip(err.Error())
		}
		if remediated {
			result.Remediations = append(result.Remediations, ev)
		}
	}

	snap, err := m.prune(epoch, services)
	if err != nil {
		return skip(err.Error())
	}

	m.publish(ctx, snap)

	result.Snapshot = snap
	result.Finished = m.settings.clock()
	return result
}

// checkService classifies one reported service and remediates it when an issue
// is detected. It returns the remediation event when one was attempted.
func (m *HealthMonitor) checkService(
	ctx context.Context,
	epoch uint64,
	name string,
	status ServiceStatus,
) (RemediationEvent, bool, error) {
	now := m.settings.clock()
	ll := m.ll.WithFields(logrus.Fields{"service": name, "state": status.State.String()})

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return RemediationEvent{}, false, errMonitorStopped
	}

	obs, found := m.observations[name]
	if !found || obs.State != status.State {
		// a fresh state transition is given time to resolve on its own
		m.observations[name] = newObservation(status, now)
		m.mu.Unlock()
		if found {
			ll.WithField("previous_state", obs.State.String()).Info("service changed state")
		}
		return RemediationEvent{}, false, nil
	}

	obs.Health = status.Health
	obs.LastCheckedAt = now

	if !m.tolerance.admit(obs, now) {
		m.mu.Unlock()
		return RemediationEvent{}, false, nil
	}

	issue, detected := m.rules.detect(name, *obs, now)
	m.mu.Unlock()

	if !detected {
		return RemediationEvent{}, false, nil
	}

	ll.WithField("issue", issue).Warn("detected issue with service")
	ev, err := m.remediate(ctx, epoch, name, issue, now)
	if err != nil {
		return RemediationEvent{}, false, err
	}
	return ev, true, nil
}

// remediate executes the next action of the escalation ladder on the given
// service and records the outcome
func (m *HealthMonitor) remediate(
	ctx context.Context,
	epoch uint64,
	name, issue string,
	now time.Time,
) (RemediationEvent, error) {
	diagnostics := m.fetchDiagnostics(ctx, name)

	m.mu.Lock()
	obs, found := m.observations[name]
	if m.epoch != epoch || !found {
		m.mu.Unlock()
		return RemediationEvent{}, errMonitorStopped
	}
	obs.Attempts++
	obs.LastRemediationAt = now
	attempt := obs.Attempts
	serverID := m.serverID
	m.mu.Unlock()

	action := m.escalation.action(attempt)
	ll := m.ll.WithFields(logrus.Fields{
		"service": name,
		"action":  action.String(),
		"attempt": attempt,
	})
	ll.Info("attempting remediation")

	actionErr := m.execute(ctx, name, action)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		ll.Warn("monitor stopped during remediation, discarding result")
		return RemediationEvent{}, errMonitorStopped
	}
	if actionErr == nil {
		// the issue is resolved, the next detection starts fresh
		delete(m.observations, name)
	}
	m.mu.Unlock()

	ev := RemediationEvent{
		ID:       uuid.New(),
		ServerID: serverID,
		Service:  name,
		Issue:    issue,
		Action:   action,
		Attempt:  attempt,
		Success:  actionErr == nil,
		Created:  m.settings.clock(),
	}

	if actionErr != nil {
		ev.Error = actionErr.Error()
		if diagnostics != "" {
			ev.Detail = "Recent logs:\n" + diagnostics
		}
		var kvErr ErrKVs
		if errors.As(actionErr, &kvErr) {
			ll = ll.WithFields(logrus.Fields(kvErr.KVs()))
		}
		ll.WithField("max_attempts", m.settings.maxAttempts).Error("failed to remediate service")
	} else {
		ll.Info("successfully remediated service")
	}

	m.record(ctx, ev)
	return ev, nil
}

func (m *HealthMonitor) execute(ctx context.Context, name string, action Action) error {
	var err error
	switch action {
	case SoftRestart:
		actionCtx, cancel := context.WithTimeout(ctx, m.settings.restartTimeout)
		err = m.backend.Restart(actionCtx, name)
		cancel()
	case HardRecreate:
		actionCtx, cancel := context.WithTimeout(ctx, m.settings.recreateTimeout)
		err = m.recreate(actionCtx, name)
		cancel()
	default:
		err = fmt.Errorf("unsupported action %d", action)
	}
	if err != nil {
		return &ActionError{Service: name, Action: action, Err: err}
	}
	return nil
}

func (m *HealthMonitor) recreate(ctx context.Context, name string) error {
	if err := m.backend.Stop(ctx, name); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	if m.settings.settleDelay > 0 {
		timer := time.NewTimer(m.settings.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for service to settle: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if err := m.backend.Start(ctx, name); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return nil
}

// fetchDiagnostics returns the recent output of the service, or an empty
// string when it could not be fetched
func (m *HealthMonitor) fetchDiagnostics(ctx context.Context, name string) string {
	if m.settings.diagnosticLines <= 0 {
		return ""
	}
	logsCtx, cancel := context.WithTimeout(ctx, m.settings.logsTimeout)
	defer cancel()

	output, err := m.backend.Logs(logsCtx, name, m.settings.diagnosticLines)
	if err != nil {
		m.ll.WithError(err).WithField("service", name).Debug("could not fetch service logs")
		return ""
	}
	return output
}

// record hands the event to the sink; sink failures never abort a cycle
func (m *HealthMonitor) record(ctx context.Context, ev RemediationEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.ll.WithField("panic", r).Error("remediation sink panicked")
		}
	}()

	sinkCtx, cancel := context.WithTimeout(ctx, m.settings.sinkTimeout)
	defer cancel()

	if err := m.sink.Record(sinkCtx, ev); err != nil {
		m.ll.WithError(err).WithField("service", ev.Service).Warn("failed to record remediation event")
	}
}

// prune drops the observations of services absent from the given report and
// stores the resulting snapshot
func (m *HealthMonitor) prune(epoch uint64, services map[string]ServiceStatus) (Snapshot, error) {
	now := m.settings.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return Snapshot{}, errMonitorStopped
	}

	for name := range m.observations {
		if _, ok := services[name]; !ok {
			delete(m.observations, name)
			m.ll.WithField("service", name).Debug("service no longer reported, forgetting it")
		}
	}

	snap := buildSnapshot(m.serverID, now, m.observations, m.tolerance, m.rules)
	m.lastSnapshot = snap
	return snap, nil
}

func (m *HealthMonitor) publish(ctx context.Context, snap Snapshot) {
	for _, p := range m.settings.publishers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.ll.WithField("panic", r).Error("status publisher panicked")
				}
			}()
			pubCtx, cancel := context.WithTimeout(ctx, m.settings.publishTimeout)
			defer cancel()
			if err := p.Publish(pubCtx, snap); err != nil {
				m.ll.WithError(err).Warn("failed to publish service status")
			}
		}()
	}
}
