package health

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Default values of a HealthMonitor configuration
const (
	DefaultCheckInterval          = 60 * time.Second
	DefaultStartupDelay           = 30 * time.Second
	DefaultRestartingTimeout      = 180 * time.Second
	DefaultRemediationCooldown    = 300 * time.Second
	DefaultMaxRemediationAttempts = 3
	DefaultAttemptResetWindow     = time.Hour

	DefaultStatusTimeout       = 30 * time.Second
	DefaultLogsTimeout         = 10 * time.Second
	DefaultRestartTimeout      = 60 * time.Second
	DefaultRecreateTimeout     = 60 * time.Second
	DefaultRecreateSettleDelay = 2 * time.Second
	DefaultSinkTimeout         = 10 * time.Second
	DefaultPublishTimeout      = 10 * time.Second
	DefaultDiagnosticLines     = 30
)

// DefaultCriticalServices are the services whose stoppage is always an issue
var DefaultCriticalServices = []string{"sing-box", "wireguard", "admin"}

type settings struct {
	checkInterval       time.Duration
	startupDelay        time.Duration
	restartingTimeout   time.Duration
	remediationCooldown time.Duration
	maxAttempts         uint32
	attemptResetWindow  time.Duration
	criticalServices    []string

	statusTimeout   time.Duration
	logsTimeout     time.Duration
	restartTimeout  time.Duration
	recreateTimeout time.Duration
	settleDelay     time.Duration
	sinkTimeout     time.Duration
	publishTimeout  time.Duration
	diagnosticLines int

	logger     logrus.FieldLogger
	publishers []Publisher
	clock      func() time.Time
}

func defaultSettings() settings {
	return settings{
		checkInterval:       DefaultCheckInterval,
		startupDelay:        DefaultStartupDelay,
		restartingTimeout:   DefaultRestartingTimeout,
		remediationCooldown: DefaultRemediationCooldown,
		maxAttempts:         DefaultMaxRemediationAttempts,
		attemptResetWindow:  DefaultAttemptResetWindow,
		criticalServices:    append([]string(nil), DefaultCriticalServices...),

		statusTimeout:   DefaultStatusTimeout,
		logsTimeout:     DefaultLogsTimeout,
		restartTimeout:  DefaultRestartTimeout,
		recreateTimeout: DefaultRecreateTimeout,
		settleDelay:     DefaultRecreateSettleDelay,
		sinkTimeout:     DefaultSinkTimeout,
		publishTimeout:  DefaultPublishTimeout,
		diagnosticLines: DefaultDiagnosticLines,

		logger: logrus.StandardLogger(),
		clock:  time.Now,
	}
}

// Opt is a type used to configure a HealthMonitor
type Opt func(*settings)

// WithCheckInterval is an Opt that sets the cadence of scheduled check cycles
func WithCheckInterval(d time.Duration) Opt {
	return func(s *settings) {
		s.checkInterval = d
	}
}

// WithStartupDelay is an Opt that sets how long Start waits before running the
// first check cycle, giving services time to stabilize after boot
func WithStartupDelay(d time.Duration) Opt {
	return func(s *settings) {
		s.startupDelay = d
	}
}

// WithRestartingTimeout is an Opt that sets how long a service may stay
// restarting, or running unhealthy, before it is remediated
func WithRestartingTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.restartingTimeout = d
	}
}

// WithRemediationCooldown is an Opt that sets the minimum spacing between two
// remediation attempts on the same service
func WithRemediationCooldown(d time.Duration) Opt {
	return func(s *settings) {
		s.remediationCooldown = d
	}
}

// WithMaxRemediationAttempts is an Opt that sets how many consecutive failed
// attempts the monitor makes before backing off. Values below one are ignored.
func WithMaxRemediationAttempts(n uint32) Opt {
	return func(s *settings) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithAttemptResetWindow is an Opt that sets how long the monitor backs off
// from a service after reaching the attempt cap
func WithAttemptResetWindow(d time.Duration) Opt {
	return func(s *settings) {
		s.attemptResetWindow = d
	}
}

// WithCriticalServices is an Opt that replaces the set of services whose
// stoppage is always an issue
func WithCriticalServices(names ...string) Opt {
	return func(s *settings) {
		s.criticalServices = append([]string(nil), names...)
	}
}

// WithStatusTimeout is an Opt that bounds the backend status query
func WithStatusTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.statusTimeout = d
	}
}

// WithLogsTimeout is an Opt that bounds the diagnostic output fetch
func WithLogsTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.logsTimeout = d
	}
}

// WithRestartTimeout is an Opt that bounds a soft restart
func WithRestartTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.restartTimeout = d
	}
}

// WithRecreateTimeout is an Opt that bounds a hard recreate, settle delay
// included
func WithRecreateTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.recreateTimeout = d
	}
}

// WithRecreateSettleDelay is an Opt that sets the pause between stopping and
// starting a service on a hard recreate
func WithRecreateSettleDelay(d time.Duration) Opt {
	return func(s *settings) {
		s.settleDelay = d
	}
}

// WithSinkTimeout is an Opt that bounds every Sink.Record call
func WithSinkTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.sinkTimeout = d
	}
}

// WithPublishTimeout is an Opt that bounds every Publisher.Publish call
func WithPublishTimeout(d time.Duration) Opt {
	return func(s *settings) {
		s.publishTimeout = d
	}
}

// WithDiagnosticLines is an Opt that sets how many lines of recent output are
// attached to failed remediation events
func WithDiagnosticLines(n int) Opt {
	return func(s *settings) {
		s.diagnosticLines = n
	}
}

// WithLogger is an Opt that sets the logger of the monitor
func WithLogger(ll logrus.FieldLogger) Opt {
	return func(s *settings) {
		s.logger = ll
	}
}

// WithPublisher is an Opt that registers a Publisher that receives a Snapshot
// after every completed check cycle. It may be used multiple times.
func WithPublisher(p Publisher) Opt {
	return func(s *settings) {
		s.publishers = append(s.publishers, p)
	}
}

// WithClock is an Opt that replaces the time source used to timestamp
// observations and events
func WithClock(clock func() time.Time) Opt {
	return func(s *settings) {
		s.clock = clock
	}
}
