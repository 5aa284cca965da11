package health

import "context"

// Backend is the system that runs the monitored services on this host. It
// reports their run states and performs the recovery actions the monitor
// decides on.
type Backend interface {
	// ListServices returns the status of every service the backend knows
	// about. It must return an empty map (and no error) when there are no
	// services, and an error only when the query mechanism itself failed.
	ListServices(ctx context.Context) (map[string]ServiceStatus, error)

	// Restart restarts the service in place
	Restart(ctx context.Context, name string) error

	// Stop tears the service down, releasing its resources
	Stop(ctx context.Context, name string) error

	// Start brings a stopped service up
	Start(ctx context.Context, name string) error

	// Logs returns the last lines of output of the service. This call is
	// best-effort; the monitor tolerates errors.
	Logs(ctx context.Context, name string, lines int) (string, error)
}

// Sink receives the remediation audit trail of a HealthMonitor.
//
// Errors returned by a Sink are logged by the monitor and never abort a check
// cycle.
type Sink interface {
	Record(ctx context.Context, ev RemediationEvent) error
}

// SinkFunc allows regular functions to be used as a Sink
type SinkFunc func(context.Context, RemediationEvent) error

// Record calls the underlying function
func (fn SinkFunc) Record(ctx context.Context, ev RemediationEvent) error {
	return fn(ctx, ev)
}

// Publisher receives a status Snapshot after every completed check cycle
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

// PublisherFunc allows regular functions to be used as a Publisher
type PublisherFunc func(context.Context, Snapshot) error

// Publish calls the underlying function
func (fn PublisherFunc) Publish(ctx context.Context, snap Snapshot) error {
	return fn(ctx, snap)
}

// nopSink is used when the monitor is built without a sink
var nopSink = SinkFunc(func(context.Context, RemediationEvent) error { return nil })
