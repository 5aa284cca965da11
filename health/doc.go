/*
Package health offers a monitor that watches the services of a host and
remediates the ones stuck in a failure condition.

The monitor polls a Backend on a fixed interval and keeps an Observation per
service. A service that changes state is given one full cycle to resolve on its
own; after that, the following conditions are considered issues:

* The service has been restarting for longer than the restarting timeout.

* A critical service is stopped, dead or created but never started.

* The service reports an unhealthy healthcheck for longer than the restarting
timeout.

Remediation escalates on consecutive failures: the first attempt is a soft
restart, later ones stop the service, wait for its resources to be released
and start it again. Attempts are spaced by a cooldown and capped; once the cap
is reached, the monitor backs off until the reset window passes.

Every attempt produces a RemediationEvent that gets handed to a Sink, and every
completed cycle produces a Snapshot that gets handed to the registered
Publishers.

	monitor := health.New(
		backend,
		sink,
		health.WithCriticalServices("sing-box", "wireguard", "admin"),
		health.WithCheckInterval(time.Minute),
	)
	if err := monitor.Start(ctx, serverID); err != nil {
		return err
	}
	defer monitor.Stop()
*/
package health
