// Package metrics exposes the activity of a health monitor as prometheus
// metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/capatazlib/go-medic/health"
)

var (
	allStates = []health.State{
		health.Running,
		health.Restarting,
		health.Stopped,
		health.Dead,
		health.Created,
		health.Paused,
		health.Unknown,
	}
	allPhases = []health.Phase{
		health.Tracking,
		health.Eligible,
		health.Cooling,
		health.Exhausted,
	}
)

// Collector is both a health.Sink and a health.Publisher; it counts
// remediations and gauges the services of every published snapshot
type Collector struct {
	remediations *prometheus.CounterVec
	services     *prometheus.GaugeVec
	phases       *prometheus.GaugeVec
	overall      *prometheus.GaugeVec
	lastCycle    prometheus.Gauge
}

// NewCollector registers the medic metrics on the given registerer
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		remediations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medic_remediations_total",
				Help: "Remediation attempts by action and result",
			},
			[]string{"action", "result"},
		),
		services: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "medic_services",
				Help: "Monitored services by run state",
			},
			[]string{"state"},
		),
		phases: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "medic_services_phase",
				Help: "Monitored services by remediation phase",
			},
			[]string{"phase"},
		),
		overall: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "medic_overall_status",
				Help: "Set to 1 for the current overall status of the host",
			},
			[]string{"status"},
		),
		lastCycle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "medic_last_cycle_timestamp_seconds",
				Help: "Unix time of the last completed check cycle",
			},
		),
	}
}

// Record counts the remediation event
func (c *Collector) Record(_ context.Context, ev health.RemediationEvent) error {
	result := "success"
	if !ev.Success {
		result = "failure"
	}
	c.remediations.WithLabelValues(ev.Action.String(), result).Inc()
	return nil
}

// Publish gauges the services of the snapshot
func (c *Collector) Publish(_ context.Context, snap health.Snapshot) error {
	states := make(map[health.State]int, len(allStates))
	phases := make(map[health.Phase]int, len(allPhases))
	for _, report := range snap.Services {
		states[report.State]++
		phases[report.Phase]++
	}

	for _, state := range allStates {
		c.services.WithLabelValues(state.String()).Set(float64(states[state]))
	}
	for _, phase := range allPhases {
		c.phases.WithLabelValues(phase.String()).Set(float64(phases[phase]))
	}
	for _, status := range []health.Overall{health.OverallOK, health.OverallWarn, health.OverallCritical} {
		value := 0.0
		if snap.Overall == status {
			value = 1
		}
		c.overall.WithLabelValues(string(status)).Set(value)
	}
	c.lastCycle.Set(float64(snap.CheckedAt.UnixNano()) / 1e9)
	return nil
}
