package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-medic/health"
	"github.com/capatazlib/go-medic/metrics"
)

func TestRecordCountsRemediations(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	collector := metrics.NewCollector(reg)
	ctx := context.Background()

	for _, ev := range []health.RemediationEvent{
		{Action: health.SoftRestart, Success: false},
		{Action: health.HardRecreate, Success: true},
		{Action: health.SoftRestart, Success: false},
	} {
		require.NoError(t, collector.Record(ctx, ev))
	}

	expected := `
# HELP medic_remediations_total Remediation attempts by action and result
# TYPE medic_remediations_total counter
medic_remediations_total{action="hard-recreate",result="success"} 1
medic_remediations_total{action="soft-restart",result="failure"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "medic_remediations_total"))
}

func TestPublishGaugesServices(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	collector := metrics.NewCollector(reg)

	checkedAt := time.Unix(1704067200, 0)
	snap := health.Snapshot{
		CheckedAt: checkedAt,
		Overall:   health.OverallWarn,
		Services: []health.ServiceReport{
			{Name: "admin", Observation: health.Observation{State: health.Running}, Phase: health.Eligible},
			{Name: "edge-proxy", Observation: health.Observation{State: health.Restarting}, Phase: health.Tracking},
			{Name: "web", Observation: health.Observation{State: health.Running}, Phase: health.Eligible},
		},
	}
	require.NoError(t, collector.Publish(context.Background(), snap))

	expected := `
# HELP medic_services Monitored services by run state
# TYPE medic_services gauge
medic_services{state="created"} 0
medic_services{state="dead"} 0
medic_services{state="paused"} 0
medic_services{state="restarting"} 1
medic_services{state="running"} 2
medic_services{state="stopped"} 0
medic_services{state="unknown"} 0
# HELP medic_services_phase Monitored services by remediation phase
# TYPE medic_services_phase gauge
medic_services_phase{phase="cooling"} 0
medic_services_phase{phase="eligible"} 2
medic_services_phase{phase="exhausted"} 0
medic_services_phase{phase="tracking"} 1
# HELP medic_overall_status Set to 1 for the current overall status of the host
# TYPE medic_overall_status gauge
medic_overall_status{status="critical"} 0
medic_overall_status{status="ok"} 0
medic_overall_status{status="warn"} 1
# HELP medic_last_cycle_timestamp_seconds Unix time of the last completed check cycle
# TYPE medic_last_cycle_timestamp_seconds gauge
medic_last_cycle_timestamp_seconds 1.7040672e+09
`
	assert.NoError(t, testutil.GatherAndCompare(
		reg,
		strings.NewReader(expected),
		"medic_services",
		"medic_services_phase",
		"medic_overall_status",
		"medic_last_cycle_timestamp_seconds",
	))

	// services that recover move between the state series
	snap.Services[1].State = health.Running
	require.NoError(t, collector.Publish(context.Background(), snap))

	expected = `
# HELP medic_services Monitored services by run state
# TYPE medic_services gauge
medic_services{state="created"} 0
medic_services{state="dead"} 0
medic_services{state="paused"} 0
medic_services{state="restarting"} 0
medic_services{state="running"} 3
medic_services{state="stopped"} 0
medic_services{state="unknown"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "medic_services"))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)
	assert.Panics(t, func() { metrics.NewCollector(reg) })
}
