package health_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-medic/health"
	. "github.com/capatazlib/go-medic/health/healthtest"
)

func TestStartStop(t *testing.T) {
	f := newFixture(t, health.WithStartupDelay(time.Hour))

	assert.False(t, f.monitor.IsRunning())
	assert.ErrorIs(t, f.monitor.Stop(), health.ErrNotStarted)

	require.NoError(t, f.monitor.Start(context.Background(), "srv-1"))
	assert.True(t, f.monitor.IsRunning())
	assert.ErrorIs(t, f.monitor.Start(context.Background(), "srv-1"), health.ErrAlreadyStarted)

	require.NoError(t, f.monitor.Stop())
	assert.False(t, f.monitor.IsRunning())
	assert.ErrorIs(t, f.monitor.Stop(), health.ErrNotStarted)

	// a stopped monitor can be started again
	require.NoError(t, f.monitor.Start(context.Background(), "srv-1"))
	require.NoError(t, f.monitor.Stop())
}

func TestStopForgetsObservations(t *testing.T) {
	f := newFixture(t, health.WithStartupDelay(time.Hour))
	f.backend.SetStatus("auth", health.Stopped, health.HealthNone)
	f.backend.Fail(OpRestart, "auth", ErrBackendDown)

	require.NoError(t, f.monitor.Start(context.Background(), "srv-1"))
	f.cycle(t, 0)
	f.cycle(t, 60*time.Second)
	require.Equal(t, uint32(1), f.monitor.Observations()["auth"].Attempts)

	require.NoError(t, f.monitor.Stop())
	assert.Empty(t, f.monitor.Observations())
	assert.Empty(t, f.monitor.Snapshot().Services)
}

func TestEventsCarryServerID(t *testing.T) {
	f := newFixture(t, health.WithStartupDelay(time.Hour))
	f.backend.SetStatus("auth", health.Stopped, health.HealthNone)

	require.NoError(t, f.monitor.Start(context.Background(), "srv-1"))
	t.Cleanup(func() { _ = f.monitor.Stop() })

	f.cycle(t, 0)
	result := f.cycle(t, 60*time.Second)

	evs := f.sink.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, "srv-1", evs[0].ServerID)
	assert.NotEqual(t, evs[0].ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, "srv-1", result.Snapshot.ServerID)
	assert.Equal(t, "[AUTO-REMEDIATION] critical service stopped (state=stopped) - soft-restart: SUCCESS", evs[0].Line())
	assert.Equal(t, "info", evs[0].Level())
}

func TestStopDuringRemediationDiscardsResult(t *testing.T) {
	f := newFixture(t, health.WithStartupDelay(time.Hour))
	f.backend.SetStatus("auth", health.Stopped, health.HealthNone)
	f.backend.OnCall(func(c Call) {
		if c.Op == OpRestart {
			_ = f.monitor.Stop()
		}
	})

	require.NoError(t, f.monitor.Start(context.Background(), "srv-1"))
	f.cycle(t, 0)
	result := f.cycle(t, 60*time.Second)

	assert.True(t, result.Skipped)
	assert.Empty(t, result.Remediations)
	assert.Equal(t, 1, f.backend.CountOp(OpRestart))
	assert.Empty(t, f.sink.Events())
	assert.Empty(t, f.monitor.Observations())
	assert.False(t, f.monitor.IsRunning())
}

func TestScheduledCycleRunsAfterStartupDelay(t *testing.T) {
	f := newFixture(t,
		health.WithStartupDelay(50*time.Millisecond),
		health.WithCheckInterval(time.Hour),
	)
	f.backend.SetStatus("web", health.Running, health.Healthy)

	require.NoError(t, f.monitor.Start(context.Background(), "srv-1"))
	t.Cleanup(func() { _ = f.monitor.Stop() })

	require.Eventually(t, func() bool {
		return len(f.publisher.Snapshots()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	snaps := f.publisher.Snapshots()
	assert.Equal(t, health.OverallOK, snaps[0].Overall)
	assert.True(t, snaps[0].IsHealthy())
}

func TestCancelledContextStopsMonitor(t *testing.T) {
	f := newFixture(t, health.WithStartupDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.monitor.Start(ctx, "srv-1"))
	cancel()

	require.Eventually(t, func() bool {
		return !f.monitor.IsRunning()
	}, time.Second, 5*time.Millisecond)
}

func TestCheckNowWaitsForRunningCycle(t *testing.T) {
	f := newFixture(t)
	f.backend.SetStatus("web", health.Running, health.Healthy)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.backend.OnCall(func(c Call) {
		if c.Op == OpList {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.monitor.CheckNow(context.Background())
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.monitor.CheckNow(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "unexpected error: %v", err)
	assert.Equal(t, 1, f.backend.CountOp(OpList))

	close(release)
	require.NoError(t, <-done)

	_, err = f.monitor.CheckNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.backend.CountOp(OpList))
}
