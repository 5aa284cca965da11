package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-medic/audit"
	"github.com/capatazlib/go-medic/health"
	. "github.com/capatazlib/go-medic/health/healthtest"
)

func newEvent(success bool) health.RemediationEvent {
	ev := health.RemediationEvent{
		ID:       uuid.New(),
		ServerID: "srv-1",
		Service:  "auth",
		Issue:    "critical service stopped (state=stopped)",
		Action:   health.HardRecreate,
		Attempt:  2,
		Success:  success,
		Created:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if !success {
		ev.Error = "hard-recreate of service 'auth' failed: stop: exit status 1"
		ev.Detail = "Recent logs:\npanic: boom"
	}
	return ev
}

func TestLogSink(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	sink := audit.NewLogSink(logger)

	require.NoError(t, sink.Record(context.Background(), newEvent(true)))
	require.NoError(t, sink.Record(context.Background(), newEvent(false)))

	entries := hook.AllEntries()
	require.Len(t, entries, 2)

	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t,
		"[AUTO-REMEDIATION] critical service stopped (state=stopped) - hard-recreate: SUCCESS",
		entries[0].Message,
	)
	assert.Equal(t, "auth", entries[0].Data["service"])
	assert.Equal(t, "srv-1", entries[0].Data["server_id"])
	assert.NotContains(t, entries[0].Data, "error")

	assert.Equal(t, logrus.ErrorLevel, entries[1].Level)
	assert.Equal(t,
		"[AUTO-REMEDIATION] critical service stopped (state=stopped) - hard-recreate: FAILED - Recent logs:\npanic: boom",
		entries[1].Message,
	)
	assert.Equal(t, uint32(2), entries[1].Data["attempt"])
	assert.Contains(t, entries[1].Data["error"], "stop: exit status 1")
}

type callbackRecorder struct {
	mu       sync.Mutex
	failures map[string]error
	timeouts []string
}

func (r *callbackRecorder) onFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures == nil {
		r.failures = make(map[string]error)
	}
	r.failures[name] = err
}

func (r *callbackRecorder) onTimeout(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, name)
}

func TestFanoutHappyPath(t *testing.T) {
	sink1, sink2 := &RecordingSink{}, &RecordingSink{}
	fanout := audit.NewFanout(map[string]health.Sink{
		"store": sink1,
		"log":   sink2,
		"none":  nil,
	})

	assert.Equal(t, []string{"log", "store"}, fanout.Names())

	ev := newEvent(false)
	require.NoError(t, fanout.Record(context.Background(), ev))
	assert.Equal(t, []health.RemediationEvent{ev}, sink1.Events())
	assert.Equal(t, []health.RemediationEvent{ev}, sink2.Events())
}

func TestFanoutIsolatesFailingSinks(t *testing.T) {
	var recorder callbackRecorder
	healthy := &RecordingSink{}
	failing := &RecordingSink{}
	failing.FailWith(errors.New("database is locked"))

	blockCh := make(chan struct{})
	defer close(blockCh)

	fanout := audit.NewFanout(
		map[string]health.Sink{
			"healthy": healthy,
			"failing": failing,
			"panicking": health.SinkFunc(func(context.Context, health.RemediationEvent) error {
				panic("nil map write")
			}),
			"slow": health.SinkFunc(func(context.Context, health.RemediationEvent) error {
				<-blockCh
				return nil
			}),
		},
		audit.WithSinkTimeout(20*time.Millisecond),
		audit.WithOnSinkFailure(recorder.onFailure),
		audit.WithOnSinkTimeout(recorder.onTimeout),
	)

	err := fanout.Record(context.Background(), newEvent(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, audit.ErrSinkTimeout)

	var panicErr *audit.SinkPanicError
	assert.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "panicking", panicErr.Sink)

	assert.Len(t, healthy.Events(), 1)
	assert.Len(t, failing.Events(), 1)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	assert.Equal(t, []string{"slow"}, recorder.timeouts)
	assert.Len(t, recorder.failures, 2)
	assert.EqualError(t, recorder.failures["failing"], "database is locked")
	assert.Contains(t, recorder.failures, "panicking")
}
