// Package healthtest offers fakes and assertions to test code that drives a
// health.HealthMonitor.
package healthtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/capatazlib/go-medic/health"
)

// Op names a backend operation
type Op string

// Backend operations recorded by FakeBackend
const (
	OpList    Op = "list"
	OpRestart Op = "restart"
	OpStop    Op = "stop"
	OpStart   Op = "start"
	OpLogs    Op = "logs"
)

// Call is a recorded invocation of a FakeBackend operation
type Call struct {
	Op      Op
	Service string
}

func (c Call) String() string {
	if c.Service == "" {
		return string(c.Op)
	}
	return fmt.Sprintf("%s %s", c.Op, c.Service)
}

// ErrBackendDown is the error a FakeBackend returns for failures configured
// without a specific error
var ErrBackendDown = errors.New("backend unavailable")

// FakeBackend is an in-memory health.Backend. Every operation is recorded, and
// failures can be configured per operation and service.
type FakeBackend struct {
	mu       sync.Mutex
	services map[string]health.ServiceStatus
	listErr  error
	failures map[Call]error
	hangs    map[Call]bool
	logs     map[string]string
	calls    []Call
	// onCall, when set, gets executed (without the lock held) on every
	// operation before it returns
	onCall func(Call)
}

// NewFakeBackend returns a FakeBackend reporting no services
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		services: make(map[string]health.ServiceStatus),
		failures: make(map[Call]error),
		hangs:    make(map[Call]bool),
		logs:     make(map[string]string),
	}
}

// SetStatus sets the status reported for the given service
func (b *FakeBackend) SetStatus(name string, state health.State, h health.Health) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services[name] = health.ServiceStatus{State: state, Health: h}
}

// Remove stops reporting the given service
func (b *FakeBackend) Remove(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, name)
}

// FailList makes ListServices return the given error; nil restores it
func (b *FakeBackend) FailList(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// Fail makes the given operation on the given service return err; nil makes
// it succeed again
func (b *FakeBackend) Fail(op Op, name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := Call{Op: op, Service: name}
	if err == nil {
		delete(b.failures, key)
		return
	}
	b.failures[key] = err
}

// Hang makes the given operation on the given service block until its context
// is done; use an empty name for OpList. hang=false restores it.
func (b *FakeBackend) Hang(op Op, name string, hang bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := Call{Op: op, Service: name}
	if !hang {
		delete(b.hangs, key)
		return
	}
	b.hangs[key] = true
}

// SetLogs sets the output returned by Logs for the given service
func (b *FakeBackend) SetLogs(name, output string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs[name] = output
}

// OnCall registers a callback executed on every operation
func (b *FakeBackend) OnCall(fn func(Call)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCall = fn
}

// Calls returns every recorded operation, in order
func (b *FakeBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// ActionCalls returns the recorded restart, stop and start operations
func (b *FakeBackend) ActionCalls() []Call {
	acc := []Call{}
	for _, c := range b.Calls() {
		switch c.Op {
		case OpRestart, OpStop, OpStart:
			acc = append(acc, c)
		}
	}
	return acc
}

// CountOp returns how many times the given operation was called
func (b *FakeBackend) CountOp(op Op) int {
	count := 0
	for _, c := range b.Calls() {
		if c.Op == op {
			count++
		}
	}
	return count
}

// ResetCalls forgets the recorded operations
func (b *FakeBackend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *FakeBackend) record(c Call) (func(Call), bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
	return b.onCall, b.hangs[c], b.failures[c]
}

func (b *FakeBackend) do(ctx context.Context, op Op, name string) error {
	c := Call{Op: op, Service: name}
	onCall, hang, err := b.record(c)
	if onCall != nil {
		onCall(c)
	}
	if hang {
		<-ctx.Done()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// ListServices returns a copy of the configured services
func (b *FakeBackend) ListServices(ctx context.Context) (map[string]health.ServiceStatus, error) {
	c := Call{Op: OpList}
	onCall, hang, _ := b.record(c)
	if onCall != nil {
		onCall(c)
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	acc := make(map[string]health.ServiceStatus, len(b.services))
	for name, status := range b.services {
		acc[name] = status
	}
	return acc, nil
}

// Restart records a soft restart
func (b *FakeBackend) Restart(ctx context.Context, name string) error {
	return b.do(ctx, OpRestart, name)
}

// Stop records a service stop
func (b *FakeBackend) Stop(ctx context.Context, name string) error {
	return b.do(ctx, OpStop, name)
}

// Start records a service start
func (b *FakeBackend) Start(ctx context.Context, name string) error {
	return b.do(ctx, OpStart, name)
}

// Logs returns the configured output for the service
func (b *FakeBackend) Logs(ctx context.Context, name string, _ int) (string, error) {
	if err := b.do(ctx, OpLogs, name); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.logs[name], nil
}

// RecordingSink is a health.Sink that keeps every event it receives
type RecordingSink struct {
	mu     sync.Mutex
	events []health.RemediationEvent
	err    error
}

// Record keeps the event, and returns the configured error
func (s *RecordingSink) Record(_ context.Context, ev health.RemediationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

// FailWith makes Record return the given error
func (s *RecordingSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Events returns the recorded events, in order
func (s *RecordingSink) Events() []health.RemediationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]health.RemediationEvent(nil), s.events...)
}

// RecordingPublisher is a health.Publisher that keeps every snapshot
type RecordingPublisher struct {
	mu    sync.Mutex
	snaps []health.Snapshot
}

// Publish keeps the snapshot
func (p *RecordingPublisher) Publish(_ context.Context, snap health.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return nil
}

// Snapshots returns the published snapshots, in order
func (p *RecordingPublisher) Snapshots() []health.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]health.Snapshot(nil), p.snaps...)
}

// Clock is a manual time source for health.WithClock
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to the given time
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
