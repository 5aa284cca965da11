package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/capatazlib/go-medic/health"
)

// ErrSinkTimeout is reported for a sink that did not finish recording an event
// within the fanout timeout
var ErrSinkTimeout = errors.New("audit sink timed out")

// SinkPanicError is reported for a sink that panicked while recording an
// event
type SinkPanicError struct {
	Sink   string
	Reason interface{}
}

func (err *SinkPanicError) Error() string {
	return fmt.Sprintf("audit sink '%s' panicked: %v", err.Sink, err.Reason)
}

// KVs returns a metadata map for structured logging
func (err *SinkPanicError) KVs() map[string]interface{} {
	return map[string]interface{}{
		"sink":       err.Sink,
		"sink.panic": fmt.Sprint(err.Reason),
	}
}

// fanoutSettings contains settings and callbacks for a Fanout instance
type fanoutSettings struct {
	sinkTimeout time.Duration

	onSinkFailure func(string, error)
	onSinkTimeout func(string)
}

// FanoutOpt allows clients to tweak the behavior of a Fanout instance
type FanoutOpt func(*fanoutSettings)

// WithSinkTimeout sets the maximum time the fanout waits for a single sink
// (defaults to 5 seconds)
func WithSinkTimeout(ts time.Duration) FanoutOpt {
	return func(settings *fanoutSettings) {
		settings.sinkTimeout = ts
	}
}

// WithOnSinkFailure sets a callback that gets executed when a sink returns an
// error or panics
func WithOnSinkFailure(cb func(string, error)) FanoutOpt {
	return func(settings *fanoutSettings) {
		settings.onSinkFailure = cb
	}
}

// WithOnSinkTimeout sets a callback that gets executed when a sink is so slow
// to record an event that it gets skipped
func WithOnSinkTimeout(cb func(string)) FanoutOpt {
	return func(settings *fanoutSettings) {
		settings.onSinkTimeout = cb
	}
}

// Fanout is a health.Sink that broadcasts every event to a group of named
// sinks. A panicking or slow sink never blocks the others, nor the caller for
// longer than the sink timeout.
type Fanout struct {
	names    []string
	sinks    map[string]health.Sink
	settings fanoutSettings
}

// NewFanout creates a Fanout for the given named sinks
func NewFanout(sinks map[string]health.Sink, opts ...FanoutOpt) *Fanout {
	settings := fanoutSettings{
		sinkTimeout:   5 * time.Second,
		onSinkFailure: func(string, error) {},
		onSinkTimeout: func(string) {},
	}
	for _, optFn := range opts {
		optFn(&settings)
	}

	names := make([]string, 0, len(sinks))
	acc := make(map[string]health.Sink, len(sinks))
	for name, sink := range sinks {
		if sink == nil {
			continue
		}
		names = append(names, name)
		acc[name] = sink
	}
	sort.Strings(names)

	return &Fanout{names: names, sinks: acc, settings: settings}
}

// Names returns the names of the sinks, sorted
func (f *Fanout) Names() []string {
	return append([]string(nil), f.names...)
}

type sinkResult struct {
	name string
	err  error
}

// Record sends the event to every sink concurrently, and waits for all of them
// to finish or time out. The returned error joins every sink failure.
func (f *Fanout) Record(ctx context.Context, ev health.RemediationEvent) error {
	resultCh := make(chan sinkResult, len(f.names))
	for _, name := range f.names {
		go func(name string, sink health.Sink) {
			resultCh <- sinkResult{name: name, err: f.recordOne(ctx, name, sink, ev)}
		}(name, f.sinks[name])
	}

	errs := make([]error, 0)
	for range f.names {
		result := <-resultCh
		if result.err == nil {
			continue
		}
		if errors.Is(result.err, ErrSinkTimeout) {
			f.settings.onSinkTimeout(result.name)
		} else {
			f.settings.onSinkFailure(result.name, result.err)
		}
		errs = append(errs, fmt.Errorf("sink %s: %w", result.name, result.err))
	}
	return errors.Join(errs...)
}

func (f *Fanout) recordOne(
	ctx context.Context,
	name string,
	sink health.Sink,
	ev health.RemediationEvent,
) error {
	sinkCtx, cancel := context.WithTimeout(ctx, f.settings.sinkTimeout)
	defer cancel()

	doneCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				doneCh <- &SinkPanicError{Sink: name, Reason: r}
			}
		}()
		doneCh <- sink.Record(sinkCtx, ev)
	}()

	select {
	case err := <-doneCh:
		return err
	case <-sinkCtx.Done():
		return ErrSinkTimeout
	}
}
