package health

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// delayedSchedule is a cron.Schedule that fires once at a given time and then
// every interval after each activation. The first activation happens right
// away when the given time already passed.
type delayedSchedule struct {
	first   time.Time
	every   time.Duration
	started bool
}

// Next returns the next activation time; cron calls it from a single goroutine
func (ds *delayedSchedule) Next(t time.Time) time.Time {
	if !ds.started {
		ds.started = true
		if t.Before(ds.first) {
			return ds.first
		}
		return t
	}
	return t.Add(ds.every)
}

func newDelayedSchedule(now time.Time, delay, every time.Duration) *delayedSchedule {
	if every <= 0 {
		every = DefaultCheckInterval
	}
	return &delayedSchedule{first: now.Add(delay), every: every}
}

// newScheduler builds the cron runner of the monitor; a scheduled check cycle
// is skipped when the previous one is still running.
func newScheduler(ll logrus.FieldLogger) *cron.Cron {
	logger := cron.PrintfLogger(ll)
	return cron.New(
		cron.WithChain(cron.SkipIfStillRunning(logger)),
		cron.WithLogger(logger),
	)
}
