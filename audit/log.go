// Package audit contains health.Sink implementations that keep the
// remediation audit trail of a monitor.
package audit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-medic/health"
)

// LogSink writes one log entry per remediation event; failed remediations are
// logged with error level
type LogSink struct {
	ll logrus.FieldLogger
}

// NewLogSink returns a LogSink that writes to the given logger
func NewLogSink(ll logrus.FieldLogger) *LogSink {
	return &LogSink{ll: ll.WithField("component", "audit")}
}

// Record logs the event
func (s *LogSink) Record(_ context.Context, ev health.RemediationEvent) error {
	ll := s.ll.WithFields(logrus.Fields{
		"event_id": ev.ID.String(),
		"service":  ev.Service,
		"action":   ev.Action.String(),
		"attempt":  ev.Attempt,
	})
	if ev.ServerID != "" {
		ll = ll.WithField("server_id", ev.ServerID)
	}
	if ev.Success {
		ll.Info(ev.Line())
		return nil
	}
	if ev.Error != "" {
		ll = ll.WithField("error", ev.Error)
	}
	ll.Error(ev.Line())
	return nil
}
