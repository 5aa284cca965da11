package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action specifies the recovery action the monitor executed on a service
type Action uint32

const (
	// ignore zero value of iota
	_ Action = iota
	// SoftRestart restarts the service in place
	SoftRestart
	// HardRecreate stops the service, waits for its resources to be released
	// and starts it again
	HardRecreate
)

// String returns a string representation of the current Action
func (a Action) String() string {
	switch a {
	case SoftRestart:
		return "soft-restart"
	case HardRecreate:
		return "hard-recreate"
	default:
		return "<Unknown>"
	}
}

// MarshalText renders the action name
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses an action name
func (a *Action) UnmarshalText(text []byte) error {
	switch string(text) {
	case "soft-restart":
		*a = SoftRestart
	case "hard-recreate":
		*a = HardRecreate
	default:
		return fmt.Errorf("unknown remediation action %q", string(text))
	}
	return nil
}

// RemediationEvent is the audit record of a single remediation attempt. The
// monitor hands it to its Sink and does not keep it.
type RemediationEvent struct {
	ID       uuid.UUID `json:"id"`
	ServerID string    `json:"server_id,omitempty"`
	Service  string    `json:"service"`
	Issue    string    `json:"issue"`
	Action   Action    `json:"action"`
	Attempt  uint32    `json:"attempt"`
	Success  bool      `json:"success"`
	// Detail carries the recent output of the service, only on failures
	Detail  string    `json:"detail,omitempty"`
	Error   string    `json:"error,omitempty"`
	Created time.Time `json:"created_at"`
}

// Level returns the log level the event should be reported with
func (ev RemediationEvent) Level() string {
	if ev.Success {
		return "info"
	}
	return "error"
}

// Outcome returns SUCCESS or FAILED
func (ev RemediationEvent) Outcome() string {
	if ev.Success {
		return "SUCCESS"
	}
	return "FAILED"
}

// Line renders the event as a single audit log line
func (ev RemediationEvent) Line() string {
	line := fmt.Sprintf("[AUTO-REMEDIATION] %s - %s: %s", ev.Issue, ev.Action, ev.Outcome())
	if ev.Detail != "" {
		line = fmt.Sprintf("%s - %s", line, ev.Detail)
	}
	return line
}

// String returns an string representation for the RemediationEvent
func (ev RemediationEvent) String() string {
	var buffer strings.Builder
	buffer.WriteString("RemediationEvent{")
	buffer.WriteString(fmt.Sprintf("created: %s", ev.Created.Format(time.RFC3339)))
	buffer.WriteString(fmt.Sprintf(", service: %s", ev.Service))
	buffer.WriteString(fmt.Sprintf(", action: %s", ev.Action))
	buffer.WriteString(fmt.Sprintf(", attempt: %d", ev.Attempt))
	buffer.WriteString(fmt.Sprintf(", outcome: %s", ev.Outcome()))
	buffer.WriteString(fmt.Sprintf(", issue: %q", ev.Issue))
	if ev.Error != "" {
		buffer.WriteString(fmt.Sprintf(", err: %s", ev.Error))
	}
	buffer.WriteString("}")
	return buffer.String()
}
