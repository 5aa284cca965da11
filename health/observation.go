package health

import (
	"fmt"
	"time"
)

// Phase is the remediation lifecycle stage of a single service, derived from
// its Observation counters
type Phase uint32

const (
	// Tracking means the current state was first seen on the last cycle; the
	// service is given time before being judged
	Tracking Phase = iota
	// Eligible means an issue on this service would be remediated
	Eligible
	// Cooling means a remediation happened less than a cooldown ago
	Cooling
	// Exhausted means the attempt cap was reached and the reset window has not
	// elapsed
	Exhausted
)

// String returns a string representation of the current Phase
func (p Phase) String() string {
	switch p {
	case Tracking:
		return "tracking"
	case Eligible:
		return "eligible"
	case Cooling:
		return "cooling"
	case Exhausted:
		return "exhausted"
	default:
		return "<Unknown>"
	}
}

// MarshalText renders the phase name
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "tracking":
		*p = Tracking
	case "eligible":
		*p = Eligible
	case "cooling":
		*p = Cooling
	case "exhausted":
		*p = Exhausted
	default:
		return fmt.Errorf("unknown phase %q", string(text))
	}
	return nil
}

// Observation is the history the monitor keeps for one service
type Observation struct {
	State             State     `json:"state"`
	Health            Health    `json:"health,omitempty"`
	FirstSeenAt       time.Time `json:"first_seen_at"`
	LastCheckedAt     time.Time `json:"last_checked_at"`
	Attempts          uint32    `json:"remediation_attempts"`
	LastRemediationAt time.Time `json:"last_remediation_at,omitempty"`
}

// newObservation builds the observation of a service whose state was just
// seen for the first time
func newObservation(status ServiceStatus, now time.Time) *Observation {
	return &Observation{
		State:         status.State,
		Health:        status.Health,
		FirstSeenAt:   now,
		LastCheckedAt: now,
	}
}

// timeInState returns how long the service has been in its current state
func (o Observation) timeInState(now time.Time) time.Duration {
	return now.Sub(o.FirstSeenAt)
}
