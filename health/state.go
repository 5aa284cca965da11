package health

import (
	"fmt"
	"strings"
)

// State is the run state of a service as classified from the backend report
type State uint32

const (
	// Unknown is the state of a service the backend reports with an
	// unrecognized run state
	Unknown State = iota
	// Running indicates the service process is up
	Running
	// Restarting indicates the backend is cycling the service
	Restarting
	// Stopped indicates the service exited
	Stopped
	// Dead indicates the service is defunct and could not be removed cleanly
	Dead
	// Created indicates the service was created but never started
	Created
	// Paused indicates the service processes are frozen
	Paused
)

// String returns a string representation of the current State
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Restarting:
		return "restarting"
	case Stopped:
		return "stopped"
	case Dead:
		return "dead"
	case Created:
		return "created"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// IsStopped returns true for the states where the service is not executing at
// all: stopped, dead and created-but-not-started
func (s State) IsStopped() bool {
	return s == Stopped || s == Dead || s == Created
}

// MarshalText renders the state name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	*s = ParseState(string(text))
	return nil
}

// ParseState translates a backend state string into a State. Unrecognized
// values become Unknown.
func ParseState(input string) State {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "running", "up":
		return Running
	case "restarting":
		return Restarting
	case "exited", "stopped":
		return Stopped
	case "dead":
		return Dead
	case "created":
		return Created
	case "paused":
		return Paused
	default:
		return Unknown
	}
}

// Health is the optional health signal a backend reports for a service
type Health uint32

const (
	// HealthNone means the service has no health check configured
	HealthNone Health = iota
	// Healthy means the last health check passed
	Healthy
	// Unhealthy means the health check is failing
	Unhealthy
	// HealthStarting means the health check is still in its grace period
	HealthStarting
)

// String returns a string representation of the current Health
func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case HealthStarting:
		return "starting"
	default:
		return ""
	}
}

// MarshalText renders the health name
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText parses a health name
func (h *Health) UnmarshalText(text []byte) error {
	*h = ParseHealth(string(text))
	return nil
}

// ParseHealth translates a backend health string into a Health value
func ParseHealth(input string) Health {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "healthy":
		return Healthy
	case "unhealthy":
		return Unhealthy
	case "starting":
		return HealthStarting
	default:
		return HealthNone
	}
}

// ServiceStatus is a single entry of a backend status report
type ServiceStatus struct {
	State  State  `json:"state"`
	Health Health `json:"health,omitempty"`
}

func (ss ServiceStatus) String() string {
	if ss.Health == HealthNone {
		return ss.State.String()
	}
	return fmt.Sprintf("%s (%s)", ss.State, ss.Health)
}
