package api

import "github.com/capatazlib/go-medic/health"

// Error represents an API error
type Error struct {
	Error string `json:"error"`
}

// Events represents a list of remediation events, newest first
type Events struct {
	Events []health.RemediationEvent `json:"events"`
}

// Liveness represents the status of the daemon itself
type Liveness struct {
	Healthy bool     `json:"healthy"`
	Failing []string `json:"failing,omitempty"`
}
