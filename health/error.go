package health

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by Start when the monitor is running
	ErrAlreadyStarted = errors.New("health monitor already started")
	// ErrNotStarted is returned by Stop when the monitor is not running
	ErrNotStarted = errors.New("health monitor not started")

	// errMonitorStopped aborts a check cycle whose monitor got stopped while
	// it was running
	errMonitorStopped = errors.New("health monitor stopped during check cycle")
)

// ErrKVs is an utility interface used to get key-values out of monitor errors
type ErrKVs interface {
	KVs() map[string]interface{}
}

// ActionError wraps the error returned by the backend when a remediation
// action on a service fails (non-zero exits, timeouts, etc.)
type ActionError struct {
	Service string
	Action  Action
	Err     error
}

// Error returns an error message
func (err *ActionError) Error() string {
	return fmt.Sprintf("%s of service '%s' failed: %v", err.Action, err.Service, err.Err)
}

// Unwrap returns the backend error
func (err *ActionError) Unwrap() error {
	return err.Err
}

// KVs returns a metadata map for structured logging
func (err *ActionError) KVs() map[string]interface{} {
	acc := make(map[string]interface{})
	acc["service"] = err.Service
	acc["action"] = err.Action.String()
	if err.Err != nil {
		acc["action.error"] = err.Err.Error()
	}
	return acc
}
