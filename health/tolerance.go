package health

import (
	"time"
)

// attemptToleranceResult indicates the result of an attempt tolerance check
type attemptToleranceResult uint32

const (
	// attemptToleranceSurpassed indicates the attempt cap was reached and the
	// reset window has not passed yet
	attemptToleranceSurpassed attemptToleranceResult = iota
	// allowAttempt indicates another remediation attempt may happen
	allowAttempt
	// resetAttempts indicates the attempt count must be reset before the next
	// attempt
	resetAttempts
)

func (atr attemptToleranceResult) String() string {
	switch atr {
	case attemptToleranceSurpassed:
		return "attemptToleranceSurpassed"
	case allowAttempt:
		return "allowAttempt"
	case resetAttempts:
		return "resetAttempts"
	default:
		return "<Unknown attemptToleranceResult>"
	}
}

// attemptTolerance is a helper type that manages the remediation attempt cap
// of a single service
type attemptTolerance struct {
	MaxAttempts uint32
	ResetWindow time.Duration
	Cooldown    time.Duration
}

// isWithinResetWindow is false when no remediation happened yet
func (at attemptTolerance) isWithinResetWindow(lastAt, now time.Time) bool {
	return !lastAt.IsZero() && now.Sub(lastAt) <= at.ResetWindow
}

func (at attemptTolerance) isCoolingDown(lastAt, now time.Time) bool {
	return !lastAt.IsZero() && now.Sub(lastAt) < at.Cooldown
}

// check verifies if the attempt cap has been reached with the given input
// values
func (at attemptTolerance) check(attempts uint32, lastAt, now time.Time) attemptToleranceResult {
	if attempts < at.MaxAttempts {
		return allowAttempt
	}
	if at.isWithinResetWindow(lastAt, now) {
		return attemptToleranceSurpassed
	}
	return resetAttempts
}

// admit runs the remediation eligibility gate on the given observation,
// resetting its attempt count when the reset window has passed. It returns
// false when remediation must be skipped this cycle.
func (at attemptTolerance) admit(obs *Observation, now time.Time) bool {
	switch at.check(obs.Attempts, obs.LastRemediationAt, now) {
	case attemptToleranceSurpassed:
		return false
	case resetAttempts:
		obs.Attempts = 0
	}
	return !at.isCoolingDown(obs.LastRemediationAt, now)
}

// phase classifies the observation for status reports
func (at attemptTolerance) phase(obs Observation, now time.Time) Phase {
	if at.check(obs.Attempts, obs.LastRemediationAt, now) == attemptToleranceSurpassed {
		return Exhausted
	}
	if at.isCoolingDown(obs.LastRemediationAt, now) {
		return Cooling
	}
	if obs.FirstSeenAt.Equal(obs.LastCheckedAt) {
		return Tracking
	}
	return Eligible
}
