package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttemptTolerance(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		desc        string
		maxAttempts uint32
		resetWindow time.Duration
		attempts    uint32
		lastAt      time.Time

		result attemptToleranceResult
	}{
		{
			desc:        "below the cap allows another attempt",
			maxAttempts: 3,
			resetWindow: time.Hour,
			attempts:    2,
			lastAt:      now.Add(-time.Minute),

			result: allowAttempt,
		},
		{
			desc:        "at the cap within the window is surpassed",
			maxAttempts: 3,
			resetWindow: time.Hour,
			attempts:    3,
			lastAt:      now.Add(-59 * time.Minute),

			result: attemptToleranceSurpassed,
		},
		{
			desc:        "at the cap exactly on the window edge is surpassed",
			maxAttempts: 3,
			resetWindow: time.Hour,
			attempts:    3,
			lastAt:      now.Add(-time.Hour),

			result: attemptToleranceSurpassed,
		},
		{
			desc:        "at the cap after the window resets",
			maxAttempts: 3,
			resetWindow: time.Hour,
			attempts:    3,
			lastAt:      now.Add(-time.Hour - time.Second),

			result: resetAttempts,
		},
		{
			desc:        "at the cap without a remediation time resets",
			maxAttempts: 3,
			resetWindow: time.Hour,
			attempts:    3,

			result: resetAttempts,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			at := attemptTolerance{MaxAttempts: tc.maxAttempts, ResetWindow: tc.resetWindow}
			result := at.check(tc.attempts, tc.lastAt, now)
			require.True(t, tc.result == result, result.String())
		})
	}
}

func TestAttemptToleranceAdmit(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	at := attemptTolerance{MaxAttempts: 3, ResetWindow: time.Hour, Cooldown: 5 * time.Minute}

	t.Run("never remediated", func(t *testing.T) {
		obs := &Observation{State: Stopped}
		assert.True(t, at.admit(obs, now))
	})

	t.Run("in cooldown", func(t *testing.T) {
		obs := &Observation{Attempts: 1, LastRemediationAt: now.Add(-4 * time.Minute)}
		assert.False(t, at.admit(obs, now))
		assert.Equal(t, uint32(1), obs.Attempts)
	})

	t.Run("cooldown elapsed", func(t *testing.T) {
		obs := &Observation{Attempts: 1, LastRemediationAt: now.Add(-5 * time.Minute)}
		assert.True(t, at.admit(obs, now))
	})

	t.Run("exhausted", func(t *testing.T) {
		obs := &Observation{Attempts: 3, LastRemediationAt: now.Add(-30 * time.Minute)}
		assert.False(t, at.admit(obs, now))
		assert.Equal(t, uint32(3), obs.Attempts)
	})

	t.Run("exhausted and reset window elapsed", func(t *testing.T) {
		obs := &Observation{Attempts: 3, LastRemediationAt: now.Add(-61 * time.Minute)}
		assert.True(t, at.admit(obs, now))
		assert.Equal(t, uint32(0), obs.Attempts)
	})
}

func TestAttemptTolerancePhase(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	at := attemptTolerance{MaxAttempts: 3, ResetWindow: time.Hour, Cooldown: 5 * time.Minute}

	for _, tc := range []struct {
		desc  string
		obs   Observation
		phase Phase
	}{
		{
			desc:  "state seen for the first time",
			obs:   Observation{FirstSeenAt: now, LastCheckedAt: now},
			phase: Tracking,
		},
		{
			desc:  "state seen on previous cycles",
			obs:   Observation{FirstSeenAt: now.Add(-time.Minute), LastCheckedAt: now},
			phase: Eligible,
		},
		{
			desc: "recent remediation",
			obs: Observation{
				FirstSeenAt:       now.Add(-10 * time.Minute),
				LastCheckedAt:     now,
				Attempts:          1,
				LastRemediationAt: now.Add(-time.Minute),
			},
			phase: Cooling,
		},
		{
			desc: "attempt cap reached",
			obs: Observation{
				FirstSeenAt:       now.Add(-20 * time.Minute),
				LastCheckedAt:     now,
				Attempts:          3,
				LastRemediationAt: now.Add(-10 * time.Minute),
			},
			phase: Exhausted,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.phase, at.phase(tc.obs, now))
		})
	}
}
