package health

import (
	"fmt"
	"time"
)

// issueRules detects the conditions that warrant remediation. Rules are
// evaluated in order and the first match wins.
type issueRules struct {
	// restartingTimeout is shared by the stuck-restarting and unhealthy rules
	restartingTimeout time.Duration
	critical          map[string]struct{}
}

func newIssueRules(restartingTimeout time.Duration, critical []string) issueRules {
	set := make(map[string]struct{}, len(critical))
	for _, name := range critical {
		set[name] = struct{}{}
	}
	return issueRules{restartingTimeout: restartingTimeout, critical: set}
}

func (r issueRules) isCritical(name string) bool {
	_, ok := r.critical[name]
	return ok
}

// detect returns the issue description of the given service, or false when
// the service needs no remediation
func (r issueRules) detect(name string, obs Observation, now time.Time) (string, bool) {
	elapsed := obs.timeInState(now)

	if obs.State == Restarting && elapsed > r.restartingTimeout {
		return fmt.Sprintf("stuck restarting for %ds", seconds(elapsed)), true
	}

	if r.isCritical(name) && obs.State.IsStopped() {
		return fmt.Sprintf("critical service stopped (state=%s)", obs.State), true
	}

	if obs.State == Running && obs.Health == Unhealthy && elapsed > r.restartingTimeout {
		return fmt.Sprintf("unhealthy for %ds", seconds(elapsed)), true
	}

	return "", false
}

func seconds(d time.Duration) int64 {
	return int64(d.Round(time.Second) / time.Second)
}
