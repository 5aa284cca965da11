package health

import (
	"sort"
	"time"
)

// Overall summarizes the condition of every service on the host
type Overall string

const (
	// OverallOK means every service is running and not unhealthy
	OverallOK Overall = "ok"
	// OverallWarn means some service is not running or is unhealthy
	OverallWarn Overall = "warn"
	// OverallCritical means a critical service is stopped
	OverallCritical Overall = "critical"
)

// ServiceReport is the published view of a single Observation
type ServiceReport struct {
	Name string `json:"name"`
	Observation
	Phase    Phase `json:"phase"`
	Critical bool  `json:"critical,omitempty"`
}

// Snapshot is the status of the monitored services, published after every
// completed check cycle
type Snapshot struct {
	ServerID  string          `json:"server_id,omitempty"`
	CheckedAt time.Time       `json:"checked_at"`
	Overall   Overall         `json:"overall"`
	Services  []ServiceReport `json:"services"`
}

// IsHealthy indicates if every service is running and not unhealthy
func (snap Snapshot) IsHealthy() bool {
	return snap.Overall == OverallOK
}

// Service returns the report of the given service name
func (snap Snapshot) Service(name string) (ServiceReport, bool) {
	for _, report := range snap.Services {
		if report.Name == name {
			return report, true
		}
	}
	return ServiceReport{}, false
}

func overallOf(reports []ServiceReport) Overall {
	acc := OverallOK
	for _, report := range reports {
		if report.Critical && report.State.IsStopped() {
			return OverallCritical
		}
		if report.State != Running || report.Health == Unhealthy {
			acc = OverallWarn
		}
	}
	return acc
}

// buildSnapshot renders the given observations, sorted by service name
func buildSnapshot(
	serverID string,
	now time.Time,
	observations map[string]*Observation,
	tolerance attemptTolerance,
	rules issueRules,
) Snapshot {
	reports := make([]ServiceReport, 0, len(observations))
	for name, obs := range observations {
		reports = append(reports, ServiceReport{
			Name:        name,
			Observation: *obs,
			Phase:       tolerance.phase(*obs, now),
			Critical:    rules.isCritical(name),
		})
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Name < reports[j].Name
	})
	return Snapshot{
		ServerID:  serverID,
		CheckedAt: now,
		Overall:   overallOf(reports),
		Services:  reports,
	}
}
