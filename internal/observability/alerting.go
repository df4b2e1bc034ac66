package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	CompletingMinutes  int `yaml:"completing_threshold_minutes" json:"completing_threshold_minutes"`
	PausedDays         int `yaml:"paused_threshold_days" json:"paused_threshold_days"`
	StaleDays          int `yaml:"stale_threshold_days" json:"stale_threshold_days"`
	FailureCount       int `yaml:"failure_threshold" json:"failure_threshold"`
	FailureWindowHours int `yaml:"failure_window_hours" json:"failure_window_hours"`
}

// DefaultAlertThresholds returns the default alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		CompletingMinutes:  30,
		PausedDays:         5,
		StaleDays:          3,
		FailureCount:       3,
		FailureWindowHours: 24,
	}
}

// RecordLister lists the local worktree records.
type RecordLister interface {
	List() ([]models.WorktreeRecord, error)
}

// AlertEngine evaluates alert conditions against worktree records and the
// event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	records    RecordLister
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine. eventLog may be nil, in which case
// only record-based conditions are checked.
func NewAlertEngine(records RecordLister, eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		records:    records,
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// Evaluate checks all alert conditions. Alerts are ordered by severity, then ID.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()

	recs, err := ae.records.List()
	if err != nil {
		return nil, fmt.Errorf("listing worktree records: %w", err)
	}
	alerts := ae.checkRecords(recs, now)

	if ae.eventLog != nil {
		failureAlerts, err := ae.checkRepeatedFailures(now)
		if err != nil {
			return nil, fmt.Errorf("checking repeated failures: %w", err)
		}
		alerts = append(alerts, failureAlerts...)
	}

	sort.Slice(alerts, func(i, j int) bool {
		if ri, rj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity); ri != rj {
			return ri < rj
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

func (ae *alertEngine) checkRecords(recs []models.WorktreeRecord, now time.Time) []Alert {
	completing := time.Duration(ae.thresholds.CompletingMinutes) * time.Minute
	paused := time.Duration(ae.thresholds.PausedDays) * 24 * time.Hour
	stale := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour

	var alerts []Alert
	for _, rec := range recs {
		age := now.Sub(rec.Updated)
		switch {
		case rec.State == models.WorktreeCompleting && age > completing:
			alerts = append(alerts, Alert{
				ID:          "cleanup-" + rec.Branch,
				Condition:   "cleanup_pending",
				Severity:    SeverityHigh,
				Message:     fmt.Sprintf("worktree %s for task %s is still completing; run devflow cleanup %s", rec.Path, rec.TaskID, rec.Branch),
				TriggeredAt: now,
			})
		case rec.State == models.WorktreePaused && age > paused:
			alerts = append(alerts, Alert{
				ID:          "paused-" + rec.Branch,
				Condition:   "paused_too_long",
				Severity:    SeverityMedium,
				Message:     fmt.Sprintf("task %s has been paused for more than %d days", rec.TaskID, ae.thresholds.PausedDays),
				TriggeredAt: now,
			})
		case rec.State == models.WorktreeInProgress && age > stale:
			alerts = append(alerts, Alert{
				ID:          "stale-" + rec.Branch,
				Condition:   "worktree_stale",
				Severity:    SeverityLow,
				Message:     fmt.Sprintf("task %s has had no checkpoint for more than %d days", rec.TaskID, ae.thresholds.StaleDays),
				TriggeredAt: now,
			})
		}
	}
	return alerts
}

// checkRepeatedFailures alerts on every external system that failed at
// least FailureCount workflow steps inside the failure window.
func (ae *alertEngine) checkRepeatedFailures(now time.Time) ([]Alert, error) {
	since := now.Add(-time.Duration(ae.thresholds.FailureWindowHours) * time.Hour)
	events, err := ae.eventLog.Read(EventFilter{Since: &since, Type: EventWorkflowStep})
	if err != nil {
		return nil, err
	}

	failures := make(map[string]int)
	for _, event := range events {
		if stringField(event.Data, "status") == "failed" {
			failures[stringField(event.Data, "system")]++
		}
	}

	var alerts []Alert
	for system, n := range failures {
		if n < ae.thresholds.FailureCount {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "failures-" + system,
			Condition:   "repeated_failures",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%s failed %d workflow steps in the last %d hours", system, n, ae.thresholds.FailureWindowHours),
			TriggeredAt: now,
		})
	}
	return alerts, nil
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}
