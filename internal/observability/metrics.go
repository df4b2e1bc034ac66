package observability

import (
	"fmt"
	"sort"
	"time"
)

// Metrics holds workflow statistics derived from the event log.
type Metrics struct {
	Sessions          int            `json:"sessions"`
	WorkflowRuns      map[string]int `json:"workflow_runs"`
	StepsByStatus     map[string]int `json:"steps_by_status"`
	FailuresBySystem  map[string]int `json:"failures_by_system"`
	FailedSessions    int            `json:"failed_sessions"`
	EventCount        int            `json:"event_count"`
	OldestEvent       *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent       *time.Time     `json:"newest_event,omitempty"`
	RecentFailedSteps []FailedStep   `json:"recent_failed_steps,omitempty"`
}

// FailedStep is one failed workflow step as recorded in the event log.
type FailedStep struct {
	Time      time.Time `json:"time"`
	SessionID string    `json:"session_id"`
	Workflow  string    `json:"workflow"`
	System    string    `json:"system"`
	Step      string    `json:"step"`
	Error     string    `json:"error,omitempty"`
}

const maxRecentFailures = 10

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator that reads from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every workflow.step event since the given time.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since, Type: EventWorkflowStep})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		WorkflowRuns:     make(map[string]int),
		StepsByStatus:    make(map[string]int),
		FailuresBySystem: make(map[string]int),
		EventCount:       len(events),
	}

	sessions := make(map[string]string)
	failed := make(map[string]bool)
	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		id := stringField(event.Data, "session_id")
		if _, seen := sessions[id]; !seen && id != "" {
			workflow := stringField(event.Data, "workflow")
			sessions[id] = workflow
			m.WorkflowRuns[workflow]++
		}

		status := stringField(event.Data, "status")
		m.StepsByStatus[status]++
		if status != "failed" {
			continue
		}
		m.FailuresBySystem[stringField(event.Data, "system")]++
		if id != "" {
			failed[id] = true
		}
		m.RecentFailedSteps = append(m.RecentFailedSteps, FailedStep{
			Time:      event.Time,
			SessionID: id,
			Workflow:  stringField(event.Data, "workflow"),
			System:    stringField(event.Data, "system"),
			Step:      stringField(event.Data, "step"),
			Error:     stringField(event.Data, "error"),
		})
	}

	m.Sessions = len(sessions)
	m.FailedSessions = len(failed)

	sort.SliceStable(m.RecentFailedSteps, func(i, j int) bool {
		return m.RecentFailedSteps[i].Time.After(m.RecentFailedSteps[j].Time)
	})
	if len(m.RecentFailedSteps) > maxRecentFailures {
		m.RecentFailedSteps = m.RecentFailedSteps[:maxRecentFailures]
	}
	return m, nil
}
