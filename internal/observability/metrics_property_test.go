package observability

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Property: Step Counts Match Events
// For any sequence of workflow.step events, the per-status step counts sum to
// the number of events and the session count equals the distinct session ids.
func TestProperty_MetricsStepCountsMatchEvents(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		log, err := NewJSONLEventLog(fmt.Sprintf("%s/events.jsonl", t.TempDir()))
		if err != nil {
			rt.Fatal(err)
		}
		defer log.Close()

		base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		n := rapid.IntRange(1, 30).Draw(rt, "n")
		sessions := make(map[string]bool)
		for i := range n {
			session := fmt.Sprintf("s%d", rapid.IntRange(0, 5).Draw(rt, fmt.Sprintf("session_%d", i)))
			status := rapid.SampledFrom([]string{"succeeded", "failed", "skipped"}).Draw(rt, fmt.Sprintf("status_%d", i))
			sessions[session] = true
			if err := log.Write(stepEvent(base.Add(time.Duration(i)*time.Second), session, "checkin", "chat", status)); err != nil {
				rt.Fatal(err)
			}
		}

		m, err := NewMetricsCalculator(log).Calculate(base)
		if err != nil {
			rt.Fatal(err)
		}
		total := 0
		for _, c := range m.StepsByStatus {
			total += c
		}
		if total != n {
			rt.Fatalf("step counts sum to %d, want %d", total, n)
		}
		if m.Sessions != len(sessions) {
			rt.Fatalf("Sessions = %d, want %d", m.Sessions, len(sessions))
		}
		if m.FailedSessions > m.Sessions {
			rt.Fatalf("FailedSessions %d > Sessions %d", m.FailedSessions, m.Sessions)
		}
	})
}
