package core

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
	"pgregory.net/rapid"
)

var allPriorities = []models.Priority{
	"",
	models.PriorityCritical,
	models.PriorityHigh,
	models.PriorityMedium,
	models.PriorityLow,
	models.PriorityBacklog,
}

func taskGenerator(id int) *rapid.Generator[models.Task] {
	return rapid.Custom(func(rt *rapid.T) models.Task {
		tk := models.Task{
			ID:       fmt.Sprintf("T-%d", id),
			Title:    rapid.StringMatching(`[A-Za-z ]{0,12}`).Draw(rt, "title"),
			Priority: rapid.SampledFrom(allPriorities).Draw(rt, "priority"),
			Status:   rapid.SampledFrom(models.AllStatuses).Draw(rt, "status"),
		}
		if rapid.Bool().Draw(rt, "hasDue") {
			due := fixedNow.AddDate(0, 0, rapid.IntRange(-10, 20).Draw(rt, "offset"))
			due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
			tk.DueDate = &due
		}
		return tk
	})
}

func taskListGenerator() *rapid.Generator[[]models.Task] {
	return rapid.Custom(func(rt *rapid.T) []models.Task {
		n := rapid.IntRange(0, 25).Draw(rt, "n")
		tasks := make([]models.Task, n)
		for i := range tasks {
			tasks[i] = taskGenerator(i).Draw(rt, fmt.Sprintf("task%d", i))
		}
		return tasks
	})
}

// Property: Sorting Is Deterministic
// Any permutation of the same tasks sorts to the same sequence.
func TestProperty_SortDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := taskListGenerator().Draw(rt, "tasks")
		shuffled := append([]models.Task(nil), tasks...)
		perm := rapid.Permutation(shuffled).Draw(rt, "perm")

		a := SortTasks(tasks, fixedNow)
		b := SortTasks(perm, fixedNow)
		if !reflect.DeepEqual(a, b) {
			rt.Fatalf("sort depends on input order:\n%v\n%v", a, b)
		}
	})
}

// Property: Bucket Then Priority Order
// Earlier buckets always come first; inside a bucket higher priority comes
// first, so every today task precedes every tomorrow task and Critical
// precedes High.
func TestProperty_BucketThenPriorityOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		sorted := SortTasks(taskListGenerator().Draw(rt, "tasks"), fixedNow)
		for i := 1; i < len(sorted); i++ {
			prev, cur := sorted[i-1], sorted[i]
			bp, bc := BucketOf(prev, fixedNow), BucketOf(cur, fixedNow)
			if bp > bc {
				rt.Fatalf("%s (%s) sorted before %s (%s)", prev.ID, bp, cur.ID, bc)
			}
			if bp == bc && prev.Priority.Rank() > cur.Priority.Rank() {
				rt.Fatalf("%s (%s) sorted before %s (%s) in bucket %s", prev.ID, prev.Priority, cur.ID, cur.Priority, bp)
			}
		}
	})
}
