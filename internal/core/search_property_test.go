package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/valter-silva-au/devflow/pkg/models"
	"pgregory.net/rapid"
)

// Property: Search Results Are Unique And Verified
// However noisy and overlapping the query results are, every returned task
// appears once, was fetched successfully and matches the filters.
func TestProperty_SearchResultsUniqueAndVerified(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 15).Draw(rt, "tasks")
		store := newFakeTaskStore()
		var ids []string
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("T-%d", i)
			ids = append(ids, id)
			tk := newTask(id, "task "+id, rapid.SampledFrom(models.AllStatuses).Draw(rt, "status"))
			if rapid.Bool().Draw(rt, "otherWorkstream") {
				tk.Workstream = "identity"
			}
			tk.IsEpic = rapid.IntRange(0, 9).Draw(rt, "epic") == 0
			store.tasks[id] = tk
			if rapid.IntRange(0, 4).Draw(rt, "fetchFails") == 0 {
				store.fetchErr[id] = errBoom
			}
		}

		perQuery := make(map[string][]models.SearchHit)
		for _, q := range ExpandQueries(DefaultSearchQueries, "payments") {
			var hits []models.SearchHit
			if len(ids) > 0 {
				picks := rapid.SliceOfN(rapid.SampledFrom(ids), 0, 20).Draw(rt, "hits")
				for _, id := range picks {
					hits = append(hits, models.SearchHit{TaskID: id})
				}
			}
			perQuery[q] = hits
		}
		store.searchFn = func(q string) ([]models.SearchHit, error) { return perQuery[q], nil }

		allow := []models.TaskStatus{models.StatusToDo, models.StatusInProgress, models.StatusBlocked}
		res, err := NewSearchAggregator(store, SearchOptions{}).FindTasks(context.Background(), "payments", allow)
		if err != nil {
			rt.Fatalf("FindTasks() error = %v", err)
		}

		seen := make(map[string]bool)
		for _, tk := range res.Tasks {
			if seen[tk.ID] {
				rt.Fatalf("task %s returned twice", tk.ID)
			}
			seen[tk.ID] = true
			if store.fetchErr[tk.ID] != nil {
				rt.Fatalf("task %s returned although its fetch failed", tk.ID)
			}
			if tk.Workstream != "payments" || tk.IsEpic || !containsStatus(allow, tk.Status) {
				rt.Fatalf("task %+v does not match the filters", tk)
			}
		}
		for i := 1; i < len(res.Tasks); i++ {
			if res.Tasks[i-1].ID >= res.Tasks[i].ID {
				rt.Fatalf("tasks not sorted by ID at %d", i)
			}
		}
	})
}

func containsStatus(list []models.TaskStatus, s models.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
