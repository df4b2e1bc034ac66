package core

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/valter-silva-au/devflow/pkg/models"
)

func TestExpandQueries(t *testing.T) {
	got := ExpandQueries([]string{"{workstream}", "{workstream} tasks", "{workstream}", "  "}, "payments")
	want := []string{"payments", "payments tasks"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandQueries() = %v, want %v", got, want)
	}
}

func TestNewSearchAggregator_TopsUpQueries(t *testing.T) {
	store := newFakeTaskStore()
	agg := NewSearchAggregator(store, SearchOptions{Queries: []string{"{workstream} only"}})

	if _, err := agg.FindTasks(context.Background(), "payments", models.AllStatuses); err != nil {
		t.Fatalf("FindTasks() error = %v", err)
	}
	if len(store.searches) < minSearchQueries {
		t.Errorf("issued %d queries, want at least %d", len(store.searches), minSearchQueries)
	}
}

func TestFindTasks_DeduplicatesAcrossQueries(t *testing.T) {
	store := newFakeTaskStore(
		newTask("T-1", "Refund flow", models.StatusToDo),
		newTask("T-2", "Ledger export", models.StatusInProgress),
	)
	// Every query returns both tasks, one of them twice.
	store.searchFn = func(string) ([]models.SearchHit, error) {
		return []models.SearchHit{{TaskID: "T-1"}, {TaskID: "T-2"}, {TaskID: "T-1"}}, nil
	}
	agg := NewSearchAggregator(store, SearchOptions{})

	res, err := agg.FindTasks(context.Background(), "payments", models.AllStatuses)
	if err != nil {
		t.Fatalf("FindTasks() error = %v", err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(res.Tasks))
	}
	if res.Tasks[0].ID != "T-1" || res.Tasks[1].ID != "T-2" {
		t.Errorf("tasks not sorted by ID: %v", res.Tasks)
	}
	if res.Candidates != 2 {
		t.Errorf("Candidates = %d, want 2", res.Candidates)
	}
	if store.fetchCount["T-1"] != 1 {
		t.Errorf("T-1 fetched %d times, want 1", store.fetchCount["T-1"])
	}
}

func TestFindTasks_AliasesResolveToOneTask(t *testing.T) {
	store := newFakeTaskStore(newTask("T-1", "Refund flow", models.StatusToDo))
	store.aliases["t1-legacy"] = "T-1"
	store.searchFn = func(string) ([]models.SearchHit, error) {
		return []models.SearchHit{{TaskID: "T-1"}, {TaskID: "t1-legacy"}}, nil
	}
	agg := NewSearchAggregator(store, SearchOptions{})

	res, err := agg.FindTasks(context.Background(), "payments", models.AllStatuses)
	if err != nil {
		t.Fatalf("FindTasks() error = %v", err)
	}
	if len(res.Tasks) != 1 {
		t.Errorf("got %d tasks, want 1: %v", len(res.Tasks), res.Tasks)
	}
}

func TestFindTasks_VerifiesAuthoritativeFields(t *testing.T) {
	other := newTask("T-3", "Other team work", models.StatusToDo)
	other.Workstream = "identity"
	epic := newTask("T-4", "Payments epic", models.StatusInProgress)
	epic.IsEpic = true

	store := newFakeTaskStore(
		newTask("T-1", "Refund flow", models.StatusToDo),
		newTask("T-2", "Shipped", models.StatusDone),
		other,
		epic,
	)
	agg := NewSearchAggregator(store, SearchOptions{})

	res, err := agg.FindTasks(context.Background(), "payments", []models.TaskStatus{models.StatusToDo, models.StatusInProgress})
	if err != nil {
		t.Fatalf("FindTasks() error = %v", err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].ID != "T-1" {
		t.Errorf("tasks = %v, want only T-1", res.Tasks)
	}
}

func TestFindTasks_MatchesAnyWorkstreamTag(t *testing.T) {
	shared := newTask("T-1", "Shared refund work", models.StatusToDo)
	shared.Workstream = "identity"
	shared.Workstreams = []string{"identity", "payments"}
	elsewhere := newTask("T-2", "Login page", models.StatusToDo)
	elsewhere.Workstream = "identity"
	elsewhere.Workstreams = []string{"identity", "growth"}

	agg := NewSearchAggregator(newFakeTaskStore(shared, elsewhere), SearchOptions{})
	res, err := agg.FindTasks(context.Background(), "payments", models.AllStatuses)
	if err != nil {
		t.Fatalf("FindTasks() error = %v", err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].ID != "T-1" {
		t.Errorf("tasks = %v, want only T-1", res.Tasks)
	}
}

func TestFindTasks_DropsUnverifiedHits(t *testing.T) {
	store := newFakeTaskStore(
		newTask("T-1", "Refund flow", models.StatusToDo),
		newTask("T-2", "Ledger export", models.StatusToDo),
	)
	store.fetchErr["T-2"] = errBoom
	store.searchFn = func(string) ([]models.SearchHit, error) {
		return []models.SearchHit{{TaskID: "T-1"}, {TaskID: "T-2"}, {TaskID: "ghost"}}, nil
	}
	agg := NewSearchAggregator(store, SearchOptions{})

	res, err := agg.FindTasks(context.Background(), "payments", models.AllStatuses)
	if err != nil {
		t.Fatalf("FindTasks() error = %v", err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].ID != "T-1" {
		t.Errorf("tasks = %v, want only T-1", res.Tasks)
	}
	if !reflect.DeepEqual(res.Unverified, []string{"T-2", "ghost"}) {
		t.Errorf("Unverified = %v, want [T-2 ghost]", res.Unverified)
	}
}

func TestFindTasks_FailedQueryDoesNotBlockOthers(t *testing.T) {
	store := newFakeTaskStore(newTask("T-1", "Refund flow", models.StatusToDo))
	store.searchFn = func(q string) ([]models.SearchHit, error) {
		if strings.HasSuffix(q, "tasks") {
			return nil, errBoom
		}
		return []models.SearchHit{{TaskID: "T-1"}}, nil
	}
	agg := NewSearchAggregator(store, SearchOptions{})

	res, err := agg.FindTasks(context.Background(), "payments", models.AllStatuses)
	if err != nil {
		t.Fatalf("FindTasks() error = %v", err)
	}
	if len(res.FailedQueries) != 1 || res.FailedQueries[0] != 1 {
		t.Errorf("FailedQueries = %v, want [1]", res.FailedQueries)
	}
	if len(res.Tasks) != 1 {
		t.Errorf("got %d tasks, want 1", len(res.Tasks))
	}
}

func TestFindTasks_AllQueriesFail(t *testing.T) {
	store := newFakeTaskStore()
	store.searchFn = func(string) ([]models.SearchHit, error) { return nil, errBoom }
	agg := NewSearchAggregator(store, SearchOptions{})

	_, err := agg.FindTasks(context.Background(), "payments", models.AllStatuses)
	if !errors.Is(err, ErrPartialFailure) {
		t.Errorf("FindTasks() error = %v, want ErrPartialFailure", err)
	}
}

func TestFindTasks_NoQueriesAfterExpansion(t *testing.T) {
	agg := NewSearchAggregator(newFakeTaskStore(), SearchOptions{Queries: []string{"{workstream}", "{workstream} ", " {workstream}"}})
	if _, err := agg.FindTasks(context.Background(), "", models.AllStatuses); err == nil {
		t.Fatal("FindTasks() with no usable queries should fail")
	}
}
