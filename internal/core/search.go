package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultSearchQueries are the query templates issued for every aggregation.
// {workstream} is replaced with the workstream filter.
var DefaultSearchQueries = []string{
	"{workstream}",
	"{workstream} tasks",
	"{workstream} todo in progress",
	"{workstream} blocked review",
}

// minSearchQueries is the fewest differently worded queries an aggregation
// issues; ranking differs enough between phrasings that fewer miss tasks.
const minSearchQueries = 3

const defaultFetchConcurrency = 8

// SearchResult is the verified outcome of one aggregation.
type SearchResult struct {
	// Tasks holds each verified task once, sorted by ID.
	Tasks []models.Task
	// Candidates is the number of unique task IDs the queries produced.
	Candidates int
	// Unverified lists candidate IDs whose fetch failed.
	Unverified []string
	// FailedQueries lists the indexes of queries that errored.
	FailedQueries []int
}

// SearchAggregator locates tasks reliably on top of an unreliable search.
type SearchAggregator interface {
	FindTasks(ctx context.Context, workstream string, statusAllow []models.TaskStatus) (*SearchResult, error)
}

// SearchOptions configures a SearchAggregator.
type SearchOptions struct {
	ScopeID          string
	Queries          []string
	CallTimeout      time.Duration
	FetchConcurrency int
	Logger           *slog.Logger
}

type searchAggregator struct {
	store       TaskStore
	scopeID     string
	queries     []string
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewSearchAggregator creates a SearchAggregator over the given task store.
// Query templates below the minimum are topped up from DefaultSearchQueries.
func NewSearchAggregator(store TaskStore, opts SearchOptions) SearchAggregator {
	queries := append([]string(nil), opts.Queries...)
	for _, q := range DefaultSearchQueries {
		if len(queries) >= minSearchQueries {
			break
		}
		if !containsString(queries, q) {
			queries = append(queries, q)
		}
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultFetchConcurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &searchAggregator{
		store:       store,
		scopeID:     opts.ScopeID,
		queries:     queries,
		timeout:     opts.CallTimeout,
		concurrency: opts.FetchConcurrency,
		logger:      loggerOrDiscard(opts.Logger),
	}
}

// ExpandQueries substitutes the workstream into each template.
func ExpandQueries(templates []string, workstream string) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		q := strings.TrimSpace(strings.ReplaceAll(t, "{workstream}", workstream))
		if q != "" && !containsString(out, q) {
			out = append(out, q)
		}
	}
	return out
}

// FindTasks runs every query concurrently, unions and deduplicates the hits,
// then fetches each candidate and keeps only those whose authoritative fields
// match the workstream and status filters. Epics are never returned.
func (a *searchAggregator) FindTasks(ctx context.Context, workstream string, statusAllow []models.TaskStatus) (*SearchResult, error) {
	queries := ExpandQueries(a.queries, workstream)
	if len(queries) == 0 {
		return nil, fmt.Errorf("finding tasks: no search queries for workstream %q", workstream)
	}

	candidates, failed := a.collectCandidates(ctx, queries)
	if len(failed) == len(queries) {
		return nil, fmt.Errorf("finding tasks: all %d search queries failed: %w", len(queries), ErrPartialFailure)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("finding tasks: %w", err)
	}

	allowed := make(map[models.TaskStatus]bool, len(statusAllow))
	for _, s := range statusAllow {
		allowed[s] = true
	}

	tasks, unverified := a.verify(ctx, candidates)

	result := &SearchResult{
		Candidates:    len(candidates),
		Unverified:    unverified,
		FailedQueries: failed,
	}
	// Two candidate IDs can resolve to the same task, so dedup again on the
	// fetched ID.
	kept := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if !t.InWorkstream(workstream) || !allowed[t.Status] || t.IsEpic || kept[t.ID] {
			continue
		}
		kept[t.ID] = true
		result.Tasks = append(result.Tasks, t)
	}
	sort.Slice(result.Tasks, func(i, j int) bool { return result.Tasks[i].ID < result.Tasks[j].ID })

	a.logger.Debug("search aggregated",
		"workstream", workstream,
		"queries", len(queries),
		"failed_queries", len(failed),
		"candidates", len(candidates),
		"unverified", len(unverified),
		"kept", len(result.Tasks),
	)
	return result, nil
}

// collectCandidates issues all queries in parallel and returns the sorted set
// of unique task IDs plus the indexes of failed queries. One failing query
// never cancels the others.
func (a *searchAggregator) collectCandidates(ctx context.Context, queries []string) ([]string, []int) {
	var (
		mu     sync.Mutex
		seen   = make(map[string]struct{})
		failed []int
	)

	g := new(errgroup.Group)
	for i, q := range queries {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			hits, err := a.store.Search(callCtx, q, a.scopeID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("search query failed", "query_index", i, "query", q, "error", err)
				failed = append(failed, i)
				return nil
			}
			for _, h := range hits {
				if h.TaskID != "" {
					seen[h.TaskID] = struct{}{}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sort.Ints(failed)
	return ids, failed
}

// verify fetches every candidate with bounded concurrency. Failed fetches are
// dropped and reported as unverified.
func (a *searchAggregator) verify(ctx context.Context, ids []string) ([]models.Task, []string) {
	var (
		mu         sync.Mutex
		tasks      []models.Task
		unverified []string
	)

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			task, err := a.store.Fetch(callCtx, id)
			if err == nil && task == nil {
				err = ErrNotFound
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Info("dropping unverified candidate", "task_id", id, "error", fmt.Errorf("%w: %w", ErrUnverified, err))
				unverified = append(unverified, id)
				return nil
			}
			if task.ID == "" {
				task.ID = id
			}
			tasks = append(tasks, *task)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(unverified)
	return tasks, unverified
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
