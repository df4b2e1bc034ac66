package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// journal records the order of side effects across fakes.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *journal) index(prefix string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, e := range j.entries {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// --- TaskStore ---

type fakeTaskStore struct {
	mu       sync.Mutex
	tasks    map[string]models.Task
	searchFn func(query string) ([]models.SearchHit, error)
	fetchErr map[string]error
	// aliases maps extra search IDs to a real task ID.
	aliases    map[string]string
	updateErr  error
	appendErr  error
	updates    map[string]models.TaskStatus
	appended   map[string][]string
	searches   []string
	fetchCount map[string]int
	journal    *journal
}

func newFakeTaskStore(tasks ...models.Task) *fakeTaskStore {
	s := &fakeTaskStore{
		tasks:      make(map[string]models.Task),
		fetchErr:   make(map[string]error),
		aliases:    make(map[string]string),
		updates:    make(map[string]models.TaskStatus),
		appended:   make(map[string][]string),
		fetchCount: make(map[string]int),
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	return s
}

func (s *fakeTaskStore) Search(_ context.Context, query, _ string) ([]models.SearchHit, error) {
	s.mu.Lock()
	s.searches = append(s.searches, query)
	fn := s.searchFn
	s.mu.Unlock()
	if fn != nil {
		return fn(query)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hits := make([]models.SearchHit, len(ids))
	for i, id := range ids {
		hits[i] = models.SearchHit{TaskID: id}
	}
	return hits, nil
}

func (s *fakeTaskStore) Fetch(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCount[id]++
	if err := s.fetchErr[id]; err != nil {
		return nil, err
	}
	if real, ok := s.aliases[id]; ok {
		id = real
	}
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return &t, nil
}

func (s *fakeTaskStore) UpdateStatus(_ context.Context, id string, status models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates[id] = status
	t := s.tasks[id]
	t.Status = status
	s.tasks[id] = t
	s.journal.add("task:status %s %s", id, status)
	return nil
}

func (s *fakeTaskStore) AppendContent(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended[id] = append(s.appended[id], text)
	s.journal.add("task:append %s", id)
	return nil
}

// --- Messenger ---

type reply struct {
	ThreadTS string
	Text     string
}

type fakeMessenger struct {
	mu         sync.Mutex
	roots      []models.Message // oldest first
	replies    []reply
	historyErr error
	postErr    error
	replyErr   error
	nextTS     int
	journal    *journal
}

func (m *fakeMessenger) History(_ context.Context, _ string, limit int) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	var out []models.Message
	for i := len(m.roots) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.roots[i])
	}
	return out, nil
}

func (m *fakeMessenger) Post(_ context.Context, _, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return "", m.postErr
	}
	m.nextTS++
	ts := fmt.Sprintf("1700000000.%06d", m.nextTS)
	m.roots = append(m.roots, models.Message{ID: ts, Text: text, TimestampID: ts})
	m.journal.add("chat:post %s", ts)
	return ts, nil
}

func (m *fakeMessenger) Reply(_ context.Context, _, ts, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replyErr != nil {
		return m.replyErr
	}
	m.replies = append(m.replies, reply{ThreadTS: ts, Text: text})
	m.journal.add("chat:reply %s", ts)
	return nil
}

func (m *fakeMessenger) rootCount(marker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.roots {
		if strings.Contains(r.Text, marker) {
			n++
		}
	}
	return n
}

// --- CodeHost ---

type fakeCodeHost struct {
	mu        sync.Mutex
	mrs       []models.MergeRequest
	created   []CreateMergeRequestInput
	listErr   error
	createErr error
	filters   []models.MergeRequestFilter
	journal   *journal
}

func (h *fakeCodeHost) ListMergeRequests(_ context.Context, f models.MergeRequestFilter) ([]models.MergeRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.filters = append(h.filters, f)
	if h.listErr != nil {
		return nil, h.listErr
	}
	var out []models.MergeRequest
	for _, mr := range h.mrs {
		if f.SourceBranch != "" && mr.SourceBranch != f.SourceBranch {
			continue
		}
		if f.Status != "" && mr.Status != f.Status {
			continue
		}
		if f.CreatedAfter != nil && mr.CreatedAt.Before(*f.CreatedAfter) {
			continue
		}
		out = append(out, mr)
	}
	return out, nil
}

func (h *fakeCodeHost) CreateMergeRequest(_ context.Context, in CreateMergeRequestInput) (*models.MergeRequest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return nil, h.createErr
	}
	h.created = append(h.created, in)
	mr := models.MergeRequest{
		ID:           fmt.Sprint(len(h.mrs) + 1),
		URL:          fmt.Sprintf("https://git.example.com/mr/%d", len(h.mrs)+1),
		SourceBranch: in.SourceBranch,
		TargetBranch: in.TargetBranch,
		Title:        in.Title,
		Status:       models.MergeRequestOpened,
		CreatedAt:    time.Now(),
	}
	h.mrs = append(h.mrs, mr)
	h.journal.add("mr:create %s", in.SourceBranch)
	return &mr, nil
}

// --- VCS ---

type fakeVCS struct {
	mu        sync.Mutex
	branches  map[string]bool
	worktrees map[string]string // path -> branch
	commits   map[string][]string
	dirty     map[string][]string
	ahead     int
	fetchErr  error
	createErr error
	commitErr error
	pushErr   error
	removeErr error
	pruneErr  error
	pushes    []string
	removed   []string
	pruned    int
	// wd is consulted on removal to catch removing the current directory.
	wd              *fakeWorkDir
	removedInsideWD bool
	journal         *journal
}

func newFakeVCS() *fakeVCS {
	return &fakeVCS{
		branches:  make(map[string]bool),
		worktrees: make(map[string]string),
		commits:   make(map[string][]string),
		dirty:     make(map[string][]string),
	}
}

func (v *fakeVCS) CurrentBranch(_ context.Context, dir string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b, ok := v.worktrees[dir]; ok {
		return b, nil
	}
	return "main", nil
}

func (v *fakeVCS) BranchExists(_ context.Context, _, branch string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.branches[branch], nil
}

func (v *fakeVCS) Status(_ context.Context, dir string) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dirty[dir], nil
}

func (v *fakeVCS) FetchDefault(_ context.Context, _, remote, branch string) (string, error) {
	if v.fetchErr != nil {
		return "", v.fetchErr
	}
	return remote + "/" + branch, nil
}

func (v *fakeVCS) CreateWorktree(_ context.Context, _, branch, _, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.createErr != nil {
		return v.createErr
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	v.branches[branch] = true
	v.worktrees[path] = branch
	v.journal.add("vcs:worktree %s", branch)
	return nil
}

func (v *fakeVCS) RemoveWorktree(_ context.Context, _, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.wd != nil && isWithin(v.wd.cwd, path) {
		v.removedInsideWD = true
	}
	if v.removeErr != nil {
		return v.removeErr
	}
	delete(v.worktrees, path)
	v.removed = append(v.removed, path)
	v.journal.add("vcs:remove %s", path)
	return nil
}

func (v *fakeVCS) PruneWorktrees(_ context.Context, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pruneErr != nil {
		return v.pruneErr
	}
	v.pruned++
	return nil
}

func (v *fakeVCS) StageAll(_ context.Context, dir string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.dirty, dir)
	return nil
}

func (v *fakeVCS) Commit(_ context.Context, dir, message string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.commitErr != nil {
		return "", v.commitErr
	}
	v.commits[dir] = append(v.commits[dir], message)
	hash := fmt.Sprintf("%08x%032x", len(v.commits[dir]), len(v.commits))
	v.journal.add("vcs:commit %s", hash)
	return hash, nil
}

func (v *fakeVCS) Push(_ context.Context, _, _, branch string, _ bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pushErr != nil {
		return v.pushErr
	}
	v.pushes = append(v.pushes, branch)
	v.journal.add("vcs:push %s", branch)
	return nil
}

func (v *fakeVCS) CommitsAhead(_ context.Context, dir, _ string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ahead + len(v.commits[dir]), nil
}

// --- WorkDir ---

type fakeWorkDir struct {
	cwd      string
	chdirErr error
	// stuck makes Chdir report success without moving.
	stuck bool
}

func (w *fakeWorkDir) Getwd() (string, error) { return w.cwd, nil }

func (w *fakeWorkDir) Chdir(dir string) error {
	if w.chdirErr != nil {
		return w.chdirErr
	}
	if !w.stuck {
		w.cwd = dir
	}
	return nil
}

// --- WorktreeStore ---

type memStore struct {
	mu      sync.Mutex
	records map[string]models.WorktreeRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.WorktreeRecord)}
}

func (s *memStore) Get(branch string) (*models.WorktreeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[branch]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memStore) FindByTask(taskID string) (*models.WorktreeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.TaskID == taskID {
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *memStore) List() ([]models.WorktreeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WorktreeRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Branch < out[j].Branch })
	return out, nil
}

func (s *memStore) Put(rec models.WorktreeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Branch] = rec
	return nil
}

func (s *memStore) Delete(branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, branch)
	return nil
}

// --- Chooser ---

type fakeChooser struct {
	picks   []int
	err     error
	prompts []string
	options [][]Choice
}

func (c *fakeChooser) RequestChoice(_ context.Context, prompt string, options []Choice) (int, error) {
	c.prompts = append(c.prompts, prompt)
	c.options = append(c.options, options)
	if c.err != nil {
		return -1, c.err
	}
	if len(c.picks) == 0 {
		return -1, ErrChoiceAborted
	}
	pick := c.picks[0]
	c.picks = c.picks[1:]
	return pick, nil
}

// --- EventLogger ---

type fakeEvents struct {
	mu     sync.Mutex
	events []map[string]any
}

func (e *fakeEvents) LogEvent(_ string, data map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, data)
	return nil
}

// --- helpers ---

var errBoom = errors.New("boom")

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// fixedNow is a Wednesday.
var fixedNow = time.Date(2026, time.March, 11, 9, 30, 0, 0, time.UTC)

func newTask(id, title string, status models.TaskStatus) models.Task {
	return models.Task{ID: id, Title: title, Status: status, Workstream: "payments"}
}
