package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// Summary builders are pure: structured data in, Summary out. Truncation is
// left to Compose.

const noProjectGroup = "No project"

// CheckInOverview holds the counts shown in the check-in header.
type CheckInOverview struct {
	DateLabel  string
	Workstream string
	Active     int
	Overdue    int
	DueToday   int
	ToDo       int
	InProgress int
	Blocked    int
	InReview   int
	Completed  int
}

// CheckInOptions tunes the check-in summary.
type CheckInOptions struct {
	Workstream string
	// ProjectNames maps project relation IDs to display names for grouping.
	ProjectNames map[string]string
	// Update renders the header of a reply to an existing daily thread
	// instead of a new root message.
	Update bool
}

// OverviewOf counts tasks for the check-in header. Epics are never counted;
// due-date buckets only count tasks that are not done.
func OverviewOf(tasks []models.Task, today time.Time, workstream string) CheckInOverview {
	ov := CheckInOverview{DateLabel: DateLabel(today), Workstream: workstream}
	for _, t := range tasks {
		if t.IsEpic {
			continue
		}
		if t.Status == models.StatusDone {
			ov.Completed++
			continue
		}
		ov.Active++
		switch BucketOf(t, today) {
		case BucketOverdue:
			ov.Overdue++
		case BucketDueToday:
			ov.DueToday++
		}
		switch t.Status {
		case models.StatusToDo:
			ov.ToDo++
		case models.StatusInProgress:
			ov.InProgress++
		case models.StatusBlocked:
			ov.Blocked++
		case models.StatusInReview:
			ov.InReview++
		}
	}
	return ov
}

// Header renders the overview block. A root header starts with the thread
// marker so FindTodayThread can discover it later.
func (ov CheckInOverview) Header(update bool) string {
	var b strings.Builder
	if update {
		b.WriteString(":arrows_counterclockwise: Check-in update - " + ov.DateLabel)
	} else {
		b.WriteString(ThreadMarker(ov.DateLabel))
	}
	if ov.Workstream != "" {
		b.WriteString("\n*Workstream:* " + ov.Workstream)
	}
	fmt.Fprintf(&b, "\nActive: %d | Overdue: %d | Due Today: %d | In Progress: %d | Blocked: %d | In Review: %d | To Do: %d | Completed: %d",
		ov.Active, ov.Overdue, ov.DueToday, ov.InProgress, ov.Blocked, ov.InReview, ov.ToDo, ov.Completed)
	return b.String()
}

// BuildCheckInSummary places every active task in exactly one section, the
// most urgent that applies: overdue, blocked, due today, in progress, in
// review, then the remaining list grouped by project.
func BuildCheckInSummary(tasks []models.Task, today time.Time, opts CheckInOptions) (Summary, CheckInOverview) {
	ov := OverviewOf(tasks, today, opts.Workstream)

	var overdue, blocked, dueToday, inProgress, inReview, rest []models.Task
	for _, t := range SortTasks(tasks, today) {
		if t.IsEpic || t.Status == models.StatusDone {
			continue
		}
		bucket := BucketOf(t, today)
		switch {
		case bucket == BucketOverdue:
			overdue = append(overdue, t)
		case t.Status == models.StatusBlocked:
			blocked = append(blocked, t)
		case bucket == BucketDueToday:
			dueToday = append(dueToday, t)
		case t.Status == models.StatusInProgress:
			inProgress = append(inProgress, t)
		case t.Status == models.StatusInReview:
			inReview = append(inReview, t)
		default:
			rest = append(rest, t)
		}
	}

	line := func(t models.Task) string { return TaskLine(t, today) }
	summary := Summary{Header: ov.Header(opts.Update)}
	summary.Sections = appendFlatSection(summary.Sections, 0, ":rotating_light: Overdue", overdue, line)
	summary.Sections = appendFlatSection(summary.Sections, 1, ":no_entry: Blocked", blocked, line)
	summary.Sections = appendFlatSection(summary.Sections, 2, ":alarm_clock: Due Today", dueToday, line)
	summary.Sections = appendFlatSection(summary.Sections, 3, ":hammer_and_wrench: In Progress", inProgress, line)
	summary.Sections = appendFlatSection(summary.Sections, 4, ":eyes: In Review", inReview, line)
	if groups := groupByProject(rest, opts.ProjectNames, line); len(groups) > 0 {
		summary.Sections = append(summary.Sections, Section{Priority: 5, Title: ":clipboard: Up Next", Groups: groups})
	}
	return summary, ov
}

// TaskLine renders one task as a single summary line.
func TaskLine(t models.Task, today time.Time) string {
	parts := []string{t.Title}
	if t.Priority != "" {
		parts = append(parts, titleCase(string(t.Priority)))
	}
	if t.DueDate != nil {
		due := "due " + t.DueDate.Format("Jan 2")
		if BucketOf(t, today) == BucketOverdue {
			due += fmt.Sprintf(" (%dd late)", -daysBetween(today, *t.DueDate))
		}
		parts = append(parts, due)
	}
	return strings.Join(parts, " · ")
}

func appendFlatSection(sections []Section, priority int, title string, tasks []models.Task, line func(models.Task) string) []Section {
	if len(tasks) == 0 {
		return sections
	}
	items := make([]string, len(tasks))
	for i, t := range tasks {
		items[i] = line(t)
	}
	return append(sections, Section{Priority: priority, Title: title, Groups: []Group{{Items: items}}})
}

// groupByProject groups tasks by project name, preserving task order inside
// each group. Groups are ordered by name with the unassigned group last.
func groupByProject(tasks []models.Task, names map[string]string, line func(models.Task) string) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, t := range tasks {
		name := projectName(t, names)
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, Group{Name: name})
		}
		groups[i].Items = append(groups[i].Items, line(t))
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if (groups[i].Name == noProjectGroup) != (groups[j].Name == noProjectGroup) {
			return groups[j].Name == noProjectGroup
		}
		return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name)
	})
	return groups
}

func projectName(t models.Task, names map[string]string) string {
	if t.ProjectRef == "" {
		return noProjectGroup
	}
	if n, ok := names[t.ProjectRef]; ok && n != "" {
		return n
	}
	return t.ProjectRef
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DebriefData is the input of the end-of-day summary.
type DebriefData struct {
	DateLabel    string
	Workstream   string
	Correlations CorrelationReport
	InReview     []models.Task
	Open         []models.Task
	ProjectNames map[string]string
}

// BuildDebriefSummary reports what was delivered today. Completed tasks with
// no merge request are listed as direct edits rather than dropped.
func BuildDebriefSummary(d DebriefData, today time.Time) Summary {
	completed := 0
	var delivered, direct []string
	for _, c := range d.Correlations.Matches {
		if c.Task.Status != models.StatusDone {
			continue
		}
		completed++
		delivered = append(delivered, fmt.Sprintf("%s · %s (%s)", c.Task.Title, c.MergeRequest.URL, c.Confidence))
	}
	for _, t := range d.Correlations.UnmatchedTasks {
		if t.Status != models.StatusDone {
			continue
		}
		completed++
		direct = append(direct, t.Title+" · completed via direct edit")
	}

	var review []string
	for _, t := range d.InReview {
		item := t.Title
		if mr, ok := d.Correlations.MergeRequestFor(t.ID); ok {
			item += " · " + mr.URL
		}
		review = append(review, item)
	}

	var unmatched []string
	for _, mr := range d.Correlations.UnmatchedMergeRequests {
		unmatched = append(unmatched, fmt.Sprintf("%s · %s · %s", mr.Title, mr.SourceBranch, mr.URL))
	}

	header := fmt.Sprintf(":city_sunset: Daily Debrief - %s", d.DateLabel)
	if d.Workstream != "" {
		header += "\n*Workstream:* " + d.Workstream
	}
	header += fmt.Sprintf("\nCompleted: %d | In Review: %d | Merge Requests: %d | Still Open: %d",
		completed, len(d.InReview), len(d.Correlations.Matches)+len(d.Correlations.UnmatchedMergeRequests), len(d.Open))

	summary := Summary{Header: header}
	completedItems := append(delivered, direct...)
	if len(completedItems) > 0 {
		summary.Sections = append(summary.Sections, Section{Priority: 0, Title: ":white_check_mark: Completed", Groups: []Group{{Items: completedItems}}})
	}
	if len(review) > 0 {
		summary.Sections = append(summary.Sections, Section{Priority: 1, Title: ":eyes: In Review", Groups: []Group{{Items: review}}})
	}
	if len(unmatched) > 0 {
		summary.Sections = append(summary.Sections, Section{Priority: 2, Title: ":link: Merge Requests Without Task", Groups: []Group{{Items: unmatched}}})
	}
	line := func(t models.Task) string { return TaskLine(t, today) }
	if groups := groupByProject(SortTasks(d.Open, today), d.ProjectNames, line); len(groups) > 0 {
		summary.Sections = append(summary.Sections, Section{Priority: 3, Title: ":hourglass_flowing_sand: Still Open", Groups: groups})
	}
	return summary
}

// SelectionMessage announces that work on a task started.
func SelectionMessage(task models.Task, rec *models.WorktreeRecord) string {
	return fmt.Sprintf(":arrow_forward: Started *%s*\nBranch: `%s`", task.Title, rec.Branch)
}

// PauseMessage announces a paused task and its checkpoint.
func PauseMessage(rec *models.WorktreeRecord, note string) string {
	msg := fmt.Sprintf(":double_vertical_bar: Paused *%s*\nBranch: `%s` · checkpoint `%s`", recordTitle(rec), rec.Branch, shortHash(rec.LastCommit))
	if note != "" {
		msg += "\nNote: " + note
	}
	return msg
}

// ResumeMessage announces a resumed task.
func ResumeMessage(rec *models.WorktreeRecord) string {
	return fmt.Sprintf(":arrow_forward: Resumed *%s*\nBranch: `%s`", recordTitle(rec), rec.Branch)
}

// CompletionMessage announces a completed task and its merge request.
func CompletionMessage(rec *models.WorktreeRecord, mr *models.MergeRequest) string {
	msg := fmt.Sprintf(":white_check_mark: Completed *%s*\nBranch: `%s`", recordTitle(rec), rec.Branch)
	if mr != nil && mr.URL != "" {
		msg += "\nMerge request: " + mr.URL
	}
	return msg
}

func recordTitle(rec *models.WorktreeRecord) string {
	if rec.TaskTitle != "" {
		return rec.TaskTitle
	}
	return rec.TaskID
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
