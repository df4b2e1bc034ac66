package core

import (
	"sort"
	"strings"
	"time"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// DueBucket groups tasks by how soon they are due. Lower values sort first.
type DueBucket int

const (
	BucketOverdue DueBucket = iota
	BucketDueToday
	BucketDueTomorrow
	BucketDueThisWeek
	BucketDueLater
	BucketNoDueDate
)

// dueThisWeekDays is the furthest a task can be due and still count as
// due this week, in calendar days from today.
const dueThisWeekDays = 7

// String returns the display label of the bucket.
func (b DueBucket) String() string {
	switch b {
	case BucketOverdue:
		return "Overdue"
	case BucketDueToday:
		return "Due Today"
	case BucketDueTomorrow:
		return "Due Tomorrow"
	case BucketDueThisWeek:
		return "Due This Week"
	case BucketDueLater:
		return "Due Later"
	default:
		return "No Due Date"
	}
}

// BucketOf classifies a task relative to today by calendar date.
func BucketOf(task models.Task, today time.Time) DueBucket {
	if task.DueDate == nil {
		return BucketNoDueDate
	}
	days := daysBetween(today, *task.DueDate)
	switch {
	case days < 0:
		return BucketOverdue
	case days == 0:
		return BucketDueToday
	case days == 1:
		return BucketDueTomorrow
	case days <= dueThisWeekDays:
		return BucketDueThisWeek
	default:
		return BucketDueLater
	}
}

// daysBetween returns the number of calendar days from a to b. Due dates are
// date-only values, so each side keeps its own calendar date.
func daysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// SortTasks returns a copy of tasks ordered by due bucket, then priority
// rank, then case-insensitive title, then ID. The order is total, so equal
// input always yields identical output. Missing priorities rank as Backlog
// for sorting only; the tasks themselves are not modified.
func SortTasks(tasks []models.Task, today time.Time) []models.Task {
	sorted := make([]models.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return taskLess(sorted[i], sorted[j], today)
	})
	return sorted
}

func taskLess(a, b models.Task, today time.Time) bool {
	if ba, bb := BucketOf(a, today), BucketOf(b, today); ba != bb {
		return ba < bb
	}
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra < rb
	}
	if ta, tb := strings.ToLower(a.Title), strings.ToLower(b.Title); ta != tb {
		return ta < tb
	}
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	return a.ID < b.ID
}

// BucketCounts tallies tasks per due bucket.
func BucketCounts(tasks []models.Task, today time.Time) map[DueBucket]int {
	counts := make(map[DueBucket]int)
	for _, t := range tasks {
		counts[BucketOf(t, today)]++
	}
	return counts
}
