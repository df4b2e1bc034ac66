package core

import (
	"strings"
	"unicode"

	"github.com/valter-silva-au/devflow/pkg/models"
)

// TitleSimilarityThreshold is the minimum Jaccard overlap of title tokens for
// a heuristic title match.
const TitleSimilarityThreshold = 0.5

// Correlation rules, in precedence order.
const (
	RuleURL    = "url"
	RuleBranch = "branch"
	RuleTitle  = "title"
)

// CorrelationReport is the result of matching tasks to merge requests.
// Unmatched items are reported, not dropped.
type CorrelationReport struct {
	Matches                []models.Correlation
	UnmatchedTasks         []models.Task
	UnmatchedMergeRequests []models.MergeRequest
}

// MergeRequestFor returns the merge request correlated with taskID.
func (r CorrelationReport) MergeRequestFor(taskID string) (models.MergeRequest, bool) {
	for _, c := range r.Matches {
		if c.Task.ID == taskID {
			return c.MergeRequest, true
		}
	}
	return models.MergeRequest{}, false
}

// Correlate matches each task to at most one merge request and each merge
// request to at most one task. For every task the first applicable rule wins:
// stored MR link equals MR URL (exact), MR source branch carries the task ID
// as whole segments, then title similarity. Rules are applied pass by pass
// over all tasks so a weaker rule never claims an MR a stronger rule matches.
func Correlate(tasks []models.Task, mrs []models.MergeRequest) CorrelationReport {
	taskDone := make([]bool, len(tasks))
	mrUsed := make([]bool, len(mrs))
	var matches []models.Correlation

	claim := func(ti, mi int, conf models.Confidence, rule string) {
		taskDone[ti] = true
		mrUsed[mi] = true
		matches = append(matches, models.Correlation{
			Task:         tasks[ti],
			MergeRequest: mrs[mi],
			Confidence:   conf,
			Rule:         rule,
		})
	}

	// Pass 1: exact URL.
	for ti, t := range tasks {
		link := strings.TrimSpace(t.MergeRequestURL)
		if link == "" {
			continue
		}
		for mi, mr := range mrs {
			if !mrUsed[mi] && sameURL(link, mr.URL) {
				claim(ti, mi, models.ConfidenceExact, RuleURL)
				break
			}
		}
	}

	// Pass 2: task ID embedded in the source branch.
	for ti, t := range tasks {
		if taskDone[ti] {
			continue
		}
		id := NormalizeID(t.ID)
		if id == "" {
			continue
		}
		for mi, mr := range mrs {
			if !mrUsed[mi] && branchHasID(mr.SourceBranch, id) {
				claim(ti, mi, models.ConfidenceHeuristic, RuleBranch)
				break
			}
		}
	}

	// Pass 3: best title overlap above the threshold.
	for ti, t := range tasks {
		if taskDone[ti] {
			continue
		}
		best, bestScore := -1, 0.0
		for mi, mr := range mrs {
			if mrUsed[mi] {
				continue
			}
			if score := TitleSimilarity(t.Title, mr.Title); score >= TitleSimilarityThreshold && score > bestScore {
				best, bestScore = mi, score
			}
		}
		if best >= 0 {
			claim(ti, best, models.ConfidenceHeuristic, RuleTitle)
		}
	}

	report := CorrelationReport{Matches: matches}
	for ti, t := range tasks {
		if !taskDone[ti] {
			report.UnmatchedTasks = append(report.UnmatchedTasks, t)
		}
	}
	for mi, mr := range mrs {
		if !mrUsed[mi] {
			report.UnmatchedMergeRequests = append(report.UnmatchedMergeRequests, mr)
		}
	}
	return report
}

// NormalizeID lowercases s and strips every non-alphanumeric character.
func NormalizeID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// branchHasID reports whether a run of consecutive branch segments spells the
// normalized id. Segments split on any non-alphanumeric rune, so PAY-12
// matches feature/task-pay12-x and feature/PAY-12-x but not
// feature/task-pay123-x, and PAY-1 never matches a pay12 branch.
func branchHasID(branch, id string) bool {
	segs := titleFields(branch)
	for i := range segs {
		joined := ""
		for j := i; j < len(segs) && len(joined) < len(id); j++ {
			joined += segs[j]
			if joined == id {
				return true
			}
		}
	}
	return false
}

// TitleSimilarity is the Jaccard index of the lowercase word sets of a and b.
func TitleSimilarity(a, b string) float64 {
	ta, tb := titleTokens(a), titleTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func titleFields(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func titleTokens(s string) map[string]bool {
	fields := titleFields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func sameURL(a, b string) bool {
	trim := func(s string) string { return strings.TrimRight(strings.TrimSpace(s), "/") }
	return trim(a) != "" && trim(a) == trim(b)
}
