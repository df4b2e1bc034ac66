package core

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Default message budget. Chat APIs reject or fold much longer messages.
const (
	DefaultMaxLength       = 4000
	DefaultGroupCap        = 5
	DefaultReducedGroupCap = 3
)

// Group is a named list of rendered item lines, e.g. the tasks of one project.
type Group struct {
	Name  string
	Items []string
}

// Section is a titled block of groups. Lower Priority renders first and is
// truncated last.
type Section struct {
	Priority int
	Title    string
	Groups   []Group
}

// Summary is structured message content. Header is always emitted verbatim.
type Summary struct {
	Header   string
	Sections []Section
}

// Budget bounds a composed message.
type Budget struct {
	MaxLength       int
	GroupCap        int
	ReducedGroupCap int
}

// DefaultBudget returns the check-in message budget.
func DefaultBudget() Budget {
	return Budget{
		MaxLength:       DefaultMaxLength,
		GroupCap:        DefaultGroupCap,
		ReducedGroupCap: DefaultReducedGroupCap,
	}
}

func (b Budget) normalized() Budget {
	if b.MaxLength <= 0 {
		b.MaxLength = DefaultMaxLength
	}
	if b.GroupCap <= 0 {
		b.GroupCap = DefaultGroupCap
	}
	if b.ReducedGroupCap <= 0 || b.ReducedGroupCap > b.GroupCap {
		b.ReducedGroupCap = min(DefaultReducedGroupCap, b.GroupCap)
	}
	return b
}

// MessageLength is the length measure budgets are expressed in.
func MessageLength(s string) int {
	return utf8.RuneCountInString(s)
}

// Compose renders summary within budget. It first caps every group at
// GroupCap items, then at ReducedGroupCap, then omits whole groups starting
// from the lowest-priority section until the text fits. The header is never
// shortened; ErrBudgetExceeded is returned if it cannot fit on its own.
func Compose(summary Summary, budget Budget) (string, error) {
	budget = budget.normalized()
	if MessageLength(summary.Header) > budget.MaxLength {
		return "", fmt.Errorf("composing message: header is %d long, budget %d: %w",
			MessageLength(summary.Header), budget.MaxLength, ErrBudgetExceeded)
	}

	sections := make([]Section, 0, len(summary.Sections))
	for _, s := range summary.Sections {
		if len(s.Groups) > 0 {
			sections = append(sections, s)
		}
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Priority < sections[j].Priority })

	for _, k := range []int{budget.GroupCap, budget.ReducedGroupCap} {
		text := render(summary.Header, sections, k, 0)
		if MessageLength(text) <= budget.MaxLength {
			return text, nil
		}
	}

	// Drop groups from the tail: last group of the lowest-priority section first.
	remaining := cloneSections(sections)
	omitted := 0
	for len(remaining) > 0 {
		last := &remaining[len(remaining)-1]
		last.Groups = last.Groups[:len(last.Groups)-1]
		if len(last.Groups) == 0 {
			remaining = remaining[:len(remaining)-1]
		}
		omitted++

		text := render(summary.Header, remaining, budget.ReducedGroupCap, omitted)
		if MessageLength(text) <= budget.MaxLength {
			return text, nil
		}
	}

	// The omission note itself may not fit next to a header close to budget.
	return summary.Header, nil
}

func cloneSections(in []Section) []Section {
	out := make([]Section, len(in))
	for i, s := range in {
		out[i] = s
		out[i].Groups = append([]Group(nil), s.Groups...)
	}
	return out
}

// render lays out the message with at most perGroup items per group.
func render(header string, sections []Section, perGroup, omittedGroups int) string {
	var b strings.Builder
	b.WriteString(header)

	for _, s := range sections {
		b.WriteString("\n\n")
		if s.Title != "" {
			b.WriteString("*" + s.Title + "*")
		}
		for _, g := range s.Groups {
			if g.Name != "" {
				b.WriteString("\n_" + g.Name + "_")
			}
			shown := g.Items
			if len(shown) > perGroup {
				shown = shown[:perGroup]
			}
			for _, item := range shown {
				b.WriteString("\n• " + item)
			}
			if hidden := len(g.Items) - len(shown); hidden > 0 {
				fmt.Fprintf(&b, "\n  (+%d more)", hidden)
			}
		}
	}

	if omittedGroups > 0 {
		noun := "groups"
		if omittedGroups == 1 {
			noun = "group"
		}
		fmt.Fprintf(&b, "\n\n_(%d %s omitted for length)_", omittedGroups, noun)
	}
	return b.String()
}
