package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/valter-silva-au/devflow/internal/core"
)

type chooserModel struct {
	prompt  string
	options []core.Choice
	cursor  int
	chosen  int
}

func newChooserModel(prompt string, options []core.Choice) chooserModel {
	return chooserModel{prompt: prompt, options: options, chosen: -1}
}

func (m chooserModel) Init() tea.Cmd {
	return nil
}

func (m chooserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch s := key.String(); s {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.options)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = m.cursor
		return m, tea.Quit
	default:
		// Digits jump straight to an option.
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(m.options) {
			m.cursor = n - 1
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m chooserModel) View() string {
	if m.chosen >= 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.prompt))
	b.WriteString("\n\n")
	for i, opt := range m.options {
		line := fmt.Sprintf("%d. %s", i+1, opt.Label)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		if opt.Description != "" {
			b.WriteString(helpStyle.Render("  " + opt.Description))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + helpStyle.Render("up/down: move | enter or 1-9: choose | q: cancel") + "\n")
	return b.String()
}

// TerminalChooser asks the user through an interactive terminal list.
type TerminalChooser struct {
	In  io.Reader
	Out io.Writer
}

// RequestChoice returns the index of the chosen option, or
// core.ErrChoiceAborted when the user cancels.
func (c *TerminalChooser) RequestChoice(ctx context.Context, prompt string, options []core.Choice) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("nothing to choose from: %w", core.ErrChoiceAborted)
	}
	p := tea.NewProgram(newChooserModel(prompt, options),
		tea.WithContext(ctx),
		tea.WithInput(c.In),
		tea.WithOutput(c.Out),
	)
	final, err := p.Run()
	if err != nil {
		return -1, fmt.Errorf("running chooser: %w", err)
	}
	m, ok := final.(chooserModel)
	if !ok || m.chosen < 0 {
		return -1, core.ErrChoiceAborted
	}
	return m.chosen, nil
}
