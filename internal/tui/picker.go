package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arach/fabric/internal/checkpoint"
)

// Action represents the action to take after picker selection
type Action int

const (
	ActionNone Action = iota
	ActionRestore
	ActionDelete
	ActionQuit
)

// PickerResult holds the result of the picker
type PickerResult struct {
	Action     Action
	Checkpoint *checkpoint.Summary
}

// checkpointItem implements list.Item for checkpoint display
type checkpointItem struct {
	summary checkpoint.Summary
	now     time.Time
}

func (i checkpointItem) Title() string {
	return i.summary.ID
}

func (i checkpointItem) Description() string {
	route := string(i.summary.Source)
	if route == "" {
		route = "?"
	}
	if i.summary.Target != "" {
		route += " → " + string(i.summary.Target)
	}

	return fmt.Sprintf("%s | %d messages | %d files | %s",
		route,
		i.summary.Messages,
		i.summary.Files,
		age(i.now, i.summary.Timestamp),
	)
}

func (i checkpointItem) FilterValue() string {
	return i.summary.ID
}

// age renders how long ago t was, coarsely.
func age(now, t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the checkpoint picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
	width    int
	height   int
}

// NewPicker creates a picker over summaries, newest first as given.
func NewPicker(summaries []checkpoint.Summary) Model {
	now := time.Now()
	items := make([]list.Item, len(summaries))
	for i, s := range summaries {
		items[i] = checkpointItem{summary: s, now: now}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 80, 20)
	l.Title = "fabric - Select Checkpoint"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		// Don't handle keys if filtering
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(checkpointItem); ok {
				s := item.summary
				m.result = PickerResult{Action: ActionRestore, Checkpoint: &s}
				m.quitting = true
				return m, tea.Quit
			}

		case "d":
			if item, ok := m.list.SelectedItem().(checkpointItem); ok {
				s := item.summary
				m.result = PickerResult{Action: ActionDelete, Checkpoint: &s}
				m.quitting = true
				return m, tea.Quit
			}

		case "q", "esc":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	help := helpStyle.Render("[enter] Restore  [d] Delete  [/] Filter  [q] Quit")

	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive checkpoint picker
func RunPicker(summaries []checkpoint.Summary) (PickerResult, error) {
	if len(summaries) == 0 {
		return PickerResult{Action: ActionNone}, nil
	}

	m := NewPicker(summaries)
	p := tea.NewProgram(m, tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}

	return finalModel.(Model).Result(), nil
}

// SimpleList renders summaries without a terminal UI
func SimpleList(summaries []checkpoint.Summary) string {
	var sb strings.Builder

	sb.WriteString("fabric - Checkpoints\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n\n")

	if len(summaries) == 0 {
		sb.WriteString("No checkpoints found.\n")
		sb.WriteString("Save one with: fabric checkpoint save <session>\n")
		return sb.String()
	}

	now := time.Now()
	for i, s := range summaries {
		item := checkpointItem{summary: s, now: now}
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, item.Title()))
		sb.WriteString(fmt.Sprintf("   %s\n\n", item.Description()))
	}

	return sb.String()
}
