package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/arach/fabric/internal/checkpoint"
	"github.com/arach/fabric/internal/sandbox"
)

func testSummary() checkpoint.Summary {
	return checkpoint.Summary{
		ID:        "task-42",
		Messages:  7,
		Files:     3,
		Source:    sandbox.BackendLocal,
		Target:    sandbox.BackendCloud,
		Timestamp: time.Now().Add(-2 * time.Hour),
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "unknown"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := age(now, tt.t); got != tt.want {
				t.Errorf("age() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckpointItemMethods(t *testing.T) {
	item := checkpointItem{summary: testSummary(), now: time.Now()}

	t.Run("Title", func(t *testing.T) {
		if got := item.Title(); got != "task-42" {
			t.Errorf("Title() = %q, want %q", got, "task-42")
		}
	})

	t.Run("FilterValue", func(t *testing.T) {
		if got := item.FilterValue(); got != "task-42" {
			t.Errorf("FilterValue() = %q, want %q", got, "task-42")
		}
	})

	t.Run("Description", func(t *testing.T) {
		desc := item.Description()
		for _, want := range []string{"local → cloud", "7 messages", "3 files", "2h ago"} {
			if !strings.Contains(desc, want) {
				t.Errorf("Description() = %q, missing %q", desc, want)
			}
		}
	})

	t.Run("Description without backends", func(t *testing.T) {
		item := checkpointItem{summary: checkpoint.Summary{ID: "x"}}
		if desc := item.Description(); !strings.HasPrefix(desc, "? |") {
			t.Errorf("Description() = %q", desc)
		}
	})
}

func TestModelKeyHandling(t *testing.T) {
	sums := []checkpoint.Summary{testSummary()}

	t.Run("restore with enter", func(t *testing.T) {
		m := NewPicker(sums)
		newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		model := newModel.(Model)

		if model.result.Action != ActionRestore {
			t.Errorf("Action = %v, want ActionRestore", model.result.Action)
		}
		if model.result.Checkpoint == nil || model.result.Checkpoint.ID != "task-42" {
			t.Errorf("Checkpoint = %+v", model.result.Checkpoint)
		}
		if cmd == nil {
			t.Error("Should return tea.Quit command")
		}
	})

	t.Run("delete with d", func(t *testing.T) {
		m := NewPicker(sums)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
		model := newModel.(Model)

		if model.result.Action != ActionDelete {
			t.Errorf("Action = %v, want ActionDelete", model.result.Action)
		}
	})

	t.Run("quit with q", func(t *testing.T) {
		m := NewPicker(sums)
		newModel, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
		model := newModel.(Model)

		if model.result.Action != ActionQuit {
			t.Errorf("Action = %v, want ActionQuit", model.result.Action)
		}
		if !model.quitting {
			t.Error("Model should be quitting")
		}
		if cmd == nil {
			t.Error("Should return tea.Quit command")
		}
	})

	t.Run("quit with esc", func(t *testing.T) {
		m := NewPicker(sums)
		newModel, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		model := newModel.(Model)

		if model.result.Action != ActionQuit {
			t.Errorf("Action = %v, want ActionQuit", model.result.Action)
		}
	})

	t.Run("window size update", func(t *testing.T) {
		m := NewPicker(sums)
		newModel, cmd := m.Update(tea.WindowSizeMsg{Width: 100, Height: 50})
		model := newModel.(Model)

		if model.width != 100 || model.height != 50 {
			t.Errorf("size = %dx%d, want 100x50", model.width, model.height)
		}
		if cmd != nil {
			t.Error("Window size update should not return a command")
		}
	})
}

func TestModelView(t *testing.T) {
	t.Run("normal view contains help", func(t *testing.T) {
		m := NewPicker([]checkpoint.Summary{testSummary()})
		view := m.View()

		for _, want := range []string{"[enter] Restore", "[d] Delete", "[q] Quit"} {
			if !strings.Contains(view, want) {
				t.Errorf("View should contain %q", want)
			}
		}
	})

	t.Run("quitting view is empty", func(t *testing.T) {
		m := NewPicker([]checkpoint.Summary{testSummary()})
		m.quitting = true
		if view := m.View(); view != "" {
			t.Errorf("Quitting view should be empty, got %q", view)
		}
	})
}

func TestModelInit(t *testing.T) {
	m := Model{}
	if cmd := m.Init(); cmd != nil {
		t.Error("Init() should return nil")
	}
}

func TestRunPickerEmpty(t *testing.T) {
	result, err := RunPicker(nil)
	if err != nil {
		t.Fatalf("RunPicker with no checkpoints failed: %v", err)
	}
	if result.Action != ActionNone {
		t.Errorf("Empty picker should return ActionNone, got %v", result.Action)
	}
}

func TestSimpleList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		output := SimpleList(nil)
		if !strings.Contains(output, "No checkpoints found") {
			t.Error("Should indicate no checkpoints found")
		}
		if !strings.Contains(output, "fabric checkpoint save") {
			t.Error("Should show how to save a checkpoint")
		}
	})

	t.Run("with checkpoints", func(t *testing.T) {
		second := testSummary()
		second.ID = "task-43"
		output := SimpleList([]checkpoint.Summary{testSummary(), second})

		for _, want := range []string{"1. task-42", "2. task-43", "7 messages"} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q:\n%s", want, output)
			}
		}
	})
}

func TestActionConstants(t *testing.T) {
	actions := []Action{ActionNone, ActionRestore, ActionDelete, ActionQuit}
	seen := make(map[Action]bool)

	for _, a := range actions {
		if seen[a] {
			t.Errorf("Duplicate action value: %v", a)
		}
		seen[a] = true
	}
}
