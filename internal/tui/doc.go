// Package tui provides terminal user interface components for fabric.
//
// # Checkpoint Picker
//
// The picker lists saved agent checkpoints, newest first:
//
//	sums, _ := store.Summaries()
//	result, err := tui.RunPicker(sums)
//	switch result.Action {
//	case tui.ActionRestore:
//	    // Restore result.Checkpoint.ID into the session
//	case tui.ActionDelete:
//	    // Delete result.Checkpoint.ID
//	case tui.ActionQuit, tui.ActionNone:
//	    // Exit
//	}
//
// Keys: Enter (restore), d (delete), / (filter), q or Esc (quit).
//
// SimpleList renders the same listing for non-interactive output.
package tui
