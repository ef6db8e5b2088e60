package cmd

import (
	"context"

	"github.com/arach/fabric/internal/app"
	"github.com/arach/fabric/internal/config"
	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
	"github.com/arach/fabric/internal/session"
)

// getApp returns the application built for the running command.
func getApp() *app.App {
	return current
}

// loadRecord loads a session record or returns SessionNotFound.
func loadRecord(id string) (*config.SessionRecord, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	rec, err := config.LoadSession(getApp().Paths.SessionsDir, id)
	if err != nil {
		return nil, errors.SessionNotFound(id)
	}
	return rec, nil
}

// attached is a session resumed from its record, with the handoff token
// of the last move captured from its events.
type attached struct {
	*session.Session
	rec     *config.SessionRecord
	tokenID string
}

// attach resumes the sandbox recorded for id and initializes a session.
func attach(ctx context.Context, id string) (*attached, error) {
	rec, err := loadRecord(id)
	if err != nil {
		return nil, err
	}

	s, err := getApp().Attach(ctx, rec)
	if err != nil {
		return nil, err
	}

	a := &attached{Session: s, rec: rec}
	s.OnEvent(func(e session.Event) {
		if e.TokenID != "" {
			a.tokenID = e.TokenID
		}
	})
	return a, nil
}

// save writes the session's current state back to its record.
func (a *attached) save() error {
	rec := app.Record(a.Session, a.rec)
	if a.tokenID != "" {
		rec.TokenID = a.tokenID
	}
	if err := config.SaveSession(getApp().Paths.SessionsDir, rec); err != nil {
		return err
	}
	a.rec = rec
	return nil
}

// auditEvent records a CLI event, logging instead of failing on error.
func auditEvent(eventType, id, details string) {
	if err := getApp().Audit.LogEvent(eventType, id, details); err != nil {
		logging.Warn("failed to write audit event", "type", eventType, "error", err)
	}
}

// validateID checks a session id passed on the command line.
func validateID(id string) error {
	if err := config.ValidateName(id); err != nil {
		return errors.ValidationError(err.Error())
	}
	return nil
}

// sandboxStatus asks the backend for a recorded sandbox's status.
func sandboxStatus(ctx context.Context, bt sandbox.BackendType, id string) string {
	factory, ok := getApp().Manager.Factory(bt)
	if !ok {
		return "unknown (backend not configured)"
	}
	sb, err := factory.Resume(ctx, id)
	if err != nil {
		return "unknown (" + err.Error() + ")"
	}
	if sb == nil {
		return "not found"
	}
	return string(sb.Status())
}
