// Package handoff moves a workspace between sandbox backends.
//
// A Manager holds one Factory per backend tag and a table of tokens from
// successful delegations:
//
//	m := handoff.NewManager()
//	m.RegisterFactory(sandbox.BackendLocal, localFactory)
//	m.RegisterFactory(sandbox.BackendCloud, remoteFactory)
//
//	res := m.Delegate(ctx, sb, sandbox.BackendCloud)
//	if !res.Success {
//	    // res.Token.Snapshot holds whatever was captured
//	}
//	back := m.Reclaim(ctx, res.Token.ID, sandbox.BackendLocal)
//
// Delegate and ReclaimWithSnapshot run snapshot, stop source, create
// target, restore. Reclaim creates a sandbox from a stored token and
// consumes the token. Failed steps are not undone.
//
// Every step emits an Event (initiated, snapshot_created, target_started,
// snapshot_transferred, then completed or failed) and a span event on the
// operation's OpenTelemetry span.
package handoff
