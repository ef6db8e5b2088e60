package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetup_Handlers(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		json      bool
		log       func()
		want      []string
		notWanted string
	}{
		{
			name: "text info",
			log:  func() { Info("session ready", "session", "task-42") },
			want: []string{"session ready", "session=task-42"},
		},
		{
			name: "json info",
			json: true,
			log:  func() { Info("session ready", "session", "task-42") },
			want: []string{`"msg":"session ready"`, `"session":"task-42"`},
		},
		{
			name:    "verbose debug",
			verbose: true,
			log:     func() { Debug("handoff step", "step", "snapshot_created") },
			want:    []string{"handoff step", "snapshot_created"},
		},
		{
			name:      "quiet debug",
			log:       func() { Debug("handoff step") },
			notWanted: "handoff step",
		},
		{
			name: "warn",
			log:  func() { Warn("event listener panicked", "event", "delegated") },
			want: []string{"level=WARN", "event listener panicked"},
		},
		{
			name: "error",
			log:  func() { Error("handoff failed", "error", "boom") },
			want: []string{"level=ERROR", "error=boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Setup(tt.verbose, tt.json, &buf)
			if Verbose != tt.verbose {
				t.Errorf("Verbose = %v, want %v", Verbose, tt.verbose)
			}

			tt.log()

			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
			if tt.notWanted != "" && strings.Contains(out, tt.notWanted) {
				t.Errorf("output %q should not contain %q", out, tt.notWanted)
			}
		})
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	Setup(false, false, &buf)

	With("backend", "cloud").Info("sandbox created")

	out := buf.String()
	if !strings.Contains(out, "sandbox created") || !strings.Contains(out, "backend=cloud") {
		t.Errorf("output = %q", out)
	}
}

func TestSetup_NilWriter(t *testing.T) {
	Setup(false, false, nil)
	if Logger == nil {
		t.Error("Logger should not be nil after Setup with nil writer")
	}
}

func TestUserOutput_Destinations(t *testing.T) {
	var out, errOut bytes.Buffer
	origOut, origErr := Stdout, Stderr
	Stdout, Stderr = &out, &errOut
	defer func() { Stdout, Stderr = origOut, origErr }()

	UserInfo("delegating %s", "sess-1")
	UserSuccess("now on %s", "cloud")
	UserWarning("snapshot truncated")
	UserError("handoff failed: %v", "boom")

	if !strings.Contains(out.String(), "delegating sess-1") || !strings.Contains(out.String(), "now on cloud") {
		t.Errorf("stdout missing info/success lines: %q", out.String())
	}
	if strings.Contains(out.String(), "truncated") {
		t.Errorf("warnings must not go to stdout: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "snapshot truncated") || !strings.Contains(errOut.String(), "handoff failed: boom") {
		t.Errorf("stderr missing warning/error lines: %q", errOut.String())
	}
}
