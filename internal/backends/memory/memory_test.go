package memory

import (
	"context"
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/sandbox"
)

func TestFactory_CreateTagged(t *testing.T) {
	f := NewFactory(Options{Backend: "cloud-b"})
	sb, err := f.Create(context.Background(), sandbox.CreateOptions{ID: "x"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sb.Backend() != "cloud-b" || sb.Status() != sandbox.StatusRunning {
		t.Errorf("sandbox = %s/%s, want cloud-b/running", sb.Backend(), sb.Status())
	}
	if _, ok := sandbox.AsCodeRunner(sb); ok {
		t.Error("sandbox without RunCode should not be a CodeRunner")
	}
}

func TestFactory_ResumeList(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(Options{})
	f.Create(ctx, sandbox.CreateOptions{ID: "b"})
	a, _ := f.Create(ctx, sandbox.CreateOptions{ID: "a"})
	a.Stop(ctx)

	list, _ := f.List(ctx)
	want := []sandbox.Info{{ID: "b", Status: sandbox.StatusRunning}, {ID: "a", Status: sandbox.StatusStopped}}
	if !reflect.DeepEqual(list, want) {
		t.Errorf("List() = %v, want %v", list, want)
	}

	if sb, err := f.Resume(ctx, "a"); err != nil || sb == nil || sb.ID() != "a" {
		t.Errorf("Resume(a) = %v, %v", sb, err)
	}
	if sb, err := f.Resume(ctx, "zzz"); err != nil || sb != nil {
		t.Errorf("Resume(zzz) = %v, %v, want nil, nil", sb, err)
	}
}

func TestSandbox_Files(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(Options{})
	sb, _ := f.Create(ctx, sandbox.CreateOptions{})

	sb.WriteFile(ctx, "a.txt", []byte("hi"))
	sb.WriteFile(ctx, "/workspace/src/main.go", []byte("package main"))
	sb.WriteFile(ctx, "src/lib/x.go", []byte("package lib"))

	data, err := sb.ReadFile(ctx, "src/main.go")
	if err != nil || string(data) != "package main" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
	if _, err := sb.ReadFile(ctx, "missing"); err == nil {
		t.Error("ReadFile(missing) should fail")
	}

	root, _ := sb.ListFiles(ctx, ".")
	if !reflect.DeepEqual(root, []string{"a.txt", "src"}) {
		t.Errorf("ListFiles(.) = %v", root)
	}
	src, _ := sb.ListFiles(ctx, "src")
	if !reflect.DeepEqual(src, []string{"lib", "main.go"}) {
		t.Errorf("ListFiles(src) = %v", src)
	}
}

func TestSandbox_StopIdempotent(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(Options{})
	sb, _ := f.Create(ctx, sandbox.CreateOptions{ID: "s"})

	for i := 0; i < 2; i++ {
		if err := sb.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
		if sb.Status() != sandbox.StatusStopped {
			t.Errorf("Status = %s, want stopped", sb.Status())
		}
	}
	if f.Get("s").Stops() != 1 {
		t.Errorf("Stops() = %d, want 1", f.Get("s").Stops())
	}

	if _, err := sb.Exec(ctx, "ls"); !errors.Is(err, errors.ErrNotRunning) {
		t.Errorf("Exec on stopped = %v, want ErrNotRunning", err)
	}
}

func TestSandbox_SnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(Options{})
	src, _ := f.Create(ctx, sandbox.CreateOptions{})
	src.WriteFile(ctx, "b.txt", []byte("two"))
	src.WriteFile(ctx, "a.txt", []byte("one"))
	src.WriteFile(ctx, "bin", []byte{0, 0xff})

	snap, err := src.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if !reflect.DeepEqual(snap.Paths(), []string{"a.txt", "b.txt", "bin"}) {
		t.Errorf("Paths() = %v", snap.Paths())
	}

	dst, _ := f.Create(ctx, sandbox.CreateOptions{})
	if err := dst.Restore(ctx, snap); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	again, _ := dst.Snapshot(ctx)
	if !reflect.DeepEqual(again.Files, snap.Files) {
		t.Errorf("round trip files = %+v, want %+v", again.Files, snap.Files)
	}
}

func TestSandbox_SnapshotCap(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(Options{MaxFiles: 1})
	sb, _ := f.Create(ctx, sandbox.CreateOptions{})
	sb.WriteFile(ctx, "a", []byte("1"))
	sb.WriteFile(ctx, "b", []byte("2"))

	snap, _ := sb.Snapshot(ctx)
	if len(snap.Files) != 1 || !snap.Truncated() {
		t.Errorf("capped snapshot = %d files, truncated %v", len(snap.Files), snap.Truncated())
	}
}

func TestSandbox_ExecAndRunCode(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(Options{
		Exec: func(command string, files map[string][]byte) *sandbox.ExecResult {
			return &sandbox.ExecResult{Stdout: command, ExitCode: len(files)}
		},
		RunCode: func(code, language string) *sandbox.CodeResult {
			return &sandbox.CodeResult{Output: language + ":" + code}
		},
	})
	sb, _ := f.Create(ctx, sandbox.CreateOptions{})
	sb.WriteFile(ctx, "x", []byte("1"))

	res, err := sb.Exec(ctx, "echo hi")
	if err != nil || res.Stdout != "echo hi" || res.ExitCode != 1 {
		t.Errorf("Exec() = %+v, %v", res, err)
	}

	cr, ok := sandbox.AsCodeRunner(sb)
	if !ok {
		t.Fatal("sandbox with RunCode should be a CodeRunner")
	}
	out, err := cr.RunCode(ctx, "print(1)", "python")
	if err != nil || out.Output != "python:print(1)" {
		t.Errorf("RunCode() = %+v, %v", out, err)
	}
}

func TestFactory_FailStart(t *testing.T) {
	boom := stderrors.New("quota")
	f := NewFactory(Options{FailStart: boom})
	if _, err := f.Create(context.Background(), sandbox.CreateOptions{}); !stderrors.Is(err, boom) {
		t.Errorf("Create() error = %v, want quota", err)
	}
}
