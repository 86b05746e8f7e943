//go:build unix

package envexec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func launch(t *testing.T, ctx context.Context, param LaunchParam) RunnerResult {
	t.Helper()
	l := NewLocalLauncher(nil, zaptest.NewLogger(t))
	p, err := l.Launch(ctx, param)
	if err != nil {
		t.Fatal(err)
	}
	return p.Result()
}

func TestLocalStdinStdout(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.in")
	if err := os.WriteFile(in, []byte("3\n4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := launch(t, context.Background(), LaunchParam{
		Args:    []string{"/bin/sh", "-c", "read a; read b; echo $((a*b)); echo warn >&2"},
		WorkDir: dir,
		Stdin:   in,
	})
	if r.Status != StatusAccepted || r.ExitStatus != 0 {
		t.Fatalf("result %+v", r)
	}
	if strings.TrimSpace(string(r.Stdout)) != "12" {
		t.Fatalf("stdout %q", r.Stdout)
	}
	if strings.TrimSpace(string(r.Stderr)) != "warn" {
		t.Fatalf("stderr %q", r.Stderr)
	}
}

func TestLocalExitStatus(t *testing.T) {
	r := launch(t, context.Background(), LaunchParam{
		Args: []string{"/bin/sh", "-c", "echo boom >&2; exit 3"},
	})
	if r.Status != StatusRuntimeError || r.ExitStatus != 3 {
		t.Fatalf("result %+v", r)
	}
}

func TestLocalTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	// the child sleeps in a grandchild so the group kill is required
	r := launch(t, ctx, LaunchParam{
		Args: []string{"/bin/sh", "-c", "sleep 30 & wait"},
	})
	if r.Status != StatusTimeLimitExceeded {
		t.Fatalf("result %+v", r)
	}
	if el := time.Since(start); el > 5*time.Second {
		t.Fatalf("kill took %v", el)
	}
}

func TestLocalKill(t *testing.T) {
	l := NewLocalLauncher(nil, zaptest.NewLogger(t))
	p, err := l.Launch(context.Background(), LaunchParam{
		Args: []string{"/bin/sh", "-c", "while :; do :; done"},
	})
	if err != nil {
		t.Fatal(err)
	}
	p.Kill()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not killed")
	}
	if r := p.Result(); r.Status != StatusTerminated {
		t.Fatalf("result %+v", r)
	}
}

func TestLocalOutputLimit(t *testing.T) {
	r := launch(t, context.Background(), LaunchParam{
		Args:        []string{"/bin/sh", "-c", "while :; do echo yes; done"},
		OutputLimit: 1 << 10,
	})
	if r.Status != StatusOutputLimitExceeded {
		t.Fatalf("status %v", r.Status)
	}
	if len(r.Stdout) != 1<<10 {
		t.Fatalf("stdout length %d", len(r.Stdout))
	}
}

func TestLocalLaunchErrors(t *testing.T) {
	l := NewLocalLauncher(nil, zaptest.NewLogger(t))
	if _, err := l.Launch(context.Background(), LaunchParam{}); err == nil {
		t.Fatal("expected error for empty args")
	}
	if _, err := l.Launch(context.Background(), LaunchParam{Args: []string{"/nonexistent/prog"}}); err == nil {
		t.Fatal("expected error for missing program")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Launch(ctx, LaunchParam{Args: []string{"/bin/true"}}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
