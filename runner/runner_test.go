package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/envexec/envexectest"
	"github.com/learnhub/judgecore/language"
	"github.com/learnhub/judgecore/workspace"
	"go.uber.org/zap/zaptest"
)

func newTestRunner(t *testing.T, l envexec.Launcher, runTimeout time.Duration) (*Runner, *workspace.Manager) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ws, err := workspace.New(workspace.Config{Dir: t.TempDir()}, logger)
	if err != nil {
		t.Fatal(err)
	}
	return New(Config{
		Launcher:   l,
		Workspace:  ws,
		RunTimeout: runTimeout,
		Logger:     logger,
	}), ws
}

func assertEmpty(t *testing.T, ws *workspace.Manager) {
	t.Helper()
	entries, err := os.ReadDir(ws.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 || ws.Live() != 0 {
		t.Fatalf("workspace not released: %d files, %d live", len(entries), ws.Live())
	}
}

// fakeToolchain compiles by writing the binary and runs by echoing stdin
func fakeToolchain(run envexectest.Handler) envexectest.Handler {
	return func(ctx context.Context, p envexec.LaunchParam, stdin []byte) envexec.RunnerResult {
		switch p.Args[0] {
		case "gcc":
			src, err := os.ReadFile(filepath.Join(p.WorkDir, p.Args[len(p.Args)-2]))
			if err != nil {
				return envexectest.Exit(1, "", err.Error())
			}
			if strings.Contains(string(src), "syntax error") {
				return envexectest.Exit(1, "", filepath.Join(p.WorkDir, p.Args[len(p.Args)-2])+":1:1: error: expected ';'")
			}
			bin := filepath.Join(p.WorkDir, p.Args[4])
			if err := os.WriteFile(bin, src, 0o600); err != nil {
				return envexectest.Exit(1, "", err.Error())
			}
			return envexectest.Exit(0, "", "")
		default:
			return run(ctx, p, stdin)
		}
	}
}

func echo(_ context.Context, _ envexec.LaunchParam, stdin []byte) envexec.RunnerResult {
	return envexectest.Exit(0, string(stdin), "")
}

func TestRunPythonStdin(t *testing.T) {
	l := envexectest.New(fakeToolchain(echo))
	r, ws := newTestRunner(t, l, 0)

	res, err := r.Run(context.Background(), RunParam{
		Key:      "u1",
		Language: language.Python,
		Source:   "print(input())",
		Stdin:    []string{"1 2", "3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed() || res.Stdout != "1 2\n3\n" || res.Output() != "1 2\n3" {
		t.Fatalf("result %v stdout %q", res, res.Stdout)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("exit code %v", res.ExitCode)
	}
	launched := l.Launched()
	if len(launched) != 1 || launched[0].Args[0] != "python3" || !strings.HasSuffix(launched[0].Args[1], ".py") {
		t.Fatalf("launched %+v", launched)
	}
	if launched[0].Image != "python:3.11-slim" {
		t.Fatalf("image %q", launched[0].Image)
	}
	assertEmpty(t, ws)
}

func TestRunEmptyStdin(t *testing.T) {
	l := envexectest.New(echo)
	r, ws := newTestRunner(t, l, 0)
	res, err := r.Run(context.Background(), RunParam{Language: language.Python, Source: "pass"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "" {
		t.Fatalf("stdout %q", res.Stdout)
	}
	assertEmpty(t, ws)
}

func TestRunCompileError(t *testing.T) {
	l := envexectest.New(fakeToolchain(echo))
	r, ws := newTestRunner(t, l, 0)

	res, err := r.Run(context.Background(), RunParam{
		Key:      "u1",
		Language: language.C,
		Source:   "int main() { syntax error }",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.CompileFailed || res.Status != envexec.StatusCompileError || !res.Failed() {
		t.Fatalf("result %v", res)
	}
	if res.Stderr != "code:1:1: error: expected ';'" {
		t.Fatalf("stderr %q", res.Stderr)
	}
	if n := len(l.Launched()); n != 1 {
		t.Fatalf("expected only the compile launch, got %d", n)
	}
	assertEmpty(t, ws)
}

func TestPrepareCompileOnce(t *testing.T) {
	l := envexectest.New(fakeToolchain(func(_ context.Context, p envexec.LaunchParam, stdin []byte) envexec.RunnerResult {
		return envexectest.Exit(0, strings.ToUpper(string(stdin)), "warning: unused")
	}))
	r, ws := newTestRunner(t, l, 0)

	prog, failed, err := r.Prepare(context.Background(), PrepareParam{
		Key:      "u1",
		Language: language.C,
		Source:   "int main() {}",
	})
	if err != nil || failed != nil {
		t.Fatal(err, failed)
	}
	info, err := os.Stat(prog.Paths().Binary)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Fatalf("binary mode %v", info.Mode())
	}
	if prog.Compile() == nil || prog.Language() != language.C {
		t.Fatal("compile result missing")
	}

	for _, in := range []string{"a", "b", "c"} {
		res, err := prog.Exec(context.Background(), []string{in})
		if err != nil {
			t.Fatal(err)
		}
		// stderr with exit 0 is only a warning
		if res.Failed() || res.Output() != strings.ToUpper(in) || res.Stderr != "warning: unused" {
			t.Fatalf("result %v", res)
		}
	}
	launched := l.Launched()
	if len(launched) != 4 || launched[0].Args[0] != "gcc" {
		t.Fatalf("launched %d", len(launched))
	}
	for _, p := range launched[1:] {
		if !strings.HasPrefix(p.Args[0], "./") || !strings.HasSuffix(p.Args[0], ".out") {
			t.Fatalf("run args %v", p.Args)
		}
	}
	prog.Release()
	prog.Release()
	assertEmpty(t, ws)
}

func TestRunRuntimeError(t *testing.T) {
	l := envexectest.New(func(_ context.Context, p envexec.LaunchParam, _ []byte) envexec.RunnerResult {
		src := filepath.Join(p.WorkDir, p.Args[1])
		return envexectest.Exit(1, "partial", "Traceback (most recent call last):\n  File \""+src+"\", line 2, in <module>\nZeroDivisionError: division by zero")
	})
	r, ws := newTestRunner(t, l, 0)

	res, err := r.Run(context.Background(), RunParam{Language: language.Python, Source: "print(1/0)"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Failed() || res.Status != envexec.StatusRuntimeError || res.ExitCode == nil || *res.ExitCode != 1 {
		t.Fatalf("result %v", res)
	}
	want := "Traceback (most recent call last):\n  line 2, in <module>\nZeroDivisionError: division by zero"
	if res.Stderr != want || res.Message() != want {
		t.Fatalf("stderr %q", res.Stderr)
	}
	assertEmpty(t, ws)
}

func TestRunTimeout(t *testing.T) {
	l := envexectest.New(func(ctx context.Context, _ envexec.LaunchParam, _ []byte) envexec.RunnerResult {
		return envexectest.Hang(ctx)
	})
	r, ws := newTestRunner(t, l, 100*time.Millisecond)

	start := time.Now()
	res, err := r.Run(context.Background(), RunParam{Language: language.Python, Source: "while True: pass"})
	if err != nil {
		t.Fatal(err)
	}
	if el := time.Since(start); el > 2*time.Second {
		t.Fatalf("timeout took %v", el)
	}
	if !res.TimedOut || res.Status != envexec.StatusTimeLimitExceeded || res.ExitCode != nil {
		t.Fatalf("result %v", res)
	}
	if res.Message() != TimeLimitMessage {
		t.Fatalf("message %q", res.Message())
	}
	if l.Live() != 0 {
		t.Fatalf("%d processes still live", l.Live())
	}
	assertEmpty(t, ws)
}

func TestRunCancelled(t *testing.T) {
	l := envexectest.New(func(ctx context.Context, _ envexec.LaunchParam, _ []byte) envexec.RunnerResult {
		return envexectest.Hang(ctx)
	})
	r, ws := newTestRunner(t, l, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res, err := r.Run(ctx, RunParam{Language: language.Python, Source: "while True: pass"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != envexec.StatusTerminated || res.TimedOut {
		t.Fatalf("result %v", res)
	}
	assertEmpty(t, ws)
}

func TestRunUnsupported(t *testing.T) {
	l := envexectest.New(echo)
	r, ws := newTestRunner(t, l, 0)
	_, err := r.Run(context.Background(), RunParam{Language: language.Invalid, Source: "x"})
	if !errors.Is(err, language.ErrUnsupported) {
		t.Fatalf("err %v", err)
	}
	if len(l.Launched()) != 0 {
		t.Fatal("nothing should be launched")
	}
	assertEmpty(t, ws)
}

type recordTracker struct {
	mu       sync.Mutex
	attached int
	detached int
}

func (r *recordTracker) Attach(envexec.Process, workspace.Paths) {
	r.mu.Lock()
	r.attached++
	r.mu.Unlock()
}

func (r *recordTracker) Detach(envexec.Process) {
	r.mu.Lock()
	r.detached++
	r.mu.Unlock()
}

func TestRunTracker(t *testing.T) {
	l := envexectest.New(fakeToolchain(echo))
	r, _ := newTestRunner(t, l, 0)
	tr := &recordTracker{}
	if _, err := r.Run(context.Background(), RunParam{Language: language.C, Source: "int main(){}", Tracker: tr}); err != nil {
		t.Fatal(err)
	}
	if tr.attached != 2 || tr.detached != 2 {
		t.Fatalf("attached %d detached %d", tr.attached, tr.detached)
	}
}

func TestRunStderrWithExitZero(t *testing.T) {
	l := envexectest.New(func(context.Context, envexec.LaunchParam, []byte) envexec.RunnerResult {
		return envexectest.Exit(0, "4", "DeprecationWarning: old api")
	})
	r, _ := newTestRunner(t, l, 0)
	res, err := r.Run(context.Background(), RunParam{Language: language.Python, Source: "print(4)"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed() || res.Output() != "4" {
		t.Fatalf("stderr alone failed the run by default: %v", res)
	}

	strict := language.Default()
	py, _ := strict.Get(language.Python)
	py.StderrFails = true
	strict.Set(language.Python, py)
	ws, err := workspace.New(workspace.Config{Dir: t.TempDir()}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	sr := New(Config{Launcher: l, Workspace: ws, Languages: strict, Logger: zaptest.NewLogger(t)})
	res, err = sr.Run(context.Background(), RunParam{Language: language.Python, Source: "print(4)"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Failed() || res.Status != envexec.StatusRuntimeError || res.Message() != "DeprecationWarning: old api" {
		t.Fatalf("result %v message %q", res, res.Message())
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Fatalf("exit code lost: %v", res)
	}
	assertEmpty(t, ws)
}
