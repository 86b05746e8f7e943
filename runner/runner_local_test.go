//go:build unix

package runner

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/language"
	"go.uber.org/zap/zaptest"
)

func localRunner(t *testing.T, runTimeout time.Duration) *Runner {
	t.Helper()
	r, _ := newTestRunner(t, envexec.NewLocalLauncher(nil, zaptest.NewLogger(t)), runTimeout)
	return r
}

func TestLocalPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	r := localRunner(t, 0)
	res, err := r.Run(context.Background(), RunParam{
		Language: language.Python,
		Source:   "n = int(input())\nprint(n * n)\n",
		Stdin:    []string{"7"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed() || res.Output() != "49" {
		t.Fatalf("result %v stdout %q stderr %q", res, res.Stdout, res.Stderr)
	}
}

func TestLocalPythonTraceback(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	r := localRunner(t, 0)
	res, err := r.Run(context.Background(), RunParam{Language: language.Python, Source: "print(1/0)\n"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Failed() || res.ExitCode == nil || *res.ExitCode == 0 {
		t.Fatalf("result %v", res)
	}
	if want := "line 1, in <module>"; !strings.Contains(res.Stderr, want) || strings.Contains(res.Stderr, r.ws.Dir()) {
		t.Fatalf("stderr %q", res.Stderr)
	}
}

func TestLocalC(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not installed")
	}
	r := localRunner(t, 0)
	res, err := r.Run(context.Background(), RunParam{
		Language: language.C,
		Source:   "#include <stdio.h>\nint main(){int n;scanf(\"%d\",&n);printf(\"%d\\n\",n*n);return 0;}\n",
		Stdin:    []string{"12"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed() || res.Output() != "144" {
		t.Fatalf("result %v stderr %q", res, res.Stderr)
	}
}

func TestLocalCInfiniteLoop(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not installed")
	}
	r := localRunner(t, 500*time.Millisecond)
	start := time.Now()
	res, err := r.Run(context.Background(), RunParam{
		Language: language.C,
		Source:   "int main(){while(1);}\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.TimedOut || !res.Failed() {
		t.Fatalf("result %v", res)
	}
	// compile time is not part of the run budget
	if el := time.Since(start); el > r.compileTimeout+3*time.Second {
		t.Fatalf("took %v", el)
	}
}

func TestLocalCCompileError(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not installed")
	}
	r := localRunner(t, 0)
	res, err := r.Run(context.Background(), RunParam{Language: language.C, Source: "int main( {"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.CompileFailed || res.Stderr == "" || strings.Contains(res.Stderr, r.ws.Dir()) {
		t.Fatalf("result %v stderr %q", res, res.Stderr)
	}
}
