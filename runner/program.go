package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/language"
	"github.com/learnhub/judgecore/sanitize"
	"github.com/learnhub/judgecore/workspace"
	"go.uber.org/zap"
)

// PrepareParam defines the program to materialize and compile
type PrepareParam struct {
	Key      string
	Language language.Language
	Source   string
	Tracker  Tracker
}

// RunParam defines a one shot compile and run
type RunParam struct {
	Key      string
	Language language.Language
	Source   string
	Stdin    []string
	Tracker  Tracker
}

// Program is a source materialized in the workspace, compiled when the
// language needs it, ready to be executed any number of times
type Program struct {
	r        *Runner
	paths    workspace.Paths
	param    language.ExecParam
	lang     language.Language
	tracker  Tracker
	release  sync.Once
	compiled *Result
}

// Language returns the program language
func (p *Program) Language() language.Language {
	return p.lang
}

// Paths returns the workspace files of the program
func (p *Program) Paths() workspace.Paths {
	return p.paths
}

// Compile returns the compile result, nil for interpreted languages
func (p *Program) Compile() *Result {
	return p.compiled
}

// Release removes the workspace files, safe to call more than once
func (p *Program) Release() {
	p.release.Do(func() {
		p.r.ws.Release(p.paths)
	})
}

// Run compiles (if needed) and runs the source once with stdin. Workspace
// files are released before it returns.
func (r *Runner) Run(ctx context.Context, param RunParam) (Result, error) {
	prog, res, err := r.Prepare(ctx, PrepareParam{
		Key:      param.Key,
		Language: param.Language,
		Source:   param.Source,
		Tracker:  param.Tracker,
	})
	if err != nil {
		return Result{}, err
	}
	if res != nil {
		return *res, nil
	}
	defer prog.Release()
	return prog.Exec(ctx, param.Stdin)
}

// Prepare writes the source into a new workspace allocation and compiles
// it. A failed compile returns a nil Program and the compile Result with
// CompileFailed set; the allocation is already released in that case.
func (r *Runner) Prepare(ctx context.Context, param PrepareParam) (*Program, *Result, error) {
	ep, ok := r.languages.Get(param.Language)
	if !ok {
		return nil, nil, fmt.Errorf("runner: %w: %v", language.ErrUnsupported, param.Language)
	}

	paths, err := r.ws.Allocate(param.Key)
	if err != nil {
		return nil, nil, err
	}
	paths = paths.WithSourceExt(ep.SourceExt)

	prog := &Program{
		r:       r,
		paths:   paths,
		param:   ep,
		lang:    param.Language,
		tracker: param.Tracker,
	}
	// release on every path that does not hand the program out
	keep := false
	defer func() {
		if !keep {
			prog.Release()
		}
	}()

	if err := os.WriteFile(paths.Source, []byte(param.Source), 0o644); err != nil {
		return nil, nil, fmt.Errorf("runner: write source: %w", err)
	}
	if !ep.Compiled() {
		keep = true
		return prog, nil, nil
	}

	res, err := prog.compile(ctx)
	if err != nil {
		return nil, nil, err
	}
	if res.Failed() {
		return nil, &res, nil
	}
	if err := os.Chmod(paths.Binary, 0o755); err != nil {
		return nil, nil, fmt.Errorf("runner: chmod binary: %w", err)
	}
	prog.compiled = &res
	keep = true
	return prog, nil, nil
}

func (p *Program) compile(ctx context.Context) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, p.r.compileTimeout)
	defer cancel()

	res, err := p.launch(cctx, p.param.CompileArgs, "")
	if err != nil {
		return Result{}, err
	}
	if ctx.Err() != nil {
		res.Status = envexec.StatusTerminated
		res.TimedOut = false
		return res, nil
	}
	if res.Failed() && res.Status != envexec.StatusInternalError {
		res.CompileFailed = true
		res.Status = envexec.StatusCompileError
		// gcc reports on stderr, some toolchains on stdout
		if strings.TrimSpace(res.Stderr) == "" {
			res.Stderr = sanitize.Sanitize(res.Stdout)
		}
		if res.TimedOut {
			res.Stderr = "Compilation time limit exceeded"
		}
	}
	p.r.logger.Debug("compiled", zap.String("stem", p.paths.Stem), zap.Stringer("result", res))
	return res, nil
}

// Exec runs the program with stdin lines fed newline separated, the
// last line terminated, followed by EOF
func (p *Program) Exec(ctx context.Context, stdin []string) (Result, error) {
	input := ""
	if len(stdin) > 0 {
		input = strings.Join(stdin, "\n") + "\n"
	}
	if err := os.WriteFile(p.paths.Input, []byte(input), 0o644); err != nil {
		return Result{}, fmt.Errorf("runner: write input: %w", err)
	}

	rctx, cancel := context.WithTimeout(ctx, p.r.runTimeout)
	defer cancel()

	res, err := p.launch(rctx, p.param.RunArgs, p.paths.Input)
	if err != nil {
		return Result{}, err
	}
	// the caller went away, not a time limit of this run
	if ctx.Err() != nil {
		res.Status = envexec.StatusTerminated
		res.TimedOut = false
		res.ExitCode = nil
	}
	if p.param.StderrFails && res.Status == envexec.StatusAccepted && strings.TrimSpace(res.Stderr) != "" {
		res.Status = envexec.StatusRuntimeError
	}
	p.r.logger.Debug("executed", zap.String("stem", p.paths.Stem), zap.Stringer("result", res))
	return res, nil
}

func (p *Program) launch(ctx context.Context, args []string, stdin string) (Result, error) {
	args = language.Expand(args, filepath.Base(p.paths.Source), filepath.Base(p.paths.Binary))
	proc, err := p.r.launcher.Launch(ctx, envexec.LaunchParam{
		Args:        args,
		WorkDir:     p.paths.Dir,
		Stdin:       stdin,
		Image:       p.param.Image,
		OutputLimit: p.r.outputLimit,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{Status: envexec.ContextStatus(ctx.Err()), TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded)}, nil
		}
		return Result{}, fmt.Errorf("runner: launch %s: %w", args[0], err)
	}
	if p.tracker != nil {
		p.tracker.Attach(proc, p.paths)
		defer p.tracker.Detach(proc)
	}
	return convertResult(proc.Result()), nil
}
