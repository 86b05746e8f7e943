// Package runner compiles and runs a single submitted program inside a
// workspace allocation using an envexec.Launcher.
package runner

import (
	"time"

	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/language"
	"github.com/learnhub/judgecore/workspace"
	"go.uber.org/zap"
)

// Default limits
const (
	DefaultCompileTimeout = 10 * time.Second
	DefaultRunTimeout     = 5 * time.Second
	DefaultOutputLimit    = envexec.Size(1 << 20)
)

// Tracker is notified about every live process so that it can be killed
// from outside the call that started it
type Tracker interface {
	Attach(envexec.Process, workspace.Paths)
	Detach(envexec.Process)
}

// Config defines the runner dependencies and limits
type Config struct {
	Launcher       envexec.Launcher
	Workspace      *workspace.Manager
	Languages      *language.Table
	CompileTimeout time.Duration
	RunTimeout     time.Duration
	OutputLimit    envexec.Size
	Logger         *zap.Logger
}

// Runner compiles and runs programs
type Runner struct {
	launcher       envexec.Launcher
	ws             *workspace.Manager
	languages      *language.Table
	compileTimeout time.Duration
	runTimeout     time.Duration
	outputLimit    envexec.Size
	logger         *zap.Logger
}

// New creates a runner, zero limits are replaced by the defaults
func New(conf Config) *Runner {
	if conf.CompileTimeout <= 0 {
		conf.CompileTimeout = DefaultCompileTimeout
	}
	if conf.RunTimeout <= 0 {
		conf.RunTimeout = DefaultRunTimeout
	}
	if conf.OutputLimit == 0 {
		conf.OutputLimit = DefaultOutputLimit
	}
	if conf.Languages == nil {
		conf.Languages = language.Default()
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	return &Runner{
		launcher:       conf.Launcher,
		ws:             conf.Workspace,
		languages:      conf.Languages,
		compileTimeout: conf.CompileTimeout,
		runTimeout:     conf.RunTimeout,
		outputLimit:    conf.OutputLimit,
		logger:         conf.Logger,
	}
}

// Languages returns the language table in use
func (r *Runner) Languages() *language.Table {
	return r.languages
}
