// Package docker runs every process in a fresh container with the
// directory of its workspace allocation bind mounted as its work directory.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/learnhub/judgecore/envexec"
	"go.uber.org/zap"
)

const (
	containerWorkDir = "/workspace"
	cleanupTimeout   = 10 * time.Second
)

var _ envexec.Launcher = &Launcher{}

// Config defines container limits
type Config struct {
	Memory    envexec.Size
	PidsLimit int64
	CPUQuota  int64
	User      string
}

// Launcher creates one container per launched process
type Launcher struct {
	cli    *client.Client
	conf   Config
	logger *zap.Logger
}

// NewLauncher connects to the docker daemon from the environment
func NewLauncher(conf Config, logger *zap.Logger) (*Launcher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}
	if conf.Memory == 0 {
		conf.Memory = 256 << 20
	}
	if conf.PidsLimit == 0 {
		conf.PidsLimit = 64
	}
	if conf.CPUQuota == 0 {
		conf.CPUQuota = 100000
	}
	return &Launcher{cli: cli, conf: conf, logger: logger}, nil
}

// EnsureImages pulls the images that are not present locally
func (l *Launcher) EnsureImages(ctx context.Context, images ...string) error {
	for _, img := range images {
		if img == "" {
			continue
		}
		_, _, err := l.cli.ImageInspectWithRaw(ctx, img)
		if err == nil {
			continue
		}
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("docker: inspect image %s: %w", img, err)
		}
		l.logger.Info("pulling image", zap.String("image", img))
		out, err := l.cli.ImagePull(ctx, img, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("docker: pull image %s: %w", img, err)
		}
		// the pull is cancelled if the stream is not drained
		_, err = io.Copy(io.Discard, out)
		out.Close()
		if err != nil {
			return fmt.Errorf("docker: pull image %s: %w", img, err)
		}
	}
	return nil
}

// hostConfig mounts only workDir, the directory of a single allocation,
// so a container never sees the files of concurrent executions
func (l *Launcher) hostConfig(workDir string) *container.HostConfig {
	pids := l.conf.PidsLimit
	return &container.HostConfig{
		Binds:       []string{workDir + ":" + containerWorkDir},
		NetworkMode: "none",
		SecurityOpt: []string{"no-new-privileges"},
		CapDrop:     []string{"ALL"},
		Resources: container.Resources{
			Memory:     int64(l.conf.Memory),
			MemorySwap: int64(l.conf.Memory),
			CPUQuota:   l.conf.CPUQuota,
			PidsLimit:  &pids,
		},
	}
}

// Close closes the docker client
func (l *Launcher) Close() error {
	return l.cli.Close()
}

// Launch creates, attaches and starts the container
func (l *Launcher) Launch(ctx context.Context, param envexec.LaunchParam) (envexec.Process, error) {
	if len(param.Args) == 0 {
		return nil, fmt.Errorf("docker: empty args")
	}
	if param.Image == "" {
		return nil, fmt.Errorf("docker: no image for %s", param.Args[0])
	}

	if !filepath.IsAbs(param.WorkDir) {
		return nil, fmt.Errorf("docker: work dir %q is not absolute", param.WorkDir)
	}

	var stdin *os.File
	if param.Stdin != "" {
		f, err := os.Open(param.Stdin)
		if err != nil {
			return nil, fmt.Errorf("docker: open stdin: %w", err)
		}
		stdin = f
	}

	resp, err := l.cli.ContainerCreate(ctx, &container.Config{
		Image:           param.Image,
		Cmd:             param.Args,
		Env:             param.Env,
		WorkingDir:      containerWorkDir,
		User:            l.conf.User,
		OpenStdin:       true,
		StdinOnce:       true,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}, l.hostConfig(param.WorkDir), nil, nil, "")
	if err != nil {
		closeFile(stdin)
		return nil, fmt.Errorf("docker: create container: %w", err)
	}

	p := &process{
		l:    l,
		id:   resp.ID,
		done: make(chan struct{}),
		kill: make(chan struct{}),
		over: make(chan struct{}),
	}
	p.stdout = envexec.NewLimitedBuffer(param.OutputLimit, p.outputExceeded)
	p.stderr = envexec.NewLimitedBuffer(param.OutputLimit, p.outputExceeded)

	attach, err := l.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		closeFile(stdin)
		p.remove()
		return nil, fmt.Errorf("docker: attach container: %w", err)
	}

	if err := l.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		attach.Close()
		closeFile(stdin)
		p.remove()
		return nil, fmt.Errorf("docker: start container: %w", err)
	}

	go func() {
		defer closeFile(stdin)
		if stdin != nil {
			if _, err := io.Copy(attach.Conn, stdin); err != nil {
				l.logger.Debug("docker stdin copy", zap.String("id", resp.ID), zap.Error(err))
			}
		}
		attach.CloseWrite()
	}()

	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		if _, err := stdcopy.StdCopy(p.stdout, p.stderr, attach.Reader); err != nil {
			l.logger.Debug("docker output copy", zap.String("id", resp.ID), zap.Error(err))
		}
	}()

	go p.wait(ctx, attach.Close, copyDone)
	return p, nil
}

type process struct {
	l      *Launcher
	id     string
	stdout *envexec.LimitedBuffer
	stderr *envexec.LimitedBuffer

	done chan struct{}
	kill chan struct{}
	over chan struct{}

	killOnce sync.Once
	overOnce sync.Once
	result   envexec.RunnerResult
}

func (p *process) Done() <-chan struct{} {
	return p.done
}

func (p *process) Result() envexec.RunnerResult {
	<-p.done
	return p.result
}

func (p *process) Kill() {
	p.killOnce.Do(func() {
		close(p.kill)
	})
}

func (p *process) outputExceeded() {
	p.overOnce.Do(func() {
		close(p.over)
	})
}

func (p *process) wait(ctx context.Context, closeAttach func(), copyDone <-chan struct{}) {
	defer close(p.done)
	defer p.remove()

	start := time.Now()
	waitCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	okCh, errCh := p.l.cli.ContainerWait(waitCtx, p.id, container.WaitConditionNotRunning)

	var (
		status   envexec.Status
		exitCode = -1
		errMsg   string
	)
	select {
	case r := <-okCh:
		exitCode = int(r.StatusCode)
		if r.Error != nil {
			errMsg = r.Error.Message
		}
	case err := <-errCh:
		status = envexec.StatusInternalError
		errMsg = err.Error()
	case <-ctx.Done():
		status = envexec.ContextStatus(ctx.Err())
		p.containerKill()
	case <-p.kill:
		status = envexec.StatusTerminated
		p.containerKill()
	case <-p.over:
		status = envexec.StatusOutputLimitExceeded
		p.containerKill()
	}

	// output is complete once the attach stream ends
	select {
	case <-copyDone:
	case <-time.After(cleanupTimeout):
	}
	closeAttach()

	r := envexec.RunnerResult{
		Status:     status,
		ExitStatus: exitCode,
		Error:      errMsg,
		Time:       p.elapsed(start),
		Stdout:     p.stdout.Bytes(),
		Stderr:     p.stderr.Bytes(),
	}
	if r.Status == envexec.StatusInvalid {
		switch {
		case p.stdout.Exceeded() || p.stderr.Exceeded():
			r.Status = envexec.StatusOutputLimitExceeded
		case exitCode == 0:
			r.Status = envexec.StatusAccepted
		default:
			r.Status = envexec.StatusRuntimeError
		}
	}
	p.result = r
}

// elapsed prefers the container's own start / finish timestamps
func (p *process) elapsed(fallbackStart time.Time) time.Duration {
	fallback := time.Since(fallbackStart)
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	info, err := p.l.cli.ContainerInspect(ctx, p.id)
	if err != nil || info.ContainerJSONBase == nil || info.State == nil {
		return fallback
	}
	started, err := dateparse.ParseAny(info.State.StartedAt)
	if err != nil {
		return fallback
	}
	finished, err := dateparse.ParseAny(info.State.FinishedAt)
	if err != nil || finished.Before(started) {
		return fallback
	}
	return finished.Sub(started)
}

func (p *process) containerKill() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := p.l.cli.ContainerKill(ctx, p.id, "KILL"); err != nil {
		p.l.logger.Debug("docker kill", zap.String("id", p.id), zap.Error(err))
	}
}

func (p *process) remove() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := p.l.cli.ContainerRemove(ctx, p.id, container.RemoveOptions{Force: true}); err != nil {
		p.l.logger.Warn("docker remove container", zap.String("id", p.id), zap.Error(err))
	}
}

func closeFile(f *os.File) {
	if f != nil {
		f.Close()
	}
}
