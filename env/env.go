package env

import (
	"context"
	"fmt"

	"github.com/learnhub/judgecore/env/docker"
	"github.com/learnhub/judgecore/envexec"
	"go.uber.org/zap"
)

// NewLauncher creates the launcher selected by c.Type. The returned
// function releases resources held by the launcher.
func NewLauncher(ctx context.Context, c Config, logger *zap.Logger) (envexec.Launcher, func() error, error) {
	switch c.Type {
	case "", TypeLocal:
		logger.Info("using local process launcher")
		return envexec.NewLocalLauncher(c.Env, logger), func() error { return nil }, nil

	case TypeDocker:
		l, err := docker.NewLauncher(docker.Config{
			Memory:    c.Memory,
			PidsLimit: c.PidsLimit,
			CPUQuota:  c.CPUQuota,
			User:      c.User,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := l.EnsureImages(ctx, c.Images...); err != nil {
			l.Close()
			return nil, nil, err
		}
		logger.Info("using docker launcher", zap.Strings("images", c.Images))
		return l, l.Close, nil

	default:
		return nil, nil, fmt.Errorf("env: unknown launcher type %q", c.Type)
	}
}
