package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Sweep removes entries older than the retention that belong to no live
// allocation. It returns the number of entries removed.
func (m *Manager) Sweep(now time.Time) int {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.logger.Warn("workspace sweep read dir failed", zap.Error(err))
		return 0
	}

	m.mu.Lock()
	live := make([]string, 0, len(m.live))
	for s := range m.live {
		live = append(live, s)
	}
	m.mu.Unlock()

	removed := 0
	for _, e := range entries {
		if isLive(e.Name(), live) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Add(m.retention).Before(now) {
			continue
		}
		f := filepath.Join(m.dir, e.Name())
		if err := os.RemoveAll(f); err != nil {
			m.logger.Warn("workspace sweep remove failed", zap.String("file", f), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("workspace swept", zap.Int("removed", removed))
	}
	return removed
}

// StartSweeper runs Sweep every sweep interval until ctx is done
func (m *Manager) StartSweeper(ctx context.Context) {
	go m.sweepLoop(ctx)
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		m.Sweep(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isLive(name string, live []string) bool {
	for _, s := range live {
		if strings.HasPrefix(name, s) {
			return true
		}
	}
	return false
}
