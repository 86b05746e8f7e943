// Package workspace hands out a unique directory below a shared scratch
// directory for every execution and removes it afterwards.
package workspace

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	randIDLength = 10
	maxKeyLength = 32

	inputExt  = ".in"
	binaryExt = ".out"

	defaultRetention     = time.Hour
	defaultSweepInterval = 10 * time.Minute
)

var (
	errUniqueIDNotGenerated = errors.New("unique workspace name does not exists after tried 50 times")

	idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// Config defines the scratch directory and how long leftovers are kept
type Config struct {
	Dir           string
	Retention     time.Duration
	SweepInterval time.Duration
}

// Paths are the files of a single allocation. Dir is private to the
// allocation and holds every other path. Source has no extension until
// WithSourceExt is called.
type Paths struct {
	Dir    string
	Stem   string
	Source string
	Input  string
	Binary string
}

// WithSourceExt returns the paths with the source file named for ext (".c", ".py")
func (p Paths) WithSourceExt(ext string) Paths {
	p.Source = filepath.Join(p.Dir, p.Stem+ext)
	return p
}

// Manager allocates and releases workspace files
type Manager struct {
	dir           string
	retention     time.Duration
	sweepInterval time.Duration
	logger        *zap.Logger

	mu   sync.Mutex
	live map[string]time.Time
}

// New creates the scratch directory if needed
func New(conf Config, logger *zap.Logger) (*Manager, error) {
	if conf.Dir == "" {
		conf.Dir = filepath.Join(os.TempDir(), "judge")
	}
	if conf.Retention <= 0 {
		conf.Retention = defaultRetention
	}
	if conf.SweepInterval <= 0 {
		conf.SweepInterval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir, err := filepath.Abs(conf.Dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create dir: %w", err)
	}
	return &Manager{
		dir:           dir,
		retention:     conf.Retention,
		sweepInterval: conf.SweepInterval,
		logger:        logger,
		live:          make(map[string]time.Time),
	}, nil
}

// Dir returns the absolute scratch directory
func (m *Manager) Dir() string {
	return m.dir
}

// Allocate reserves a unique stem for key. Concurrent calls with the same
// key never share a name.
func (m *Manager) Allocate(key string) (Paths, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stem, err := generateUniqueStem(safeKey(key), func(s string) (bool, error) {
		if _, ok := m.live[s]; ok {
			return true, nil
		}
		matches, err := filepath.Glob(filepath.Join(m.dir, s+"*"))
		if err != nil {
			return false, err
		}
		return len(matches) > 0, nil
	})
	if err != nil {
		return Paths{}, fmt.Errorf("workspace: allocate: %w", err)
	}
	dir := filepath.Join(m.dir, stem)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("workspace: allocate: %w", err)
	}
	m.live[stem] = time.Now()

	return Paths{
		Dir:    dir,
		Stem:   stem,
		Source: filepath.Join(dir, stem),
		Input:  filepath.Join(dir, stem+inputExt),
		Binary: filepath.Join(dir, stem+binaryExt),
	}, nil
}

// Release removes the directory of p. Failures are logged only.
func (m *Manager) Release(p Paths) {
	if p.Stem == "" {
		return
	}
	m.mu.Lock()
	delete(m.live, p.Stem)
	m.mu.Unlock()

	dir := filepath.Join(m.dir, p.Stem)
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("workspace remove failed", zap.String("dir", dir), zap.Error(err))
	}
}

// Live returns the number of allocations not yet released
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func safeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if b.Len() >= maxKeyLength {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

func generateID() (string, error) {
	b := make([]byte, randIDLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return idEncoding.EncodeToString(b), nil
}

func generateUniqueStem(key string, isExists func(string) (bool, error)) (string, error) {
	for range [50]struct{}{} {
		id, err := generateID()
		if err != nil {
			return "", err
		}
		stem := key + "-" + strconv.FormatInt(time.Now().UnixNano(), 10) + "-" + id
		exists, err := isExists(stem)
		if err != nil {
			return "", err
		}
		if !exists {
			return stem, nil
		}
	}
	return "", errUniqueIDNotGenerated
}
