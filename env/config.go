package env

import "github.com/learnhub/judgecore/envexec"

// Launcher types
const (
	TypeLocal  = "local"
	TypeDocker = "docker"
)

// Config defines parameters to create the launcher
type Config struct {
	Type      string
	Env       []string
	Memory    envexec.Size
	PidsLimit int64
	CPUQuota  int64
	User      string
	Images    []string
}
