package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/koding/multiconfig"
	"github.com/learnhub/judgecore/envexec"
)

// Store types
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config defines judge server configuration
type Config struct {
	// runner
	Launcher       string        `flagUsage:"process launcher (local, docker)" default:"local"`
	Dir            string        `flagUsage:"workspace directory for sources, inputs and binaries"`
	Parallelism    int           `flagUsage:"control the # of concurrent executions (default equal to number of cpu)"`
	CompileTimeout time.Duration `flagUsage:"wall time limit of a compilation" default:"10s"`
	RunTimeout     time.Duration `flagUsage:"wall time limit of each test case" default:"5s"`
	OutputLimit    *envexec.Size `flagUsage:"maximum captured stdout / stderr of each execution" default:"1m"`
	MessageLimit   int           `flagUsage:"maximum length of an error message in a case result" default:"4096"`
	LanguageConf   string        `flagUsage:"yaml file overriding compile and run commands"`
	FileRetention  time.Duration `flagUsage:"remove orphaned workspace files older than this" default:"1h"`
	SweepInterval  time.Duration `flagUsage:"interval of the orphaned workspace file sweep" default:"10m"`

	// docker launcher
	DockerMemory    *envexec.Size `flagUsage:"memory limit of each container" default:"256m"`
	DockerPidsLimit int64         `flagUsage:"pids limit of each container" default:"64"`
	DockerCPUQuota  int64         `flagUsage:"cpu quota of each container (per 100ms period)" default:"100000"`
	DockerUser      string        `flagUsage:"user to run as inside containers"`

	// store
	Store         string        `flagUsage:"question / user store (memory, mongo)" default:"memory"`
	SeedFile      string        `flagUsage:"yaml file with questions and users for the memory store"`
	MongoURI      string        `flagUsage:"mongodb connection uri" default:"mongodb://localhost:27017"`
	MongoDatabase string        `flagUsage:"mongodb database" default:"learnhub"`
	RedisAddr     string        `flagUsage:"redis address for the shared scoring lock (local lock when empty)"`
	RedisPassword string        `flagUsage:"redis password"`
	RedisDB       int           `flagUsage:"redis database"`
	ScoreLockTTL  time.Duration `flagUsage:"expiry of an abandoned scoring lock" default:"1m"`

	// server config
	HTTPAddr      string  `flagUsage:"specifies the http binding address" default:":5000"`
	EnableGRPC    bool    `flagUsage:"enable gRPC endpoint"`
	GRPCAddr      string  `flagUsage:"specifies the grpc binding address" default:":5001"`
	MonitorAddr   string  `flagUsage:"specifies the metrics binding address" default:":5002"`
	AuthToken     string  `flagUsage:"bearer token auth for REST / gRPC"`
	CORSOrigins   string  `flagUsage:"comma separated origins allowed by CORS, * for any"`
	RateLimit     float64 `flagUsage:"requests per second allowed for each client, 0 to disable" default:"5"`
	RateBurst     int     `flagUsage:"burst size of the per client rate limit" default:"10"`
	EnableDebug   bool    `flagUsage:"enable debug endpoint"`
	EnableMetrics bool    `flagUsage:"enable promethus metrics endpoint"`

	// logger config
	Release bool `flagUsage:"release level of logs"`
	Silent  bool `flagUsage:"do not print logs"`

	// show version and exit
	Version bool `flagUsage:"show version and exit"`
}

// Load loads config from flag & environment variables
func (c *Config) Load() error {
	cl := multiconfig.MultiLoader(
		&multiconfig.TagLoader{},
		&multiconfig.EnvironmentLoader{
			Prefix:    "JUDGE",
			CamelCase: true,
		},
		&multiconfig.FlagLoader{
			CamelCase: true,
			EnvPrefix: "JUDGE",
		},
	)
	if os.Getpid() == 1 {
		c.Release = true
	}
	if err := cl.Load(c); err != nil {
		return err
	}
	if c.Parallelism <= 0 {
		c.Parallelism = runtime.NumCPU()
	}
	return nil
}

// Origins returns the configured CORS origins
func (c *Config) Origins() []string {
	var rt []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			rt = append(rt, o)
		}
	}
	return rt
}
