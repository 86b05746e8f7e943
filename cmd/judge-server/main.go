// Command judge-server starts the http, websocket and gRPC servers that
// run and score submitted programs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	grpc_auth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/learnhub/judgecore/cmd/judge-server/config"
	grpcexecutor "github.com/learnhub/judgecore/cmd/judge-server/grpc_executor"
	"github.com/learnhub/judgecore/cmd/judge-server/model"
	restexecutor "github.com/learnhub/judgecore/cmd/judge-server/rest_executor"
	"github.com/learnhub/judgecore/cmd/judge-server/version"
	wsexecutor "github.com/learnhub/judgecore/cmd/judge-server/ws_executor"
	"github.com/learnhub/judgecore/env"
	"github.com/learnhub/judgecore/envexec"
	"github.com/learnhub/judgecore/judger"
	"github.com/learnhub/judgecore/language"
	"github.com/learnhub/judgecore/registry"
	"github.com/learnhub/judgecore/runner"
	"github.com/learnhub/judgecore/scorelock"
	"github.com/learnhub/judgecore/store"
	"github.com/learnhub/judgecore/store/memstore"
	"github.com/learnhub/judgecore/store/mongostore"
	"github.com/learnhub/judgecore/worker"
	"github.com/learnhub/judgecore/workspace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/grpclog"
	"google.golang.org/grpc/status"
)

var logger *zap.Logger

func main() {
	conf := loadConf()
	if conf.Version {
		fmt.Println(version.Version)
		return
	}
	initLogger(conf)
	defer logger.Sync()
	if ce := logger.Check(zap.InfoLevel, "Config loaded"); ce != nil {
		ce.Write(zap.String("config", fmt.Sprintf("%+v", conf)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.EnableMetrics {
		initMetrics()
	}
	langs := newLanguages(conf)
	ws := newWorkspace(ctx, conf)
	launcher, launcherCleanUp := newLauncher(ctx, conf, langs)
	work := newWorker(conf, launcher, ws, langs)
	work.Start()
	logger.Info("Worker started",
		zap.Int("parallelism", conf.Parallelism),
		zap.String("dir", ws.Dir()),
		zap.String("launcher", conf.Launcher))

	st := newStore(ctx, conf)
	locker, lockerCleanUp := newLocker(ctx, conf)
	reg := registry.New(logger.Named("registry"))
	if conf.EnableMetrics {
		initStateMetrics(reg, ws, work)
	}
	judge := judger.New(judger.Config{
		Worker:       work,
		Registry:     reg,
		Store:        st,
		Locker:       locker,
		Languages:    langs,
		MessageLimit: conf.MessageLimit,
		Logger:       logger.Named("judger"),
	})

	servers := []initFunc{
		cleanUpWorker(work),
		cleanUp("Launcher", launcherCleanUp),
		cleanUp("Score lock", lockerCleanUp),
		cleanUpStore(st),
		initHTTPServer(conf, judge, langs, ws),
		initMonitorHTTPServer(conf),
		initGRPCServer(conf, judge),
	}

	// Gracefully shutdown, with signal / HTTP server / gRPC server / Monitor HTTP server
	sig := make(chan os.Signal, 1+len(servers))

	stops := []stopFunc{}
	for _, s := range servers {
		start, stop := s()
		if start != nil {
			go func() {
				start()
				sig <- os.Interrupt
			}()
		}
		if stop != nil {
			stops = append(stops, stop)
		}
	}

	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Shutting Down...")
	cancel()

	sctx, scancel := context.WithTimeout(context.TODO(), time.Second*3)
	defer scancel()

	var eg errgroup.Group
	for _, s := range stops {
		eg.Go(func() error {
			return s(sctx)
		})
	}

	go func() {
		logger.Info("Shutdown Finished", zap.Error(eg.Wait()))
		scancel()
	}()
	<-sctx.Done()
}

func loadConf() *config.Config {
	var conf config.Config
	if err := conf.Load(); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalln("load config failed ", err)
	}
	return &conf
}

type (
	stopFunc func(ctx context.Context) error
	initFunc func() (start func(), cleanUp stopFunc)
)

func cleanUpWorker(work worker.Worker) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		return nil, func(ctx context.Context) error {
			work.Shutdown()
			logger.Info("Worker shutdown")
			return nil
		}
	}
}

func cleanUp(name string, f func() error) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		if f == nil {
			return nil, nil
		}
		return nil, func(ctx context.Context) error {
			err := f()
			logger.Info(name+" cleaned up", zap.Error(err))
			return err
		}
	}
}

func cleanUpStore(st store.Store) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		return nil, func(ctx context.Context) error {
			err := st.Close(ctx)
			logger.Info("Store closed", zap.Error(err))
			return err
		}
	}
}

// listenAndServe runs serve on the listener of addr. ErrServerClosed and
// grpc.ErrServerStopped are expected on shutdown.
func listenAndServe(name, addr string, serve func(net.Listener) error) func() {
	return func() {
		lis, err := newListener(addr)
		if err != nil {
			logger.Error(name+" listen failed", zap.String("addr", addr), zap.Error(err))
			return
		}
		logger.Info("Starting "+name, zap.String("addr", addr), zap.String("listener", printListener(lis)))
		err = serve(lis)
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, grpc.ErrServerStopped) {
			logger.Info(name+" stopped", zap.Error(err))
			return
		}
		logger.Error(name+" stopped", zap.Error(err))
	}
}

func shutdownHTTP(name string, srv *http.Server) stopFunc {
	return func(ctx context.Context) error {
		logger.Info(name + " shutting down")
		return srv.Shutdown(ctx)
	}
}

func initHTTPServer(conf *config.Config, judge model.Judge, langs *language.Table, ws *workspace.Manager) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		srv := &http.Server{
			Addr:    conf.HTTPAddr,
			Handler: initHTTPMux(conf, judge, langs, ws),
		}
		return listenAndServe("http server", conf.HTTPAddr, srv.Serve), shutdownHTTP("http server", srv)
	}
}

func initMonitorHTTPServer(conf *config.Config) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		mr := initMonitorHTTPMux(conf)
		if mr == nil {
			return nil, nil
		}
		srv := &http.Server{
			Addr:    conf.MonitorAddr,
			Handler: mr,
		}
		return listenAndServe("monitoring http server", conf.MonitorAddr, srv.Serve), shutdownHTTP("monitoring http server", srv)
	}
}

func initGRPCServer(conf *config.Config, judge model.Judge) initFunc {
	return func() (start func(), cleanUp stopFunc) {
		if !conf.EnableGRPC {
			return nil, nil
		}
		srv := newGRPCServer(conf, grpcexecutor.New(judge, logger.Named("grpc")))
		return listenAndServe("gRPC server", conf.GRPCAddr, srv.Serve), func(ctx context.Context) error {
			stopped := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				// in-flight submissions outlived the shutdown budget
				srv.Stop()
			}
			logger.Info("gRPC server shutdown")
			return nil
		}
	}
}

func initLogger(conf *config.Config) {
	if conf.Silent {
		logger = zap.NewNop()
		return
	}

	var err error
	if conf.Release {
		logger, err = zap.NewProduction()
	} else {
		config := zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !conf.EnableDebug {
			config.Level.SetLevel(zap.InfoLevel)
		}
		logger, err = config.Build()
	}
	if err != nil {
		log.Fatalln("init logger failed ", err)
	}
}

func newLanguages(conf *config.Config) *language.Table {
	if conf.LanguageConf == "" {
		return language.Default()
	}
	t, err := language.LoadFile(conf.LanguageConf)
	if err != nil {
		logger.Fatal("load language config failed", zap.String("path", conf.LanguageConf), zap.Error(err))
	}
	logger.Info("Language config loaded", zap.String("path", conf.LanguageConf))
	return t
}

func newWorkspace(ctx context.Context, conf *config.Config) *workspace.Manager {
	ws, err := workspace.New(workspace.Config{
		Dir:           conf.Dir,
		Retention:     conf.FileRetention,
		SweepInterval: conf.SweepInterval,
	}, logger.Named("workspace"))
	if err != nil {
		logger.Fatal("create workspace failed", zap.Error(err))
	}
	ws.StartSweeper(ctx)
	return ws
}

func newLauncher(ctx context.Context, conf *config.Config, langs *language.Table) (envexec.Launcher, func() error) {
	l, cleanUp, err := env.NewLauncher(ctx, env.Config{
		Type:      conf.Launcher,
		Memory:    *conf.DockerMemory,
		PidsLimit: conf.DockerPidsLimit,
		CPUQuota:  conf.DockerCPUQuota,
		User:      conf.DockerUser,
		Images:    langs.Images(),
	}, logger.Named("env"))
	if err != nil {
		logger.Fatal("create launcher failed", zap.Error(err))
	}
	return l, cleanUp
}

func newWorker(conf *config.Config, l envexec.Launcher, ws *workspace.Manager, langs *language.Table) worker.Worker {
	var observer func(*worker.Request, worker.Response)
	if conf.EnableMetrics {
		observer = execObserve
	}
	return worker.New(worker.Config{
		Runner: runner.New(runner.Config{
			Launcher:       l,
			Workspace:      ws,
			Languages:      langs,
			CompileTimeout: conf.CompileTimeout,
			RunTimeout:     conf.RunTimeout,
			OutputLimit:    *conf.OutputLimit,
			Logger:         logger.Named("runner"),
		}),
		Parallelism:  conf.Parallelism,
		ExecObserver: observer,
	})
}

func newStore(ctx context.Context, conf *config.Config) store.Store {
	switch conf.Store {
	case config.StoreMongo:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := mongostore.New(cctx, mongostore.Config{
			URI:      conf.MongoURI,
			Database: conf.MongoDatabase,
		}, logger.Named("mongostore"))
		if err != nil {
			logger.Fatal("connect mongodb failed", zap.Error(err))
		}
		return s

	case config.StoreMemory:
		if conf.SeedFile == "" {
			logger.Warn("Memory store has no seed file, no question can be submitted")
			return memstore.New()
		}
		s, err := memstore.LoadFile(conf.SeedFile)
		if err != nil {
			logger.Fatal("load seed file failed", zap.String("path", conf.SeedFile), zap.Error(err))
		}
		return s

	default:
		logger.Fatal("unknown store type", zap.String("store", conf.Store))
		return nil
	}
}

func newLocker(ctx context.Context, conf *config.Config) (scorelock.Locker, func() error) {
	if conf.RedisAddr == "" {
		return scorelock.NewLocal(), nil
	}
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	r, err := scorelock.NewRedis(cctx, scorelock.RedisConfig{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
		TTL:      conf.ScoreLockTTL,
	}, logger.Named("scorelock"))
	if err != nil {
		logger.Fatal("connect redis failed", zap.Error(err))
	}
	return r, r.Close
}

func initHTTPMux(conf *config.Config, judge model.Judge, langs *language.Table, ws *workspace.Manager) http.Handler {
	if conf.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(logger, "", false))
	r.Use(ginzap.RecoveryWithZap(logger, true))

	if origins := conf.Origins(); len(origins) > 0 {
		r.Use(newCORS(origins))
		logger.Info("Attach CORS", zap.Strings("origins", origins))
	}

	// Metrics Handle
	if conf.EnableMetrics {
		initGinMetrics(r)
	}

	r.GET("/version", generateHandleVersion())
	r.GET("/config", generateHandleConfig(conf, langs, ws))

	// Add auth token
	if conf.AuthToken != "" {
		r.Use(tokenAuth(conf.AuthToken))
		logger.Info("Attach token auth")
	}
	if conf.RateLimit > 0 {
		r.Use(restexecutor.RateLimit(conf.RateLimit, conf.RateBurst))
	}

	// Rest Handle
	restexecutor.NewJudgeHandle(judge, logger.Named("rest")).Register(r.Group("/api"))

	// WebSocket Handle
	wsexecutor.New(judge, logger.Named("ws")).Register(r)

	return r
}

func newCORS(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return cors.New(c)
}

func initMonitorHTTPMux(conf *config.Config) http.Handler {
	if !conf.EnableMetrics && !conf.EnableDebug {
		return nil
	}
	mux := http.NewServeMux()
	if conf.EnableMetrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if conf.EnableDebug {
		initDebugRoute(mux)
	}
	return mux
}

func initDebugRoute(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func interceptorLogger(l *zap.Logger) grpc_logging.Logger {
	return grpc_logging.LoggerFunc(func(ctx context.Context, lvl grpc_logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			f = append(f, zap.Any(fmt.Sprint(fields[i]), fields[i+1]))
		}
		logger := l.WithOptions(zap.AddCallerSkip(1)).With(f...)

		switch lvl {
		case grpc_logging.LevelDebug:
			logger.Debug(msg)
		case grpc_logging.LevelInfo:
			logger.Info(msg)
		case grpc_logging.LevelWarn:
			logger.Warn(msg)
		default:
			logger.Error(msg)
		}
	})
}

func newGRPCServer(conf *config.Config, srv grpcexecutor.JudgeServer) *grpc.Server {
	grpclog.SetLoggerV2(zapgrpc.NewLogger(logger))
	streamMiddleware := []grpc.StreamServerInterceptor{
		grpc_logging.StreamServerInterceptor(interceptorLogger(logger)),
		grpc_recovery.StreamServerInterceptor(),
	}
	unaryMiddleware := []grpc.UnaryServerInterceptor{
		grpc_logging.UnaryServerInterceptor(interceptorLogger(logger)),
		grpc_recovery.UnaryServerInterceptor(),
	}
	var prom *grpc_prometheus.ServerMetrics
	if conf.EnableMetrics {
		prom = grpc_prometheus.NewServerMetrics(grpc_prometheus.WithServerHandlingTimeHistogram())
		streamMiddleware = append([]grpc.StreamServerInterceptor{prom.StreamServerInterceptor()}, streamMiddleware...)
		unaryMiddleware = append([]grpc.UnaryServerInterceptor{prom.UnaryServerInterceptor()}, unaryMiddleware...)
	}
	if conf.AuthToken != "" {
		authFunc := grpcTokenAuth(conf.AuthToken)
		streamMiddleware = append(streamMiddleware, grpc_auth.StreamServerInterceptor(authFunc))
		unaryMiddleware = append(unaryMiddleware, grpc_auth.UnaryServerInterceptor(authFunc))
	}
	grpcServer := grpc.NewServer(
		grpc.ChainStreamInterceptor(streamMiddleware...),
		grpc.ChainUnaryInterceptor(unaryMiddleware...),
	)
	grpcexecutor.RegisterJudgeServer(grpcServer, srv)
	if prom != nil {
		prom.InitializeMetrics(grpcServer)
		prometheus.MustRegister(prom)
	}
	return grpcServer
}

func initGinMetrics(r *gin.Engine) {
	p := ginprometheus.NewWithConfig(ginprometheus.Config{
		Subsystem:          "gin",
		DisableBodyReading: true,
	})
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		return c.FullPath()
	}
	r.Use(p.HandlerFunc())
}

func tokenAuth(token string) gin.HandlerFunc {
	const bearer = "Bearer "
	return func(c *gin.Context) {
		reqToken := c.GetHeader("Authorization")
		if strings.HasPrefix(reqToken, bearer) && reqToken[len(bearer):] == token {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func grpcTokenAuth(token string) func(context.Context) (context.Context, error) {
	return func(ctx context.Context) (context.Context, error) {
		reqToken, err := grpc_auth.AuthFromMD(ctx, "bearer")
		if err != nil {
			return nil, err
		}
		if reqToken != token {
			return nil, status.Error(codes.Unauthenticated, "invalid auth token")
		}
		return ctx, nil
	}
}

func generateHandleVersion() func(*gin.Context) {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"buildVersion": version.Version,
			"goVersion":    runtime.Version(),
			"platform":     runtime.GOARCH,
			"os":           runtime.GOOS,
		})
	}
}

func generateHandleConfig(conf *config.Config, langs *language.Table, ws *workspace.Manager) func(*gin.Context) {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"languages":      langs.List(),
			"launcher":       conf.Launcher,
			"workspace":      ws.Dir(),
			"parallelism":    conf.Parallelism,
			"compileTimeout": conf.CompileTimeout.String(),
			"runTimeout":     conf.RunTimeout.String(),
			"outputLimit":    conf.OutputLimit.String(),
			"store":          conf.Store,
		})
	}
}
