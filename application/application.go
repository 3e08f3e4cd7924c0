package application

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/kvmfr-client-go/internal/client"
	"github.com/lk2023060901/kvmfr-client-go/internal/lgmp"
	"github.com/lk2023060901/kvmfr-client-go/internal/poller"
	zlog "github.com/lk2023060901/kvmfr-client-go/pkg/log"
	"github.com/lk2023060901/kvmfr-client-go/pkg/metrics"
	"github.com/lk2023060901/kvmfr-client-go/pkg/util/conc"
	zviper "github.com/lk2023060901/kvmfr-client-go/pkg/util/viper"
)

const (
	defaultConfigPath = "./config.yaml"
	configPathEnv     = "KVMFR_CONFIG_FILE_PATH"

	metricsShutdownTimeout = 5 * time.Second
)

// MetricsConfig 为 Prometheus 指标端点配置，Address 留空表示不对外暴露。
type MetricsConfig struct {
	Address string `toml:"address" json:"address" mapstructure:"address"`
}

// Config 为进程级配置。
type Config struct {
	LGMP    client.Opts   `toml:"lgmp" json:"lgmp" mapstructure:"lgmp"`
	Poller  poller.Config `toml:"poller" json:"poller" mapstructure:"poller"`
	Log     zlog.Config   `toml:"log" json:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// Application 为 KVMFR 客户端进程的运行时容器，负责加载配置、初始化日志，
// 并把配置装配成 Supervisor。
type Application struct {
	cfg     *zviper.Config
	conf    Config
	loggers map[string]*zlog.MLogger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Load 解析命令行参数并加载配置文件，配置文件路径优先级如下：
//  1. 默认：./config.yaml（不存在时只使用默认值与环境变量）
//  2. 环境变量：KVMFR_CONFIG_FILE_PATH
//  3. 命令行：--config <path> 或 --config=<path>
//
// 环境变量 KVMFR_SHM_PATH、KVMFR_TIMEOUT、KVMFR_LOG_LEVEL、KVMFR_METRICS_ADDRESS
// 覆盖配置文件中的对应项。
func (a *Application) Load(args []string) error {
	cfg, err := a.loadConfig(args)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := cfg.Unmarshal(&a.conf); err != nil {
		return errors.Wrap(err, "unmarshal config")
	}
	if err := a.conf.LGMP.Validate(); err != nil {
		return err
	}
	if err := a.conf.Poller.Validate(); err != nil {
		return err
	}

	return a.initLogging()
}

// Config returns the loaded configuration.
func (a *Application) Config() Config {
	return a.conf
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// Run 按配置启动 Supervisor（以及可选的指标端点），阻塞到 ctx 结束或 Supervisor 放弃。
func (a *Application) Run(ctx context.Context, newClient lgmp.NewClientFunc, handler poller.Handler, opts ...poller.SupervisorOption) error {
	sup, err := poller.NewSupervisor(a.conf.LGMP, a.conf.Poller, newClient, handler, opts...)
	if err != nil {
		return err
	}
	if lg, ok := a.loggers["supervisor"]; ok {
		sup.SetLogger(lg)
	}

	defer func() {
		// 标准输出在部分终端上不支持 fsync，忽略该错误。
		_ = zlog.Sync()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := conc.NewPool[struct{}](2, conc.WithPreAlloc(true))
	defer pool.Release()

	futures := []*conc.Future[struct{}]{
		pool.Submit(func() (struct{}, error) {
			defer cancel()
			return struct{}{}, sup.Run(ctx)
		}),
	}
	if a.conf.Metrics.Address != "" {
		futures = append(futures, pool.Submit(func() (struct{}, error) {
			defer cancel()
			return struct{}{}, a.serveMetrics(ctx)
		}))
	}
	return conc.AwaitAll(futures...)
}

func (a *Application) serveMetrics(ctx context.Context) error {
	metrics.Register(prometheus.DefaultRegisterer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              a.conf.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("shutdown metrics server failed", zap.Error(err))
		}
	}()

	zlog.Info("serving metrics", zap.String("address", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve metrics on %s", srv.Addr)
	}
	return nil
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig(args []string) (*zviper.Config, error) {
	configPath := defaultConfigPath
	explicit := false

	if envPath := os.Getenv(configPathEnv); envPath != "" {
		configPath = envPath
		explicit = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, errors.New("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	cfg := zviper.New()
	setDefaults(cfg)
	if err := bindEnvs(cfg); err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %q", configPath)
	}
	return cfg, nil
}

func setDefaults(cfg *zviper.Config) {
	opts := client.DefaultOpts()
	cfg.SetDefault("lgmp.shm-path", opts.ShmPath)
	cfg.SetDefault("lgmp.timeout", opts.Timeout)

	pc := poller.DefaultConfig()
	cfg.SetDefault("poller.tick-period", pc.TickPeriod)
	cfg.SetDefault("poller.init-delay", pc.InitDelay)
	cfg.SetDefault("poller.init-attempts", pc.InitAttempts)
	cfg.SetDefault("poller.init-retry-sleep", pc.InitRetrySleep)
	cfg.SetDefault("poller.max-updates-per-tick", pc.MaxUpdatesPerTick)
	cfg.SetDefault("poller.reconnect-initial-interval", pc.ReconnectInitialInterval)
	cfg.SetDefault("poller.reconnect-max-interval", pc.ReconnectMaxInterval)

	lc := zlog.DefaultConfig()
	cfg.SetDefault("log.level", lc.Level)
	cfg.SetDefault("log.format", lc.Format)
	cfg.SetDefault("log.stdout", lc.Stdout)
}

func bindEnvs(cfg *zviper.Config) error {
	envs := map[string]string{
		"lgmp.shm-path":   "KVMFR_SHM_PATH",
		"lgmp.timeout":    "KVMFR_TIMEOUT",
		"log.level":       "KVMFR_LOG_LEVEL",
		"metrics.address": "KVMFR_METRICS_ADDRESS",
	}
	for key, env := range envs {
		if err := cfg.BindEnv(key, env); err != nil {
			return errors.Wrapf(err, "bind env %s", env)
		}
	}
	return nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	logger, props, err := zlog.InitLogger(&a.conf.Log)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	zlog.ReplaceGlobals(logger, props)
	return a.initModuleLoggersFromConfig()
}

// initModuleLoggersFromConfig creates named loggers from config under "logging" key.
//
// Example:
//
//	logging:
//	  supervisor:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: supervisor.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}

	return nil
}
