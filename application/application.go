package application

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	zlog "github.com/lk2023060901/serilux-go/pkg/log"
	"github.com/lk2023060901/serilux-go/pkg/metrics"
	zviper "github.com/lk2023060901/serilux-go/pkg/util/viper"
	"github.com/lk2023060901/serilux-go/serialization"
)

// Application is the main runtime container for a Serilux service.
// It owns configuration and manages common dependencies.
type Application struct {
	cfg      *zviper.Config
	loggers  map[string]*zlog.MLogger
	registry *prometheus.Registry
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run is the entry of a Serilux application.
// It parses command-line arguments (os.Args) and loads configuration file
// using the following priority:
//  1. Default: ./config.yaml
//  2. Env: SERILUX_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// After configuration it initializes logging, registers metrics and
// probes every factory in the default type registry so that broken
// registrations fail at startup instead of on the first decode.
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}

	a.initMetrics()

	if err := serialization.ValidateRegistered(context.Background()); err != nil {
		return fmt.Errorf("validate registered types: %w", err)
	}

	return nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// MetricsRegistry returns the Prometheus registry owned by this application.
// Nil until Run has been called.
func (a *Application) MetricsRegistry() *prometheus.Registry {
	return a.registry
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

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"

	if envPath := os.Getenv("SERILUX_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
			}
			continue
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}

	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	if err := a.initModuleLoggersFromConfig(); err != nil {
		return err
	}
	return nil
}

// initMetrics registers all Serilux metrics on an application-owned registry.
func (a *Application) initMetrics() {
	a.registry = prometheus.NewRegistry()
	metrics.Register(a.registry)
	metrics.RegisterLoggingMetrics(a.registry)
}

// initGlobalLoggerFromEnv configures the process-wide logger based on SERILUX_LOG_* env vars.
//
// Priority:
//   - SERILUX_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - SERILUX_LOG_LEVEL: log level (default "info").
//   - SERILUX_LOG_STDOUT: whether to log to stdout (default false).
//   - SERILUX_LOG_FILE_DIR: log directory.
//   - SERILUX_LOG_FILE: log file name (empty means no file).
//   - SERILUX_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("SERILUX_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:               getenvDefault("SERILUX_LOG_LEVEL", "info"),
		Format:              getenvDefault("SERILUX_LOG_FORMAT", "text"),
		DisableTimestamp:    false,
		Stdout:              getenvBool("SERILUX_LOG_STDOUT", false),
		DisableCaller:       false,
		DisableStacktrace:   false,
		DisableErrorVerbose: true,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("SERILUX_LOG_FILE_DIR", ""),
			Filename: getenvDefault("SERILUX_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  codec:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: codec.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	// Unmarshal "logging" section into a map[name]Config.
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		// If the key doesn't exist, UnmarshalKey typically leaves raw empty without error.
		// Any real error should be returned.
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
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
