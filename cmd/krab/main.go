package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/krabwidget/krab/internal/backend"
	"github.com/krabwidget/krab/internal/config"
	"github.com/krabwidget/krab/internal/dispatcher"
	"github.com/krabwidget/krab/internal/events"
	"github.com/krabwidget/krab/internal/metrics"
	"github.com/krabwidget/krab/internal/persistence"
)

const shutdownTimeout = 10 * time.Second

// globalFlags override the environment settings.
type globalFlags struct {
	envFile     string
	storage     string
	dbPath      string
	redisURL    string
	logLevel    string
	jsonLogs    bool
	metricsAddr string
}

var flags globalFlags

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "krab",
		Short: "Chat with Krab through the AI backend of your choice",
		Long: `Krab sends your messages to one configured AI backend: an OpenClaw
gateway, OpenAI, a local Ollama, Anthropic or any custom HTTP endpoint.

Examples:
  krab                                   # open the chat
  krab configure ollama --url http://localhost:11434 --model llama3.2
  krab select ollama --connect
  krab send "tell me a crab joke"`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "dotenv file to read before the environment")
	pf.StringVar(&flags.storage, "storage", "", "storage driver: sqlite, redis or file")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite database path")
	pf.StringVar(&flags.redisURL, "redis-url", "", "Redis URL for the redis driver")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&flags.jsonLogs, "json-logs", false, "write logs as JSON")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newChatCmd(),
		newBackendsCmd(),
		newSelectCmd(),
		newConfigureCmd(),
		newCheckCmd(),
		newSendCmd(),
		newHistoryCmd(),
	)
	return root
}

// loadSettings reads the environment and applies the global flags.
func loadSettings() (config.Settings, error) {
	s, err := config.LoadSettings(flags.envFile)
	if err != nil {
		return config.Settings{}, err
	}
	if flags.storage != "" {
		s.Storage = flags.storage
	}
	if flags.dbPath != "" {
		s.DBPath = flags.dbPath
	}
	if flags.redisURL != "" {
		s.RedisURL = flags.redisURL
	}
	if flags.logLevel != "" {
		s.LogLevel = flags.logLevel
	}
	if flags.metricsAddr != "" {
		s.MetricsAddr = flags.metricsAddr
	}
	return s, s.Validate()
}

// app is one wired Krab process.
type app struct {
	settings   config.Settings
	log        *logrus.Logger
	storage    *persistence.Storage
	transport  *backend.Transport
	configs    *config.Store
	bus        *events.EventBus
	metrics    *metrics.Recorder
	dispatcher *dispatcher.Dispatcher

	closeLog      func() error
	metricsServer *http.Server
}

// newApp opens storage, starts the dispatcher and restores its state.
func newApp(ctx context.Context) (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	log, closeLog, err := newLogger(settings, flags.jsonLogs)
	if err != nil {
		return nil, err
	}

	storage, err := persistence.Open(ctx, settings.StorageOptions())
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("opening %s storage: %w", settings.Storage, err)
	}

	a := &app{
		settings: settings,
		log:      log,
		storage:  storage,
		transport: backend.NewTransport(nil).
			WithBreakers(backend.NewBreakers(backend.DefaultBreakerSettings(), log)),
		configs:  config.NewStore(storage.KV, log),
		bus:      events.NewEventBus(),
		metrics:  metrics.New(),
		closeLog: closeLog,
	}

	a.dispatcher, err = dispatcher.New(dispatcher.Options{
		Store:          a.configs,
		Messages:       storage.Messages,
		Transport:      a.transport,
		Bus:            a.bus,
		Metrics:        a.metrics,
		Logger:         log,
		HealthInterval: settings.HealthInterval,
		HealthTimeout:  settings.HealthTimeout,
		ContextSize:    settings.ContextSize,
		HistoryLimit:   settings.HistoryLimit,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if _, err := a.dispatcher.Start(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if settings.MetricsAddr != "" {
		a.serveMetrics(settings.MetricsAddr)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("metrics server stopped")
		}
	}()
	a.log.WithField("addr", addr).Info("serving metrics")
}

// Close shuts everything down in reverse order of construction.
func (a *app) Close() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("metrics server shutdown")
		}
		cancel()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	a.bus.Close()
	if err := a.storage.Close(); err != nil {
		a.log.WithError(err).Warn("closing storage")
	}
	a.log.Info("shutdown complete")
	if a.closeLog != nil {
		a.closeLog()
	}
}
