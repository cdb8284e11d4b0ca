package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/rpcguard/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/rpcguard/internal/adapter/outbound/eventlog"
	"github.com/Sentinel-Gate/rpcguard/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/rpcguard/internal/adapter/outbound/redisstore"
	"github.com/Sentinel-Gate/rpcguard/internal/config"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/admission"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/interceptor"
	"github.com/Sentinel-Gate/rpcguard/internal/domain/rpc"
	"github.com/Sentinel-Gate/rpcguard/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the rpcguard HTTP server.

Endpoints:
  POST /rpc/{method}   call a method (ping, echo, stats)
  GET  /health         component health
  GET  /metrics        Prometheus metrics

The caller is identified by its address, or by the hex public key in the
X-Remote-Public-Key header when a limiter is keyed by public_key.

Examples:
  # Start with config file settings
  rpcguard serve

  # Start in development mode (debug logs, spans on stderr)
  rpcguard serve --dev

  # Show the effective configuration
  rpcguard serve --print-config`,
	RunE: runServe,
}

var (
	devMode     bool
	printConfig bool
)

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, stdout tracing)")
	serveCmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the effective configuration and exit")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if printConfig {
		return writeConfig(cmd.OutOrStdout(), cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // next Ctrl+C is a hard kill
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled: caller addresses are logged and spans are written to stderr")
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("rpcguard stopped")
	return nil
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.RPCGuardConfig, logger *slog.Logger) error {
	stats := service.NewStatsService()
	metrics := http.NewMetrics(http.NewRegistry())

	stackCfg := buildStackConfig(cfg)
	stackCfg.Stats = recorders{metrics, stats}
	stackCfg.RateObservers = append(stackCfg.RateObservers, stats.RateObserver())
	stackCfg.ConcurrencyObservers = append(stackCfg.ConcurrencyObservers, stats.ConcurrencyObserver())

	var (
		events *service.EventService
		recent recentEvents
	)
	if cfg.Events.Enabled {
		store, closeStore, err := createEventStore(ctx, cfg.Events, logger)
		if err != nil {
			return err
		}
		defer closeStore()
		if r, ok := store.(recentEvents); ok {
			recent = r
		}

		events = service.NewEventService(store, logger,
			service.WithChannelSize(cfg.Events.ChannelSize),
			service.WithBatchSize(cfg.Events.BatchSize),
			service.WithFlushInterval(cfg.Events.FlushIntervalDuration()),
		)
		// Stop, not ctx, ends the worker so events from shutdown are flushed.
		events.Start(context.WithoutCancel(ctx))
		defer events.Stop()

		stackCfg.RateObservers = append(stackCfg.RateObservers, events.RateObserver())
		stackCfg.ConcurrencyObservers = append(stackCfg.ConcurrencyObservers, events.ConcurrencyObserver())
	}

	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(cfg.Tracing, os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to flush spans", "error", err)
			}
		}()
		stackCfg.TracerProvider = tp
	}

	stack, err := service.NewStackService(stackCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build interceptor stack: %w", err)
	}

	if err := registerMetrics(metrics, cfg, stack, stats, events); err != nil {
		return err
	}

	router := http.NewRouter(stack.Chain(), logger)
	if err := registerMethods(router, stats, recent); err != nil {
		return err
	}
	if err := router.Open(ctx); err != nil {
		return fmt.Errorf("failed to open router: %w", err)
	}
	defer func() {
		if err := router.Close(); err != nil {
			logger.Error("failed to close router", "error", err)
		}
		s := stats.GetStats()
		logger.Info("admission totals",
			"rate_acquired", s.RateAcquired,
			"rate_exceeded", s.RateExceeded,
			"concurrent_acquired", s.ConcurrentAcquired,
			"concurrent_exceeded", s.ConcurrentExceeded,
		)
	}()

	var drops http.DropReporter
	if events != nil {
		drops = events
	}
	transportOpts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithTrustProxy(cfg.Server.TrustProxy),
		http.WithLogger(logger),
		http.WithMetrics(metrics),
		http.WithHealthChecker(http.NewHealthChecker(router, stack, drops, Version)),
	}
	if cfg.Server.TLSEnabled() {
		transportOpts = append(transportOpts, http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}
	transport := http.NewHTTPTransport(router, transportOpts...)

	logger.Info("rpcguard starting",
		"version", Version,
		"addr", cfg.Server.HTTPAddr,
		"tls", cfg.Server.TLSEnabled(),
		"logging", cfg.Logger.Enabled,
		"rate_limit", cfg.RateLimit.Enabled,
		"concurrent_limit", cfg.ConcurrentLimit.Enabled,
		"tracing", cfg.Tracing.Enabled,
		"events", cfg.Events.Enabled,
	)
	return transport.Start(ctx)
}

// buildStackConfig maps the file configuration onto the interceptor stack.
// Disabled sections are left nil.
func buildStackConfig(cfg *config.RPCGuardConfig) service.StackConfig {
	var sc service.StackConfig
	if cfg.Logger.Enabled {
		sc.Logging = &service.LoggingConfig{LogIP: cfg.Logger.LogIP}
	}
	if cfg.RateLimit.Enabled {
		sc.RateLimit = &service.RateLimitConfig{
			Capacity: *cfg.RateLimit.Capacity,
			Interval: cfg.RateLimit.IntervalDuration(),
			Strategy: rpc.KeyStrategy(cfg.RateLimit.Key),
			Shards:   cfg.RateLimit.Shards,
		}
	}
	if cfg.ConcurrentLimit.Enabled {
		sc.ConcurrentLimit = &service.ConcurrentLimitConfig{
			Capacity: *cfg.ConcurrentLimit.Capacity,
			Strategy: rpc.KeyStrategy(cfg.ConcurrentLimit.Key),
		}
	}
	return sc
}

// createEventStore returns the configured event store and a function that
// releases its resources.
func createEventStore(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (admission.EventStore, func(), error) {
	switch cfg.Store {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info("recording admission events to redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		store := redisstore.NewEventStore(rdb,
			redisstore.WithPrefix(cfg.Redis.Prefix),
			redisstore.WithTTL(cfg.Redis.TTLDuration()),
			redisstore.WithTrackKeys(cfg.Redis.TrackKeys),
		)
		return store, func() {
			if err := rdb.Close(); err != nil {
				logger.Error("failed to close redis client", "error", err)
			}
		}, nil
	case "file":
		store, err := eventlog.NewFileStore(eventlog.Config{
			Dir:           cfg.File.Dir,
			RetentionDays: cfg.File.RetentionDays,
			MaxFileSizeMB: cfg.File.MaxFileSizeMB,
			CacheSize:     cfg.BufferSize,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open event log: %w", err)
		}
		logger.Info("recording admission events to files", "dir", cfg.File.Dir, "retention_days", cfg.File.RetentionDays)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close event log", "error", err)
			}
		}, nil
	default:
		logger.Info("recording admission events in memory", "buffer_size", cfg.BufferSize)
		return memory.NewEventStore(cfg.BufferSize), func() {}, nil
	}
}

func newTracerProvider(cfg config.TracingConfig, w io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", "rpcguard"),
		attribute.String("service.version", Version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

// registerMetrics exposes limiter and recorder state as Prometheus metrics.
func registerMetrics(m *http.Metrics, cfg *config.RPCGuardConfig, stack *service.StackService, stats *service.StatsService, events *service.EventService) error {
	if cfg.RateLimit.Enabled {
		if err := m.RegisterTrackedKeys(cfg.RateLimit.MetricName, stack.TrackedRateLimitKeys); err != nil {
			return fmt.Errorf("failed to register %s: %w", cfg.RateLimit.MetricName, err)
		}
		if err := m.RegisterCounter("rpcguard_rate_limit_exceeded_total",
			"Requests rejected by the rate limit.",
			func() int64 { return stats.GetStats().RateExceeded }); err != nil {
			return err
		}
	}
	if cfg.ConcurrentLimit.Enabled {
		if err := m.RegisterGauge("rpcguard_concurrent_limit_active_keys",
			"Keys with at least one in-flight request.",
			stack.ActiveConcurrentKeys); err != nil {
			return err
		}
		if err := m.RegisterCounter("rpcguard_concurrent_limit_exceeded_total",
			"Requests rejected by the concurrent limit.",
			func() int64 { return stats.GetStats().ConcurrentExceeded }); err != nil {
			return err
		}
	}
	if events != nil {
		if err := m.RegisterCounter("rpcguard_admission_events_dropped_total",
			"Admission events dropped because the recorder queue was full.",
			events.DroppedEvents); err != nil {
			return err
		}
	}
	return nil
}

// recorders fans request counts out to several recorders.
type recorders []interceptor.StatsRecorder

func (r recorders) IncRequests(method string) {
	for _, rec := range r {
		rec.IncRequests(method)
	}
}

func (r recorders) IncErrors(method string) {
	for _, rec := range r {
		rec.IncErrors(method)
	}
}

func writeConfig(w io.Writer, cfg *config.RPCGuardConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
