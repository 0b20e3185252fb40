package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"patternscope/internal/analyzer"
	"patternscope/internal/config"
	"patternscope/internal/indicator"
	"patternscope/internal/inference"
	"patternscope/internal/logger"
	"patternscope/internal/metrics"
	"patternscope/internal/pattern"
	"patternscope/internal/provider"
	"patternscope/internal/web"
)

var (
	cfgFile  string
	logLevel string
	format   string
	verbose  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "patternscope",
		Short: "Stock indicators and chart pattern detection",
		Long: `Patternscope computes technical indicators for stock price history,
labels chart patterns with geometric heuristics and serves model detections
over HTTP.

Examples:
  patternscope serve --config config.yaml
  patternscope indicators AAPL --range 1y
  patternscope detect TSLA --model real
  patternscope scan --universe mega
  patternscope dataset --format csv --output patterns.csv`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show detailed output")

	rootCmd.AddCommand(
		serveCmd(),
		indicatorsCmd(),
		labelCmd(),
		detectCmd(),
		analyzeCmd(),
		scanCmd(),
		datasetCmd(),
		synthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	provider provider.Provider
	engine   *indicator.Engine
	labeler  *pattern.Labeler
	service  *analyzer.Service
	closers  []func() error
}

// newApp loads configuration and wires providers, engine, labeler and models
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := logger.Init("patternscope", cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}

	engine, err := indicator.NewEngine(cfg.Indicators.Options)
	if err != nil {
		return nil, err
	}
	a.engine = engine
	a.labeler = pattern.NewLabeler(cfg.Pattern.Scheme, cfg.Pattern.Thresholds)

	specs := cfg.Models
	if len(specs) == 0 {
		specs = inference.DefaultSpecs()
	}
	registry, err := inference.NewRegistry(specs, cfg.Pattern.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("loading models: %w", err)
	}

	if a.provider, err = a.createProvider(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.service = analyzer.NewService(analyzer.Config{
		Provider:        a.provider,
		Engine:          engine,
		Labeler:         a.labeler,
		Models:          registry,
		Metrics:         a.metrics,
		DefaultRange:    cfg.Indicators.DefaultRange,
		DefaultInterval: cfg.Indicators.DefaultInterval,
	})
	return a, nil
}

// createProvider chains the configured sources and wraps them in the cache
func (a *app) createProvider(ctx context.Context) (provider.Provider, error) {
	cfg := a.cfg
	providers := []provider.Provider{
		// Yahoo Finance (primary - no key needed)
		provider.NewYahooProvider(provider.YahooOptions{
			BaseURL:   cfg.API.Yahoo.BaseURL,
			RateLimit: cfg.API.Yahoo.RateLimit,
			Timeout:   cfg.API.Yahoo.Timeout,
			Adjusted:  cfg.API.Yahoo.Adjusted,
		}),
	}
	if cfg.API.Finnhub.Key != "" {
		providers = append(providers, provider.NewFinnhubProvider(cfg.API.Finnhub.Key, cfg.API.Finnhub.RateLimit))
	}
	if cfg.API.AlphaVantage.Key != "" {
		providers = append(providers, provider.NewAlphaVantageProvider(cfg.API.AlphaVantage.Key, cfg.API.AlphaVantage.RateLimit))
	}

	fallback := provider.NewFallbackProvider(providers...)
	if !fallback.IsAvailable() {
		return nil, fmt.Errorf("no available data providers")
	}
	fallback.SetMetrics(a.metrics)

	if verbose {
		for _, p := range fallback.Providers() {
			slog.Info("provider enabled", "name", p.Name(), "rate_limit", p.RateLimit())
		}
	}

	var store provider.Store
	switch cfg.Cache.Backend {
	case "none":
		return fallback, nil
	case "redis":
		rs, err := provider.NewRedisStore(ctx, provider.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	default:
		store = provider.NewMemoryStore()
	}
	return provider.NewCachingProvider(fallback, store, cfg.Cache.TTL, a.metrics), nil
}

// Close releases external connections
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if port > 0 {
				a.cfg.Server.Port = port
			}

			srv := web.NewServer(a.cfg, a.service, a.metrics)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

// withApp runs fn with a wired app and an interruptible context
func withApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	err = fn(ctx, a)
	slog.Debug("command finished", "duration", time.Since(start), "error", err)
	return err
}
