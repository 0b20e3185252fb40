package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"patternscope/internal/indicator"
	"patternscope/internal/inference"
	"patternscope/internal/logger"
	"patternscope/internal/pattern"
	"patternscope/pkg/model"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	API        APIConfig        `yaml:"api"`
	Cache      CacheConfig      `yaml:"cache"`
	Indicators IndicatorConfig  `yaml:"indicators"`
	Pattern    PatternConfig    `yaml:"pattern"`
	Models     []inference.Spec `yaml:"models"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Scanner    ScannerConfig    `yaml:"scanner"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"` // per request, covers fetch and inference
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	AuthSecret      string        `yaml:"auth_secret"` // HS256 bearer tokens required when set
}

// LogConfig selects level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// APIConfig holds API provider configurations
type APIConfig struct {
	Yahoo        YahooConfig    `yaml:"yahoo"`
	Finnhub      ProviderConfig `yaml:"finnhub"`
	AlphaVantage ProviderConfig `yaml:"alphavantage"`
}

// YahooConfig holds Yahoo chart API settings
type YahooConfig struct {
	BaseURL   string        `yaml:"base_url"`
	RateLimit int           `yaml:"rate_limit"` // requests per minute
	Timeout   time.Duration `yaml:"timeout"`
	Adjusted  bool          `yaml:"adjusted"`
}

// ProviderConfig holds individual provider settings
type ProviderConfig struct {
	Key       string `yaml:"key"`
	RateLimit int    `yaml:"rate_limit"` // requests per minute
}

// CacheConfig selects the series cache
type CacheConfig struct {
	Backend string        `yaml:"backend"` // memory, redis or none
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds the Redis connection
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// IndicatorConfig holds engine options and the default query
type IndicatorConfig struct {
	indicator.Options `yaml:",inline"`
	DefaultRange      string `yaml:"default_range"`
	DefaultInterval   string `yaml:"default_interval"`
}

// PatternConfig holds heuristic labeler settings
type PatternConfig struct {
	Scheme             pattern.Scheme `yaml:"scheme"`
	pattern.Thresholds `yaml:",inline"`
}

// DatasetConfig holds offline dataset generation settings
type DatasetConfig struct {
	Symbols  []string `yaml:"symbols"`
	Range    string   `yaml:"range"`
	Interval string   `yaml:"interval"`
	Window   int      `yaml:"window"`
	Stride   int      `yaml:"stride"`
	Output   string   `yaml:"output"`
	Format   string   `yaml:"format"`   // sqlite, csv or jsonl
	Schedule string   `yaml:"schedule"` // cron expression, empty runs once
}

// ScannerConfig holds scanner settings
type ScannerConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
	Model   string        `yaml:"model"` // empty skips model detection
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			RequestTimeout:  45 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			Yahoo: YahooConfig{
				RateLimit: 30,
				Timeout:   30 * time.Second,
			},
			Finnhub: ProviderConfig{
				RateLimit: 60,
			},
			AlphaVantage: ProviderConfig{
				RateLimit: 5,
			},
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     5 * time.Minute,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "patternscope:",
			},
		},
		Indicators: IndicatorConfig{
			Options:         indicator.DefaultOptions(),
			DefaultRange:    "6mo",
			DefaultInterval: "1d",
		},
		Pattern: PatternConfig{
			Scheme:     pattern.Geometric,
			Thresholds: pattern.DefaultThresholds(),
		},
		Models: inference.DefaultSpecs(),
		Dataset: DatasetConfig{
			Symbols:  []string{"AAPL", "TSLA", "WMT"},
			Range:    "10y",
			Interval: "1wk",
			Window:   model.WindowSize,
			Stride:   1,
			Output:   "patterns.db",
			Format:   "sqlite",
		},
		Scanner: ScannerConfig{
			Workers: 10,
			Timeout: 5 * time.Minute,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Variables from a .env file in the working directory are loaded
// first, and environment overrides are applied last.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Use defaults if file doesn't exist
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and deployment settings from the environment
func applyEnv(cfg *Config) error {
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" {
		cfg.API.Finnhub.Key = key
	}
	if key := os.Getenv("ALPHAVANTAGE_API_KEY"); key != "" {
		cfg.API.AlphaVantage.Key = key
	}
	if secret := os.Getenv("PATTERNSCOPE_AUTH_SECRET"); secret != "" {
		cfg.Server.AuthSecret = secret
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Cache.Redis.Password = pw
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	return nil
}

// DefaultQuery returns the query used when a request names only a symbol
func (c *Config) DefaultQuery(symbol string) model.Query {
	return model.Query{
		Symbol:   symbol,
		Range:    c.Indicators.DefaultRange,
		Interval: c.Indicators.DefaultInterval,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := c.Indicators.Options.Validate(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if _, err := c.DefaultQuery("X").Normalize(); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if _, err := pattern.ParseScheme(string(c.Pattern.Scheme)); err != nil {
		return fmt.Errorf("pattern: %w", err)
	}

	switch c.Cache.Backend {
	case "memory", "none", "":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if len(c.Dataset.Symbols) == 0 {
		return fmt.Errorf("dataset.symbols must not be empty")
	}
	if c.Dataset.Window < pattern.MinWindow {
		return fmt.Errorf("dataset.window must be at least %d", pattern.MinWindow)
	}
	if c.Dataset.Stride < 1 {
		return fmt.Errorf("dataset.stride must be at least 1")
	}
	if _, err := (model.Query{Symbol: "X", Range: c.Dataset.Range, Interval: c.Dataset.Interval}).Normalize(); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	switch c.Dataset.Format {
	case "sqlite", "csv", "jsonl":
	default:
		return fmt.Errorf("unknown dataset format %q", c.Dataset.Format)
	}

	if c.Scanner.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}
