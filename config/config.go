// Package config loads tracer and demo settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/time/rate"

	"github.com/zoobzio/spanz"
)

// Prefix is prepended to every environment variable. Nested groups add
// their own segment, e.g. SPANZ_LOG_LEVEL or SPANZ_EXECUTOR_WORKERS.
const Prefix = "SPANZ"

// Config holds all settings.
type Config struct {
	Service   string          `envconfig:"SERVICE" default:"spanz"`
	Log       LogConfig       `envconfig:"LOG"`
	ErrorLog  ErrorLogConfig  `envconfig:"ERROR_LOG"`
	Collector CollectorConfig `envconfig:"COLLECTOR"`
	Executor  ExecutorConfig  `envconfig:"EXECUTOR"`
	Metrics   MetricsConfig   `envconfig:"METRICS"`
	Demo      DemoConfig      `envconfig:"DEMO"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEV" default:"false"`
}

// ErrorLogConfig throttles logs about recovered tracing failures.
type ErrorLogConfig struct {
	PerSecond float64 `envconfig:"RATE" default:"10"`
	Burst     int     `envconfig:"BURST" default:"20"`
}

// CollectorConfig sizes the in-memory span collector.
type CollectorConfig struct {
	Enabled    bool `envconfig:"ENABLED" default:"true"`
	BufferSize int  `envconfig:"BUFFER" default:"1000"`
}

// ExecutorConfig sizes the worker pool used for offloaded work.
type ExecutorConfig struct {
	Workers   int `envconfig:"WORKERS" default:"4"`
	QueueSize int `envconfig:"QUEUE" default:"256"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Path    string `envconfig:"ENDPOINT" default:"/metrics"`
}

// DemoConfig holds settings for the demo service.
type DemoConfig struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	PeerBaseURL string `envconfig:"PEER_URL" default:"https://pivotal.io/"`
	Service1URL string `envconfig:"SERVICE1_URL" default:"http://localhost:8081"`
}

// Load reads an optional .env style file, then the environment.
// A missing file is not an error; an empty path skips the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault(envFile string) *Config {
	cfg, err := Load(envFile)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Service: "spanz",
		Log: LogConfig{
			Level: "info",
		},
		ErrorLog: ErrorLogConfig{
			PerSecond: float64(spanz.DefaultErrorLogRate),
			Burst:     spanz.DefaultErrorLogBurst,
		},
		Collector: CollectorConfig{
			Enabled:    true,
			BufferSize: 1000,
		},
		Executor: ExecutorConfig{
			Workers:   4,
			QueueSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Demo: DemoConfig{
			Addr:        ":8080",
			PeerBaseURL: "https://pivotal.io/",
			Service1URL: "http://localhost:8081",
		},
	}
}

// Validate rejects sizes the tracer cannot work with.
func (c *Config) Validate() error {
	if c.Collector.Enabled && c.Collector.BufferSize <= 0 {
		return errors.New("config: collector buffer must be > 0")
	}
	if c.Executor.Workers <= 0 {
		return errors.New("config: executor workers must be > 0")
	}
	if c.Executor.QueueSize <= 0 {
		return errors.New("config: executor queue must be > 0")
	}
	if c.ErrorLog.PerSecond <= 0 || c.ErrorLog.Burst <= 0 {
		return errors.New("config: error log rate and burst must be > 0")
	}
	return nil
}

// TracerOptions translates the configuration into tracer options.
// The caller supplies the logger and metrics it built.
func (c *Config) TracerOptions() []spanz.Option {
	return []spanz.Option{
		spanz.WithErrorLogRate(rate.Limit(c.ErrorLog.PerSecond), c.ErrorLog.Burst),
	}
}

// LoggerConfig returns the spanz logger settings.
func (c *Config) LoggerConfig() spanz.LogConfig {
	return spanz.LogConfig{
		Level:       c.Log.Level,
		Development: c.Log.Development,
	}
}
