package spanz

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// Default throttle for internal error logs.
const (
	DefaultErrorLogRate  = rate.Limit(10)
	DefaultErrorLogBurst = 20
)

// LogConfig defines how NewLogger builds a zap logger.
type LogConfig struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
}

// NewLogger builds a zap logger: JSON in production, console in development.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          "json",
		EncoderConfig:     zap.NewProductionEncoderConfig(),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	if cfg.Development {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapCfg.Build()
}

// errorReporter logs recovered tracing failures without flooding the log.
// Messages over the limit are counted and the count is attached to the
// next message that gets through.
type errorReporter struct {
	logger     *zap.Logger
	limiter    *rate.Limiter
	suppressed atomic.Uint64
}

func newErrorReporter(logger *zap.Logger, limit rate.Limit, burst int) *errorReporter {
	return &errorReporter{
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (r *errorReporter) report(msg string, err error, fields ...zap.Field) {
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	fields = append(fields, zap.Error(err))
	if n := r.suppressed.Swap(0); n > 0 {
		fields = append(fields, zap.Uint64("suppressed", n))
	}
	r.logger.Warn(msg, fields...)
}
