// Package zaplog routes contextl diagnostics and activation logs to a zap
// logger.
package zaplog

import (
	"context"
	"fmt"
	"strings"

	contextl "github.com/goliatone/go-contextl"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a level string to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}

// New returns a production zap logger configured with the given level string.
func New(level string) (*zap.Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if zapLevel == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}

// Adapter implements contextl.Reporter, contextl.ActivationLogger and
// contextl.EvaluatorLogger on top of a zap logger.
type Adapter struct {
	logger *zap.Logger
}

var (
	_ contextl.Reporter         = (*Adapter)(nil)
	_ contextl.ActivationLogger = (*Adapter)(nil)
	_ contextl.EvaluatorLogger  = (*Adapter)(nil)
)

// NewAdapter wraps logger. A nil logger discards everything.
func NewAdapter(logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{logger: logger.Named("contextl")}
}

// Options returns the registry options that install the adapter as both
// diagnostic reporter and activation logger.
func (a *Adapter) Options() []contextl.Option {
	return []contextl.Option{
		contextl.WithReporter(a),
		contextl.WithActivationLogger(a),
	}
}

// Report logs a resolver diagnostic at warn level.
func (a *Adapter) Report(_ context.Context, diagnostic contextl.Diagnostic) {
	a.logger.Warn("layer ordering adjusted",
		zap.String("layer", diagnostic.Layer),
		zap.String("kind", string(diagnostic.Kind)),
		zap.Strings("offending_layers", diagnostic.OffendingLayers),
	)
}

// LogActivation logs successful activations at debug level and failures at
// error level.
func (a *Adapter) LogActivation(event contextl.ActivationLogEvent) {
	fields := []zap.Field{
		zap.Strings("requested", event.Requested),
		zap.Strings("stack", event.Result),
		zap.Duration("duration", event.Duration),
		zap.Int("cache_hits", event.CacheHits),
	}
	if event.HookErr != nil {
		a.logger.Warn("activity hook failed", append(fields, zap.NamedError("hook_error", event.HookErr))...)
	}
	if event.Err != nil {
		a.logger.Error("layer activation failed", append(fields, zap.Error(event.Err))...)
		return
	}
	a.logger.Debug("layers activated", fields...)
}

// LogEvaluation logs activation rule evaluations.
func (a *Adapter) LogEvaluation(event contextl.EvaluatorLogEvent) {
	fields := []zap.Field{
		zap.String("engine", event.Engine),
		zap.String("expr", event.Expr),
		zap.String("layer", event.Layer),
		zap.Duration("duration", event.Duration),
	}
	if event.Err != nil {
		a.logger.Error("rule evaluation failed", append(fields, zap.Error(event.Err))...)
		return
	}
	a.logger.Debug("rule evaluated", fields...)
}
