package contextl

import "time"

// ActivationLogEvent describes one Activate call for logging.
type ActivationLogEvent struct {
	Requested []string
	Result    []string
	Duration  time.Duration
	CacheHits int
	Err       error
	// HookErr carries failures reported by activity hooks. They never fail
	// the activation itself.
	HookErr error
}

// ActivationLogger records activation events.
type ActivationLogger interface {
	LogActivation(ActivationLogEvent)
}

// ActivationLoggerFunc adapts a function to ActivationLogger.
type ActivationLoggerFunc func(ActivationLogEvent)

// LogActivation implements ActivationLogger.
func (f ActivationLoggerFunc) LogActivation(event ActivationLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopActivationLogger struct{}

func (noopActivationLogger) LogActivation(ActivationLogEvent) {}

// WithActivationLogger attaches an activation logger to the registry.
func WithActivationLogger(logger ActivationLogger) Option {
	return func(cfg *registryConfig) {
		if logger == nil {
			cfg.logger = noopActivationLogger{}
			return
		}
		cfg.logger = logger
	}
}

// EvaluatorLogEvent describes a rule evaluation attempt for logging.
type EvaluatorLogEvent struct {
	Engine   string
	Expr     string
	Layer    string
	Duration time.Duration
	Err      error
}

// EvaluatorLogger records evaluator events.
type EvaluatorLogger interface {
	LogEvaluation(EvaluatorLogEvent)
}

// EvaluatorLoggerFunc adapts a function to EvaluatorLogger.
type EvaluatorLoggerFunc func(EvaluatorLogEvent)

// LogEvaluation implements EvaluatorLogger.
func (f EvaluatorLoggerFunc) LogEvaluation(event EvaluatorLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopEvaluatorLogger struct{}

func (noopEvaluatorLogger) LogEvaluation(EvaluatorLogEvent) {}
