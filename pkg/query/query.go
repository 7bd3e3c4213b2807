package query

import (
	"fmt"
	"strings"
	"time"

	groups "github.com/goliatone/go-overlay-groups"
)

// Engine names an expression language.
type Engine string

const (
	EngineExpr Engine = "expr"
	EngineCEL  Engine = "cel"
	EngineJS   Engine = "js"
)

// ParseEngine maps a user supplied name to an Engine. Blank means expr.
func ParseEngine(value string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(value))) {
	case "", EngineExpr:
		return EngineExpr, nil
	case EngineCEL:
		return EngineCEL, nil
	case EngineJS:
		return EngineJS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEngine, value)
	}
}

// Option configures Evaluate.
type Option func(*config)

type config struct {
	engine    Engine
	evaluator Evaluator
	cache     ProgramCache
	functions *FunctionRegistry
	noView    bool
	logger    EvaluatorLogger
	args      map[string]any
	source    string
	now       func() time.Time
}

// WithEngine selects the expression language. The default is expr.
func WithEngine(engine Engine) Option {
	return func(cfg *config) {
		cfg.engine = engine
	}
}

// WithEvaluator uses evaluator instead of building one from the engine name.
func WithEvaluator(evaluator Evaluator) Option {
	return func(cfg *config) {
		cfg.evaluator = evaluator
	}
}

// WithProgramCache shares compiled programs across calls.
func WithProgramCache(cache ProgramCache) Option {
	return func(cfg *config) {
		cfg.cache = cache
	}
}

// WithFunctionRegistry exposes registry helpers to expressions.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers a single helper.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *config) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}

// WithoutViewFunctions leaves out fold, claims, bestprefix and anchor.
func WithoutViewFunctions() Option {
	return func(cfg *config) {
		cfg.noView = true
	}
}

// WithEvaluatorLogger receives one event per evaluation.
func WithEvaluatorLogger(logger EvaluatorLogger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithArgs binds args as the "args" variable.
func WithArgs(args map[string]any) Option {
	return func(cfg *config) {
		cfg.args = args
	}
}

// WithSource labels the view in errors and log events.
func WithSource(source string) Option {
	return func(cfg *config) {
		cfg.source = source
	}
}

// WithClock overrides the value bound to "now".
func WithClock(now func() time.Time) Option {
	return func(cfg *config) {
		if now != nil {
			cfg.now = now
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		engine: EngineExpr,
		logger: noopEvaluatorLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = noopEvaluatorLogger{}
	}
	return cfg
}

// registry returns the view helpers extended with caller functions, which
// win on name clashes.
func (cfg config) registry() *FunctionRegistry {
	if cfg.noView {
		return cfg.functions
	}
	registry := ViewFunctions()
	registry.Extend(cfg.functions)
	return registry
}

// NewEvaluator builds the evaluator for engine.
func NewEvaluator(engine Engine, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	switch engine {
	case "", EngineExpr:
		return NewExprEvaluator(ExprWithProgramCache(cache), ExprWithFunctionRegistry(registry)), nil
	case EngineCEL:
		return NewCELEvaluator(CELWithProgramCache(cache), CELWithFunctionRegistry(registry)), nil
	case EngineJS:
		evaluator := NewJSEvaluator(JSWithProgramCache(cache), JSWithFunctionRegistry(registry))
		if evaluator == nil {
			return nil, fmt.Errorf("%w: js requires the js_eval build tag", ErrEngineUnavailable)
		}
		return evaluator, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

// Evaluate runs expr against view.Snapshot(). Top level names are
// "plugins", "meta", "now" and "args", plus the ViewFunctions helpers:
//
//	plugins["A"].groups["Main"].offsetX > 0
//	claims(plugins["A"].groups["Main"].idPrefixes, "a-main-1")
func Evaluate(view groups.MergedView, expr string, opts ...Option) (any, error) {
	return EvaluateSnapshot(view.Snapshot(), expr, opts...)
}

// EvaluateSnapshot runs expr against an already flattened snapshot.
func EvaluateSnapshot(snapshot map[string]any, expr string, opts ...Option) (any, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, ErrEmptyExpression
	}
	cfg := newConfig(opts)
	evaluator := cfg.evaluator
	if evaluator == nil {
		built, err := NewEvaluator(cfg.engine, cfg.cache, cfg.registry())
		if err != nil {
			return nil, err
		}
		evaluator = built
	}
	now := cfg.now()
	in := Input{
		Snapshot: snapshot,
		Now:      &now,
		Args:     cfg.args,
		Source:   cfg.source,
	}.withDefaults()

	engine := engineName(evaluator)
	start := time.Now()
	value, err := evaluator.Evaluate(in, expr)
	duration := time.Since(start)
	err = wrapEvaluationError(engine, expr, in.sourceLabel(), err)
	cfg.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Source:   in.sourceLabel(),
		Duration: duration,
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}
