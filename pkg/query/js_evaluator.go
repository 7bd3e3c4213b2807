//go:build js_eval

package query

import (
	"fmt"

	"github.com/dop251/goja"
)

type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewJSEvaluator constructs an Evaluator backed by goja.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	cfg := newJSEvaluatorConfig(opts)
	return &jsEvaluator{
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

// JSAvailable reports whether the goja engine is compiled in.
func JSAvailable() bool {
	return true
}

func (e *jsEvaluator) engine() string { return string(EngineJS) }

func (e *jsEvaluator) Evaluate(in Input, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine(), ErrEmptyExpression)
	}
	in = in.withDefaults()
	var program *goja.Program
	if e.cache != nil {
		compiled, err := e.loadOrCompile(expression)
		if err != nil {
			return nil, wrapEvaluationError(e.engine(), expression, in.sourceLabel(), err)
		}
		program = compiled
	}
	return e.run(in, expression, program)
}

func (e *jsEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError(e.engine(), ErrEmptyExpression)
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, wrapEvaluationError(e.engine(), expression, "", err)
	}
	return &jsCompiledRule{
		evaluator:  e,
		expression: expression,
		program:    program,
	}, nil
}

func (e *jsEvaluator) loadOrCompile(expression string) (*goja.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", wrapExpression(expression), false)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

// run uses a fresh runtime per call; goja runtimes are not goroutine safe.
func (e *jsEvaluator) run(in Input, expression string, program *goja.Program) (any, error) {
	vm := goja.New()
	if err := e.inject(vm, in); err != nil {
		return nil, wrapEvaluationError(e.engine(), expression, in.sourceLabel(), err)
	}
	var (
		value goja.Value
		err   error
	)
	if program != nil {
		value, err = vm.RunProgram(program)
	} else {
		value, err = vm.RunString(wrapExpression(expression))
	}
	if err != nil {
		return nil, wrapEvaluationError(e.engine(), expression, in.sourceLabel(), err)
	}
	return value.Export(), nil
}

func (e *jsEvaluator) inject(vm *goja.Runtime, in Input) error {
	for key, value := range scriptBindings(in, e.registry) {
		if err := vm.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func wrapExpression(expression string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", expression)
}

type jsCompiledRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r *jsCompiledRule) Evaluate(in Input) (any, error) {
	return r.evaluator.run(in.withDefaults(), r.expression, r.program)
}
