package query

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEngine is returned for engine names other than expr, cel and js.
	ErrUnknownEngine = errors.New("query: unknown engine")
	// ErrEngineUnavailable is returned for js in builds without the js_eval tag.
	ErrEngineUnavailable = errors.New("query: engine not compiled in")
	// ErrEmptyExpression is returned for blank expressions.
	ErrEmptyExpression = errors.New("query: expression must not be empty")
)

// EvaluationError carries the engine and expression that failed.
type EvaluationError struct {
	Engine string
	Expr   string
	Source string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("query: %s evaluator %s source=%s: %v", e.Engine, describeExpression(e.Expr), e.Source, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	if strings.HasPrefix(err.Error(), "query:") {
		return err
	}
	return fmt.Errorf("query: %s evaluator: %w", engine, err)
}

// wrapEvaluationError fills blank metadata on an existing EvaluationError
// and wraps anything else.
func wrapEvaluationError(engine, expr, source string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Source == "" {
			evalErr.Source = source
		}
		return evalErr
	}
	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Source: source,
		Err:    err,
	}
}
