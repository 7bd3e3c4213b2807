package query

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	groups "github.com/goliatone/go-overlay-groups"
)

const shippedJSON = `{
  "A": {
    "matchingPrefixes": ["a-"],
    "idPrefixGroups": {
      "Main": {"idPrefixes": ["a-main-"], "offsetX": 5, "idPrefixGroupAnchor": "NW"}
    }
  }
}`

const userJSON = `{
  "_edit_nonce": "n1",
  "A": {"idPrefixGroups": {"Main": {"offsetX": -3, "idPrefixGroupAnchor": "se"}}}
}`

func testView(t *testing.T) groups.MergedView {
	t.Helper()
	shipped, err := groups.ParseLayerDocument(groups.LayerShipped, "shipped.json", []byte(shippedJSON))
	require.NoError(t, err)
	user, err := groups.ParseLayerDocument(groups.LayerUser, "user.json", []byte(userJSON))
	require.NoError(t, err)
	return groups.Merge(shipped, user)
}

func TestEvaluateExprOverMergedView(t *testing.T) {
	view := testView(t)

	got, err := Evaluate(view, `plugins["A"].groups["Main"].offsetX > 0`)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = Evaluate(view, `plugins["A"].groups["Main"].idPrefixGroupAnchor`)
	require.NoError(t, err)
	assert.Equal(t, "se", got)

	got, err = Evaluate(view, `meta["_edit_nonce"]`)
	require.NoError(t, err)
	assert.Equal(t, "n1", got)
}

func TestEvaluateCEL(t *testing.T) {
	view := testView(t)

	got, err := Evaluate(view, `plugins["A"].groups["Main"].offsetX < 0.0`, WithEngine(EngineCEL))
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Evaluate(view, `plugins["A"].canonicalName`, WithEngine(EngineCEL))
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestEvaluateRejectsEmptyAndUnknownEngine(t *testing.T) {
	view := testView(t)

	_, err := Evaluate(view, "  ")
	assert.ErrorIs(t, err, ErrEmptyExpression)

	_, err = Evaluate(view, "1", WithEngine("lua"))
	assert.ErrorIs(t, err, ErrUnknownEngine)

	_, err = ParseEngine("Lua")
	assert.ErrorIs(t, err, ErrUnknownEngine)

	engine, err := ParseEngine(" CEL ")
	require.NoError(t, err)
	assert.Equal(t, EngineCEL, engine)
}

func TestEvaluateWrapsFailures(t *testing.T) {
	view := testView(t)

	_, err := Evaluate(view, `plugins[`, WithSource("user.json"))
	require.Error(t, err)
	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "expr", evalErr.Engine)
	assert.Equal(t, `plugins[`, evalErr.Expr)
	assert.Equal(t, "user.json", evalErr.Source)
	assert.Contains(t, err.Error(), "source=user.json")
}

func TestEvaluateReportsToLogger(t *testing.T) {
	var events []EvaluatorLogEvent
	logger := EvaluatorLoggerFunc(func(event EvaluatorLogEvent) {
		events = append(events, event)
	})

	_, err := Evaluate(testView(t), `len(plugins)`, WithEvaluatorLogger(logger))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "expr", events[0].Engine)
	assert.Equal(t, "merged", events[0].Source)
	assert.NoError(t, events[0].Err)
}

func TestEvaluateWithFunctionsArgsAndClock(t *testing.T) {
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	double := func(args ...any) (any, error) {
		value, ok := args[0].(float64)
		if !ok {
			return nil, errors.New("double expects a number")
		}
		return value * 2, nil
	}

	got, err := Evaluate(testView(t), `double(plugins["A"].groups["Main"].offsetX) + args.bias`,
		WithCustomFunction("double", double),
		WithArgs(map[string]any{"bias": 10.0}),
	)
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	got, err = Evaluate(testView(t), `now.Year()`, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	assert.Equal(t, 2026, got)

	registry := NewFunctionRegistry()
	require.NoError(t, registry.Register("double", double))
	got, err = Evaluate(testView(t), `call("double", [2.5])`,
		WithEngine(EngineCEL),
		WithFunctionRegistry(registry),
	)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
}

func TestViewFunctions(t *testing.T) {
	view := testView(t)

	got, err := Evaluate(view, `claims(plugins["A"].groups["Main"].idPrefixes, "A-MAIN-lamp")`)
	require.NoError(t, err)
	assert.Equal(t, true, got)

	got, err = Evaluate(view, `claims(plugins["A"].matchingPrefixes, "b-lamp")`)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = Evaluate(view, `bestprefix(plugins["A"].groups["Main"].idPrefixes, "a-main-lamp")`, WithProgramCache(NewMemoryCache()))
	require.NoError(t, err)
	assert.Equal(t, "a-main-", got)

	got, err = Evaluate(view, `bestprefix(plugins["A"].groups["Main"].idPrefixes, "zzz")`)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = Evaluate(view, `anchor("centroid") + "/" + anchor(nil)`)
	require.NoError(t, err)
	assert.Equal(t, "center/nw", got)

	_, err = Evaluate(view, `anchor("middle")`)
	assert.Error(t, err)

	got, err = Evaluate(view, `call("fold", ["EDR"])`, WithEngine(EngineCEL))
	require.NoError(t, err)
	assert.Equal(t, "edr", got)

	got, err = Evaluate(view, `fold("X")`, WithCustomFunction("fold", func(...any) (any, error) { return "custom", nil }))
	require.NoError(t, err)
	assert.Equal(t, "custom", got)

	_, err = Evaluate(view, `fold("X")`, WithoutViewFunctions())
	assert.Error(t, err)
}

func TestViewFunctionArguments(t *testing.T) {
	registry := ViewFunctions()
	assert.Equal(t, []string{FuncAnchor, FuncBestPrefix, FuncClaims, FuncFold}, registry.Names())

	_, err := registry.Call(FuncFold)
	assert.Error(t, err)
	_, err = registry.Call(FuncFold, 3.0)
	assert.Error(t, err)
	_, err = registry.Call(FuncClaims, []any{map[string]any{"value": ""}}, "a")
	assert.Error(t, err)

	got, err := registry.Call(FuncClaims, []any{}, "a")
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = registry.Call(FuncBestPrefix, []any{"a-", map[string]any{"value": "a-b", "matchMode": "exact"}}, "A-B")
	require.NoError(t, err)
	assert.Equal(t, "a-b", got)

	extended := NewFunctionRegistry()
	extended.Extend(registry)
	assert.Equal(t, registry.Names(), extended.Names())
}

func TestProgramCacheReuse(t *testing.T) {
	cache := NewMemoryCache()
	view := testView(t)

	for i := 0; i < 3; i++ {
		_, err := Evaluate(view, `plugins["A"].name`, WithProgramCache(cache))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cache.Len())

	_, err := Evaluate(view, `plugins["A"].name`, WithProgramCache(cache), WithEngine(EngineCEL))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())
}

func TestCompiledRuleAcrossInputs(t *testing.T) {
	rule, err := NewExprEvaluator().Compile(`value * 2`)
	require.NoError(t, err)

	for _, tc := range []struct {
		value float64
		want  float64
	}{{1, 2}, {2.5, 5}} {
		got, err := rule.Evaluate(Input{Snapshot: map[string]any{"value": tc.value}})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	celRule, err := NewCELEvaluator().Compile(`value + 1`)
	require.NoError(t, err)
	got, err := celRule.Evaluate(Input{Snapshot: map[string]any{"value": int64(1)}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	_, err = NewExprEvaluator().Compile("")
	assert.ErrorIs(t, err, ErrEmptyExpression)
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	noop := func(...any) (any, error) { return nil, nil }

	require.NoError(t, registry.Register("Upper", noop))
	assert.Error(t, registry.Register("upper", noop))
	assert.Error(t, registry.Register("", noop))
	assert.Error(t, registry.Register("nilfn", nil))
	assert.Equal(t, []string{"upper"}, registry.Names())

	clone := registry.Clone()
	require.NoError(t, clone.Register("lower", noop))
	assert.Equal(t, []string{"upper"}, registry.Names())

	_, err := registry.Call("missing")
	assert.Error(t, err)

	var nilRegistry *FunctionRegistry
	_, err = nilRegistry.Call("x")
	assert.Error(t, err)
	assert.Nil(t, nilRegistry.Names())
}

func TestWrapEvaluationErrorFillsBlanks(t *testing.T) {
	base := errors.New("compile failure")
	existing := &EvaluationError{Engine: "expr", Err: base}

	err := wrapEvaluationError("cel", "rule", "user.json", existing)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "expr", existing.Engine)
	assert.Equal(t, "rule", existing.Expr)
	assert.Equal(t, "user.json", existing.Source)

	assert.Nil(t, wrapEvaluationError("expr", "x", "", nil))
	wrapped := wrapEvaluatorError("expr", errors.New("boom"))
	assert.True(t, strings.HasPrefix(wrapped.Error(), "query: expr evaluator:"))
}

func TestDescribe(t *testing.T) {
	descriptors := Describe(testView(t))

	byPath := make(map[string]string, len(descriptors))
	paths := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		byPath[descriptor.Path] = descriptor.Type
		paths = append(paths, descriptor.Path)
	}
	assert.IsNonDecreasing(t, paths)
	assert.Equal(t, "float64", byPath["plugins.A.groups.Main.offsetX"])
	assert.Equal(t, "string", byPath["plugins.A.groups.Main.idPrefixGroupAnchor"])
	assert.Equal(t, "[]string", byPath["plugins.A.groups.Main.idPrefixes"])
	assert.Equal(t, "[]string", byPath["plugins.A.matchingPrefixes"])
	assert.Equal(t, "string", byPath["meta._edit_nonce"])

	empty := Describe(groups.Merge(groups.NewDocument(), groups.NewDocument()))
	assert.Equal(t, []FieldDescriptor{
		{Path: "meta", Type: "map[string]any"},
		{Path: "plugins", Type: "map[string]any"},
	}, empty)
}
