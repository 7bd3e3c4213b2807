package query

// Names every engine binds besides the snapshot. Snapshot keys with these
// names are not bound.
const (
	BindingNow  = "now"
	BindingArgs = "args"
	BindingCall = "call"
)

func reservedBinding(name string) bool {
	switch name {
	case BindingNow, BindingArgs, BindingCall:
		return true
	}
	return false
}

// scriptBindings lays out the names an expr or JS expression sees: the
// snapshot's top level keys ("plugins", "meta"), now, args, and with a
// registry also call plus each helper under its own name.
func scriptBindings(in Input, registry *FunctionRegistry) map[string]any {
	bindings := make(map[string]any, len(in.Snapshot)+3)
	for key, value := range in.Snapshot {
		if reservedBinding(key) {
			continue
		}
		bindings[key] = value
	}
	bindings[BindingNow] = in.timestamp()
	bindings[BindingArgs] = in.Args
	if registry == nil {
		return bindings
	}
	bindings[BindingCall] = func(name string, arguments ...any) (any, error) {
		return registry.Call(name, arguments...)
	}
	for _, name := range registry.Names() {
		if _, taken := bindings[name]; taken {
			continue
		}
		bindings[name] = registryFunction(registry, name)
	}
	return bindings
}

func registryFunction(registry *FunctionRegistry, name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return registry.Call(name, arguments...)
	}
}

type jsEvaluatorConfig struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// JSEvaluatorOption configures the JS evaluator.
type JSEvaluatorOption func(*jsEvaluatorConfig)

// JSWithProgramCache shares compiled goja programs across evaluations.
func JSWithProgramCache(cache ProgramCache) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.cache = cache
	}
}

// JSWithFunctionRegistry binds registry helpers as globals and behind call.
func JSWithFunctionRegistry(registry *FunctionRegistry) JSEvaluatorOption {
	return func(cfg *jsEvaluatorConfig) {
		cfg.registry = registry.Clone()
	}
}

func newJSEvaluatorConfig(opts []JSEvaluatorOption) jsEvaluatorConfig {
	cfg := jsEvaluatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
