package query

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	groups "github.com/goliatone/go-overlay-groups"
)

// Function is a helper callable from expressions.
type Function func(args ...any) (any, error)

// View helper names. They are registered for every Evaluate call unless
// WithoutViewFunctions is given.
const (
	FuncFold       = "fold"
	FuncClaims     = "claims"
	FuncBestPrefix = "bestprefix"
	FuncAnchor     = "anchor"
)

// FunctionRegistry stores helpers keyed by lower-cased name.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register stores fn under name. Names are case-insensitive and unique.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("query: function %q is nil", name)
	}
	if name == "" {
		return fmt.Errorf("query: function name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	key := strings.ToLower(name)
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("query: function %q already registered", name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{
		functions: make(map[string]Function, len(r.functions)),
	}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Extend copies every function of other into r, replacing same-named ones.
func (r *FunctionRegistry) Extend(other *FunctionRegistry) {
	if r == nil || other == nil {
		return
	}
	incoming := other.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function, len(incoming.functions))
	}
	for name, fn := range incoming.functions {
		r.functions[name] = fn
	}
}

// Call executes the function registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("query: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("query: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns registered names sorted alphabetically.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ViewFunctions returns a registry holding the helpers over snapshot values:
//
//	fold(s)                  case-folded s
//	claims(prefixes, id)     whether any prefix entry matches id
//	bestprefix(prefixes, id) value of the winning entry, or nil
//	anchor(v)                canonical anchor token, nw when v is null
//
// prefixes is an idPrefixes or matchingPrefixes list as found in the snapshot.
func ViewFunctions() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register(FuncFold, foldFunction)
	_ = registry.Register(FuncClaims, claimsFunction)
	_ = registry.Register(FuncBestPrefix, bestPrefixFunction)
	_ = registry.Register(FuncAnchor, anchorFunction)
	return registry
}

func foldFunction(args ...any) (any, error) {
	if err := arity(FuncFold, args, 1); err != nil {
		return nil, err
	}
	value, err := stringArg(FuncFold, args[0])
	if err != nil {
		return nil, err
	}
	return groups.Fold(value), nil
}

func claimsFunction(args ...any) (any, error) {
	_, found, err := bestPrefix(FuncClaims, args)
	if err != nil {
		return nil, err
	}
	return found, nil
}

func bestPrefixFunction(args ...any) (any, error) {
	match, found, err := bestPrefix(FuncBestPrefix, args)
	if err != nil || !found {
		return nil, err
	}
	return match.Entry.Value(), nil
}

func bestPrefix(name string, args []any) (groups.PrefixMatch, bool, error) {
	if err := arity(name, args, 2); err != nil {
		return groups.PrefixMatch{}, false, err
	}
	id, err := stringArg(name, args[1])
	if err != nil {
		return groups.PrefixMatch{}, false, err
	}
	if list, ok := args[0].([]any); ok && len(list) == 0 {
		return groups.PrefixMatch{}, false, nil
	}
	outcome := groups.NormalizePrefixes(args[0])
	if err := outcome.Err(); err != nil {
		return groups.PrefixMatch{}, false, fmt.Errorf("query: %s: %w", name, err)
	}
	entries, _ := outcome.Value()
	match, found := groups.BestMatch(id, entries)
	return match, found, nil
}

func anchorFunction(args ...any) (any, error) {
	if err := arity(FuncAnchor, args, 1); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return string(groups.DefaultAnchor), nil
	}
	outcome := groups.NormalizeAnchor(args[0])
	if err := outcome.Err(); err != nil {
		return nil, fmt.Errorf("query: %s: %w", FuncAnchor, err)
	}
	anchor, _ := outcome.Value()
	return string(anchor), nil
}

func arity(name string, args []any, want int) error {
	if len(args) != want {
		return fmt.Errorf("query: %s expects %d arguments, got %d", name, want, len(args))
	}
	return nil
}

func stringArg(name string, value any) (string, error) {
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("query: %s expects a string, got %T", name, value)
	}
	return text, nil
}
