package query

import (
	"sync"
	"time"
)

// Input carries what an expression can see.
type Input struct {
	// Snapshot is bound key by key into the evaluator environment, so
	// "plugins" and "meta" become top level names.
	Snapshot map[string]any
	Now      *time.Time
	Args     map[string]any
	// Source labels the view in errors and logs, usually the user path.
	Source string
}

func (in Input) withDefaults() Input {
	if in.Now == nil {
		now := time.Now()
		in.Now = &now
	}
	if in.Snapshot == nil {
		in.Snapshot = map[string]any{}
	}
	if in.Args == nil {
		in.Args = map[string]any{}
	}
	return in
}

func (in Input) timestamp() time.Time {
	return *in.withDefaults().Now
}

func (in Input) sourceLabel() string {
	if in.Source != "" {
		return in.Source
	}
	return "merged"
}

// Evaluator executes expressions against an Input.
type Evaluator interface {
	Evaluate(in Input, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule is a reusable expression program.
type CompiledRule interface {
	Evaluate(in Input) (any, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryCache is a ProgramCache safe for concurrent use.
type MemoryCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{programs: make(map[string]any)}
}

func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.programs[key]
	return value, ok
}

func (c *MemoryCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.programs == nil {
		c.programs = make(map[string]any)
	}
	c.programs[key] = value
}

// Len reports how many programs are cached.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}

type engineNamer interface {
	engine() string
}

func engineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	if named, ok := e.(engineNamer); ok {
		return named.engine()
	}
	return "custom"
}
