// Package authoring is the write path plugins use to declare their groups in
// the shipped document.
//
// A Publisher is created once per process and passed to registration code;
// there is no package-level state.
package authoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/goliatone/go-overlay-groups/pkg/activity"
	"github.com/goliatone/go-overlay-groups/pkg/state"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithStore replaces the default OS-backed FileStore.
func WithStore(store state.Store) Option {
	return func(p *Publisher) {
		if store != nil {
			p.store = store
		}
	}
}

// WithLogger sets the publisher's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithActivity emits group.defined and group.updated events.
func WithActivity(emitter *activity.Emitter) Option {
	return func(p *Publisher) {
		p.activity = emitter
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithActor records who publishes on emitted events and as "defined_by" in
// the Meta passed to the store's Save.
func WithActor(actorID string) Option {
	return func(p *Publisher) {
		p.actor = actorID
	}
}

// Publisher writes group definitions into one shipped document.
type Publisher struct {
	store    state.Store
	ref      state.Ref
	logger   zerolog.Logger
	activity *activity.Emitter
	now      func() time.Time
	actor    string

	mu sync.Mutex
}

// NewPublisher returns a publisher for the shipped document at path.
func NewPublisher(path string, opts ...Option) *Publisher {
	p := &Publisher{
		ref:    state.ShippedRef(path),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.store == nil {
		p.store = state.NewFileStore(afero.NewOsFs())
	}
	return p
}

// DefineOrUpdateGroup validates def strictly and stores it as group label of
// plugin. It reports whether the shipped document changed. Invalid input
// fails with a *groups.ValidationError and writes nothing.
func (p *Publisher) DefineOrUpdateGroup(ctx context.Context, plugin, label string, def groups.GroupDefinition) (bool, error) {
	result, err := p.Define(ctx, plugin, label, def)
	if err != nil {
		return false, err
	}
	return result.Changed, nil
}

// Define is DefineOrUpdateGroup returning the full result.
func (p *Publisher) Define(ctx context.Context, plugin, label string, def groups.GroupDefinition) (groups.DefineResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result groups.DefineResult
	meta := state.Meta{}
	if p.actor != "" {
		meta.Extra = map[string]string{"defined_by": p.actor}
	}
	_, saved, changed, err := state.Mutate(ctx, p.store, p.ref, meta, func(doc groups.Document) (groups.Document, bool, error) {
		out, err := groups.DefineGroup(doc, plugin, label, def)
		if err != nil {
			return groups.Document{}, false, err
		}
		result = out
		return out.Document, out.Changed, nil
	})
	if err != nil {
		if groups.IsValidationError(err) {
			p.logger.Warn().Err(err).Str("plugin", plugin).Str("group", label).Msg("group definition rejected")
			return groups.DefineResult{}, err
		}
		return groups.DefineResult{}, fmt.Errorf("authoring: define %s/%s: %w", plugin, label, err)
	}
	if !changed {
		p.logger.Debug().Str("plugin", result.Plugin).Str("group", label).Msg("group definition unchanged")
		return result, nil
	}

	p.logger.Info().
		Str("plugin", result.Plugin).
		Str("group", label).
		Bool("created", result.Created).
		Strs("fields", result.Updated).
		Str("etag", saved.ETag).
		Msg("group definition published")

	input := activity.GroupEventInput{
		ActorID:    p.actor,
		Plugin:     result.Plugin,
		Group:      label,
		Path:       p.ref.Path,
		Fields:     result.Updated,
		Prefixes:   prefixValues(result.Group.Fields.IDPrefixes),
		OccurredAt: p.now(),
	}
	event := activity.BuildGroupUpdatedEvent(input)
	if result.Created {
		event = activity.BuildGroupDefinedEvent(input)
	}
	_ = p.activity.Emit(ctx, event)
	return result, nil
}

func prefixValues(entries []groups.PrefixEntry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Value())
	}
	return out
}
