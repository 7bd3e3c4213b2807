package activity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultChannel is stamped on events that do not name a channel.
const DefaultChannel = "overlay-groups"

// Config controls emission defaults.
type Config struct {
	Enabled bool
	Channel string
	// ActorID is stamped on events that do not carry one.
	ActorID string
}

// Emitter applies defaults and fans events out to hooks. A nil *Emitter
// discards everything, so components can hold one unconditionally.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	actorID string
	logger  zerolog.Logger
	now     func() time.Time
}

// EmitterOption customises an Emitter.
type EmitterOption func(*Emitter)

// WithLogger reports hook failures to logger.
func WithLogger(logger zerolog.Logger) EmitterOption {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEmitter builds an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config, opts ...EmitterOption) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	filtered := make(Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			filtered = append(filtered, hook)
		}
	}
	e := &Emitter{
		hooks:   filtered,
		enabled: cfg.Enabled && len(filtered) > 0,
		channel: channel,
		actorID: strings.TrimSpace(cfg.ActorID),
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Enabled reports whether emissions are attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Emit forwards event to the hooks. Failures are logged and returned.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if strings.TrimSpace(event.ActorID) == "" {
		event.ActorID = e.actorID
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	err := e.hooks.Notify(ctx, event)
	if err != nil {
		e.logger.Warn().Err(err).Str("verb", event.Verb).Str("object_id", event.ObjectID).Msg("activity hook failed")
	}
	return err
}

// CaptureHook records events for assertions in tests.
type CaptureHook struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// Notify records the event and returns the configured error.
func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, NormalizeEvent(event))
	return h.Err
}

// Events returns a copy of the recorded events.
func (h *CaptureHook) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.events...)
}

// Verbs returns the recorded verbs in order.
func (h *CaptureHook) Verbs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	verbs := make([]string, 0, len(h.events))
	for _, event := range h.events {
		verbs = append(verbs, event.Verb)
	}
	return verbs
}
