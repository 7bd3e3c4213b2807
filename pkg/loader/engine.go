// Package loader keeps a merged overlay view in sync with the shipped and
// user documents on disk.
//
// The Engine caches one (signature, merged view) pair guarded by a mutex.
// ReloadIfChanged is a polled, synchronous check; callers schedule it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/goliatone/go-overlay-groups/pkg/activity"
	"github.com/goliatone/go-overlay-groups/pkg/state"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ErrNotLoaded is returned by operations that need a successful load first.
var ErrNotLoaded = errors.New("loader: no document has been loaded")

// State is the observable freshness of the served view.
type State int

const (
	// StateStale means the last load attempt failed, or none succeeded yet.
	// The engine serves the last good view.
	StateStale State = iota
	// StateFresh means the served view matches the files last looked at.
	StateFresh
)

func (s State) String() string {
	if s == StateFresh {
		return "fresh"
	}
	return "stale"
}

// Signature is the change indicator for the two documents.
type Signature struct {
	Shipped state.Stamp `json:"shipped"`
	User    state.Stamp `json:"user"`
}

func (s Signature) String() string {
	return s.Shipped.String() + "|" + s.User.String()
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore replaces the default OS-backed FileStore.
func WithStore(store state.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}

// WithLogger sets the logger used for skipped fields and document errors.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithActivity emits reload, stale and save events.
func WithActivity(emitter *activity.Emitter) Option {
	return func(e *Engine) {
		e.activity = emitter
	}
}

// WithNonceSource sets the generator for `_edit_nonce` on saves. Returning
// an empty string omits the key. Defaults to random UUIDs.
func WithNonceSource(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.nonce = next
		}
	}
}

// Engine loads, merges and caches the two overlay documents.
type Engine struct {
	store    state.Store
	shipped  state.Ref
	user     state.Ref
	logger   zerolog.Logger
	activity *activity.Emitter
	nonce    func() string

	mu         sync.Mutex
	attempted  bool
	signature  Signature
	reported   *Signature
	state      State
	lastErr    error
	good       bool
	shippedDoc groups.Document
	userMeta   state.Meta
	view       groups.MergedView
	resolver   *groups.Resolver
}

// New returns an engine for the given document paths. Nothing is read until
// LoadAndMerge or ReloadIfChanged runs.
func New(shippedPath, userPath string, opts ...Option) *Engine {
	e := &Engine{
		shipped: state.ShippedRef(shippedPath),
		user:    state.UserRef(userPath),
		logger:  zerolog.Nop(),
		nonce:   uuid.NewString,
		state:   StateStale,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.store == nil {
		e.store = state.NewFileStore(afero.NewOsFs())
	}
	e.shippedDoc = groups.NewDocument()
	e.resolver = groups.NewResolver(e.view)
	return e
}

// LoadAndMerge reads both documents and replaces the view, regardless of the
// signature. On failure the last good view is kept and returned together with
// the error.
func (e *Engine) LoadAndMerge(ctx context.Context) (groups.MergedView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signature, err := e.stat(ctx)
	if err != nil {
		return e.view, err
	}
	err = e.reloadLocked(ctx, signature)
	return e.view, err
}

// ReloadIfChanged reloads only when either document's stamp changed since the
// last attempt. It reports whether the served view was replaced.
func (e *Engine) ReloadIfChanged(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signature, err := e.stat(ctx)
	if err != nil {
		return false, err
	}
	if e.attempted && signature == e.signature {
		return false, nil
	}
	if err := e.reloadLocked(ctx, signature); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) stat(ctx context.Context) (Signature, error) {
	shipped, err := e.store.Stat(ctx, e.shipped)
	if err != nil {
		return Signature{}, fmt.Errorf("loader: stat shipped: %w", err)
	}
	user, err := e.store.Stat(ctx, e.user)
	if err != nil {
		return Signature{}, fmt.Errorf("loader: stat user: %w", err)
	}
	return Signature{Shipped: shipped, User: user}, nil
}

// reloadLocked records signature before reading so a broken file with an
// unchanged stamp is not retried on every poll.
func (e *Engine) reloadLocked(ctx context.Context, signature Signature) error {
	e.attempted = true
	e.signature = signature

	shipped, _, err := e.load(ctx, e.shipped)
	if err == nil {
		var user groups.Document
		var userMeta state.Meta
		user, userMeta, err = e.load(ctx, e.user)
		if err == nil {
			e.apply(ctx, signature, shipped, user, userMeta)
			return nil
		}
	}
	e.fail(ctx, signature, err)
	return err
}

func (e *Engine) load(ctx context.Context, ref state.Ref) (groups.Document, state.Meta, error) {
	doc, meta, ok, err := e.store.Load(ctx, ref)
	if err != nil {
		if !groups.IsDocumentError(err) {
			err = &groups.DocumentError{Layer: ref.Layer, Path: ref.Path, Err: err}
		}
		return groups.Document{}, meta, err
	}
	if !ok {
		return groups.NewDocument(), state.Meta{Absent: true}, nil
	}
	return doc, meta, nil
}

func (e *Engine) apply(ctx context.Context, signature Signature, shipped, user groups.Document, userMeta state.Meta) {
	e.shippedDoc = shipped
	e.userMeta = userMeta
	e.view = groups.Merge(shipped, user, groups.WithLogger(e.logger))
	e.resolver = groups.NewResolver(e.view)
	e.good = true
	e.state = StateFresh
	e.lastErr = nil
	e.reported = nil

	e.logger.Debug().
		Str("signature", signature.String()).
		Int("plugins", len(e.view.Plugins)).
		Msg("overlay groups reloaded")
	_ = e.activity.Emit(ctx, activity.BuildReloadedEvent(activity.ReloadEventInput{
		ShippedPath: e.shipped.Path,
		UserPath:    e.user.Path,
		Signature:   signature.String(),
		Plugins:     len(e.view.Plugins),
	}))
}

func (e *Engine) fail(ctx context.Context, signature Signature, err error) {
	e.state = StateStale
	e.lastErr = err
	if e.reported != nil && *e.reported == signature {
		return
	}
	reported := signature
	e.reported = &reported

	e.logger.Error().
		Err(err).
		Str("signature", signature.String()).
		Bool("serving_last_good", e.good).
		Msg("overlay groups reload failed")
	_ = e.activity.Emit(ctx, activity.BuildStaleEvent(activity.ReloadEventInput{
		ShippedPath: e.shipped.Path,
		UserPath:    e.user.Path,
		Signature:   signature.String(),
		Plugins:     len(e.view.Plugins),
		Err:         err,
	}))
}

// View returns the served merged view.
func (e *Engine) View() groups.MergedView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Resolver returns a resolver over the served view. The resolver is rebuilt
// on every successful reload; earlier resolvers keep their snapshot.
func (e *Engine) Resolver() *groups.Resolver {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolver
}

// Shipped returns the shipped document behind the served view.
func (e *Engine) Shipped() groups.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shippedDoc.Clone()
}

// State reports whether the served view is fresh or stale.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Signature returns the signature of the last load attempt.
func (e *Engine) Signature() Signature {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signature
}

// LastError returns the error of the last failed attempt while stale.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Paths returns the shipped and user document paths.
func (e *Engine) Paths() (string, string) {
	return e.shipped.Path, e.user.Path
}

// SaveOption customises SaveUserOverrides.
type SaveOption func(*saveConfig)

type saveConfig struct {
	nonce   *string
	actorID string
}

// WithEditNonce uses nonce instead of a generated one. An empty nonce omits
// the key.
func WithEditNonce(nonce string) SaveOption {
	return func(cfg *saveConfig) {
		cfg.nonce = &nonce
	}
}

// WithActor records who saved on the emitted event.
func WithActor(actorID string) SaveOption {
	return func(cfg *saveConfig) {
		cfg.actorID = actorID
	}
}

// SaveUserOverrides writes the minimal user document that reproduces merged
// over the current shipped document. The write is refused with
// state.ErrETagMismatch when the user file changed since the last good load,
// including when it was created after loading found none.
// On success the served view becomes the merge of shipped and the written
// document.
func (e *Engine) SaveUserOverrides(ctx context.Context, merged groups.MergedView, opts ...SaveOption) (groups.Document, error) {
	cfg := saveConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.good {
		return groups.Document{}, ErrNotLoaded
	}

	nonce := ""
	if cfg.nonce != nil {
		nonce = *cfg.nonce
	} else {
		nonce = e.nonce()
	}
	var diffOpts []groups.Option
	if nonce != "" {
		diffOpts = append(diffOpts, groups.WithEditNonce(nonce))
	}
	diff := groups.DiffView(e.shippedDoc, merged, diffOpts...)

	saved, err := e.store.Save(ctx, e.user, diff, state.Meta{
		ETag:   e.userMeta.ETag,
		Absent: e.userMeta.Absent,
	})
	if err != nil {
		return groups.Document{}, fmt.Errorf("loader: save user overrides: %w", err)
	}

	e.userMeta = saved
	e.view = groups.Merge(e.shippedDoc, diff, groups.WithLogger(e.logger))
	e.resolver = groups.NewResolver(e.view)
	e.signature.User = saved.Stamp
	e.state = StateFresh
	e.lastErr = nil
	e.reported = nil

	e.logger.Info().
		Str("path", e.user.Path).
		Str("etag", saved.ETag).
		Bool("empty", groups.IsEmptyDiff(diff)).
		Msg("user overrides saved")
	_ = e.activity.Emit(ctx, activity.BuildOverridesSavedEvent(activity.SaveEventInput{
		ActorID:   cfg.actorID,
		Path:      e.user.Path,
		ETag:      saved.ETag,
		EditNonce: nonce,
		Plugins:   countPlugins(diff),
		Empty:     groups.IsEmptyDiff(diff),
	}))
	return diff, nil
}

func countPlugins(doc groups.Document) int {
	count := 0
	for _, key := range doc.Keys() {
		if !groups.IsMetaKey(key) {
			count++
		}
	}
	return count
}
