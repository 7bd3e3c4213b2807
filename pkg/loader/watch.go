package loader

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is used when no interval is configured.
const DefaultPollInterval = 2 * time.Second

// Transition is reported after every reload check that did something.
type Transition struct {
	From      State
	To        State
	Changed   bool
	Signature Signature
	Err       error
}

// Watcher schedules ReloadIfChanged from a ticker and, optionally, from
// filesystem notifications on the documents' directories.
type Watcher struct {
	engine   *Engine
	interval time.Duration
	notify   bool
	logger   zerolog.Logger
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithInterval sets the poll interval.
func WithInterval(interval time.Duration) WatchOption {
	return func(w *Watcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithNotify enables fsnotify triggers. Only meaningful for OS-backed stores.
func WithNotify(enabled bool) WatchOption {
	return func(w *Watcher) {
		w.notify = enabled
	}
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(logger zerolog.Logger) WatchOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher returns a watcher for engine.
func NewWatcher(engine *Engine, opts ...WatchOption) *Watcher {
	w := &Watcher{engine: engine, interval: DefaultPollInterval, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run checks once immediately and then on every tick or relevant filesystem
// event until ctx is done. fn receives a Transition for each check that
// replaced the view or failed.
func (w *Watcher) Run(ctx context.Context, fn func(Transition)) error {
	var events <-chan fsnotify.Event
	var errs <-chan error
	targets := map[string]struct{}{}
	if w.notify {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()
		shipped, user := w.engine.Paths()
		for _, path := range []string{shipped, user} {
			// Watch directories: atomic saves replace the file itself.
			dir := filepath.Dir(path)
			if err := watcher.Add(dir); err != nil {
				w.logger.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory, polling only")
				continue
			}
			targets[filepath.Clean(path)] = struct{}{}
		}
		events = watcher.Events
		errs = watcher.Errors
	}

	w.check(ctx, fn)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.check(ctx, fn)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if _, relevant := targets[filepath.Clean(ev.Name)]; !relevant {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.check(ctx, fn)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error().Err(err).Msg("overlay groups watcher error")
		}
	}
}

// Check runs one reload check and reports the transition, if any.
func (w *Watcher) Check(ctx context.Context) (Transition, bool) {
	from := w.engine.State()
	changed, err := w.engine.ReloadIfChanged(ctx)
	if !changed && err == nil {
		return Transition{}, false
	}
	return Transition{
		From:      from,
		To:        w.engine.State(),
		Changed:   changed,
		Signature: w.engine.Signature(),
		Err:       err,
	}, true
}

func (w *Watcher) check(ctx context.Context, fn func(Transition)) {
	transition, ok := w.Check(ctx)
	if ok && fn != nil {
		fn(transition)
	}
}
