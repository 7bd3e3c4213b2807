// Package commands provides the overlay-groups CLI.
package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-overlay-groups/pkg/activity"
	"github.com/goliatone/go-overlay-groups/pkg/loader"
	"github.com/goliatone/go-overlay-groups/pkg/state"
)

// Version is set at build time.
var Version = "dev"

// Environment fallbacks for --shipped and --user.
const (
	EnvShipped = "OVERLAY_GROUPS_SHIPPED"
	EnvUser    = "OVERLAY_GROUPS_USER"
)

// Option configures the root command. Tests use it to swap the filesystem
// and output streams.
type Option func(*app)

// WithFs runs every command against fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(a *app) {
		if fsys != nil {
			a.fs = fsys
		}
	}
}

// WithIO redirects command output and logs.
func WithIO(stdout, stderr io.Writer) Option {
	return func(a *app) {
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// WithEnv replaces os.Getenv for the path fallbacks.
func WithEnv(lookup func(string) string) Option {
	return func(a *app) {
		if lookup != nil {
			a.getenv = lookup
		}
	}
}

// WithClock overrides timestamps on written documents and events.
func WithClock(now func() time.Time) Option {
	return func(a *app) {
		if now != nil {
			a.now = now
		}
	}
}

type app struct {
	shipped  string
	user     string
	output   string
	logLevel string
	envFile  string
	actor    string

	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time

	logger   zerolog.Logger
	activity *activity.Emitter
}

// Execute runs the CLI with the OS environment.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	root := &cobra.Command{
		Use:   "overlay-groups",
		Short: "Inspect and edit two-layer overlay group configuration",
		Long: `overlay-groups merges a shipped group document with a user override
document, writes minimal user overrides, and resolves payload ids to the
plugin group that renders them.

Paths come from --shipped/--user, then OVERLAY_GROUPS_SHIPPED and
OVERLAY_GROUPS_USER, then the same keys in the --env-file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.shipped, "shipped", "", "shipped group document")
	flags.StringVar(&a.user, "user", "", "user override document")
	flags.StringVarP(&a.output, "output", "o", "json", "output format (json|yaml)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file with path fallbacks")
	flags.StringVar(&a.actor, "actor", "", "actor id recorded on activity events")

	root.AddCommand(
		newMergeCommand(a),
		newDiffCommand(a),
		newShrinkCommand(a),
		newResolveCommand(a),
		newDefineCommand(a),
		newQueryCommand(a),
		newExplainCommand(a),
		newWatchCommand(a),
		newSchemaCommand(a),
	)
	return root
}

func (a *app) setup() error {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(a.logLevel)))
	if err != nil || level == zerolog.NoLevel {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: a.stderr, TimeFormat: time.RFC3339, NoColor: true}).
		Level(level).
		With().
		Timestamp().
		Logger()

	switch a.output {
	case "json", "yaml":
	default:
		return fmt.Errorf("invalid --output %q: want json or yaml", a.output)
	}

	dotenv, err := a.readEnvFile()
	if err != nil {
		return err
	}
	a.shipped = firstNonEmpty(a.shipped, a.getenv(EnvShipped), dotenv[EnvShipped])
	a.user = firstNonEmpty(a.user, a.getenv(EnvUser), dotenv[EnvUser])

	a.activity = activity.NewEmitter(
		activity.Hooks{activity.HookFunc(a.logActivity)},
		activity.Config{Enabled: true, ActorID: a.actor},
		activity.WithLogger(a.logger),
		activity.WithClock(a.now),
	)
	return nil
}

// readEnvFile parses the dotenv file without touching the process
// environment. A missing file is not an error.
func (a *app) readEnvFile() (map[string]string, error) {
	if strings.TrimSpace(a.envFile) == "" {
		return nil, nil
	}
	data, err := afero.ReadFile(a.fs, a.envFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	values, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse env file %s: %w", a.envFile, err)
	}
	return values, nil
}

func (a *app) logActivity(_ context.Context, event activity.Event) error {
	a.logger.Info().
		Str("verb", event.Verb).
		Str("object_id", event.ObjectID).
		Str("actor", event.ActorID).
		Msg("activity")
	return nil
}

func (a *app) store() *state.FileStore {
	return state.NewFileStore(a.fs, state.WithClock(a.now))
}

func (a *app) requireShipped() error {
	if a.shipped == "" {
		return fmt.Errorf("no shipped document: pass --shipped or set %s", EnvShipped)
	}
	return nil
}

func (a *app) requirePaths() error {
	if err := a.requireShipped(); err != nil {
		return err
	}
	if a.user == "" {
		return fmt.Errorf("no user document: pass --user or set %s", EnvUser)
	}
	return nil
}

func (a *app) engine() (*loader.Engine, error) {
	if err := a.requirePaths(); err != nil {
		return nil, err
	}
	return loader.New(a.shipped, a.user,
		loader.WithStore(a.store()),
		loader.WithLogger(a.logger),
		loader.WithActivity(a.activity),
	), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
