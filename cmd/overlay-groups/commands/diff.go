package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/goliatone/go-overlay-groups/pkg/state"
)

const nonceAuto = "auto"

func newDiffCommand(a *app) *cobra.Command {
	var (
		mergedPath string
		nonce      string
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Print the minimal user document for a merged document",
		Long: `Read a full merged document and print the smallest user document that
reproduces it over the shipped document. Pass --nonce auto to stamp a fresh
_edit_nonce, or any other value to stamp that value.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireShipped(); err != nil {
				return err
			}
			if mergedPath == "" {
				return errors.New("--merged is required")
			}
			shipped, err := a.loadDocument(cmd, state.ShippedRef(a.shipped))
			if err != nil {
				return err
			}
			data, err := afero.ReadFile(a.fs, mergedPath)
			if err != nil {
				return fmt.Errorf("read merged document: %w", err)
			}
			merged, err := groups.ParseLayerDocument(groups.LayerUser, mergedPath, data)
			if err != nil {
				return err
			}
			diff, err := groups.Diff(shipped, merged, diffOptions(a, nonce)...)
			if err != nil {
				return err
			}
			return a.render(diff)
		},
	}
	cmd.Flags().StringVar(&mergedPath, "merged", "", "merged document to minimize")
	cmd.Flags().StringVar(&nonce, "nonce", "", `edit nonce to stamp ("auto" generates one)`)
	return cmd
}

func newShrinkCommand(a *app) *cobra.Command {
	var (
		write    bool
		showDiff bool
	)
	cmd := &cobra.Command{
		Use:   "shrink",
		Short: "Drop user overrides that repeat shipped values",
		Long: `Re-minimize the user document against the current shipped document.
Without --write the result is printed. --show-diff prints a line patch of
the user document instead. --write replaces the user file unless it changed
while shrink was running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requirePaths(); err != nil {
				return err
			}
			store := a.store()
			shipped, err := a.loadDocument(cmd, state.ShippedRef(a.shipped))
			if err != nil {
				return err
			}
			userRef := state.UserRef(a.user)
			user, meta, _, err := store.Load(cmd.Context(), userRef)
			if err != nil {
				return err
			}
			if user.Len() == 0 {
				user = groups.NewDocument()
			}
			shrunk := groups.Shrink(shipped, user, groups.WithLogger(a.logger))

			if showDiff {
				before, _ := user.Indent()
				after, _ := shrunk.Indent()
				if _, err := fmt.Fprint(a.stdout, lineDiff(a.user, string(before), string(after))); err != nil {
					return err
				}
			} else if err := a.render(shrunk); err != nil {
				return err
			}
			if !write || shrunk.Equal(user) {
				return nil
			}
			saved, err := store.Save(cmd.Context(), userRef, shrunk, state.Meta{ETag: meta.ETag, Absent: meta.Absent})
			if err != nil {
				return fmt.Errorf("write %s: %w", a.user, err)
			}
			a.logger.Info().Str("path", a.user).Str("etag", saved.ETag).Msg("user document shrunk")
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "replace the user document")
	cmd.Flags().BoolVar(&showDiff, "show-diff", false, "print a line patch instead of the document")
	return cmd
}

func diffOptions(a *app, nonce string) []groups.Option {
	opts := []groups.Option{groups.WithLogger(a.logger)}
	switch nonce {
	case "":
	case nonceAuto:
		opts = append(opts, groups.WithEditNonce(uuid.NewString()))
	default:
		opts = append(opts, groups.WithEditNonce(nonce))
	}
	return opts
}

// loadDocument reads ref, treating a missing file as an empty document.
func (a *app) loadDocument(cmd *cobra.Command, ref state.Ref) (groups.Document, error) {
	doc, _, ok, err := a.store().Load(cmd.Context(), ref)
	if err != nil {
		return groups.Document{}, err
	}
	if !ok {
		return groups.NewDocument(), nil
	}
	return doc, nil
}

// lineDiff renders a patch of before and after, or an empty string when
// they are equal.
func lineDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", path))
	builder.WriteString(fmt.Sprintf("+++ %s\n", path))
	for _, d := range diffs {
		marker := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			marker = "+"
		case diffmatchpatch.DiffDelete:
			marker = "-"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			builder.WriteString(marker)
			builder.WriteString(line)
		}
	}
	return builder.String()
}
