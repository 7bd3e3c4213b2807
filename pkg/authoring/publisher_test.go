package authoring_test

import (
	"context"
	"errors"
	"testing"
	"time"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/goliatone/go-overlay-groups/pkg/activity"
	"github.com/goliatone/go-overlay-groups/pkg/authoring"
	"github.com/goliatone/go-overlay-groups/pkg/state"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippedPath = "/plugins/groups.json"

func newPublisher(t *testing.T) (*authoring.Publisher, *state.FileStore, *activity.CaptureHook) {
	t.Helper()
	store := state.NewFileStore(afero.NewMemMapFs())
	capture := &activity.CaptureHook{}
	clock := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	publisher := authoring.NewPublisher(shippedPath,
		authoring.WithStore(store),
		authoring.WithActivity(activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})),
		authoring.WithClock(func() time.Time { return clock }),
		authoring.WithActor("edr-plugin"),
	)
	return publisher, store, capture
}

func TestDefineOrUpdateGroupWritesShippedDocument(t *testing.T) {
	ctx := context.Background()
	publisher, store, capture := newPublisher(t)

	changed, err := publisher.DefineOrUpdateGroup(ctx, "EDR", "docking", groups.GroupDefinition{
		MatchingPrefixes: []string{"edr-"},
		IDPrefixes:       []groups.PrefixSpec{groups.StartsWith("edr-docking-"), groups.StartsWith("edr-docking-station-")},
		Fields:           map[string]any{groups.KeyAnchor: "se"},
	})
	require.NoError(t, err)
	assert.True(t, changed)

	doc, _, ok, err := store.Load(ctx, state.ShippedRef(shippedPath))
	require.NoError(t, err)
	require.True(t, ok)

	resolver := groups.NewResolver(groups.Merge(doc, groups.NewDocument()))
	resolution, ok := resolver.Resolve("edr-docking-station-bar", "")
	require.True(t, ok)
	require.NotNil(t, resolution.Group)
	assert.Equal(t, "docking", resolution.Group.Group.Label)
	assert.Equal(t, groups.AnchorSE, resolver.Anchor("EDR", "docking"))

	events := capture.Events()
	require.Len(t, events, 1)
	assert.Equal(t, activity.VerbGroupDefined, events[0].Verb)
	assert.Equal(t, "EDR/docking", events[0].ObjectID)
	assert.Equal(t, "edr-plugin", events[0].ActorID)
	assert.Equal(t, time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC), events[0].OccurredAt)
}

type savingStore struct {
	state.Store
	saved []state.Meta
}

func (s *savingStore) Save(ctx context.Context, ref state.Ref, doc groups.Document, meta state.Meta) (state.Meta, error) {
	out, err := s.Store.Save(ctx, ref, doc, meta)
	if err == nil {
		s.saved = append(s.saved, out)
	}
	return out, err
}

func TestDefineOrUpdateGroupPassesActorToStore(t *testing.T) {
	ctx := context.Background()
	store := &savingStore{Store: state.NewFileStore(afero.NewMemMapFs())}
	publisher := authoring.NewPublisher(shippedPath,
		authoring.WithStore(store),
		authoring.WithActor("edr-plugin"),
	)

	changed, err := publisher.DefineOrUpdateGroup(ctx, "EDR", "docking", groups.GroupDefinition{
		IDPrefixes: []groups.PrefixSpec{groups.StartsWith("edr-docking-")},
	})
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "edr-plugin", store.saved[0].Extra["defined_by"])
	assert.True(t, store.saved[0].Stamp.Exists)
}

func TestDefineOrUpdateGroupReportsNoChange(t *testing.T) {
	ctx := context.Background()
	publisher, store, capture := newPublisher(t)
	def := groups.GroupDefinition{IDPrefixes: []groups.PrefixSpec{groups.StartsWith("edr-alert-")}}

	changed, err := publisher.DefineOrUpdateGroup(ctx, "EDR", "alerts", def)
	require.NoError(t, err)
	require.True(t, changed)
	_, before, _, err := store.Load(ctx, state.ShippedRef(shippedPath))
	require.NoError(t, err)

	changed, err = publisher.DefineOrUpdateGroup(ctx, "edr", "alerts", def)
	require.NoError(t, err)
	assert.False(t, changed)

	_, after, _, err := store.Load(ctx, state.ShippedRef(shippedPath))
	require.NoError(t, err)
	assert.Equal(t, before.ETag, after.ETag)

	changed, err = publisher.DefineOrUpdateGroup(ctx, "EDR", "alerts", groups.GroupDefinition{
		Fields: map[string]any{groups.KeyOffsetY: -3.5},
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{activity.VerbGroupDefined, activity.VerbGroupUpdated}, capture.Verbs())
	assert.Equal(t, []string{groups.KeyOffsetY}, capture.Events()[1].Metadata["fields"])
}

func TestDefineOrUpdateGroupValidationIsFatal(t *testing.T) {
	ctx := context.Background()
	publisher, store, capture := newPublisher(t)

	_, err := publisher.DefineOrUpdateGroup(ctx, "EDR", "docking", groups.GroupDefinition{
		IDPrefixes: []groups.PrefixSpec{groups.StartsWith("edr-")},
		Fields:     map[string]any{groups.KeyPayloadJustification: "justified"},
	})
	require.Error(t, err)
	var validation *groups.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, groups.KeyPayloadJustification, validation.Kind)

	_, _, ok, err := store.Load(ctx, state.ShippedRef(shippedPath))
	require.NoError(t, err)
	assert.False(t, ok, "nothing must be written")
	assert.Empty(t, capture.Events())
}

func TestDefineOrUpdateGroupSurfacesBrokenShippedDocument(t *testing.T) {
	ctx := context.Background()
	publisher, store, _ := newPublisher(t)
	require.NoError(t, afero.WriteFile(store.Fs(), shippedPath, []byte(`{"EDR": `), 0o644))

	_, err := publisher.DefineOrUpdateGroup(ctx, "EDR", "docking", groups.GroupDefinition{
		IDPrefixes: []groups.PrefixSpec{groups.StartsWith("edr-")},
	})
	require.Error(t, err)
	assert.True(t, groups.IsDocumentError(err))
}
