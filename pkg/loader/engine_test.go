package loader_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	groups "github.com/goliatone/go-overlay-groups"
	"github.com/goliatone/go-overlay-groups/pkg/activity"
	"github.com/goliatone/go-overlay-groups/pkg/loader"
	"github.com/goliatone/go-overlay-groups/pkg/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	shippedPath = "/etc/overlay/groups.json"
	userPath    = "/home/u/overlay/groups.user.json"
)

const shippedFixture = `{
  "A": {
    "matchingPrefixes": ["a-"],
    "idPrefixGroups": {
      "Main": {"idPrefixes": ["a-main-"], "offsetX": 1}
    }
  }
}`

type harness struct {
	store   *state.MemoryStore
	engine  *loader.Engine
	logs    *bytes.Buffer
	capture *activity.CaptureHook
}

func newHarness(t *testing.T, opts ...loader.Option) harness {
	t.Helper()
	h := harness{
		store:   state.NewMemoryStore(nil),
		logs:    &bytes.Buffer{},
		capture: &activity.CaptureHook{},
	}
	base := []loader.Option{
		loader.WithStore(h.store),
		loader.WithLogger(zerolog.New(h.logs)),
		loader.WithActivity(activity.NewEmitter(activity.Hooks{h.capture}, activity.Config{Enabled: true})),
	}
	h.engine = loader.New(shippedPath, userPath, append(base, opts...)...)
	return h
}

func (h harness) put(t *testing.T, ref state.Ref, data string) {
	t.Helper()
	_, err := h.store.Put(ref, []byte(data))
	require.NoError(t, err)
}

func TestLoadMissingDocumentsIsEmptyAndFresh(t *testing.T) {
	h := newHarness(t)

	view, err := h.engine.LoadAndMerge(context.Background())
	require.NoError(t, err)
	assert.Empty(t, view.Plugins)
	assert.Equal(t, loader.StateFresh, h.engine.State())
	assert.Equal(t, "missing|missing", h.engine.Signature().String())
}

func TestReloadIfChangedTracksSignature(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.put(t, state.ShippedRef(shippedPath), shippedFixture)

	assert.Equal(t, loader.StateStale, h.engine.State(), "nothing loaded yet")

	changed, err := h.engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed, "first check always loads")

	changed, err = h.engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "unchanged files must not reload")

	h.put(t, state.UserRef(userPath), `{"A":{"idPrefixGroups":{"Main":{"offsetY":2}}}}`)
	changed, err = h.engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	x, y := h.engine.Resolver().Offset("a", "Main")
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 2.0, y)
	assert.Equal(t, loader.StateFresh, h.engine.State())
}

func TestMalformedUserKeepsLastGoodViewAndGoesStale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.put(t, state.ShippedRef(shippedPath), shippedFixture)
	h.put(t, state.UserRef(userPath), `{"A":{"idPrefixGroups":{"Main":{"offsetY":2}}}}`)

	good, err := h.engine.LoadAndMerge(ctx)
	require.NoError(t, err)

	h.put(t, state.UserRef(userPath), `{"A": {`)
	changed, err := h.engine.ReloadIfChanged(ctx)
	require.Error(t, err)
	assert.False(t, changed)
	assert.True(t, groups.IsDocumentError(err))
	assert.Equal(t, loader.StateStale, h.engine.State())
	assert.True(t, good.Equal(h.engine.View()), "last good view must be served")
	failing := h.engine.Signature()

	// Same broken bytes: not retried, not logged again.
	changed, err = h.engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, failing, h.engine.Signature())

	// A forced load of the same broken file logs nothing new either.
	_, err = h.engine.LoadAndMerge(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, strings.Count(h.logs.String(), "overlay groups reload failed"))

	h.put(t, state.UserRef(userPath), `{}`)
	changed, err = h.engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, loader.StateFresh, h.engine.State())
	assert.NoError(t, h.engine.LastError())

	assert.Equal(t, []string{
		activity.VerbConfigReloaded,
		activity.VerbConfigStale,
		activity.VerbConfigReloaded,
	}, h.capture.Verbs())
}

func TestNonObjectShippedIsDocumentError(t *testing.T) {
	h := newHarness(t)
	h.put(t, state.ShippedRef(shippedPath), `[]`)

	_, err := h.engine.LoadAndMerge(context.Background())
	require.Error(t, err)
	var docErr *groups.DocumentError
	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, groups.LayerShipped, docErr.Layer)
	assert.True(t, errors.Is(err, groups.ErrNotObject))
	assert.Equal(t, loader.StateStale, h.engine.State())
}

func TestSaveUserOverridesWritesMinimalDiff(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.put(t, state.ShippedRef(shippedPath), shippedFixture)
	_, err := h.engine.LoadAndMerge(ctx)
	require.NoError(t, err)

	edited := groups.Merge(groups.MustParseDocument(shippedFixture),
		groups.MustParseDocument(`{"A":{"idPrefixGroups":{"Main":{"offsetX":1,"offsetY":2}}}}`))

	diff, err := h.engine.SaveUserOverrides(ctx, edited, loader.WithEditNonce("n1"), loader.WithActor("tester"))
	require.NoError(t, err)
	want := groups.MustParseDocument(`{"_edit_nonce":"n1","A":{"idPrefixGroups":{"Main":{"offsetY":2}}}}`)
	assert.True(t, want.Equal(diff), "got %s", diff)

	stored, _, ok, err := h.store.Load(ctx, state.UserRef(userPath))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, want.Equal(stored))

	expected := groups.Merge(groups.MustParseDocument(shippedFixture), want)
	assert.True(t, expected.Equal(h.engine.View()))
	assert.Equal(t, loader.StateFresh, h.engine.State())

	changed, err := h.engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "own write must not trigger a reload")

	events := h.capture.Events()
	last := events[len(events)-1]
	assert.Equal(t, activity.VerbOverridesSaved, last.Verb)
	assert.Equal(t, "tester", last.ActorID)
	assert.Equal(t, "n1", last.Metadata["edit_nonce"])
}

func TestSaveUserOverridesGeneratesNonce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, loader.WithNonceSource(func() string { return "generated" }))
	h.put(t, state.ShippedRef(shippedPath), shippedFixture)
	view, err := h.engine.LoadAndMerge(ctx)
	require.NoError(t, err)

	diff, err := h.engine.SaveUserOverrides(ctx, view)
	require.NoError(t, err)
	raw, ok := diff.Get(groups.KeyEditNonce)
	require.True(t, ok)
	assert.JSONEq(t, `"generated"`, string(raw))
	assert.True(t, groups.IsEmptyDiff(diff))

	diff, err = h.engine.SaveUserOverrides(ctx, view, loader.WithEditNonce(""))
	require.NoError(t, err)
	assert.Equal(t, 0, diff.Len())
}

func TestSaveUserOverridesRefusesConcurrentEdit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.put(t, state.ShippedRef(shippedPath), shippedFixture)
	h.put(t, state.UserRef(userPath), `{"A":{"idPrefixGroups":{"Main":{"offsetY":2}}}}`)
	view, err := h.engine.LoadAndMerge(ctx)
	require.NoError(t, err)

	// Edited by hand after the engine loaded it.
	h.put(t, state.UserRef(userPath), `{"A":{"disabled":true}}`)

	_, err = h.engine.SaveUserOverrides(ctx, view)
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrETagMismatch))

	raw, _, err := h.store.Raw(ctx, state.UserRef(userPath))
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":{"disabled":true}}`, string(raw))
}

func TestSaveUserOverridesRefusesFileCreatedAfterLoad(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.put(t, state.ShippedRef(shippedPath), shippedFixture)
	view, err := h.engine.LoadAndMerge(ctx)
	require.NoError(t, err)

	// Created by hand after the engine found no user file.
	h.put(t, state.UserRef(userPath), `{"A":{"disabled":true}}`)

	_, err = h.engine.SaveUserOverrides(ctx, view, loader.WithEditNonce("n2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrETagMismatch))

	raw, _, err := h.store.Raw(ctx, state.UserRef(userPath))
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":{"disabled":true}}`, string(raw))

	changed, err := h.engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	_, err = h.engine.SaveUserOverrides(ctx, h.engine.View(), loader.WithEditNonce("n3"))
	require.NoError(t, err)
}

func TestSaveUserOverridesRequiresLoad(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.SaveUserOverrides(context.Background(), groups.MergedView{})
	assert.True(t, errors.Is(err, loader.ErrNotLoaded))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fresh", loader.StateFresh.String())
	assert.Equal(t, "stale", loader.StateStale.String())
}
