package loader_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-overlay-groups/pkg/loader"
	"github.com/goliatone/go-overlay-groups/pkg/state"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackedEngineUsesModTimeAndSize(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, shippedPath, []byte(shippedFixture), 0o644))
	require.NoError(t, afero.WriteFile(fsys, userPath, []byte(`{"A":{"idPrefixGroups":{"Main":{"offsetY":1}}}}`), 0o644))

	mtime := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, fsys.Chtimes(userPath, mtime, mtime))

	engine := loader.New(shippedPath, userPath, loader.WithStore(state.NewFileStore(fsys)))
	changed, err := engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	require.True(t, changed)

	// Same size and restored mtime: the change is invisible to the signature.
	require.NoError(t, afero.WriteFile(fsys, userPath, []byte(`{"A":{"idPrefixGroups":{"Main":{"offsetY":9}}}}`), 0o644))
	require.NoError(t, fsys.Chtimes(userPath, mtime, mtime))
	changed, err = engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	_, y := engine.Resolver().Offset("A", "Main")
	assert.Equal(t, 1.0, y)

	later := mtime.Add(time.Second)
	require.NoError(t, fsys.Chtimes(userPath, later, later))
	changed, err = engine.ReloadIfChanged(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	_, y = engine.Resolver().Offset("A", "Main")
	assert.Equal(t, 9.0, y)
}

func TestFileBackedEngineSavesAtomically(t *testing.T) {
	ctx := context.Background()
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, shippedPath, []byte(shippedFixture), 0o644))

	engine := loader.New(shippedPath, userPath, loader.WithStore(state.NewFileStore(fsys)))
	view, err := engine.LoadAndMerge(ctx)
	require.NoError(t, err)

	_, err = engine.SaveUserOverrides(ctx, view, loader.WithEditNonce("abc"))
	require.NoError(t, err)

	data, err := afero.ReadFile(fsys, userPath)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"_edit_nonce\": \"abc\"\n}\n", string(data))
}
