package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewloop/reviewloop/internal/config"
)

func TestBoltStoreRoundTrip(t *testing.T) {
	store, err := OpenBolt(filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(KindRepoMap, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Exists(KindRepoMap, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(KindRepoMap, "k", []byte("v1")))
	require.NoError(t, store.Save(KindRepoMap, "k", []byte("v2"))) // overwrite

	data, err := store.Load(KindRepoMap, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	ok, err = store.Exists(KindRepoMap, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenBackendSelection(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(config.AssetsConfig{Backend: "bbolt", Path: filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	store.Close()

	_, err = Open(config.AssetsConfig{Backend: "leveldb", Path: filepath.Join(dir, "b.db")})
	assert.Error(t, err)
}

func TestSaveLoadJSON(t *testing.T) {
	store, err := OpenBolt(filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	defer store.Close()

	in := RepoMap{FileCount: 2, Files: []string{"a.go", "b.go"}}
	require.NoError(t, SaveJSON(store, KindRepoMap, "key", in))

	var out RepoMap
	require.NoError(t, LoadJSON(store, KindRepoMap, "key", &out))
	assert.Equal(t, in, out)
}

func TestBuildRepoMap(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "api"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "api", "handler.go"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "x", "index.js"), nil, 0o644))

	rm, err := BuildRepoMap(root)
	require.NoError(t, err)
	assert.Equal(t, 2, rm.FileCount)
	assert.Equal(t, []string{"main.go", "src/api/handler.go"}, rm.Files)
	assert.Contains(t, rm.FileTree, "src/\n")
	assert.Contains(t, rm.FileTree, "  api/\n")
	assert.Contains(t, rm.FileTree, "    handler.go\n")
	assert.NotContains(t, rm.FileTree, "node_modules")
}

func TestBuildAndSaveThenLoad(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), nil, 0o644))

	store, err := OpenBolt(filepath.Join(t.TempDir(), "assets.db"))
	require.NoError(t, err)
	defer store.Close()

	built, err := BuildAndSave(store, root)
	require.NoError(t, err)

	loaded, err := LoadRepoMap(store, root)
	require.NoError(t, err)
	assert.Equal(t, built.Files, loaded.Files)
	assert.Equal(t, built.FileCount, loaded.FileCount)

	_, err = LoadRepoMap(store, t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepoMapKeyStable(t *testing.T) {
	assert.Equal(t, RepoMapKey("/tmp/repo"), RepoMapKey("/tmp/repo"))
	assert.NotEqual(t, RepoMapKey("/tmp/repo"), RepoMapKey("/tmp/other"))
	assert.Len(t, RepoMapKey("/tmp/repo"), 16)
}
