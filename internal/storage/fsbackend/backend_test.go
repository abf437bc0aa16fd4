package fsbackend_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cfgcenter/cfgcenter/internal/storage"
	"github.com/cfgcenter/cfgcenter/internal/storage/fsbackend"
	"github.com/stretchr/testify/require"
)

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestBackend_CurrentVersionFallsBackWithoutHeadMarker(t *testing.T) {
	b := fsbackend.New(t.TempDir())
	v, err := b.CurrentVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "head", v.ID)
}

func TestBackend_CurrentVersionReadsHeadMarker(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "head"), []byte("gen-1\n"))
	b := fsbackend.New(root)
	v, err := b.CurrentVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gen-1", v.ID)
}

func TestBackend_ReadObjectAndListDir(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "reses", "a", "res1"), []byte(`{"k":"v"}`))
	b := fsbackend.New(root)
	ver, err := b.CurrentVersion(context.Background())
	require.NoError(t, err)

	data, err := b.ReadObject(context.Background(), ver, "/reses/a/res1")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, string(data))

	items, err := b.ListDir(context.Background(), ver, "/reses")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.True(t, items[0].IsDir)
	require.Equal(t, "a", items[0].Name)
}

func TestBackend_ReadObjectMissingReturnsNotFound(t *testing.T) {
	b := fsbackend.New(t.TempDir())
	ver, err := b.CurrentVersion(context.Background())
	require.NoError(t, err)
	_, err = b.ReadObject(context.Background(), ver, "/reses/a/missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBackend_PathHashIsContentDerived(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "reses", "a", "res1"), []byte("x"))
	mustWrite(t, filepath.Join(root, "reses", "a", "res2"), []byte("x"))
	mustWrite(t, filepath.Join(root, "reses", "a", "res3"), []byte("y"))
	b := fsbackend.New(root)
	ver, err := b.CurrentVersion(context.Background())
	require.NoError(t, err)

	h1, err := b.PathHash(context.Background(), ver, "/reses/a/res1")
	require.NoError(t, err)
	h2, err := b.PathHash(context.Background(), ver, "/reses/a/res2")
	require.NoError(t, err)
	h3, err := b.PathHash(context.Background(), ver, "/reses/a/res3")
	require.NoError(t, err)

	require.Equal(t, h1, h2, "identical content must hash identically")
	require.NotEqual(t, h1, h3, "different content must hash differently")
}

func TestBackend_DiffSameVersionIsEmpty(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "reses", "a", "res1"), []byte("x"))
	b := fsbackend.New(root)
	ver, err := b.CurrentVersion(context.Background())
	require.NoError(t, err)
	changed, err := b.Diff(context.Background(), ver, ver, "/a/")
	require.NoError(t, err)
	require.Empty(t, changed)
}

func TestBackend_DiffAcrossVersionsReportsEverythingUnderNamespace(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "reses", "a", "res1"), []byte("x"))
	mustWrite(t, filepath.Join(root, "reses", "b", "res1"), []byte("y"))
	b := fsbackend.New(root)

	old := storage.VersionItem{ID: "gen-0"}
	newV := storage.VersionItem{ID: "gen-1"}
	changed, err := b.Diff(context.Background(), old, newV, "/a/")
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.Contains(t, changed[0], "res1")
}

func TestBackend_SubscribeFiresOnHeadMarkerChange(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "head"), []byte("gen-0"))
	b := fsbackend.New(root)

	events := make(chan storage.StorageChangeEvent, 1)
	stop, err := b.Subscribe(context.Background(), func(ev storage.StorageChangeEvent) {
		events <- ev
	})
	require.NoError(t, err)
	defer stop()

	mustWrite(t, filepath.Join(root, "head"), []byte("gen-1"))

	select {
	case ev := <-events:
		require.Equal(t, "gen-0", ev.OldVersion.ID)
		require.Equal(t, "gen-1", ev.NewVersion.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never observed the head marker change")
	}
}
