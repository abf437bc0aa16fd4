package eventqueue

import (
	"testing"

	"github.com/cfgcenter/cfgcenter/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopEmpty(t *testing.T) {
	q := New()
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestPushPopRoundTrip(t *testing.T) {
	q := New()
	ev := storage.StorageChangeEvent{NewVersion: storage.VersionItem{ID: "v1"}}
	q.Push(ev)

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, ev, got)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestPushCoalescesBurst(t *testing.T) {
	q := New()
	q.Push(storage.StorageChangeEvent{NewVersion: storage.VersionItem{ID: "v1"}})
	q.Push(storage.StorageChangeEvent{NewVersion: storage.VersionItem{ID: "v2"}})
	q.Push(storage.StorageChangeEvent{NewVersion: storage.VersionItem{ID: "v3"}})

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "v3", got.NewVersion.ID)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestPushCoalescingPreservesOldestOldVersion(t *testing.T) {
	q := New()
	q.Push(storage.StorageChangeEvent{OldVersion: storage.VersionItem{ID: "v0"}, NewVersion: storage.VersionItem{ID: "v1"}})
	q.Push(storage.StorageChangeEvent{OldVersion: storage.VersionItem{ID: "v1"}, NewVersion: storage.VersionItem{ID: "v2"}})

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "v0", got.OldVersion.ID, "coalesced event must still diff from the oldest unseen version")
	assert.Equal(t, "v2", got.NewVersion.ID)
}

func TestWaitSignalsOnPush(t *testing.T) {
	q := New()
	q.Push(storage.StorageChangeEvent{NewVersion: storage.VersionItem{ID: "v1"}})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal after Push")
	}
}
