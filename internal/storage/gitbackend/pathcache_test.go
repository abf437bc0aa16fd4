package gitbackend_test

import (
	"testing"

	"github.com/cfgcenter/cfgcenter/internal/storage/gitbackend"
	"github.com/stretchr/testify/require"
)

func TestPathCache_GetMissReturnsFalse(t *testing.T) {
	c := gitbackend.NewPathCache(2)
	_, ok := c.Get("v1:/a")
	require.False(t, ok)
}

func TestPathCache_PutThenGet(t *testing.T) {
	c := gitbackend.NewPathCache(2)
	c.Put("v1:/a", "hash-a")
	got, ok := c.Get("v1:/a")
	require.True(t, ok)
	require.Equal(t, "hash-a", got)
}

func TestPathCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := gitbackend.NewPathCache(2)
	c.Put("v1:/a", "hash-a")
	c.Put("v1:/b", "hash-b")
	// Touch /a so /b becomes the least recently used entry.
	_, _ = c.Get("v1:/a")
	c.Put("v1:/c", "hash-c")

	_, ok := c.Get("v1:/b")
	require.False(t, ok, "least recently used entry should have been evicted")

	got, ok := c.Get("v1:/a")
	require.True(t, ok)
	require.Equal(t, "hash-a", got)
}

func TestPathCache_PutOverwritesExistingKey(t *testing.T) {
	c := gitbackend.NewPathCache(2)
	c.Put("v1:/a", "hash-a")
	c.Put("v1:/a", "hash-a-2")
	got, ok := c.Get("v1:/a")
	require.True(t, ok)
	require.Equal(t, "hash-a-2", got)
}
