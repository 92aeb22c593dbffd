package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c, err := New[string](DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("fp1")
	require.False(t, ok)

	require.True(t, c.Set("fp1", "result-1"))
	v, ok := c.Get("fp1")
	require.True(t, ok)
	require.Equal(t, "result-1", v)

	c.Delete("fp1")
	_, ok = c.Get("fp1")
	require.False(t, ok)
}

func TestCacheClear(t *testing.T) {
	c, err := New[int](Options{MaxEntries: 16})
	require.NoError(t, err)
	defer c.Close()

	for i, k := range []string{"a", "b", "c"} {
		require.True(t, c.Set(k, i))
	}
	c.Clear()
	for _, k := range []string{"a", "b", "c"} {
		_, ok := c.Get(k)
		require.False(t, ok)
	}
}

func TestCacheTTL(t *testing.T) {
	c, err := New[string](Options{MaxEntries: 16, TTL: 50 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Set("fp", "v"))
	_, ok := c.Get("fp")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		_, ok := c.Get("fp")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCacheDefaults(t *testing.T) {
	c, err := New[string](Options{MaxEntries: -1, TTL: -time.Second})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, time.Duration(0), c.ttl)
	require.True(t, c.Set("k", "v"))
}
