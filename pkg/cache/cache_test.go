package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-pattern-miner/pkg/isomorph"
)

func TestLRU_Basic(t *testing.T) {
	c := New(Options[string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	val, found = c.Get("missing")
	assert.False(t, found)
	assert.Empty(t, val)
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options[string]{MaxSize: 3, OnEvict: func(key string, _ string) { evicted = append(evicted, key) }})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", "value_d")

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, k := range []string{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, "%s should still be present", k)
	}
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c := New(Options[int]{MaxSize: 10})
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	c.Delete("missing")
	_, found := c.Get("a")
	assert.False(t, found)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestLRU_Update(t *testing.T) {
	c := New(Options[int]{MaxSize: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)
	c.Set("c", 4)

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, 3, val)
	_, found = c.Get("b")
	assert.False(t, found)
}

func TestLRU_Stats(t *testing.T) {
	c := New(Options[int]{})
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	assert.Equal(t, 1, s.Length)
	assert.Equal(t, int64(2), s.HitCount)
	assert.Equal(t, int64(1), s.MissCount)
	assert.InDelta(t, 2.0/3.0, s.HitRate(), 1e-9)
	assert.Zero(t, Stats{}.HitRate())
}

func TestLRU_SaveLoad(t *testing.T) {
	c := New(Options[string]{MaxSize: 10})
	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Get("a")

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := New(Options[string]{MaxSize: 1})
	require.NoError(t, restored.Load(&buf))

	// Only the most recently used entry fits.
	assert.Equal(t, 1, restored.Len())
	val, found := restored.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	assert.Error(t, restored.Load(bytes.NewReader([]byte{0xc1})))
}

func TestPersistToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.msgpack")
	c := New(Options[int]{})
	c.Set("a", 1)
	require.NoError(t, PersistToFile(c, path))

	restored := New(Options[int]{})
	require.NoError(t, LoadFromFile(restored, path))
	val, found := restored.Get("a")
	require.True(t, found)
	assert.Equal(t, 1, val)
}

func TestPersistedFileDoesNotExist(t *testing.T) {
	c := New(Options[int]{})
	c.Set("a", 1)
	require.NoError(t, LoadFromFile(c, filepath.Join(t.TempDir(), "missing")))
	assert.Equal(t, 1, c.Len())
}

func TestDetections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "detections.cache")
	key := Key([]byte("def f(x):\n    return x\n"))
	assert.Len(t, key, 64)
	assert.NotEqual(t, key, Key([]byte("def f(y):\n    return y\n")))

	d := NewDetections("repo-1", 100)
	d.Set(key, Matches{"isinstance_return": isomorph.Mapping{1: 2, 3: 4}})
	d.Set(Key([]byte("empty")), Matches{})
	require.NoError(t, d.SaveFile(path))

	same := NewDetections("repo-1", 100)
	used, err := same.LoadFile(path)
	require.NoError(t, err)
	assert.True(t, used)
	got, found := same.Get(key)
	require.True(t, found)
	assert.Equal(t, isomorph.Mapping{1: 2, 3: 4}, got["isinstance_return"])

	other := NewDetections("repo-2", 100)
	used, err = other.LoadFile(path)
	require.NoError(t, err)
	assert.False(t, used)
	assert.Equal(t, 0, other.Len())

	used, err = NewDetections("repo-1", 100).LoadFile(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, os.WriteFile(path, []byte{0xc1}, 0o644))
	_, err = same.LoadFile(path)
	assert.Error(t, err)
}
