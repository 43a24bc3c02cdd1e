package repository

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-pattern-miner/internal/log"
	"github.com/l3aro/go-pattern-miner/pkg/artifact"
	"github.com/l3aro/go-pattern-miner/pkg/mining"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
)

func mine(t *testing.T, sources ...string) []*pattern.Pattern {
	t.Helper()
	var examples []mining.Example
	for i, src := range sources {
		examples = append(examples, mining.Example{Name: string(rune('a' + i)), Before: []byte(src)})
	}
	patterns, err := mining.NewMiner().Mine(context.Background(), examples)
	require.NoError(t, err)
	return patterns
}

func isinstancePatterns(t *testing.T) []*pattern.Pattern {
	return mine(t,
		"def f(x):\n    return isinstance(x, list)\n",
		"def g(y):\n    return isinstance(y, tuple)\n",
		"def h(a):\n    a.items.append(1)\n",
		"def k(b):\n    b.items.append(2)\n",
	)
}

func target(t *testing.T, src string) *pattern.Graph {
	t.Helper()
	g, err := mining.BuildExample(context.Background(), []byte(src), pattern.PartBefore, log.Nop())
	require.NoError(t, err)
	return g
}

func TestDetect(t *testing.T) {
	patterns := isinstancePatterns(t)
	require.Len(t, patterns, 2)
	repo, err := New(patterns)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.Len())

	found, err := repo.Detect(context.Background(), target(t, "def check(value):\n    log(value)\n    return isinstance(value, dict)\n"))
	require.NoError(t, err)
	require.Contains(t, found, "isinstance_return")
	assert.NotContains(t, found, "append")

	p, ok := repo.Pattern("isinstance_return")
	require.True(t, ok)
	tg := target(t, "def check(value):\n    log(value)\n    return isinstance(value, dict)\n")
	for pid, tid := range found["isinstance_return"] {
		pv, tv := p.Graph.Vertex(pid), tg.Vertex(tid)
		require.NotNil(t, tv)
		assert.Equal(t, pv.Label, tv.Label)
	}

	found, err = repo.Detect(context.Background(), target(t, "def check(value):\n    return type(value) == dict\n"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDetectCancelled(t *testing.T) {
	repo, err := New(isinstancePatterns(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.Detect(ctx, target(t, "def f(x):\n    return isinstance(x, list)\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsDuplicates(t *testing.T) {
	patterns := isinstancePatterns(t)
	_, err := New([]*pattern.Pattern{patterns[0], patterns[0]})
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo, err := New(isinstancePatterns(t))
	require.NoError(t, err)
	repo.fingerprint = "abc"

	var buf bytes.Buffer
	require.NoError(t, repo.Save(&buf))
	back, err := Read(&buf)
	require.NoError(t, err)

	assert.Equal(t, "abc", back.Fingerprint())
	require.Equal(t, repo.Len(), back.Len())
	for i, p := range repo.Patterns() {
		q := back.Patterns()[i]
		assert.Equal(t, p.ID, q.ID)
		assert.Equal(t, p.Graph.Document(), q.Graph.Document())
		assert.Equal(t, len(p.Samples), len(q.Samples))
	}

	_, err = Read(bytes.NewReader([]byte("garbage")))
	assert.Error(t, err)
}

func TestLoadWithSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(t.TempDir(), "cache", "patterns.snapshot")
	patterns := isinstancePatterns(t)
	_, err := artifact.WritePattern(dir, patterns[0])
	require.NoError(t, err)

	repo, err := Load(dir, WithSnapshot(snap))
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Len())
	assert.NotEmpty(t, repo.Fingerprint())
	assert.FileExists(t, snap)

	cached, err := LoadSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, repo.Fingerprint(), cached.Fingerprint())

	again, err := Load(dir, WithSnapshot(snap))
	require.NoError(t, err)
	assert.Equal(t, repo.Fingerprint(), again.Fingerprint())
	assert.Equal(t, 1, again.Len())

	_, err = artifact.WritePattern(dir, patterns[1])
	require.NoError(t, err)
	refreshed, err := Load(dir, WithSnapshot(snap))
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.Len())
	assert.NotEqual(t, repo.Fingerprint(), refreshed.Fingerprint())
}

func TestLoadIgnoresCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(t.TempDir(), "patterns.snapshot")
	_, err := artifact.WritePattern(dir, isinstancePatterns(t)[0])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snap, []byte("not msgpack"), 0o644))

	repo, err := Load(dir, WithSnapshot(snap))
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Len())

	cached, err := LoadSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, repo.Fingerprint(), cached.Fingerprint())
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("1"), 0o644))
	first, err := Fingerprint(dir)
	require.NoError(t, err)
	second, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("2"), 0o644))
	third, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	_, err = Fingerprint(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
