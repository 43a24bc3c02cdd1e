package detect

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-pattern-miner/internal/scanner"
	"github.com/l3aro/go-pattern-miner/pkg/cache"
	"github.com/l3aro/go-pattern-miner/pkg/mining"
	"github.com/l3aro/go-pattern-miner/pkg/repository"
)

func testRepository(t *testing.T) *repository.Repository {
	t.Helper()
	patterns, err := mining.NewMiner().Mine(context.Background(), []mining.Example{
		{Name: "list", Before: []byte("def f(x):\n    return isinstance(x, list)\n")},
		{Name: "tuple", Before: []byte("def g(y):\n    return isinstance(y, tuple)\n")},
	})
	require.NoError(t, err)
	repo, err := repository.New(patterns)
	require.NoError(t, err)
	return repo
}

func writeProject(t *testing.T) []scanner.File {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"app/checks.py": "def is_map(value):\n    return isinstance(value, dict)\n\n" +
			"def is_map_too(value):\n    return type(value) == dict\n",
		"app/models.py": "class Model:\n    def validate(self, data):\n        log(data)\n        return isinstance(data, Model)\n",
		"main.py":       "def main():\n    print('hi')\n",
	}
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	scanned, err := scanner.New(scanner.DefaultOptions()).Scan(root)
	require.NoError(t, err)
	require.Len(t, scanned, 3)
	return scanned
}

func TestRun(t *testing.T) {
	files := writeProject(t)
	report, err := New(testRepository(t), WithWorkers(2)).Run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Files)
	assert.Equal(t, 4, report.Functions)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.CacheHits)

	require.Len(t, report.Findings, 2)
	first, second := report.Findings[0], report.Findings[1]
	assert.Equal(t, "app/checks.py", first.File)
	assert.Equal(t, "is_map", first.Function)
	assert.Equal(t, 1, first.Line)
	assert.Equal(t, "isinstance_return", first.Pattern)
	assert.NotEmpty(t, first.Mapping)

	assert.Equal(t, "app/models.py", second.File)
	assert.Equal(t, "Model.validate", second.Function)
}

func TestRunUsesCache(t *testing.T) {
	files := writeProject(t)
	repo := testRepository(t)
	detections := cache.NewDetections("test", 16)

	first, err := New(repo, WithCache(detections)).Run(context.Background(), files)
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)
	assert.Equal(t, 4, detections.Len())

	second, err := New(repo, WithCache(detections)).Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 4, second.CacheHits)
	assert.Equal(t, first.Findings, second.Findings)
}

func TestRunWithoutClosure(t *testing.T) {
	files := writeProject(t)
	report, err := New(testRepository(t), WithoutClosure()).Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Functions)
}

func TestRunSkipsUnreadableFiles(t *testing.T) {
	files := writeProject(t)
	require.NoError(t, os.Remove(files[0].FullPath))

	report, err := New(testRepository(t)).Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	for _, f := range report.Findings {
		assert.NotEqual(t, files[0].Path, f.File)
	}
}

func TestRunCancelled(t *testing.T) {
	files := writeProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testRepository(t)).Run(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClampsWorkers(t *testing.T) {
	d := New(testRepository(t), WithWorkers(0))
	assert.Equal(t, 1, d.workers)
}
