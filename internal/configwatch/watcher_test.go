package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// goleak is intentionally not used here: fsnotify's platform-specific
// watcher goroutines are not reliably tracked by leak detection across
// platforms, so coverage here is functional rather than leak-based.

func TestWatcherTriggersOnNewYAMLFile(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var seen []string
	w, err := New([]string{dir}, func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	})
	require.NoError(t, err)
	w.debounceDur = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	target := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(target, []byte("name: test\n"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == target
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresNonYAMLFiles(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var called bool
	w, err := New([]string{dir}, func(path string) {
		mu.Lock()
		called = true
		mu.Unlock()
	})
	require.NoError(t, err)
	w.debounceDur = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# hi\n"), 0644))
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, called)
}

func TestWatcherCreatesMissingDirectory(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "does", "not", "exist", "yet")

	w, err := New([]string{dir}, func(string) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, func(string) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	w.Stop()
	assert.NotPanics(t, func() { w.Stop() })
}
