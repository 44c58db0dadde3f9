package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "org"), 0o755))

	ctx, cancel := context.WithCancel(t.Context())
	calls := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, slog.New(slog.DiscardHandler), []string{dir}, 20*time.Millisecond, func() {
			calls <- struct{}{}
		})
	}()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	for i := range 3 {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "org", "OS.java"), []byte{byte('a' + i)}, 0o644))
	}
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no regeneration after a source change")
	}
	select {
	case <-calls:
		t.Fatal("changes were not debounced")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
