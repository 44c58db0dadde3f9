package pipeline

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for more changes before
// regenerating.
const DefaultDebounce = 200 * time.Millisecond

// watchedExt are the file types whose changes trigger a run.
var watchedExt = map[string]bool{
	".java": true,
	".yaml": true,
	".yml":  true,
	".toml": true,
}

// Watch calls fn whenever a source or metadata file below paths
// changes, at most once per debounce interval. Directories are watched
// recursively, including ones created later. It blocks until ctx is
// done.
func Watch(ctx context.Context, logger *slog.Logger, paths []string, debounce time.Duration, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, p := range paths {
		if err := addRecursive(w, p); err != nil {
			return err
		}
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := addRecursive(w, ev.Name); err != nil {
						logger.Warn("cannot watch directory", "path", ev.Name, "err", err)
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !watchedExt[strings.ToLower(filepath.Ext(ev.Name))] {
				continue
			}
			logger.Debug("change", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "err", err)
		}
	}
}

// addRecursive watches path; if it is a directory, every directory
// below it too. A single file is watched through its directory.
func addRecursive(w *fsnotify.Watcher, path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return w.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(p)
		}
		return nil
	})
}
