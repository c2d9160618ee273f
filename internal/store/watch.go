package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with a freshly loaded store every time the backing file at
// path is written, replaced or removed. It blocks until ctx is done and
// returns ctx.Err().
//
// The directory is watched rather than the file because saves replace the
// file. A missing backing file is reported as an empty store and is not
// created. Load errors are passed to fn along with the store.
func Watch(ctx context.Context, path string, fn func(*Store, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	name := filepath.Clean(path)
	slog.DebugContext(ctx, "Watching store", "path", name)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name || event.Op == fsnotify.Chmod {
				continue
			}
			slog.DebugContext(ctx, "Store changed", "op", event.Op.String())
			s := New(path)
			fn(s, s.load(false))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching store", "err", err)
		}
	}
}
