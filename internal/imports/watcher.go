package imports

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/minto/internal/storage"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on root and processes file change events
// until ctx is cancelled. It calls cb (if non-nil) after each successful
// import or forget.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced Sync that picks up the new path.
func (im *Importer) Watch(ctx context.Context, root string, cb EventCallback) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	im.logger.Info("imports: watching", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			im.logger.Info("imports: stopped")
			return nil

		case <-reconcileCh:
			if err := im.Sync(ctx); err != nil {
				im.logger.Warn("imports: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						im.logger.Warn("imports: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may land before the directory is watched.
					scheduleReconcile()
					continue
				}
			}

			if !storage.IsDiagramFile(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				id, changed, impErr := im.importChanged(ctx, rel)
				if impErr != nil {
					im.logger.Warn("imports: import failed", slog.String("path", rel), slog.String("error", impErr.Error()))
					continue
				}
				if !changed {
					continue
				}
				im.logger.Debug("imports: imported", slog.String("path", rel), slog.String("id", id))
				if cb != nil {
					cb("imported", rel, id)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old path only; the new path arrives
				// as a Create when it stays inside a watched directory.
				if fgErr := im.Forget(ctx, rel); fgErr != nil {
					im.logger.Warn("imports: forget failed", slog.String("path", rel), slog.String("error", fgErr.Error()))
					continue
				}
				im.logger.Debug("imports: forgot", slog.String("path", rel))
				if cb != nil {
					cb("forgotten", rel, "")
				}
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("imports: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
