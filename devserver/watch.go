package devserver

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchTree adds dir and every directory below it that is not ignored.
// fsnotify does not watch recursively.
func (s *Server) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, err := s.index.Rel(p); err == nil && rel != "." && s.index.Ignored(rel) {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

func (s *Server) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleFSEvent(ctx, watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Watcher error", "error", err)
		}
	}
}

func (s *Server) handleFSEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, err := s.index.Rel(event.Name)
	if err != nil || s.index.Ignored(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.watchTree(watcher, event.Name); err != nil {
				s.logger.Warn("Failed to watch directory", "path", rel, "error", err)
			}
			// files created before the watch was added
			s.Rescan(ctx)
			return
		}
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if _, known := s.index.Hash(rel); !known {
			// a directory went away with everything below it
			s.Rescan(ctx)
			return
		}
	}

	if err := s.Refresh(ctx, rel); err != nil {
		s.logger.Warn("Failed to fingerprint file", "path", rel, "error", err)
	}
}
