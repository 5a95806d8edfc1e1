// Package watch rebuilds when files below a source root change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// BuildFunc runs one build. Its error is logged and watching continues.
type BuildFunc func(ctx context.Context) error

// Watcher triggers a build after changes below root settle.
type Watcher struct {
	root     string
	debounce time.Duration
	build    BuildFunc
	ignore   []string
	watcher  *fsnotify.Watcher
}

// New creates a Watcher for root. Changes below the ignore directories, such
// as an output directory nested in root, do not trigger builds.
func New(root string, debounce time.Duration, build BuildFunc, ignore ...string) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: filepath.Clean(root), debounce: debounce, build: build, watcher: fw}
	for _, dir := range ignore {
		w.ignore = append(w.ignore, filepath.Clean(dir))
	}
	return w, nil
}

// Run watches until ctx is cancelled. fsnotify is not recursive, so every
// directory is added up front and new ones as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}

	log := zerolog.Ctx(ctx)
	log.Info().Str("root", w.root).Msg("Watching for changes")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if err := w.addTree(event.Name); err != nil {
					log.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new path")
				}
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Change detected")
			pending++
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")

		case <-timer.C:
			log.Info().Int("changes", pending).Msg("Rebuilding")
			pending = 0
			if err := w.build(ctx); err != nil {
				log.Error().Err(err).Msg("Rebuild failed, manifest not updated, waiting for next change")
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") || w.ignored(event.Name) {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// addTree watches dir and every directory below it. Non-directories are ignored.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p != w.root {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && (strings.HasPrefix(d.Name(), ".") || w.ignored(p)) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) ignored(p string) bool {
	for _, dir := range w.ignore {
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
