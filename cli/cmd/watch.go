package cmd

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/funcpack/internal/discovery"
)

// watch builds once, then rebuilds whenever a source file under the
// functions directory changes. Events are debounced so a burst of saves
// produces one build. It returns when ctx is done.
func (b *builder) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := addRecursive(watcher, b.dir); err != nil {
		return err
	}

	b.rebuild(ctx)
	b.formatter.PrintInfo("Watching for changes... (press Ctrl+C to stop)")

	debounce := b.cfg.Build.WatchDebounce
	debounceTimer := time.NewTimer(0)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
					if err := addRecursive(watcher, event.Name); err != nil {
						log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch directory")
					}
				}
			}
			if !b.relevant(event) {
				continue
			}
			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Change detected")
			debounceTimer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")

		case <-debounceTimer.C:
			b.rebuild(ctx)
		}
	}
}

// rebuild runs a build and logs its failure; watch mode keeps going
func (b *builder) rebuild(ctx context.Context) {
	_, err := b.run(ctx)
	switch {
	case err == nil, errors.Is(err, ErrBuildFailed):
	case ctx.Err() != nil:
	default:
		log.Error().Err(b.redactor.Error(err)).Msg("Build could not run")
	}
}

// relevant reports whether an event can change the build output
func (b *builder) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if out, err := filepath.Abs(b.outDir); err == nil && isWithin(out, event.Name) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch base {
	case "package.json", "tsconfig.json":
		return true
	}
	ext := filepath.Ext(base)
	for _, e := range discovery.SourceExtensions {
		if ext == e {
			return true
		}
	}
	// Removed or renamed directories carry no extension
	return event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func skipDir(name string) bool {
	return name == "node_modules" || strings.HasPrefix(name, ".")
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
