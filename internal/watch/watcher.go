package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"clipmerge/internal/config"
	"clipmerge/internal/logging"
)

// Observer receives watcher activity, e.g. for metrics.
type Observer interface {
	WatchEvent(kind string)
	WatchedDirectories(n int)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithObserver attaches an activity observer.
func WithObserver(o Observer) Option {
	return func(w *Watcher) {
		w.observer = o
	}
}

// Watcher watches the root recursively.
type Watcher struct {
	cfg      *config.Config
	root     string
	fsw      *fsnotify.Watcher
	notify   chan struct{}
	logger   *slog.Logger
	observer Observer
	watched  int
}

// New creates a watcher over the configured root and registers every
// eligible directory.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		cfg:    cfg,
		root:   filepath.Clean(cfg.Paths.Root),
		fsw:    fsw,
		notify: make(chan struct{}, 1),
		logger: logging.NewComponentLogger(logger, "watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w.logger.Debug("watcher started", logging.Int("directories", w.watched))
	return w, nil
}

// Notifications delivers at most one pending change signal.
func (w *Watcher) Notifications() <-chan struct{} {
	return w.notify
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("failed to close file watcher", logging.Error(err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.observe("error")
			w.logger.Warn("watcher error", logging.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if w.excluded(event.Name) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if !event.Has(fsnotify.Create) {
			return
		}
		if err := w.addTree(event.Name); err != nil {
			w.logger.Warn("failed to watch new directory", logging.String("path", event.Name), logging.Error(err))
		}
		w.observe("directory")
		w.signal()
		return
	}
	if !w.cfg.IsFragmentExt(filepath.Ext(event.Name)) {
		return
	}
	w.observe("fragment")
	w.logger.Debug("fragment activity", logging.String("path", event.Name))
	w.signal()
}

// signal performs a non-blocking send so repeated events coalesce.
func (w *Watcher) signal() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// excluded reports whether path is hidden, inside an output subtree, or a
// scope's merged artifact.
func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return rel != "."
	}
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" && strings.TrimSuffix(base, ext) == w.cfg.Fragments.ScopedArtifactName {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
		if part == w.cfg.Fragments.CombinedDir || part == w.cfg.Fragments.ProcessedDir {
			return true
		}
	}
	return false
}

func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(path) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			if errors.Is(addErr, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return fmt.Errorf("watch %q: %w", path, addErr)
		}
		w.watched++
		return nil
	})
	if err != nil {
		return err
	}
	if w.observer != nil {
		w.observer.WatchedDirectories(w.watched)
	}
	return nil
}

func (w *Watcher) observe(kind string) {
	if w.observer != nil {
		w.observer.WatchEvent(kind)
	}
}
