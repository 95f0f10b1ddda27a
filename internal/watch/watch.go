// Package watch reconverts source documents when they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 250 * time.Millisecond

// Handler is called with the path of a changed file once it has been quiet
// for the debounce period. Handlers run one at a time.
type Handler func(ctx context.Context, path string)

// Watcher delivers debounced change notifications for files matching a
// name pattern under watched directories.
type Watcher struct {
	fs       *fsnotify.Watcher
	pattern  string
	debounce time.Duration
	handler  Handler
	logger   *zap.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
	once  sync.Once
}

// New creates a Watcher. A zero debounce uses DefaultDebounce; an empty
// pattern matches "*.t3d".
//
// Precondition: handler must be non-nil.
func New(pattern string, debounce time.Duration, handler Handler, logger *zap.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler must not be nil")
	}
	if pattern == "" {
		pattern = "*.t3d"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("watch: invalid pattern %q: %w", pattern, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	return &Watcher{
		fs:       fw,
		pattern:  strings.ToLower(pattern),
		debounce: debounce,
		handler:  handler,
		logger:   logger,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// Add watches path. A directory is watched with all its subdirectories and
// every matching file in them; a file is watched on its own, whatever its
// name.
func (w *Watcher) Add(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		w.mu.Lock()
		w.files[abs] = true
		w.mu.Unlock()
		return w.fs.Add(filepath.Dir(abs))
	}
	return w.addTree(path)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if err := w.fs.Add(abs); err != nil {
			return fmt.Errorf("watch: adding %s: %w", path, err)
		}
		w.mu.Lock()
		w.dirs[abs] = true
		w.mu.Unlock()
		w.logger.Debug("watching directory", zap.String("dir", path))
		return nil
	})
}

// matches reports whether path is a file this Watcher reports: one added
// explicitly, or one matching the pattern inside a watched tree.
func (w *Watcher) matches(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	explicit := w.files[abs]
	inTree := w.dirs[filepath.Dir(abs)]
	w.mu.Unlock()
	if explicit {
		return true
	}
	if !inTree {
		return false
	}
	ok, _ := filepath.Match(w.pattern, strings.ToLower(filepath.Base(abs)))
	return ok
}

// Run delivers changes to the handler until ctx is done or the Watcher is
// closed.
//
// Postcondition: returns nil on cancellation or close.
func (w *Watcher) Run(ctx context.Context) error {
	fire := make(chan string)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.event(ctx, ev, pending, fire)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case path := <-fire:
			delete(pending, path)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			w.logger.Info("source changed", zap.String("path", path))
			w.handler(ctx, path)
		}
	}
}

func (w *Watcher) event(ctx context.Context, ev fsnotify.Event, pending map[string]*time.Timer, fire chan<- string) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("watch: new directory not watched", zap.String("dir", ev.Name), zap.Error(err))
			}
			return
		}
	}
	if !w.matches(ev.Name) {
		return
	}
	if t, ok := pending[ev.Name]; ok {
		t.Reset(w.debounce)
		return
	}
	path := ev.Name
	pending[path] = time.AfterFunc(w.debounce, func() {
		select {
		case fire <- path:
		case <-ctx.Done():
		}
	})
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		err = w.fs.Close()
	})
	return err
}
