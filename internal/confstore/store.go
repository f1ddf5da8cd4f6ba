package confstore

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Store owns the configuration snapshot for a probe. Readers take a
// Snapshot at tick start and keep it for the whole execution; Reload swaps
// the snapshot atomically so nothing observes a half-updated tree.
type Store struct {
	path   string
	logger *zap.Logger

	tree atomic.Pointer[Tree]

	mu   sync.Mutex
	subs []func()
}

// Load reads (or creates) the config file and returns a Store. Malformed
// YAML, an unknown or cyclic `use:` alias, or an unwritable path are fatal
// here: the probe must not start on an inconsistent config.
func Load(path string, logger *zap.Logger) (*Store, error) {
	tree, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.tree.Store(tree)
	return s, nil
}

// Snapshot returns the current immutable tree.
func (s *Store) Snapshot() *Tree {
	return s.tree.Load()
}

// OnReload registers a callback invoked after every successful snapshot swap.
func (s *Store) OnReload(fn func()) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Reload re-reads the file and swaps the snapshot. A file that fails to
// parse keeps the previous snapshot in place; running checks are unaffected
// either way.
func (s *Store) Reload() error {
	tree, err := loadFile(s.path)
	if err != nil {
		s.logger.Warn("config_reload_failed_keeping_previous",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return err
	}
	s.tree.Store(tree)
	s.logger.Info("config_reloaded", zap.String("path", s.path))

	s.mu.Lock()
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
	return nil
}

// Watch follows the config file until ctx is cancelled, reloading on change.
// Events are debounced because editors and atomic-rename writers fire
// several per save. The parent directory is watched so rename-into-place
// updates are seen too.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			_ = s.Reload() // already logged; previous snapshot stays on error
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config_watch_error", zap.Error(err))
		}
	}
}
