package manifest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jonesrussell/offline-gateway/internal/logger"
)

// debounceInterval coalesces the bursts of events editors and deploy tools
// emit when rewriting a file.
const debounceInterval = 250 * time.Millisecond

// Watcher watches a manifest file and delivers reloaded manifests on a
// channel. The watch is on the parent directory so atomic rename-based
// replacements are seen.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	log     logger.Logger
	updates chan *Manifest
}

// NewWatcher creates a watcher for the given manifest path.
func NewWatcher(path string, log logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	if log == nil {
		log = logger.NewNop()
	}

	return &Watcher{
		path:    path,
		watcher: fsw,
		log:     log,
		updates: make(chan *Manifest, 1),
	}, nil
}

// Updates returns the channel on which reloaded manifests are delivered.
// A manifest that fails to load or validate is logged and dropped; the
// previous manifest stays in effect.
func (w *Watcher) Updates() <-chan *Manifest {
	return w.updates
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	pending := make(chan time.Time)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				select {
				case pending <- time.Now():
				case <-ctx.Done():
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Manifest watcher error", logger.Error(err))
		case <-pending:
			w.reload()
		}
	}
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) reload() {
	m, err := Load(w.path)
	if err != nil {
		w.log.Warn("Ignoring invalid manifest update", logger.Error(err))
		return
	}

	w.log.Info("Manifest changed",
		logger.Int("resources", len(m.Resources)),
		logger.String("hash", m.Hash()),
	)

	// Keep only the newest manifest if the consumer is behind.
	select {
	case w.updates <- m:
	default:
		select {
		case <-w.updates:
		default:
		}
		w.updates <- m
	}
}
