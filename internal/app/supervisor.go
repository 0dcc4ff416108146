// Package app wires the cache worker lifecycle: initial install and
// activation, and manifest-driven upgrades to new store versions.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonesrussell/offline-gateway/internal/config"
	"github.com/jonesrussell/offline-gateway/internal/logger"
	"github.com/jonesrussell/offline-gateway/internal/manifest"
	"github.com/jonesrussell/offline-gateway/internal/store"
	"github.com/jonesrussell/offline-gateway/internal/telemetry"
	"github.com/jonesrussell/offline-gateway/internal/worker"
)

// Supervisor owns the currently active worker and replaces it when the
// manifest rolls to a new version. It implements gateway.WorkerProvider.
type Supervisor struct {
	cfg     *config.Config
	storage store.Storage
	fetcher worker.Fetcher
	log     logger.Logger
	metrics *telemetry.Metrics

	mu      sync.RWMutex
	current *worker.Worker
}

// NewSupervisor creates a supervisor. Nothing is installed until Start.
func NewSupervisor(cfg *config.Config, storage store.Storage, fetcher worker.Fetcher, log logger.Logger, metrics *telemetry.Metrics) *Supervisor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Supervisor{
		cfg:     cfg,
		storage: storage,
		fetcher: fetcher,
		log:     log,
		metrics: metrics,
	}
}

// Start loads the manifest, installs the first worker version, and
// activates it. Install failure keeps the process from serving: with no
// populated store the gateway has nothing to be offline-first with.
func (s *Supervisor) Start(ctx context.Context) error {
	m, err := manifest.Load(s.cfg.Cache.ManifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	w, err := s.buildWorker(m)
	if err != nil {
		return err
	}
	if err := w.Install(ctx); err != nil {
		return fmt.Errorf("install %q: %w", w.Version(), err)
	}
	if err := w.Activate(ctx); err != nil {
		return fmt.Errorf("activate %q: %w", w.Version(), err)
	}

	s.mu.Lock()
	s.current = w
	s.mu.Unlock()
	return nil
}

// Current returns the worker that owns traffic right now.
func (s *Supervisor) Current() *worker.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply installs the manifest as a new worker generation and activates it.
// If the derived version matches the current one, the current store is
// repopulated in place (install is idempotent). On install failure the
// previous worker keeps serving untouched.
func (s *Supervisor) Apply(ctx context.Context, m *manifest.Manifest) error {
	old := s.Current()

	next, err := s.buildWorker(m)
	if err != nil {
		return err
	}

	if old != nil && next.Version() == old.Version() {
		if err := old.Install(ctx); err != nil {
			return fmt.Errorf("reinstall %q: %w", old.Version(), err)
		}
		s.log.Info("Manifest reinstalled into current store",
			logger.String("version", old.Version()),
		)
		return nil
	}

	if err := next.Install(ctx); err != nil {
		return fmt.Errorf("install %q: %w", next.Version(), err)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	// Let the outgoing worker's detached refreshes finish before stale
	// stores are deleted, so none of them resurrects a removed store.
	if old != nil {
		old.Wait()
	}

	if err := next.Activate(ctx); err != nil {
		return fmt.Errorf("activate %q: %w", next.Version(), err)
	}

	s.log.Info("Upgraded to new cache version",
		logger.String("version", next.Version()),
	)
	return nil
}

// WatchManifest reinstalls on every manifest file change until the context
// is cancelled. A failed upgrade is logged and the current worker keeps
// serving.
func (s *Supervisor) WatchManifest(ctx context.Context) error {
	watcher, err := manifest.NewWatcher(s.cfg.Cache.ManifestPath, s.log)
	if err != nil {
		return fmt.Errorf("watch manifest: %w", err)
	}
	defer watcher.Close()

	go watcher.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-watcher.Updates():
			if err := s.Apply(ctx, m); err != nil {
				s.log.Error("Manifest upgrade failed", logger.Error(err))
			}
		}
	}
}

// Shutdown waits for the current worker's background refreshes to drain.
func (s *Supervisor) Shutdown() {
	if w := s.Current(); w != nil {
		w.Wait()
	}
}

func (s *Supervisor) buildWorker(m *manifest.Manifest) (*worker.Worker, error) {
	version := s.cfg.Cache.Version
	if version == config.VersionAuto {
		version = m.Hash()
	}

	w, err := worker.New(worker.Config{
		Version:          version,
		Manifest:         m.Resources,
		FallbackPath:     m.FallbackPath(),
		Scope:            s.cfg.Origin.BaseURL,
		RefreshPerSecond: s.cfg.Cache.RefreshPerSecond,
	}, s.storage, s.fetcher, s.log, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("build worker: %w", err)
	}
	return w, nil
}
