// Package worker implements the offline cache worker: a cache-first request
// handler with background revalidation, versioned store lifecycle, and a
// small control channel.
//
// The worker is a pure function of its configuration plus two collaborators
// it does not control: a store.Storage (atomic per-key response store) and a
// Fetcher (the network). The host runtime drives it through exactly four
// entry points: Install, Activate, HandleFetch, and HandleMessage.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonesrussell/offline-gateway/internal/logger"
	"github.com/jonesrussell/offline-gateway/internal/retry"
	"github.com/jonesrussell/offline-gateway/internal/store"
	"github.com/jonesrussell/offline-gateway/internal/telemetry"
)

// State is the worker lifecycle state.
type State string

const (
	// StateNew means Install has not completed for this version.
	StateNew State = "new"
	// StateInstalled means the store is fully populated from the manifest.
	StateInstalled State = "installed"
	// StateActive means the worker owns all traffic and stale stores are
	// deleted.
	StateActive State = "active"
)

// Config holds the worker configuration. Version, manifest, and fallback are
// injected here rather than read from process globals so multiple versions
// can coexist in one process (and in tests).
type Config struct {
	// Version names the cache store generation for this worker.
	Version string
	// Manifest is the ordered list of paths that must be cached before the
	// worker reports installed.
	Manifest []string
	// FallbackPath is the cached document served when a navigation miss
	// cannot reach the network. Defaults to "/".
	FallbackPath string
	// Scope is the origin this worker intercepts. Absolute request URLs on
	// a different origin pass through untouched. Empty means only
	// origin-relative URLs are intercepted.
	Scope string
	// RefreshPerSecond throttles background revalidations. Zero or
	// negative means no throttle: every cache hit triggers a refresh.
	RefreshPerSecond float64
	// InstallRetry bounds per-path retries during install. Zero value uses
	// retry defaults.
	InstallRetry retry.Config
}

// Worker is the offline cache manager.
type Worker struct {
	cfg     Config
	storage store.Storage
	fetcher Fetcher
	log     logger.Logger
	metrics *telemetry.Metrics

	scope   *url.URL
	limiter *rate.Limiter

	mu      sync.RWMutex
	state   State
	current store.Store

	refreshes sync.WaitGroup
}

// New creates a worker. The metrics may be nil.
func New(cfg Config, storage store.Storage, fetcher Fetcher, log logger.Logger, metrics *telemetry.Metrics) (*Worker, error) {
	if cfg.Version == "" {
		return nil, fmt.Errorf("worker: version is required")
	}
	if cfg.FallbackPath == "" {
		cfg.FallbackPath = "/"
	}
	if log == nil {
		log = logger.NewNop()
	}

	var scope *url.URL
	if cfg.Scope != "" {
		parsed, err := url.Parse(cfg.Scope)
		if err != nil {
			return nil, fmt.Errorf("worker: parse scope %q: %w", cfg.Scope, err)
		}
		scope = parsed
	}

	var limiter *rate.Limiter
	if cfg.RefreshPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RefreshPerSecond), 1)
	}

	return &Worker{
		cfg:     cfg,
		storage: storage,
		fetcher: fetcher,
		log:     log.With(logger.String("version", cfg.Version)),
		metrics: metrics,
		scope:   scope,
		limiter: limiter,
		state:   StateNew,
	}, nil
}

// Version returns the version string this worker serves.
func (w *Worker) Version() string {
	return w.cfg.Version
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// EntryCount reports the number of entries in the current store, or zero
// before install.
func (w *Worker) EntryCount(ctx context.Context) int {
	st := w.store()
	if st == nil {
		return 0
	}
	n, err := st.Len(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Install opens the store named by the configured version and populates it
// by fetching every manifest path. Install is all-or-nothing: if any path
// cannot be fetched with a 2xx status, the partially populated store is
// removed and the worker stays in StateNew so the host can retry later.
func (w *Worker) Install(ctx context.Context) error {
	start := time.Now()

	st, err := w.storage.Open(ctx, w.cfg.Version)
	if err != nil {
		return fmt.Errorf("open store %q: %w", w.cfg.Version, err)
	}

	for _, path := range w.cfg.Manifest {
		if err := w.installPath(ctx, st, path); err != nil {
			w.log.Error("Install failed, removing partial store",
				logger.String("path", path),
				logger.Error(err),
			)
			if removeErr := w.storage.Remove(ctx, w.cfg.Version); removeErr != nil {
				w.log.Warn("Failed to remove partial store", logger.Error(removeErr))
			}
			return fmt.Errorf("install %q: %w", path, err)
		}
	}

	w.mu.Lock()
	w.current = st
	// A reinstall into an already active worker keeps it active.
	if w.state == StateNew {
		w.state = StateInstalled
	}
	w.mu.Unlock()

	w.metrics.ObserveInstall(time.Since(start))
	w.metrics.SetStoreEntries(w.EntryCount(ctx))

	w.log.Info("Worker installed",
		logger.Int("resources", len(w.cfg.Manifest)),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

func (w *Worker) installPath(ctx context.Context, st store.Store, path string) error {
	req := &Request{Method: http.MethodGet, URL: path}

	var resp *Response
	err := retry.Do(ctx, w.cfg.InstallRetry, func() error {
		fetched, fetchErr := w.fetcher.Fetch(ctx, req)
		if fetchErr != nil {
			return fetchErr
		}
		if !fetched.OK() {
			return fmt.Errorf("unexpected status %d", fetched.Status)
		}
		resp = fetched
		return nil
	})
	if err != nil {
		return err
	}

	return st.Put(ctx, store.Key(http.MethodGet, path), resp.Entry())
}

// Activate deletes every store whose name differs from the current version
// and takes ownership of all traffic immediately. Cleanup is best-effort
// per store; a single failed deletion is logged and skipped.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.RLock()
	installed := w.current != nil
	w.mu.RUnlock()
	if !installed {
		return fmt.Errorf("activate %q: worker is not installed", w.cfg.Version)
	}

	w.purgeStale(ctx)

	w.mu.Lock()
	w.state = StateActive
	w.mu.Unlock()

	w.log.Info("Worker activated")
	return nil
}

// purgeStale removes all stores except the current version.
func (w *Worker) purgeStale(ctx context.Context) {
	names, err := w.storage.Names(ctx)
	if err != nil {
		w.log.Warn("Failed to enumerate stores for cleanup", logger.Error(err))
		return
	}

	for _, name := range names {
		if name == w.cfg.Version {
			continue
		}
		if err := w.storage.Remove(ctx, name); err != nil {
			w.log.Warn("Failed to remove stale store",
				logger.String("store", name),
				logger.Error(err),
			)
			continue
		}
		w.log.Info("Removed stale store", logger.String("store", name))
	}
}

// HandleFetch decides how an intercepted request is answered. The second
// return value reports whether the worker claims the request at all: false
// means the caller must pass it through to the network untouched (non-GET
// methods, cross-origin URLs, or a worker with no installed store).
//
// For claimed requests the strategy is cache-first: a hit is returned
// immediately and revalidated in the background; a miss goes to the network
// and is cached on success. When the network fails with no cached entry,
// navigations get the cached fallback document and everything else gets a
// synthetic 503.
func (w *Worker) HandleFetch(ctx context.Context, req *Request) (*Response, bool) {
	if req.Method != http.MethodGet {
		w.metrics.ObserveFetch(telemetry.OutcomePass)
		return nil, false
	}
	if !w.sameOrigin(req.URL) {
		w.metrics.ObserveFetch(telemetry.OutcomePass)
		return nil, false
	}

	st := w.store()
	if st == nil {
		w.metrics.ObserveFetch(telemetry.OutcomePass)
		return nil, false
	}

	key := store.Key(http.MethodGet, req.URL)

	entry, ok, err := st.Get(ctx, key)
	if err != nil {
		w.log.Warn("Cache lookup failed, treating as miss",
			logger.String("url", req.URL),
			logger.Error(err),
		)
	}
	if ok {
		w.log.Debug("Cache hit", logger.String("url", req.URL))
		w.metrics.ObserveFetch(telemetry.OutcomeHit)
		w.refreshInBackground(st, key, req)
		return responseFromEntry(entry), true
	}

	w.log.Debug("Cache miss", logger.String("url", req.URL))
	return w.fetchAndCache(ctx, st, key, req), true
}

// fetchAndCache handles the miss path: network fetch, cache on 2xx, and
// offline fallbacks when the fetch fails.
func (w *Worker) fetchAndCache(ctx context.Context, st store.Store, key string, req *Request) *Response {
	resp, err := w.fetcher.Fetch(ctx, req)
	if err == nil {
		if resp.OK() {
			if putErr := st.Put(ctx, key, resp.Entry()); putErr != nil {
				w.log.Warn("Failed to cache response",
					logger.String("url", req.URL),
					logger.Error(putErr),
				)
			}
		}
		w.metrics.ObserveFetch(telemetry.OutcomeMiss)
		return resp
	}

	w.log.Warn("Network fetch failed",
		logger.String("url", req.URL),
		logger.Bool("navigation", req.IsNavigation()),
		logger.Error(err),
	)

	if req.IsNavigation() {
		fallbackKey := store.Key(http.MethodGet, w.cfg.FallbackPath)
		if entry, ok, getErr := st.Get(ctx, fallbackKey); getErr == nil && ok {
			w.metrics.ObserveFetch(telemetry.OutcomeFallback)
			return responseFromEntry(entry)
		}
	}

	w.metrics.ObserveFetch(telemetry.OutcomeUnavailable)
	return &Response{
		URL:        req.URL,
		Status:     http.StatusServiceUnavailable,
		StatusText: "Service Unavailable",
		Headers:    map[string]string{},
	}
}

// refreshInBackground revalidates a cache hit without delaying the response.
// The refresh is detached: it runs on its own context and every failure is
// swallowed after logging, never surfacing to the request that triggered it.
func (w *Worker) refreshInBackground(st store.Store, key string, req *Request) {
	if w.limiter != nil && !w.limiter.Allow() {
		w.metrics.ObserveRefresh(telemetry.RefreshThrottled)
		return
	}

	refreshReq := &Request{
		Method:      req.Method,
		URL:         req.URL,
		Destination: req.Destination,
		Headers:     req.Headers.Clone(),
	}

	w.refreshes.Add(1)
	go func() {
		defer w.refreshes.Done()
		ctx := context.Background()

		resp, err := w.fetcher.Fetch(ctx, refreshReq)
		if err != nil {
			w.log.Debug("Background refresh failed",
				logger.String("url", refreshReq.URL),
				logger.Error(err),
			)
			w.metrics.ObserveRefresh(telemetry.RefreshFailed)
			return
		}
		if !resp.OK() {
			w.metrics.ObserveRefresh(telemetry.RefreshSkipped)
			return
		}

		if err := st.Put(ctx, key, resp.Entry()); err != nil {
			w.log.Debug("Background refresh store failed",
				logger.String("url", refreshReq.URL),
				logger.Error(err),
			)
			w.metrics.ObserveRefresh(telemetry.RefreshFailed)
			return
		}
		w.metrics.ObserveRefresh(telemetry.RefreshUpdated)
	}()
}

// HandleMessage processes a control message. Unknown message types are
// ignored so a malformed message can never crash the worker.
func (w *Worker) HandleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case MessageSkipWaiting:
		if err := w.Activate(ctx); err != nil {
			w.log.Warn("Skip-waiting activation failed", logger.Error(err))
		}
	case MessageGetVersion:
		if msg.Reply == nil {
			return
		}
		select {
		case msg.Reply <- Message{Type: MessageVersion, Version: w.cfg.Version}:
		default:
			w.log.Warn("Version reply channel full, dropping reply")
		}
	case MessageCleanCache:
		w.purgeStale(ctx)
	default:
		w.log.Debug("Ignoring unknown control message", logger.String("type", msg.Type))
	}
}

// Wait blocks until all in-flight background refreshes complete. Used
// during shutdown and by tests.
func (w *Worker) Wait() {
	w.refreshes.Wait()
}

func (w *Worker) store() store.Store {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// sameOrigin reports whether the request URL falls inside the worker scope.
// Origin-relative URLs always do; absolute URLs must match the scope's
// scheme and host.
func (w *Worker) sameOrigin(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		return true
	}
	if w.scope == nil {
		return false
	}
	return parsed.Scheme == w.scope.Scheme && parsed.Host == w.scope.Host
}
