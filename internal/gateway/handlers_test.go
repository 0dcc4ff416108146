package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/offline-gateway/internal/gateway"
	"github.com/jonesrussell/offline-gateway/internal/store"
	"github.com/jonesrussell/offline-gateway/internal/worker"
)

type fixedProvider struct {
	w *worker.Worker
}

func (p *fixedProvider) Current() *worker.Worker { return p.w }

// newOrigin serves a minimal site: a root document, one asset, and an echo
// endpoint for non-GET traffic.
func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("posted"))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>home</html>"))
	})
	mux.HandleFunc("/styles.min.css", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = w.Write([]byte("body{margin:0}"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, origin *httptest.Server) (*gin.Engine, *worker.Worker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fetcher, err := worker.NewHTTPFetcher(origin.URL, 5*time.Second)
	require.NoError(t, err)

	w, err := worker.New(worker.Config{
		Version:  "v1",
		Manifest: []string{"/", "/styles.min.css"},
	}, store.NewMemoryStorage(), fetcher, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Install(context.Background()))
	require.NoError(t, w.Activate(context.Background()))

	h := gateway.NewHandler(&fixedProvider{w: w}, origin.URL, 5*time.Second, nil)

	router := gin.New()
	router.POST("/worker/skip-waiting", h.SkipWaiting)
	router.GET("/worker/version", h.Version)
	router.POST("/worker/clean-cache", h.CleanCache)
	router.GET("/worker/status", h.Status)
	router.NoRoute(h.Serve)
	return router, w
}

func TestServeReturnsCachedAssetWhenOriginIsDown(t *testing.T) {
	origin := newOrigin(t)
	router, w := newTestRouter(t, origin)
	origin.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/styles.min.css", nil))
	w.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{margin:0}", rec.Body.String())
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
}

func TestServeNavigationMissFallsBackToRootDocument(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)
	origin.Close()

	req := httptest.NewRequest(http.MethodGet, "/projects/archive", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home")
}

func TestServeAcceptHeaderMarksNavigation(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)
	origin.Close()

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home")
}

func TestServeAssetMissWithOriginDownIsUnavailable(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)
	origin.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.js", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServePassesNonGetThroughToOrigin(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader("name=x")))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "posted", rec.Body.String())
}

func TestServePassThroughOriginUnreachable(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)
	origin.Close()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/contact", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestVersionEndpoint(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/worker/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, worker.MessageVersion, body["type"])
	assert.Equal(t, "v1", body["version"])
}

func TestStatusEndpoint(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/worker/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Version string `json:"version"`
		State   string `json:"state"`
		Entries int    `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v1", body.Version)
	assert.Equal(t, "active", body.State)
	assert.Equal(t, 2, body.Entries)
}

func TestControlEndpointsAccept(t *testing.T) {
	origin := newOrigin(t)
	router, _ := newTestRouter(t, origin)

	for _, path := range []string{"/worker/skip-waiting", "/worker/clean-cache"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusAccepted, rec.Code, path)
	}
}
