package gateway

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/offline-gateway/internal/logger"
	"github.com/jonesrussell/offline-gateway/internal/worker"
)

// versionReplyTimeout bounds how long a version query waits for the worker.
const versionReplyTimeout = 2 * time.Second

// WorkerProvider yields the worker currently owning traffic. The provider
// swaps workers when a new version is installed and activated, so handlers
// must re-resolve on every request.
type WorkerProvider interface {
	Current() *worker.Worker
}

// Handler serves site traffic through the cache worker and exposes the
// worker control channel over HTTP.
type Handler struct {
	workers WorkerProvider
	origin  string
	client  *http.Client
	log     logger.Logger
}

// NewHandler creates a gateway handler. The origin base URL is used for
// pass-through requests the worker declines to intercept.
func NewHandler(workers WorkerProvider, origin string, timeout time.Duration, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		workers: workers,
		origin:  strings.TrimSuffix(origin, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Serve answers a site request from the cache worker, falling back to a
// straight origin pass-through when the worker declines it.
func (h *Handler) Serve(c *gin.Context) {
	req := &worker.Request{
		Method:      c.Request.Method,
		URL:         c.Request.URL.RequestURI(),
		Destination: destination(c.Request),
		Headers:     c.Request.Header,
	}

	resp, intercepted := h.workers.Current().HandleFetch(c.Request.Context(), req)
	if !intercepted {
		h.passThrough(c)
		return
	}

	header := c.Writer.Header()
	for key, value := range resp.Headers {
		header.Set(key, value)
	}
	c.Status(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	}
}

// passThrough forwards the request to the origin untouched.
func (h *Handler) passThrough(c *gin.Context) {
	target := h.origin + c.Request.URL.RequestURI()

	outReq, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	for key, values := range c.Request.Header {
		for _, value := range values {
			outReq.Header.Add(key, value)
		}
	}

	resp, err := h.client.Do(outReq)
	if err != nil {
		h.log.Warn("Pass-through fetch failed",
			logger.String("url", target),
			logger.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "origin_unreachable"})
		return
	}
	defer resp.Body.Close()

	header := c.Writer.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}
	c.Status(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}

// SkipWaiting delivers a SKIP_WAITING control message: activate immediately
// without waiting for clients to drain.
func (h *Handler) SkipWaiting(c *gin.Context) {
	h.workers.Current().HandleMessage(c.Request.Context(), worker.Message{
		Type: worker.MessageSkipWaiting,
	})
	c.Status(http.StatusAccepted)
}

// Version answers a GET_VERSION round-trip with the current version string.
func (h *Handler) Version(c *gin.Context) {
	reply := make(chan worker.Message, 1)
	h.workers.Current().HandleMessage(c.Request.Context(), worker.Message{
		Type:  worker.MessageGetVersion,
		Reply: reply,
	})

	select {
	case msg := <-reply:
		c.JSON(http.StatusOK, gin.H{"type": msg.Type, "version": msg.Version})
	case <-time.After(versionReplyTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "version_unavailable"})
	}
}

// CleanCache delivers a CLEAN_CACHE control message: purge all non-current
// stores immediately.
func (h *Handler) CleanCache(c *gin.Context) {
	h.workers.Current().HandleMessage(c.Request.Context(), worker.Message{
		Type: worker.MessageCleanCache,
	})
	c.Status(http.StatusAccepted)
}

// Status reports the current worker version, lifecycle state, and store
// size.
func (h *Handler) Status(c *gin.Context) {
	w := h.workers.Current()
	c.JSON(http.StatusOK, gin.H{
		"version": w.Version(),
		"state":   string(w.State()),
		"entries": w.EntryCount(c.Request.Context()),
	})
}

// destination classifies the request the way a browser would label it. The
// Sec-Fetch-Dest header wins when present; otherwise an Accept header that
// prefers HTML marks a navigation.
func destination(r *http.Request) string {
	if dest := r.Header.Get("Sec-Fetch-Dest"); dest != "" {
		return dest
	}
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		return worker.DestinationDocument
	}
	return ""
}
