package worker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/offline-gateway/internal/store"
)

// DestinationDocument marks a top-level navigation request. Failed misses
// for these fall back to the cached root document instead of a 503.
const DestinationDocument = "document"

// Request is the worker's view of an intercepted request.
type Request struct {
	Method      string
	URL         string
	Destination string
	Headers     http.Header
}

// IsNavigation reports whether the request targets a full document.
func (r *Request) IsNavigation() bool {
	return r.Destination == DestinationDocument
}

// Response is the worker's view of a response, whether it came from the
// store, the network, or was synthesized.
type Response struct {
	URL        string
	Status     int
	StatusText string
	Headers    map[string]string
	Body       []byte
}

// OK reports whether the response has a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Entry converts the response into a store entry.
func (r *Response) Entry() *store.Entry {
	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	return &store.Entry{
		URL:        r.URL,
		Status:     r.Status,
		StatusText: r.StatusText,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
		StoredAt:   time.Now().UTC(),
	}
}

func responseFromEntry(entry *store.Entry) *Response {
	return &Response{
		URL:        entry.URL,
		Status:     entry.Status,
		StatusText: entry.StatusText,
		Headers:    entry.Headers,
		Body:       entry.Body,
	}
}

// Fetcher performs network fetches on behalf of the worker.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// HTTPFetcher fetches from the configured origin over HTTP. Request URLs
// are resolved against the origin base, so manifest paths like "/index.html"
// reach the right host.
type HTTPFetcher struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPFetcher creates a fetcher for the given origin base URL. A zero
// timeout leaves requests unbounded; callers control cancellation through
// the context.
func NewHTTPFetcher(origin string, timeout time.Duration) (*HTTPFetcher, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin %q: %w", origin, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("origin %q: scheme and host are required", origin)
	}
	return &HTTPFetcher{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Fetch performs the network request and buffers the full response.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	target, err := f.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", target, err)
	}
	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", target, err)
	}

	headers := make(map[string]string, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}

	return &Response{
		URL:        req.URL,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Headers:    headers,
		Body:       body,
	}, nil
}

func (f *HTTPFetcher) resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse request url %q: %w", raw, err)
	}
	return f.base.ResolveReference(ref).String(), nil
}

// statusText extracts the reason phrase from the response status line.
func statusText(resp *http.Response) string {
	if idx := strings.IndexByte(resp.Status, ' '); idx >= 0 {
		return resp.Status[idx+1:]
	}
	return http.StatusText(resp.StatusCode)
}
