// Package interceptor sits between the workforce UI and the origin API.
//
// Every outbound call is classified as a read or a mutation. Reads fall back
// to the versioned response cache when the origin is unreachable; mutations
// are captured into the durable outbox and acknowledged with a synthetic
// "accepted, pending sync" result so the UI can proceed optimistically.
package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
)

// Default configuration constants
const (
	// DefaultTimeout bounds every forwarded origin call.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxAttempts is the replay attempt budget stamped onto queued mutations.
	DefaultMaxAttempts = 3
	// SubjectHeader carries the logical resource key used for FIFO-per-resource ordering.
	SubjectHeader = "X-Sync-Subject"
	// MutationIDHeader carries the client-generated mutation ID on replayed requests.
	MutationIDHeader = "X-Mutation-ID"
	// CacheStatusHeader marks responses served from the local cache.
	CacheStatusHeader = "X-Hrmsync-Cache"
	// CacheStoredAtHeader reports when the cached copy was captured.
	CacheStoredAtHeader = "X-Hrmsync-Stored-At"
)

// GenerationFunc returns the active cache generation at lookup time.
type GenerationFunc func() string

// Opts holds configuration options for the interceptor.
type Opts struct {
	OriginBaseURL string
	Timeout       time.Duration
	MaxAttempts   int
	Client        *http.Client
}

// Option defines a configuration option for the interceptor.
type Option func(*Opts)

// WithOriginBaseURL sets the origin API base URL that intercepted calls are forwarded to.
func WithOriginBaseURL(u string) Option {
	return func(o *Opts) {
		o.OriginBaseURL = u
	}
}

// WithTimeout sets the bounded timeout applied to every forwarded call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithMaxAttempts sets the replay attempt budget for queued mutations.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) {
		o.MaxAttempts = n
	}
}

// WithHTTPClient injects the HTTP client used for origin calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.Client = c
	}
}

// Interceptor forwards intercepted requests to the origin, applying
// cache-fallback policy to reads and enqueue-on-failure policy to mutations.
type Interceptor struct {
	origin      *url.URL
	client      *http.Client
	store       store.Store
	generation  GenerationFunc
	maxAttempts int
	timeout     time.Duration
	onEnqueue   func()
}

// NewInterceptor creates a new interceptor in front of the given store.
// The generation function supplies the active cache generation for read caching.
func NewInterceptor(st store.Store, generation GenerationFunc, opts ...Option) (*Interceptor, error) {
	cfg := Opts{Timeout: DefaultTimeout, MaxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewInterceptor invoked", "origin_set", cfg.OriginBaseURL != "", "timeout", cfg.Timeout, "maxAttempts", cfg.MaxAttempts)

	if cfg.OriginBaseURL == "" {
		return nil, fmt.Errorf("origin base URL not set")
	}
	origin, err := url.Parse(cfg.OriginBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid origin base URL: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("origin base URL must be absolute: %s", cfg.OriginBaseURL)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &Interceptor{
		origin:      origin,
		client:      client,
		store:       st,
		generation:  generation,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.Timeout,
	}, nil
}

// SetEnqueueHook registers a callback fired after every successful enqueue,
// used to nudge the replayer.
func (ic *Interceptor) SetEnqueueHook(fn func()) {
	ic.onEnqueue = fn
}

// IsReadMethod classifies an HTTP method as an idempotent, cacheable read.
func IsReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead:
		return true
	default:
		return false
	}
}

// CacheKey derives the cache identity of a read request: method plus path and query.
func CacheKey(method string, u *url.URL) string {
	key := method + " " + u.Path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

// ServeHTTP implements the forwarding endpoint: the device UI points its
// origin-bound calls here and the interceptor applies offline policy.
func (ic *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if IsReadMethod(r.Method) {
		ic.serveRead(w, r)
		return
	}
	ic.serveMutation(w, r)
}

func (ic *Interceptor) serveRead(w http.ResponseWriter, r *http.Request) {
	target := ic.originURL(r)
	key := CacheKey(r.Method, r.URL)

	resp, body, err := ic.forward(r.Context(), r.Method, target, r.Header, nil)
	if err != nil {
		ic.serveFromCache(w, key, err)
		return
	}

	// Only successful reads populate the cache; error responses pass through uncached.
	if resp.StatusCode == http.StatusOK {
		entry := store.CachedResponse{
			Key:         key,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Headers:     encodeHeaders(resp.Header),
			Body:        body,
			Generation:  ic.generation(),
		}
		if cacheErr := ic.store.PutCachedResponse(entry); cacheErr != nil {
			// Cache population is best-effort; the live response still goes out.
			slog.Warn("Interceptor.serveRead: cache put failed", "key", key, "error", cacheErr)
		}
	}

	writeUpstream(w, resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// serveFromCache answers a read after a transport failure. A cached copy is
// served with a staleness marker; a cold miss is an explicit Unavailable error,
// never fabricated data.
func (ic *Interceptor) serveFromCache(w http.ResponseWriter, key string, cause error) {
	entry, err := ic.store.GetCachedResponse(key)
	if err != nil {
		slog.Error("Interceptor.serveFromCache: cache lookup failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.Error("cache lookup failed"))
		return
	}
	if entry == nil || entry.Generation != ic.generation() {
		// An entry from a rolled-over generation is as good as absent.
		slog.Debug("Interceptor.serveFromCache: miss", "key", key, "cause", cause)
		writeJSON(w, http.StatusServiceUnavailable, models.Error(models.ErrUnavailable.Error()))
		return
	}

	slog.Debug("Interceptor.serveFromCache: serving stale copy", "key", key, "storedAt", entry.StoredAt)
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set(CacheStatusHeader, "stale")
	w.Header().Set(CacheStoredAtHeader, entry.StoredAt.UTC().Format(time.RFC3339))
	w.WriteHeader(entry.StatusCode)
	if _, err := w.Write(entry.Body); err != nil {
		slog.Error("Interceptor.serveFromCache: write failed", "key", key, "error", err)
	}
}

func (ic *Interceptor) serveMutation(w http.ResponseWriter, r *http.Request) {
	target := ic.originURL(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, models.MaxPayloadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.Error("failed to read request body"))
		return
	}
	if len(body) > models.MaxPayloadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, models.Error(models.ErrPayloadTooLarge.Error()))
		return
	}

	// Malformed payloads are rejected up front; they must never reach the outbox.
	contentType := r.Header.Get("Content-Type")
	if isJSONContentType(contentType) && len(body) > 0 && !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, models.Error(models.ErrSerialization.Error()))
		return
	}

	resp, respBody, err := ic.forward(r.Context(), r.Method, target, r.Header, body)
	if err == nil {
		// The origin answered; its response passes through verbatim,
		// including 4xx/5xx. Only transport failures queue.
		writeUpstream(w, resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
		return
	}

	subject := extractSubject(r.Header, contentType, body)
	id, enqErr := ic.store.EnqueueMutation(store.QueuedMutation{
		Subject:     subject,
		TargetURL:   target.String(),
		Method:      r.Method,
		Payload:     string(body),
		ContentType: contentType,
		MaxAttempts: ic.maxAttempts,
	})
	if enqErr != nil {
		if errors.Is(enqErr, models.ErrStorageExhausted) {
			slog.Error("Interceptor.serveMutation: outbox full", "subject", subject, "error", enqErr)
			writeJSON(w, http.StatusInsufficientStorage, models.Error(models.ErrStorageExhausted.Error()))
			return
		}
		slog.Error("Interceptor.serveMutation: enqueue failed", "subject", subject, "error", enqErr)
		writeJSON(w, http.StatusInternalServerError, models.Error("failed to queue mutation"))
		return
	}

	depth, _ := ic.store.CountPendingMutations()
	slog.Info("Interceptor.serveMutation: mutation queued", "id", id, "subject", subject, "method", r.Method, "queueDepth", depth, "cause", err)
	if ic.onEnqueue != nil {
		ic.onEnqueue()
	}
	writeJSON(w, http.StatusAccepted, models.Queued(id, depth))
}

// forward issues the origin call with a bounded timeout. A returned error is
// always a transport-level failure; origin responses of any status succeed.
func (ic *Interceptor) forward(ctx context.Context, method string, target *url.URL, header http.Header, body []byte) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ic.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build origin request: %w", err)
	}
	copyForwardHeaders(req.Header, header)

	resp, err := ic.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		// The connection died mid-body; treat it like any transport failure.
		return nil, nil, err
	}
	return resp, respBody, nil
}

func (ic *Interceptor) originURL(r *http.Request) *url.URL {
	return ic.origin.ResolveReference(&url.URL{Path: r.URL.Path, RawQuery: r.URL.RawQuery})
}

// extractSubject determines the logical resource a mutation belongs to, for
// FIFO-per-resource ordering: the explicit header wins, then a userId field
// in a JSON payload.
func extractSubject(header http.Header, contentType string, body []byte) string {
	if subject := strings.TrimSpace(header.Get(SubjectHeader)); subject != "" {
		if len(subject) > models.MaxSubjectLength {
			subject = subject[:models.MaxSubjectLength]
		}
		return subject
	}
	if isJSONContentType(contentType) && len(body) > 0 {
		var probe struct {
			UserID json.Number `json:"userId"`
		}
		if err := json.Unmarshal(body, &probe); err == nil && probe.UserID.String() != "" {
			return "user-" + probe.UserID.String()
		}
	}
	return ""
}

func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}

// copyForwardHeaders copies end-to-end headers onto the origin request,
// skipping hop-by-hop ones.
func copyForwardHeaders(dst, src http.Header) {
	for name, values := range src {
		switch http.CanonicalHeaderKey(name) {
		case "Connection", "Keep-Alive", "Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade", "Host":
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

// encodeHeaders serializes a response header subset for cache storage.
func encodeHeaders(h http.Header) string {
	flat := make(map[string]string, len(h))
	for name := range h {
		flat[name] = h.Get(name)
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return ""
	}
	return string(data)
}

func writeUpstream(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Error("Interceptor.writeUpstream: write failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, response models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Interceptor.writeJSON: marshal failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Error("Interceptor.writeJSON: write failed", "error", err)
	}
}
