package interceptor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
)

func newTestInterceptor(t *testing.T, originURL string) (*Interceptor, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	ic, err := NewInterceptor(st, func() string { return "gen-1" },
		WithOriginBaseURL(originURL))
	if err != nil {
		t.Fatalf("failed to create interceptor: %v", err)
	}
	return ic, st
}

// deadOriginURL returns a URL whose server has already been shut down, so
// every call to it fails at the transport level.
func deadOriginURL(t *testing.T) string {
	t.Helper()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	u := origin.URL
	origin.Close()
	return u
}

func TestReadPassthroughAndCache(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"employees":[{"id":5,"name":"Asha"}]}`))
	}))
	defer origin.Close()

	ic, st := newTestInterceptor(t, origin.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/employees?site=gurgaon", nil)
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, "Asha") {
		t.Errorf("expected origin body, got %s", got)
	}

	entry, err := st.GetCachedResponse("GET /api/employees?site=gurgaon")
	if err != nil {
		t.Fatalf("cache lookup failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected successful read to be cached")
	}
	if entry.Generation != "gen-1" {
		t.Errorf("expected generation gen-1, got %s", entry.Generation)
	}
	if string(entry.Body) != rec.Body.String() {
		t.Error("cached body should match the served body byte for byte")
	}
}

func TestReadErrorStatusNotCached(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer origin.Close()

	ic, st := newTestInterceptor(t, origin.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/roster", nil)
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 passthrough, got %d", rec.Code)
	}
	entry, _ := st.GetCachedResponse("GET /api/roster")
	if entry != nil {
		t.Error("error responses must not populate the cache")
	}
}

func TestReadFallsBackToCacheWhenOffline(t *testing.T) {
	ic, st := newTestInterceptor(t, deadOriginURL(t))

	stale := []byte(`{"employees":[{"id":5}]}`)
	if err := st.PutCachedResponse(store.CachedResponse{
		Key:         "GET /api/employees",
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        stale,
		Generation:  "gen-1",
	}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/employees", nil)
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected cached 200, got %d", rec.Code)
	}
	if rec.Body.String() != string(stale) {
		t.Errorf("expected cached body, got %s", rec.Body.String())
	}
	if rec.Header().Get(CacheStatusHeader) != "stale" {
		t.Error("expected staleness marker header on cached response")
	}
	if rec.Header().Get(CacheStoredAtHeader) == "" {
		t.Error("expected stored-at header on cached response")
	}
}

func TestReadStaleGenerationTreatedAsMiss(t *testing.T) {
	ic, st := newTestInterceptor(t, deadOriginURL(t))

	if err := st.PutCachedResponse(store.CachedResponse{
		Key:        "GET /api/employees",
		StatusCode: http.StatusOK,
		Body:       []byte(`{"employees":[]}`),
		Generation: "gen-0",
	}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/employees", nil)
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for rolled-over generation, got %d", rec.Code)
	}
}

func TestReadColdMissReturnsUnavailable(t *testing.T) {
	ic, _ := newTestInterceptor(t, deadOriginURL(t))

	req := httptest.NewRequest(http.MethodGet, "/api/never-fetched", nil)
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on cold miss, got %d", rec.Code)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(models.APIStatusError) {
		t.Errorf("expected error status, got %s", resp.Status)
	}
}

func TestMutationPassthroughWhenOnline(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"duplicate punch"}`))
	}))
	defer origin.Close()

	ic, st := newTestInterceptor(t, origin.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(`{"userId":5}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	// The origin answered; even a 409 passes through without queueing.
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 passthrough, got %d", rec.Code)
	}
	if n, _ := st.CountPendingMutations(); n != 0 {
		t.Errorf("expected empty outbox, got %d pending", n)
	}
}

func TestMutationQueuedWhenOffline(t *testing.T) {
	ic, st := newTestInterceptor(t, deadOriginURL(t))

	kicked := false
	ic.SetEnqueueHook(func() { kicked = true })

	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(`{"userId":5,"lat":28.61,"lng":77.20}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != string(models.APIStatusQueued) {
		t.Errorf("expected queued status, got %s", resp.Status)
	}
	if !kicked {
		t.Error("expected enqueue hook to fire")
	}

	pending, err := st.ListPendingMutations(10)
	if err != nil {
		t.Fatalf("failed to list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queued mutation, got %d", len(pending))
	}
	m := pending[0]
	if m.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", m.Method)
	}
	if m.Subject != "user-5" {
		t.Errorf("expected subject user-5 from payload, got %q", m.Subject)
	}
	if m.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected max attempts %d, got %d", DefaultMaxAttempts, m.MaxAttempts)
	}
	if !strings.HasSuffix(m.TargetURL, "/api/attendance") {
		t.Errorf("expected absolute origin target, got %s", m.TargetURL)
	}
}

func TestMutationSubjectHeaderWins(t *testing.T) {
	ic, st := newTestInterceptor(t, deadOriginURL(t))

	req := httptest.NewRequest(http.MethodPut, "/api/leave/42", strings.NewReader(`{"userId":5,"status":"approved"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SubjectHeader, "leave-42")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	pending, _ := st.ListPendingMutations(10)
	if len(pending) != 1 || pending[0].Subject != "leave-42" {
		t.Fatalf("expected explicit subject header to win, got %+v", pending)
	}
}

func TestMutationMalformedJSONRejected(t *testing.T) {
	ic, st := newTestInterceptor(t, deadOriginURL(t))

	req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(`{"userId":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
	if n, _ := st.CountPendingMutations(); n != 0 {
		t.Error("malformed payloads must never reach the outbox")
	}
}

func TestMutationOversizePayloadRejected(t *testing.T) {
	ic, st := newTestInterceptor(t, deadOriginURL(t))

	big := strings.Repeat("x", models.MaxPayloadBytes+1)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(big))
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if n, _ := st.CountPendingMutations(); n != 0 {
		t.Error("oversize payloads must never reach the outbox")
	}
}

func TestQueuedResponseReportsDepth(t *testing.T) {
	ic, _ := newTestInterceptor(t, deadOriginURL(t))

	var last models.APIResponse
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/attendance", strings.NewReader(`{"userId":7}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		ic.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &last); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}

	result, ok := last.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got %T", last.Result)
	}
	if depth, _ := result["queue_depth"].(float64); int(depth) != 3 {
		t.Errorf("expected queue depth 3, got %v", result["queue_depth"])
	}
}

func TestNewInterceptorValidatesOrigin(t *testing.T) {
	st := store.NewInMemoryStore()
	if _, err := NewInterceptor(st, func() string { return "g" }); err == nil {
		t.Error("expected error when origin base URL is unset")
	}
	if _, err := NewInterceptor(st, func() string { return "g" }, WithOriginBaseURL("relative/path")); err == nil {
		t.Error("expected error for non-absolute origin URL")
	}
}

func TestCacheKey(t *testing.T) {
	u, _ := url.Parse("http://device.local/api/employees?site=gurgaon")
	if got := CacheKey(http.MethodGet, u); got != "GET /api/employees?site=gurgaon" {
		t.Errorf("unexpected cache key %q", got)
	}
	u2, _ := url.Parse("http://device.local/api/roster")
	if got := CacheKey(http.MethodHead, u2); got != "HEAD /api/roster" {
		t.Errorf("unexpected cache key %q", got)
	}
}
