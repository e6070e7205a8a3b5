package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/api"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/interceptor"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/lifecycle"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/scheduler"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/syncer"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/testutil"
)

// newTestServer wires a server over an in-memory store with an unreachable
// origin, so intercepted mutations always queue.
func newTestServer(t *testing.T) (*api.Server, *store.InMemoryStore) {
	t.Helper()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	originURL := origin.URL
	origin.Close()
	return testutil.NewTestAgent(t, originURL)
}

func doRequest(t *testing.T, srv *api.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/health", "")
	testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, "health probe")
}

func TestSyncHandlerMethodGuard(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/sync", "")
	testutil.AssertHTTPStatus(t, http.StatusAccepted, rec.Code, "manual sync")
	rec = doRequest(t, srv, http.MethodGet, "/v1/sync", "")
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rec.Code, "manual sync with GET")
	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", allow)
	}
}

func TestInterceptorMountedUnderAPI(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/attendance", `{"userId":5,"lat":28.61,"lng":77.20}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 from interceptor, got %d: %s", rec.Code, rec.Body.String())
	}
	testutil.AssertQueueDepth(t, st, 1, "mutation through /api/")
}

func TestQueueHandlerListsFIFO(t *testing.T) {
	srv, st := newTestServer(t)

	for _, payload := range []string{`{"userId":5,"n":1}`, `{"userId":5,"n":2}`} {
		if _, err := st.EnqueueMutation(store.QueuedMutation{
			Subject: "user-5", TargetURL: "http://origin.invalid/api/attendance",
			Method: http.MethodPost, Payload: payload, MaxAttempts: 3,
		}); err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	rec := doRequest(t, srv, http.MethodGet, "/v1/queue", "")
	testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, "queue listing")
	resp := decodeResponse(t, rec)
	result := resp.Result.(map[string]any)
	if depth, _ := result["depth"].(float64); int(depth) != 2 {
		t.Errorf("expected depth 2, got %v", result["depth"])
	}
	mutations := result["mutations"].([]any)
	if len(mutations) != 2 {
		t.Fatalf("expected 2 mutations, got %d", len(mutations))
	}

	rec = doRequest(t, srv, http.MethodGet, "/v1/queue?limit=0", "")
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rec.Code, "non-positive limit")
}

func TestFailureDiscardAndRetry(t *testing.T) {
	srv, st := newTestServer(t)

	mkFailure := func(subject string) string {
		id, err := st.EnqueueMutation(store.QueuedMutation{
			Subject: subject, TargetURL: "http://origin.invalid/api/attendance",
			Method: http.MethodPost, Payload: `{"userId":9}`, MaxAttempts: 3,
		})
		if err != nil {
			t.Fatalf("failed to enqueue: %v", err)
		}
		if err := st.FailMutationPermanent(id, "origin rejected with 400"); err != nil {
			t.Fatalf("failed to archive: %v", err)
		}
		return id
	}
	discardID := mkFailure("user-9")
	retryID := mkFailure("user-10")

	rec := doRequest(t, srv, http.MethodGet, "/v1/failures", "")
	resp := decodeResponse(t, rec)
	if count, _ := resp.Result.(map[string]any)["count"].(float64); int(count) != 2 {
		t.Fatalf("expected 2 archived failures, got %v", count)
	}

	// Discard removes the entry entirely.
	rec = doRequest(t, srv, http.MethodDelete, "/v1/failures/"+discardID, "")
	testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, "failure discard")
	if m, _ := st.GetMutation(discardID); m != nil {
		t.Error("expected discarded failure removed from the store")
	}

	// Retry returns the entry to pending with a fresh budget and same ID.
	rec = doRequest(t, srv, http.MethodPost, "/v1/failures/"+retryID+"/retry", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on retry, got %d: %s", rec.Code, rec.Body.String())
	}
	m, err := st.GetMutation(retryID)
	if err != nil || m == nil {
		t.Fatalf("resubmitted mutation missing: %v", err)
	}
	if m.State != store.MutationStatePending {
		t.Errorf("expected pending after resubmit, got %s", m.State)
	}
	if m.Attempts != 0 {
		t.Errorf("expected fresh retry budget, got %d attempts", m.Attempts)
	}

	rec = doRequest(t, srv, http.MethodDelete, "/v1/failures/no-such-id", "")
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rec.Code, "unknown failure discard")
}

func TestGenerationHandler(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/generation", "")
	resp := decodeResponse(t, rec)
	current, _ := resp.Result.(map[string]any)["generation"].(string)
	if current == "" {
		t.Fatal("expected a current generation")
	}

	if err := st.PutCachedResponse(store.CachedResponse{
		Key: "GET /api/employees", StatusCode: http.StatusOK,
		Body: []byte(`[]`), Generation: current,
	}); err != nil {
		t.Fatalf("failed to seed cache: %v", err)
	}

	rec = doRequest(t, srv, http.MethodPost, "/v1/generation", `{"generation":"v2.0.0"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on activation, got %d: %s", rec.Code, rec.Body.String())
	}
	resp = decodeResponse(t, rec)
	if purged, _ := resp.Result.(map[string]any)["purged"].(float64); int(purged) != 1 {
		t.Errorf("expected 1 purged cache entry, got %v", purged)
	}

	rec = doRequest(t, srv, http.MethodPost, "/v1/generation", `{"generation":""}`)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rec.Code, "empty generation")
}

func TestStatusHandler(t *testing.T) {
	srv, st := newTestServer(t)

	if _, err := st.EnqueueMutation(store.QueuedMutation{
		Subject: "user-5", TargetURL: "http://origin.invalid/api/attendance",
		Method: http.MethodPost, Payload: `{"userId":5}`, MaxAttempts: 3,
	}); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/v1/status", "")
	testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, "status")
	resp := decodeResponse(t, rec)
	result := resp.Result.(map[string]any)
	if depth, _ := result["queue_depth"].(float64); int(depth) != 1 {
		t.Errorf("expected queue depth 1, got %v", result["queue_depth"])
	}
	if _, ok := result["generation"].(string); !ok {
		t.Error("expected generation in status")
	}
	if _, ok := result["started_at"].(string); !ok {
		t.Error("expected started_at in status")
	}
	// No scheduler is wired in the test agent, so no schedule fields.
	if _, ok := result["scheduled_jobs"]; ok {
		t.Error("expected no scheduled_jobs without a scheduler")
	}
}

func TestStatusHandlerReportsSchedule(t *testing.T) {
	st := store.NewInMemoryStore()
	lm, err := lifecycle.NewManager(st)
	if err != nil {
		t.Fatalf("failed to create lifecycle manager: %v", err)
	}
	ic, err := interceptor.NewInterceptor(st, lm.Current, interceptor.WithOriginBaseURL("http://origin.invalid"))
	if err != nil {
		t.Fatalf("failed to create interceptor: %v", err)
	}
	sy := syncer.NewSyncer(st)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob("safety-net-drain", "*/5 * * * *", func() {}); err != nil {
		t.Fatalf("failed to schedule job: %v", err)
	}

	srv := api.NewServer(st, ic, sy, lm, nil, sched)
	rec := doRequest(t, srv, http.MethodGet, "/v1/status", "")
	testutil.AssertHTTPStatus(t, http.StatusOK, rec.Code, "status with schedule")
	resp := decodeResponse(t, rec)
	result := resp.Result.(map[string]any)
	if jobs, _ := result["scheduled_jobs"].(float64); int(jobs) != 1 {
		t.Errorf("expected 1 scheduled job, got %v", result["scheduled_jobs"])
	}
	next, _ := result["next_scheduled_sync"].(string)
	if next == "" {
		t.Fatal("expected next_scheduled_sync in status")
	}
	when, err := time.Parse(time.RFC3339, next)
	if err != nil {
		t.Fatalf("next_scheduled_sync not RFC3339: %v", err)
	}
	if !when.After(time.Now().Add(-time.Minute)) {
		t.Errorf("expected an upcoming run time, got %v", when)
	}
}
