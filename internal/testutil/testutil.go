// Package testutil provides common test utilities and helpers for sync agent tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/api"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/interceptor"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/lifecycle"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/syncer"
)

// NewTestAgent creates a fully wired API server over an in-memory store,
// pointed at the given origin URL. This centralizes the wiring logic used
// across end-to-end style tests.
func NewTestAgent(t *testing.T, originURL string) (*api.Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()

	lm, err := lifecycle.NewManager(st)
	if err != nil {
		t.Fatalf("failed to create lifecycle manager: %v", err)
	}
	ic, err := interceptor.NewInterceptor(st, lm.Current, interceptor.WithOriginBaseURL(originURL))
	if err != nil {
		t.Fatalf("failed to create interceptor: %v", err)
	}
	sy := syncer.NewSyncer(st, syncer.WithTimeout(2*time.Second))
	return api.NewServer(st, ic, sy, lm, nil, nil), st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// AssertQueueDepth validates the number of pending mutations in the store.
func AssertQueueDepth(t *testing.T, st store.Store, expected int, context string) {
	t.Helper()
	depth, err := st.CountPendingMutations()
	if err != nil {
		t.Fatalf("%s: failed to count pending mutations: %v", context, err)
	}
	if depth != expected {
		t.Errorf("%s: expected queue depth %d, got %d", context, expected, depth)
	}
}
