package lifecycle

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
)

func TestNewManagerMintsAndPersistsInitialGeneration(t *testing.T) {
	st := store.NewInMemoryStore()

	m, err := NewManager(st)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	first := m.Current()
	if first == "" {
		t.Fatal("expected a minted initial generation")
	}
	if !strings.HasPrefix(first, "gen-") {
		t.Errorf("expected minted generation with gen- prefix, got %s", first)
	}

	// A second manager over the same store must see the persisted tag.
	m2, err := NewManager(st)
	if err != nil {
		t.Fatalf("failed to recreate manager: %v", err)
	}
	if m2.Current() != first {
		t.Errorf("expected persisted generation %s, got %s", first, m2.Current())
	}
}

func TestActivatePurgesStaleGenerationsOnly(t *testing.T) {
	st := store.NewInMemoryStore()
	m, err := NewManager(st)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	old := m.Current()
	seed := []store.CachedResponse{
		{Key: "GET /api/employees", StatusCode: http.StatusOK, Body: []byte(`[]`), Generation: old},
		{Key: "GET /api/roster", StatusCode: http.StatusOK, Body: []byte(`{}`), Generation: old},
	}
	for _, e := range seed {
		if err := st.PutCachedResponse(e); err != nil {
			t.Fatalf("failed to seed cache: %v", err)
		}
	}
	mutID, err := st.EnqueueMutation(store.QueuedMutation{
		Subject: "user-5", TargetURL: "http://origin.invalid/api/attendance",
		Method: http.MethodPost, Payload: `{"userId":5}`, MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	purged, err := m.Activate("v2.1.0")
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if purged != 2 {
		t.Errorf("expected 2 purged entries, got %d", purged)
	}
	if m.Current() != "v2.1.0" {
		t.Errorf("expected current generation v2.1.0, got %s", m.Current())
	}

	persisted, _ := st.GetSetting(store.SettingCacheGeneration)
	if persisted != "v2.1.0" {
		t.Errorf("expected persisted generation v2.1.0, got %s", persisted)
	}

	// Rollover must never touch the outbox.
	mut, err := st.GetMutation(mutID)
	if err != nil || mut == nil {
		t.Fatalf("queued mutation lost on rollover: %v", err)
	}
	if mut.State != store.MutationStatePending {
		t.Errorf("expected pending mutation to survive rollover, got %s", mut.State)
	}
}

func TestActivateRejectsEmptyGeneration(t *testing.T) {
	st := store.NewInMemoryStore()
	m, err := NewManager(st)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if _, err := m.Activate("   "); !errors.Is(err, models.ErrEmptyGeneration) {
		t.Fatalf("expected ErrEmptyGeneration, got %v", err)
	}
}
