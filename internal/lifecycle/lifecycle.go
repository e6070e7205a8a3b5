// Package lifecycle owns the cache generation: a version tag rolled over on
// application deploys so stale cached reads from an old version are never
// served against new code.
package lifecycle

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/store"
	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/util"
)

// Manager holds the active cache generation and persists it across restarts.
type Manager struct {
	store store.Store

	mu      sync.Mutex
	current string
}

// NewManager loads the persisted generation, minting and persisting an
// initial one on first run.
func NewManager(st store.Store) (*Manager, error) {
	gen, err := st.GetSetting(store.SettingCacheGeneration)
	if err != nil {
		return nil, fmt.Errorf("load cache generation failed: %w", err)
	}
	if gen == "" {
		gen = util.GenerateRandomID("gen-", 8)
		if err := st.PutSetting(store.SettingCacheGeneration, gen); err != nil {
			return nil, fmt.Errorf("persist initial cache generation failed: %w", err)
		}
		slog.Info("Manager: minted initial cache generation", "generation", gen)
	}
	return &Manager{store: st, current: gen}, nil
}

// Current returns the active generation. Cache lookups consult this on every
// read.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Activate rolls the cache over to a new generation: the tag is persisted,
// becomes current, and every cached response from another generation is
// purged. The outbox is untouched; queued mutations survive deploys.
func (m *Manager) Activate(gen string) (int, error) {
	gen = strings.TrimSpace(gen)
	if gen == "" {
		return 0, models.ErrEmptyGeneration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.PutSetting(store.SettingCacheGeneration, gen); err != nil {
		return 0, fmt.Errorf("persist cache generation failed: %w", err)
	}
	m.current = gen

	purged, err := m.store.PurgeCacheGenerations(gen)
	if err != nil {
		return 0, fmt.Errorf("purge stale cache generations failed: %w", err)
	}
	slog.Info("Manager.Activate: cache generation rolled over", "generation", gen, "purged", purged)
	return purged, nil
}
