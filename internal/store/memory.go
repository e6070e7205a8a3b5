package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/util"
)

// InMemoryStore is a mutex-guarded Store for tests and -dev runs.
// It provides the same atomicity guarantees as the durable backends but no
// crash safety.
type InMemoryStore struct {
	mu        sync.Mutex
	mutations map[string]*QueuedMutation
	cache     map[string]CachedResponse
	settings  map[string]string
}

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		mutations: make(map[string]*QueuedMutation),
		cache:     make(map[string]CachedResponse),
		settings:  make(map[string]string),
	}
}

func (s *InMemoryStore) EnqueueMutation(m QueuedMutation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = util.GenerateMutationID()
	}
	now := time.Now()
	m.State = MutationStatePending
	m.Attempts = 0
	m.EnqueuedAt = now
	m.UpdatedAt = now
	s.mutations[m.ID] = &m
	return m.ID, nil
}

func (s *InMemoryStore) GetMutation(id string) (*QueuedMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mutations[id]
	if !ok {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (s *InMemoryStore) ListPendingMutations(limit int) ([]QueuedMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByStateLocked(MutationStatePending, limit), nil
}

func (s *InMemoryStore) CountPendingMutations() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.mutations {
		if m.State == MutationStatePending {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) MarkMutationInFlight(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mutations[id]
	if !ok || m.State != MutationStatePending {
		return fmt.Errorf("mutation %s is not pending", id)
	}
	now := time.Now()
	m.State = MutationStateInFlight
	m.LastAttemptAt = &now
	m.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) MarkMutationDelivered(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mutations, id)
	return nil
}

func (s *InMemoryStore) FailMutationRetryable(id string, errMsg string, nextEligibleAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mutations[id]
	if !ok {
		return fmt.Errorf("no mutation with id %s", id)
	}
	m.Attempts++
	m.LastError = errMsg
	m.UpdatedAt = time.Now()
	if m.Attempts >= m.MaxAttempts {
		m.State = MutationStateFailedPermanent
		m.NextEligibleAt = nil
	} else {
		m.State = MutationStatePending
		eligible := nextEligibleAt
		m.NextEligibleAt = &eligible
	}
	return nil
}

func (s *InMemoryStore) FailMutationPermanent(id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mutations[id]
	if !ok {
		return fmt.Errorf("no mutation with id %s", id)
	}
	m.State = MutationStateFailedPermanent
	m.LastError = errMsg
	m.NextEligibleAt = nil
	m.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) ListPermanentFailures() ([]QueuedMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listByStateLocked(MutationStateFailedPermanent, 0), nil
}

func (s *InMemoryStore) DeletePermanentFailure(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mutations[id]
	if !ok || m.State != MutationStateFailedPermanent {
		return fmt.Errorf("no archived failure with id %s", id)
	}
	delete(s.mutations, id)
	return nil
}

func (s *InMemoryStore) RequeueInFlightMutations(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.mutations {
		if m.State == MutationStateInFlight && m.UpdatedAt.Before(staleBefore) {
			m.State = MutationStatePending
			m.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) RequeueMutation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mutations[id]
	if !ok || m.State != MutationStateInFlight {
		return fmt.Errorf("mutation %s is not in flight", id)
	}
	m.State = MutationStatePending
	m.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) OldestInFlightMutation() (*QueuedMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	muts := s.listByStateLocked(MutationStateInFlight, 1)
	if len(muts) == 0 {
		return nil, nil
	}
	head := muts[0]
	return &head, nil
}

func (s *InMemoryStore) GetCachedResponse(key string) (*CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache[key]
	if !ok {
		return nil, nil
	}
	copied := e
	copied.Body = append([]byte(nil), e.Body...)
	return &copied, nil
}

func (s *InMemoryStore) PutCachedResponse(entry CachedResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	entry.Body = append([]byte(nil), entry.Body...)
	s.cache[entry.Key] = entry
	return nil
}

func (s *InMemoryStore) PurgeCacheGenerations(keep string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, e := range s.cache {
		if e.Generation != keep {
			delete(s.cache, key)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetSetting(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[key], nil
}

func (s *InMemoryStore) PutSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// listByStateLocked returns mutations in FIFO (enqueued_at, id) order.
// Callers must hold s.mu. A limit of 0 means no limit.
func (s *InMemoryStore) listByStateLocked(state MutationState, limit int) []QueuedMutation {
	var muts []QueuedMutation
	for _, m := range s.mutations {
		if m.State == state {
			muts = append(muts, *m)
		}
	}
	sort.Slice(muts, func(i, j int) bool {
		if muts[i].EnqueuedAt.Equal(muts[j].EnqueuedAt) {
			return muts[i].ID < muts[j].ID
		}
		return muts[i].EnqueuedAt.Before(muts[j].EnqueuedAt)
	})
	if limit > 0 && len(muts) > limit {
		muts = muts[:limit]
	}
	return muts
}
