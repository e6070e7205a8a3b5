// Package store provides the OutboxRepo interface and model for restart-safe mutation replay.
package store

import (
	"time"
)

// MutationState represents the lifecycle state of a queued mutation.
type MutationState string

const (
	// MutationStatePending means the mutation is waiting to be replayed.
	MutationStatePending MutationState = "pending"
	// MutationStateInFlight means the replayer has picked the mutation up and
	// is issuing the origin call. At most one attempt per mutation is in
	// flight at any time.
	MutationStateInFlight MutationState = "in_flight"
	// MutationStateDelivered means the origin acknowledged the mutation with a
	// 2xx; delivered rows are deleted from the live set.
	MutationStateDelivered MutationState = "delivered"
	// MutationStateFailedPermanent means the origin rejected the mutation
	// (4xx) or retries were exhausted; the row is archived for the operator
	// and never replayed again.
	MutationStateFailedPermanent MutationState = "failed_permanent"
)

// QueuedMutation is a durable record of a state-changing request captured
// while the origin was unreachable. The payload is immutable once stored;
// only the replayer mutates the bookkeeping fields.
type QueuedMutation struct {
	ID             string        `json:"id"`
	Subject        string        `json:"subject"`
	TargetURL      string        `json:"target_url"`
	Method         string        `json:"method"`
	Payload        string        `json:"payload"`
	ContentType    string        `json:"content_type"`
	State          MutationState `json:"state"`
	Attempts       int           `json:"attempts"`
	MaxAttempts    int           `json:"max_attempts"`
	LastError      string        `json:"last_error"`
	EnqueuedAt     time.Time     `json:"enqueued_at"`
	LastAttemptAt  *time.Time    `json:"last_attempt_at"`
	NextEligibleAt *time.Time    `json:"next_eligible_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// OutboxRepo defines the interface for durable mutation persistence.
//
// Ordering is the core correctness property: ListPendingMutations returns
// entries in ascending (enqueued_at, id) order so that mutations against the
// same subject are replayed in the order the user performed them.
type OutboxRepo interface {
	// EnqueueMutation inserts a new pending mutation and returns its ID. The
	// insert is atomic and flushed to stable storage before the call returns.
	// A full backing store surfaces models.ErrStorageExhausted; pending
	// entries are never evicted to make room.
	EnqueueMutation(m QueuedMutation) (string, error)

	// GetMutation retrieves a single mutation by ID. Returns (nil, nil) if absent.
	GetMutation(id string) (*QueuedMutation, error)

	// ListPendingMutations returns up to limit pending mutations in FIFO order,
	// regardless of backoff eligibility. The replayer decides whether the head
	// entry is eligible yet.
	ListPendingMutations(limit int) ([]QueuedMutation, error)

	// CountPendingMutations returns the current queue depth.
	CountPendingMutations() (int, error)

	// MarkMutationInFlight transitions a pending mutation to in_flight.
	MarkMutationInFlight(id string) error

	// MarkMutationDelivered removes a mutation after origin acknowledgment.
	MarkMutationDelivered(id string) error

	// FailMutationRetryable records a retryable failure: increments attempts,
	// stores the error, and returns the mutation to pending with the given
	// backoff deadline. When attempts reach max_attempts the mutation is
	// marked failed_permanent instead.
	FailMutationRetryable(id string, errMsg string, nextEligibleAt time.Time) error

	// FailMutationPermanent archives a mutation after an explicit origin
	// rejection. Archived rows are surfaced to the operator, never replayed.
	FailMutationPermanent(id string, errMsg string) error

	// ListPermanentFailures returns archived failed_permanent mutations in
	// FIFO order for operator review.
	ListPermanentFailures() ([]QueuedMutation, error)

	// DeletePermanentFailure removes an archived failure after the operator
	// has acknowledged it.
	DeletePermanentFailure(id string) error

	// RequeueInFlightMutations returns to pending every in_flight mutation
	// whose claim has not been touched since staleBefore. An abandoned claim
	// must never be assumed delivered without an explicit ack, but a fresh
	// claim may belong to a live agent draining the same store, so only
	// entries past the cutoff are taken back. Attempts are not consumed.
	RequeueInFlightMutations(staleBefore time.Time) (int, error)

	// RequeueMutation returns a single in_flight mutation to pending without
	// consuming an attempt. Errors if the mutation is not currently claimed.
	RequeueMutation(id string) error

	// OldestInFlightMutation returns the claimed mutation with the earliest
	// enqueue position, or (nil, nil) when nothing is in flight.
	OldestInFlightMutation() (*QueuedMutation, error)
}
