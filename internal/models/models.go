// Package models defines the core data structures shared across the HRM sync agent.
//
// It includes the API response envelope, sync event types, and the error
// taxonomy used by the interceptor and the replayer.
package models

import (
	"errors"
	"time"
)

// Validation constants for intercepted requests.
const (
	// MaxPayloadBytes defines the maximum allowed size for a mutation payload
	// captured into the outbox.
	MaxPayloadBytes = 1 << 20 // 1 MiB
	// MaxSubjectLength defines the maximum allowed length for a sync subject key.
	MaxSubjectLength = 128
)

// Error variables for better error handling and testability
var (
	// ErrUnavailable indicates the origin could not be reached and no cached
	// copy exists for the requested read.
	ErrUnavailable = errors.New("origin unavailable and no cached response")
	// ErrSerialization indicates a mutation payload could not be captured;
	// such requests are rejected before they reach the outbox.
	ErrSerialization = errors.New("mutation payload is not serializable")
	// ErrStorageExhausted indicates the local store refused a new record
	// because the backing storage is full.
	ErrStorageExhausted = errors.New("local storage exhausted")
	// ErrPayloadTooLarge indicates a mutation payload exceeds MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("mutation payload exceeds maximum size")
	// ErrEmptyTargetURL indicates a mutation without a replay target.
	ErrEmptyTargetURL = errors.New("target URL cannot be empty")
	// ErrInvalidMethod indicates an HTTP method outside the supported set.
	ErrInvalidMethod = errors.New("invalid HTTP method")
	// ErrEmptyGeneration indicates a cache generation activation without a tag.
	ErrEmptyGeneration = errors.New("cache generation cannot be empty")
)

// SyncEventType classifies events emitted by the replayer.
type SyncEventType string

const (
	// SyncEventEnqueued fires when the interceptor captures a mutation into the outbox.
	SyncEventEnqueued SyncEventType = "enqueued"
	// SyncEventDelivered fires when the origin acknowledges a replayed mutation.
	SyncEventDelivered SyncEventType = "delivered"
	// SyncEventFailedPermanent fires when a mutation reaches a terminal failure.
	SyncEventFailedPermanent SyncEventType = "failed_permanent"
	// SyncEventCompleted fires when a drain pass finishes with the outbox empty
	// or with only entries waiting out their backoff window.
	SyncEventCompleted SyncEventType = "completed"
	// SyncEventAborted fires when a drain pass stops early because the origin
	// became unreachable again.
	SyncEventAborted SyncEventType = "aborted"
)

// SyncEvent reports replayer progress to the surrounding application so it can
// inform the user (queue depth, terminal failures, sync completion).
type SyncEvent struct {
	Type       SyncEventType `json:"type"`
	MutationID string        `json:"mutation_id,omitempty"`
	Subject    string        `json:"subject,omitempty"`
	QueueDepth int           `json:"queue_depth"`
	Error      string        `json:"error,omitempty"`
	Time       time.Time     `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	APIStatusOK     APIStatus = "ok"
	APIStatusError  APIStatus = "error"
	APIStatusQueued APIStatus = "queued"
)

// APIResponse is the uniform JSON envelope returned by the agent's HTTP surface.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Queued creates the synthetic "accepted, pending sync" response returned to a
// caller whose mutation was captured into the outbox.
func Queued(mutationID string, queueDepth int) APIResponse {
	return APIResponse{
		Status:  string(APIStatusQueued),
		Message: "origin unreachable; mutation queued for sync",
		Result: map[string]interface{}{
			"mutation_id": mutationID,
			"queue_depth": queueDepth,
		},
	}
}
