package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// mutationColumns is the canonical column order used by every outbox query.
const mutationColumns = `id, subject, target_url, method, payload, content_type, state, attempts, max_attempts, last_error, enqueued_at, last_attempt_at, next_eligible_at, updated_at`

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanMutation scans a QueuedMutation from a row in mutationColumns order.
func scanMutation(row rowScanner) (QueuedMutation, error) {
	var m QueuedMutation
	var payload, contentType, lastError sql.NullString
	var lastAttemptAt, nextEligibleAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.Subject, &m.TargetURL, &m.Method, &payload, &contentType,
		&m.State, &m.Attempts, &m.MaxAttempts, &lastError,
		&m.EnqueuedAt, &lastAttemptAt, &nextEligibleAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan mutation failed: %w", err)
	}
	m.Payload = payload.String
	m.ContentType = contentType.String
	m.LastError = lastError.String
	if lastAttemptAt.Valid {
		m.LastAttemptAt = &lastAttemptAt.Time
	}
	if nextEligibleAt.Valid {
		m.NextEligibleAt = &nextEligibleAt.Time
	}
	return m, nil
}

// wrapStorageErr maps backend disk-full failures onto models.ErrStorageExhausted
// so callers can reject new enqueues with a visible error instead of evicting
// pending mutations.
func wrapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "disk is full") || strings.Contains(msg, "database or disk is full") || strings.Contains(msg, "no space left") {
		return fmt.Errorf("%w: %v", models.ErrStorageExhausted, err)
	}
	return err
}
