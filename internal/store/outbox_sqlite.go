package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/util"
)

func (s *SQLiteStore) EnqueueMutation(m QueuedMutation) (string, error) {
	id := m.ID
	if id == "" {
		id = util.GenerateMutationID()
	}
	now := time.Now()

	_, err := s.db.Exec(
		`INSERT INTO outbox_mutations (id, subject, target_url, method, payload, content_type, state, attempts, max_attempts, last_error, enqueued_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'pending', 0, ?, NULL, ?, ?)`,
		id, m.Subject, m.TargetURL, m.Method, nilIfEmpty(m.Payload), nilIfEmpty(m.ContentType), m.MaxAttempts, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue mutation failed: %w", wrapStorageErr(err))
	}
	slog.Debug("SQLiteStore.EnqueueMutation", "id", id, "subject", m.Subject, "method", m.Method, "targetURL", m.TargetURL)
	return id, nil
}

func (s *SQLiteStore) GetMutation(id string) (*QueuedMutation, error) {
	row := s.db.QueryRow(
		`SELECT `+mutationColumns+` FROM outbox_mutations WHERE id = ?`, id,
	)
	m, err := scanMutation(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get mutation failed: %w", err)
	}
	return &m, nil
}

func (s *SQLiteStore) ListPendingMutations(limit int) ([]QueuedMutation, error) {
	rows, err := s.db.Query(
		`SELECT `+mutationColumns+` FROM outbox_mutations
		 WHERE state = 'pending' ORDER BY enqueued_at ASC, id ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending mutations failed: %w", err)
	}
	defer rows.Close()
	return collectMutations(rows)
}

func (s *SQLiteStore) CountPendingMutations() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM outbox_mutations WHERE state = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending mutations failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MarkMutationInFlight(id string) error {
	now := time.Now()
	res, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'in_flight', last_attempt_at = ?, updated_at = ? WHERE id = ? AND state = 'pending'`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark mutation in flight failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mutation %s is not pending", id)
	}
	return nil
}

func (s *SQLiteStore) MarkMutationDelivered(id string) error {
	_, err := s.db.Exec(`DELETE FROM outbox_mutations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark mutation delivered failed: %w", err)
	}
	slog.Debug("SQLiteStore.MarkMutationDelivered", "id", id)
	return nil
}

func (s *SQLiteStore) FailMutationRetryable(id string, errMsg string, nextEligibleAt time.Time) error {
	now := time.Now()

	var attempts, maxAttempts int
	err := s.db.QueryRow(`SELECT attempts, max_attempts FROM outbox_mutations WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err != nil {
		return fmt.Errorf("fail mutation lookup failed: %w", err)
	}

	attempts++
	if attempts >= maxAttempts {
		_, err = s.db.Exec(
			`UPDATE outbox_mutations SET state = 'failed_permanent', attempts = ?, last_error = ?, next_eligible_at = NULL, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now, id,
		)
		if err == nil {
			slog.Info("SQLiteStore.FailMutationRetryable: max attempts reached", "id", id, "attempts", attempts)
		}
	} else {
		_, err = s.db.Exec(
			`UPDATE outbox_mutations SET state = 'pending', attempts = ?, last_error = ?, next_eligible_at = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, nextEligibleAt, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("fail mutation update failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailMutationPermanent(id string, errMsg string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'failed_permanent', last_error = ?, next_eligible_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("fail mutation permanent failed: %w", err)
	}
	slog.Info("SQLiteStore.FailMutationPermanent", "id", id, "error", errMsg)
	return nil
}

func (s *SQLiteStore) ListPermanentFailures() ([]QueuedMutation, error) {
	rows, err := s.db.Query(
		`SELECT ` + mutationColumns + ` FROM outbox_mutations
		 WHERE state = 'failed_permanent' ORDER BY enqueued_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list permanent failures failed: %w", err)
	}
	defer rows.Close()
	return collectMutations(rows)
}

func (s *SQLiteStore) DeletePermanentFailure(id string) error {
	res, err := s.db.Exec(`DELETE FROM outbox_mutations WHERE id = ? AND state = 'failed_permanent'`, id)
	if err != nil {
		return fmt.Errorf("delete permanent failure failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no archived failure with id %s", id)
	}
	return nil
}

func (s *SQLiteStore) RequeueInFlightMutations(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'pending', updated_at = ? WHERE state = 'in_flight' AND updated_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue in-flight mutations failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueInFlightMutations", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) RequeueMutation(id string) error {
	res, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'pending', updated_at = ? WHERE id = ? AND state = 'in_flight'`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("requeue mutation failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mutation %s is not in flight", id)
	}
	return nil
}

func (s *SQLiteStore) OldestInFlightMutation() (*QueuedMutation, error) {
	row := s.db.QueryRow(
		`SELECT ` + mutationColumns + ` FROM outbox_mutations
		 WHERE state = 'in_flight' ORDER BY enqueued_at ASC, id ASC LIMIT 1`,
	)
	m, err := scanMutation(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("oldest in-flight lookup failed: %w", err)
	}
	return &m, nil
}

// collectMutations drains rows into a slice in query order.
func collectMutations(rows *sql.Rows) ([]QueuedMutation, error) {
	var muts []QueuedMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		muts = append(muts, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mutation iteration failed: %w", err)
	}
	return muts, nil
}

// isNoRows reports whether err wraps sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
