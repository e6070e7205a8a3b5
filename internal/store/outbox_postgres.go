package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AdityaaTyagi56/MCD-HRMS-sub001/internal/util"
)

func (s *PostgresStore) EnqueueMutation(m QueuedMutation) (string, error) {
	id := m.ID
	if id == "" {
		id = util.GenerateMutationID()
	}
	now := time.Now()

	_, err := s.db.Exec(
		`INSERT INTO outbox_mutations (id, subject, target_url, method, payload, content_type, state, attempts, max_attempts, last_error, enqueued_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0, $7, NULL, $8, $9)`,
		id, m.Subject, m.TargetURL, m.Method, nilIfEmpty(m.Payload), nilIfEmpty(m.ContentType), m.MaxAttempts, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue mutation failed: %w", wrapStorageErr(err))
	}
	slog.Debug("PostgresStore.EnqueueMutation", "id", id, "subject", m.Subject, "method", m.Method, "targetURL", m.TargetURL)
	return id, nil
}

func (s *PostgresStore) GetMutation(id string) (*QueuedMutation, error) {
	row := s.db.QueryRow(
		`SELECT `+mutationColumns+` FROM outbox_mutations WHERE id = $1`, id,
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

func (s *PostgresStore) ListPendingMutations(limit int) ([]QueuedMutation, error) {
	rows, err := s.db.Query(
		`SELECT `+mutationColumns+` FROM outbox_mutations
		 WHERE state = 'pending' ORDER BY enqueued_at ASC, id ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending mutations failed: %w", err)
	}
	defer rows.Close()
	return collectMutations(rows)
}

func (s *PostgresStore) CountPendingMutations() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM outbox_mutations WHERE state = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending mutations failed: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkMutationInFlight(id string) error {
	now := time.Now()
	res, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'in_flight', last_attempt_at = $1, updated_at = $2 WHERE id = $3 AND state = 'pending'`,
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

func (s *PostgresStore) MarkMutationDelivered(id string) error {
	_, err := s.db.Exec(`DELETE FROM outbox_mutations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark mutation delivered failed: %w", err)
	}
	slog.Debug("PostgresStore.MarkMutationDelivered", "id", id)
	return nil
}

func (s *PostgresStore) FailMutationRetryable(id string, errMsg string, nextEligibleAt time.Time) error {
	now := time.Now()

	var attempts, maxAttempts int
	err := s.db.QueryRow(`SELECT attempts, max_attempts FROM outbox_mutations WHERE id = $1`, id).Scan(&attempts, &maxAttempts)
	if err != nil {
		return fmt.Errorf("fail mutation lookup failed: %w", err)
	}

	attempts++
	if attempts >= maxAttempts {
		_, err = s.db.Exec(
			`UPDATE outbox_mutations SET state = 'failed_permanent', attempts = $1, last_error = $2, next_eligible_at = NULL, updated_at = $3 WHERE id = $4`,
			attempts, errMsg, now, id,
		)
		if err == nil {
			slog.Info("PostgresStore.FailMutationRetryable: max attempts reached", "id", id, "attempts", attempts)
		}
	} else {
		_, err = s.db.Exec(
			`UPDATE outbox_mutations SET state = 'pending', attempts = $1, last_error = $2, next_eligible_at = $3, updated_at = $4 WHERE id = $5`,
			attempts, errMsg, nextEligibleAt, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("fail mutation update failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailMutationPermanent(id string, errMsg string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'failed_permanent', last_error = $1, next_eligible_at = NULL, updated_at = $2 WHERE id = $3`,
		errMsg, now, id,
	)
	if err != nil {
		return fmt.Errorf("fail mutation permanent failed: %w", err)
	}
	slog.Info("PostgresStore.FailMutationPermanent", "id", id, "error", errMsg)
	return nil
}

func (s *PostgresStore) ListPermanentFailures() ([]QueuedMutation, error) {
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

func (s *PostgresStore) DeletePermanentFailure(id string) error {
	res, err := s.db.Exec(`DELETE FROM outbox_mutations WHERE id = $1 AND state = 'failed_permanent'`, id)
	if err != nil {
		return fmt.Errorf("delete permanent failure failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no archived failure with id %s", id)
	}
	return nil
}

func (s *PostgresStore) RequeueInFlightMutations(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'pending', updated_at = $1 WHERE state = 'in_flight' AND updated_at < $2`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue in-flight mutations failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueInFlightMutations", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) RequeueMutation(id string) error {
	res, err := s.db.Exec(
		`UPDATE outbox_mutations SET state = 'pending', updated_at = $1 WHERE id = $2 AND state = 'in_flight'`,
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

func (s *PostgresStore) OldestInFlightMutation() (*QueuedMutation, error) {
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
