package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

func (s *PostgresStore) GetCachedResponse(key string) (*CachedResponse, error) {
	var e CachedResponse
	var contentType, headers sql.NullString
	err := s.db.QueryRow(
		`SELECT key, status_code, content_type, headers, body, generation, stored_at
		 FROM cached_responses WHERE key = $1`, key,
	).Scan(&e.Key, &e.StatusCode, &contentType, &headers, &e.Body, &e.Generation, &e.StoredAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.GetCachedResponse: miss", "key", key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached response failed: %w", err)
	}
	e.ContentType = contentType.String
	e.Headers = headers.String
	slog.Debug("PostgresStore.GetCachedResponse: hit", "key", key, "generation", e.Generation)
	return &e, nil
}

func (s *PostgresStore) PutCachedResponse(entry CachedResponse) error {
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO cached_responses (key, status_code, content_type, headers, body, generation, stored_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (key) DO UPDATE SET
		   status_code = EXCLUDED.status_code,
		   content_type = EXCLUDED.content_type,
		   headers = EXCLUDED.headers,
		   body = EXCLUDED.body,
		   generation = EXCLUDED.generation,
		   stored_at = EXCLUDED.stored_at`,
		entry.Key, entry.StatusCode, nilIfEmpty(entry.ContentType), nilIfEmpty(entry.Headers),
		entry.Body, entry.Generation, entry.StoredAt,
	)
	if err != nil {
		return fmt.Errorf("put cached response failed: %w", wrapStorageErr(err))
	}
	slog.Debug("PostgresStore.PutCachedResponse", "key", entry.Key, "generation", entry.Generation, "bytes", len(entry.Body))
	return nil
}

func (s *PostgresStore) PurgeCacheGenerations(keep string) (int, error) {
	result, err := s.db.Exec(`DELETE FROM cached_responses WHERE generation != $1`, keep)
	if err != nil {
		return 0, fmt.Errorf("purge cache generations failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.PurgeCacheGenerations", "purged", n, "keep", keep)
	}
	return int(n), nil
}
