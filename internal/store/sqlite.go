package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	// Run migrations
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Store initialized successfully", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// FetchRecord Operations
// ============================================================================

// RecordFetch inserts a fetch history record and sets its ID
func (s *Store) RecordFetch(rec *FetchRecord) error {
	const query = `
		INSERT INTO fetch_history (
			repo, ref, method, mirror, success, size_bytes, speed_mbps,
			download_time_ms, total_time_ms, retry_count, fallback_used,
			error_class, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		rec.Repo, rec.Ref, rec.Method, rec.Mirror, rec.Success,
		rec.SizeBytes, rec.SpeedMBps, rec.DownloadTimeMs, rec.TotalTimeMs,
		rec.RetryCount, rec.FallbackUsed, rec.ErrorClass, rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fetch record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// RecentFetches returns the most recent fetch records, newest first
func (s *Store) RecentFetches(limit int) ([]*FetchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, repo, ref, method, mirror, success, size_bytes, speed_mbps,
		       download_time_ms, total_time_ms, retry_count, fallback_used,
		       COALESCE(error_class, ''), COALESCE(error_message, ''), created_at
		FROM fetch_history
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetch history: %w", err)
	}
	defer rows.Close()

	var records []*FetchRecord
	for rows.Next() {
		var rec FetchRecord
		var mirror sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.Repo, &rec.Ref, &rec.Method, &mirror, &rec.Success,
			&rec.SizeBytes, &rec.SpeedMBps, &rec.DownloadTimeMs, &rec.TotalTimeMs,
			&rec.RetryCount, &rec.FallbackUsed, &rec.ErrorClass, &rec.ErrorMessage,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fetch record: %w", err)
		}
		rec.Mirror = mirror.String
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// FetchesForRepo returns a repository's recent fetch records, newest first
func (s *Store) FetchesForRepo(repo string, limit int) ([]*FetchRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
		SELECT id, repo, ref, method, mirror, success, size_bytes, speed_mbps,
		       download_time_ms, total_time_ms, retry_count, fallback_used,
		       COALESCE(error_class, ''), COALESCE(error_message, ''), created_at
		FROM fetch_history
		WHERE repo = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, repo, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fetch history: %w", err)
	}
	defer rows.Close()

	var records []*FetchRecord
	for rows.Next() {
		var rec FetchRecord
		var mirror sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.Repo, &rec.Ref, &rec.Method, &mirror, &rec.Success,
			&rec.SizeBytes, &rec.SpeedMBps, &rec.DownloadTimeMs, &rec.TotalTimeMs,
			&rec.RetryCount, &rec.FallbackUsed, &rec.ErrorClass, &rec.ErrorMessage,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan fetch record: %w", err)
		}
		rec.Mirror = mirror.String
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// MethodSummary aggregates success counts and throughput per method
func (s *Store) MethodSummary() ([]*MethodStats, error) {
	const query = `
		SELECT method,
		       COUNT(*) AS total,
		       SUM(CASE WHEN success THEN 1 ELSE 0 END) AS succeeded,
		       COALESCE(AVG(CASE WHEN success THEN speed_mbps END), 0) AS avg_speed
		FROM fetch_history
		GROUP BY method
		ORDER BY method
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query method summary: %w", err)
	}
	defer rows.Close()

	var stats []*MethodStats
	for rows.Next() {
		var st MethodStats
		if err := rows.Scan(&st.Method, &st.Total, &st.Succeeded, &st.AvgSpeedMBps); err != nil {
			return nil, fmt.Errorf("failed to scan method summary: %w", err)
		}
		stats = append(stats, &st)
	}

	return stats, rows.Err()
}

// ============================================================================
// ProbeRecord Operations
// ============================================================================

// RecordProbe inserts a probe outcome and sets its ID
func (s *Store) RecordProbe(rec *ProbeRecord) error {
	const query = `
		INSERT INTO probe_stats (
			mirror, kind, healthy, response_time_ms, speed_mbps,
			latency_ms, error, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		rec.Mirror, rec.Kind, rec.Healthy, rec.ResponseTimeMs,
		rec.SpeedMBps, rec.LatencyMs, rec.Error, rec.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert probe record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// MirrorSummary aggregates probe outcomes per mirror
func (s *Store) MirrorSummary() ([]*MirrorStats, error) {
	const query = `
		SELECT mirror,
		       COUNT(*) AS probes,
		       SUM(CASE WHEN healthy THEN 1 ELSE 0 END) AS healthy,
		       COALESCE(AVG(CASE WHEN kind = 'speed' AND speed_mbps > 0 THEN speed_mbps END), 0) AS avg_speed
		FROM probe_stats
		GROUP BY mirror
		ORDER BY mirror
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror summary: %w", err)
	}
	defer rows.Close()

	var stats []*MirrorStats
	for rows.Next() {
		var st MirrorStats
		if err := rows.Scan(&st.Mirror, &st.Probes, &st.Healthy, &st.AvgSpeedMBps); err != nil {
			return nil, fmt.Errorf("failed to scan mirror summary: %w", err)
		}
		stats = append(stats, &st)
	}

	return stats, rows.Err()
}

// PruneFetchHistory deletes all but the newest keep records
func (s *Store) PruneFetchHistory(keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive")
	}

	const query = `
		DELETE FROM fetch_history
		WHERE id NOT IN (
			SELECT id FROM fetch_history ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`

	result, err := s.db.Exec(query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune fetch history: %w", err)
	}
	return result.RowsAffected()
}
