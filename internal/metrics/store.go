package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS generation_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// GenerationMetric records metadata for a single completion call.
type GenerationMetric struct {
	Username         string    `db:"username"`
	Model            string    `db:"model"`
	PromptTokens     int       `db:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens"`
	LatencyMS        int64     `db:"latency_ms"`
	Succeeded        bool      `db:"succeeded"`
	Timestamp        time.Time `db:"created_at"`
}

// Recorder is the subset of the store the session controller needs.
type Recorder interface {
	Record(m GenerationMetric) error
}

// Store handles persistence of generation metrics to SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (and creates, if needed) the metrics database at path. The
// single-table schema is applied at open.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply metrics schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record saves a metric to the database.
func (s *Store) Record(m GenerationMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.Exec(
		`INSERT INTO generation_metrics
		 (username, model, prompt_tokens, completion_tokens, latency_ms, succeeded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Username, m.Model, m.PromptTokens, m.CompletionTokens, m.LatencyMS, m.Succeeded, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to record generation metric: %w", err)
	}
	return nil
}

// DailyUsage represents token totals for a single day.
type DailyUsage struct {
	Date            string `db:"day"`
	TotalPrompt     int    `db:"prompt"`
	TotalCompletion int    `db:"completion"`
	TotalCalls      int    `db:"calls"`
}

// RecentUsage retrieves per-day totals for the last N days, newest first.
func (s *Store) RecentUsage(days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var usage []DailyUsage
	err := s.db.Select(&usage,
		`SELECT date(created_at) AS day,
		        COALESCE(SUM(prompt_tokens), 0) AS prompt,
		        COALESCE(SUM(completion_tokens), 0) AS completion,
		        COUNT(*) AS calls
		 FROM generation_metrics
		 WHERE created_at >= ?
		 GROUP BY day
		 ORDER BY day DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent usage: %w", err)
	}
	return usage, nil
}

// Cleanup removes records older than the specified number of days and
// returns how many were removed.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	res, err := s.db.Exec(`DELETE FROM generation_metrics WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up metrics: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
