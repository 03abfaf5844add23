// Package store archives monitoring cycles and their insights to SQLite.
//
// The flow ledger is in-memory and bounded; the archive keeps a durable
// history of what the background monitor found and what it cost.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a sql.DB with archive helpers.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}
	return s, nil
}

// OpenMemory creates an in-memory archive (useful for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open in-memory database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// schema contains the full archive schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle INTEGER NOT NULL,
    flow_id TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL,
    status TEXT NOT NULL,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);

CREATE TABLE IF NOT EXISTS insights (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id INTEGER NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
    category TEXT NOT NULL CHECK(category IN ('anomaly','warning','recommendation')),
    count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_insights_cycle ON insights(cycle_id);
CREATE INDEX IF NOT EXISTS idx_insights_category ON insights(category);
`

// CycleRecord is one archived monitoring cycle.
type CycleRecord struct {
	Cycle        int       `json:"cycle"`
	FlowID       string    `json:"flow_id"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
	Status       string    `json:"status"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`

	Anomalies       int `json:"anomalies"`
	Warnings        int `json:"warnings"`
	Recommendations int `json:"recommendations"`
}

// RecordCycle archives one cycle with its insight counts.
func (s *Store) RecordCycle(rec CycleRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO cycles (cycle, flow_id, started_at, duration_ms, status, input_tokens, output_tokens, cost)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Cycle, rec.FlowID, rec.StartedAt.UTC(), rec.DurationMS, rec.Status,
		rec.InputTokens, rec.OutputTokens, rec.Cost,
	)
	if err != nil {
		return fmt.Errorf("store: insert cycle: %w", err)
	}
	cycleID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: cycle id: %w", err)
	}

	for category, count := range map[string]int{
		"anomaly":        rec.Anomalies,
		"warning":        rec.Warnings,
		"recommendation": rec.Recommendations,
	} {
		if count == 0 {
			continue
		}
		if _, err := tx.Exec(
			`INSERT INTO insights (cycle_id, category, count) VALUES (?, ?, ?)`,
			cycleID, category, count,
		); err != nil {
			return fmt.Errorf("store: insert insight: %w", err)
		}
	}

	return tx.Commit()
}

// RecentCycles returns the newest archived cycles with insight counts.
func (s *Store) RecentCycles(limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
        SELECT c.id, c.cycle, c.flow_id, c.started_at, c.duration_ms, c.status,
               c.input_tokens, c.output_tokens, c.cost,
               COALESCE(SUM(CASE WHEN i.category = 'anomaly' THEN i.count END), 0),
               COALESCE(SUM(CASE WHEN i.category = 'warning' THEN i.count END), 0),
               COALESCE(SUM(CASE WHEN i.category = 'recommendation' THEN i.count END), 0)
        FROM cycles c
        LEFT JOIN insights i ON i.cycle_id = c.id
        GROUP BY c.id
        ORDER BY c.started_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var id int64
		if err := rows.Scan(&id, &rec.Cycle, &rec.FlowID, &rec.StartedAt, &rec.DurationMS,
			&rec.Status, &rec.InputTokens, &rec.OutputTokens, &rec.Cost,
			&rec.Anomalies, &rec.Warnings, &rec.Recommendations); err != nil {
			return nil, fmt.Errorf("store: scan cycle: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsightTotals returns cumulative insight counts by category.
func (s *Store) InsightTotals() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT category, COALESCE(SUM(count), 0) FROM insights GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("store: query insight totals: %w", err)
	}
	defer rows.Close()

	totals := map[string]int{"anomaly": 0, "warning": 0, "recommendation": 0}
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("store: scan totals: %w", err)
		}
		totals[category] = count
	}
	return totals, rows.Err()
}

// TotalCost returns the archived spend across all cycles.
func (s *Store) TotalCost() (float64, error) {
	var cost float64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(cost), 0) FROM cycles`).Scan(&cost)
	if err != nil {
		return 0, fmt.Errorf("store: query total cost: %w", err)
	}
	return cost, nil
}
