package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// RunRecord is the persisted outcome of one agent run, written after the
// run completes. The offline evaluation harness reads these records; the
// agent core never does.
type RunRecord struct {
	ID         string          `json:"id"`
	Query      string          `json:"query"`
	Plan       []string        `json:"plan"`
	Subtasks   json.RawMessage `json:"subtasks"`
	Answer     string          `json:"answer"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RunStore persists run records to sqlite.
type RunStore struct {
	DB *sql.DB
}

func NewRunStore(dbPath string) (*RunStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		query TEXT,
		plan TEXT,
		subtasks TEXT,
		answer TEXT,
		duration_ms INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(query); err != nil {
		return nil, err
	}

	return &RunStore{DB: db}, nil
}

func (s *RunStore) RecordRun(rec RunRecord) error {
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return err
	}
	query := `INSERT INTO runs (id, query, plan, subtasks, answer, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.DB.Exec(query, rec.ID, rec.Query, string(plan), string(rec.Subtasks), rec.Answer, rec.DurationMS)
	return err
}

func (s *RunStore) GetRun(id string) (*RunRecord, error) {
	query := `SELECT id, query, plan, subtasks, answer, duration_ms, created_at FROM runs WHERE id = ?`
	row := s.DB.QueryRow(query, id)

	rec, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RunStore) ListRuns(limit int) ([]RunRecord, error) {
	query := `SELECT id, query, plan, subtasks, answer, duration_ms, created_at FROM runs ORDER BY created_at DESC LIMIT ?`
	rows, err := s.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *RunStore) Close() error {
	return s.DB.Close()
}

func scanRun(scan func(dest ...any) error) (*RunRecord, error) {
	var rec RunRecord
	var plan, subtasks string
	if err := scan(&rec.ID, &rec.Query, &plan, &subtasks, &rec.Answer, &rec.DurationMS, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(plan), &rec.Plan); err != nil {
		return nil, err
	}
	rec.Subtasks = json.RawMessage(subtasks)
	return &rec, nil
}
