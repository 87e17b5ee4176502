package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// StatusRunning marks a run that has started but not finished
const StatusRunning = "RUNNING"

// Database wraps SQLite connection
type Database struct {
	db *sql.DB
}

// RunRecord represents a purchase run in the database
type RunRecord struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	State         string     `json:"state"`
	Attempted     int        `json:"attempted"`
	Succeeded     int        `json:"succeeded"`
	TotalAmount   int        `json:"totalAmount"`
	BalanceBefore int        `json:"balanceBefore"`
	BalanceAfter  int        `json:"balanceAfter"`
	ReportURL     string     `json:"reportUrl,omitempty"`
	ReportData    string     `json:"reportData,omitempty"` // JSON string
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}

// RunResult is the final data of a run
type RunResult struct {
	State         string
	Attempted     int
	Succeeded     int
	TotalAmount   int
	BalanceBefore int
	BalanceAfter  int
	ReportURL     string
	Report        any
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		state TEXT NOT NULL,
		attempted INTEGER DEFAULT 0,
		succeeded INTEGER DEFAULT 0,
		total_amount INTEGER DEFAULT 0,
		balance_before INTEGER DEFAULT 0,
		balance_after INTEGER DEFAULT 0,
		report_url TEXT,
		report_data TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
	CREATE INDEX IF NOT EXISTS idx_runs_user_id ON runs(user_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateRun inserts a run in the RUNNING state
func (d *Database) CreateRun(id, userID string, startedAt time.Time) error {
	query := `
		INSERT INTO runs (id, user_id, state, started_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := d.db.Exec(query, id, userID, StatusRunning, startedAt)
	return err
}

// CompleteRun stores the final state and report of a run
func (d *Database) CompleteRun(id string, res RunResult) error {
	reportJSON, err := json.Marshal(res.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report data: %w", err)
	}

	query := `
		UPDATE runs
		SET state = ?, attempted = ?, succeeded = ?, total_amount = ?,
			balance_before = ?, balance_after = ?, report_url = ?, report_data = ?, finished_at = ?
		WHERE id = ?
	`
	result, err := d.db.Exec(query,
		res.State, res.Attempted, res.Succeeded, res.TotalAmount,
		res.BalanceBefore, res.BalanceAfter, res.ReportURL, string(reportJSON), time.Now(), id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = `id, user_id, state, attempted, succeeded, total_amount, balance_before, balance_after,
	report_url, report_data, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var run RunRecord
	var reportURL, reportData sql.NullString
	var finishedAt sql.NullTime

	err := s.Scan(
		&run.ID,
		&run.UserID,
		&run.State,
		&run.Attempted,
		&run.Succeeded,
		&run.TotalAmount,
		&run.BalanceBefore,
		&run.BalanceAfter,
		&reportURL,
		&reportData,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ReportURL = reportURL.String
	run.ReportData = reportData.String
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// GetRun retrieves a run by ID. A missing run is (nil, nil).
func (d *Database) GetRun(id string) (*RunRecord, error) {
	row := d.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns retrieves runs newest first, optionally filtered by state
func (d *Database) ListRuns(state string, limit, offset int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}

	if state != "" && state != "all" {
		query += ` AND state = ?`
		args = append(args, state)
	}

	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// CountRuns returns the number of runs, optionally filtered by state
func (d *Database) CountRuns(state string) (int, error) {
	query := `SELECT COUNT(*) FROM runs WHERE 1=1`
	args := []any{}

	if state != "" && state != "all" {
		query += ` AND state = ?`
		args = append(args, state)
	}

	var count int
	err := d.db.QueryRow(query, args...).Scan(&count)
	return count, err
}
