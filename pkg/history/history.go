// Package history pkg/history/history.go provides SQLite-backed archival
// of finished upgrade sessions for post-mortem review.
package history

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/obsforge/stackupgrade/pkg/state"
)

const createTablesSQL = `
	-- Finished upgrade sessions
	CREATE TABLE IF NOT EXISTS upgrade_sessions (
		upgrade_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		mode TEXT,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		error_count INTEGER NOT NULL DEFAULT 0,
		recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Per-component outcomes within a session
	CREATE TABLE IF NOT EXISTS component_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		upgrade_id TEXT NOT NULL,
		component TEXT NOT NULL,
		status TEXT NOT NULL,
		from_version TEXT,
		to_version TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		backup_path TEXT,
		rollback_available BOOLEAN NOT NULL DEFAULT 0,
		health_check_passed BOOLEAN NOT NULL DEFAULT 0,
		checksum TEXT,
		error TEXT,
		completed_at TIMESTAMP,
		FOREIGN KEY (upgrade_id) REFERENCES upgrade_sessions(upgrade_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_component_results_session
		ON component_results(upgrade_id);
	CREATE INDEX IF NOT EXISTS idx_component_results_component
		ON component_results(component, completed_at);
`

// DB wraps the history database.
type DB struct {
	*sql.DB
}

// SessionSummary is one row of the session archive.
type SessionSummary struct {
	UpgradeID   string     `json:"upgrade_id"`
	Status      string     `json:"status"`
	Mode        string     `json:"mode,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ErrorCount  int        `json:"error_count"`
}

// ComponentResult is one archived component outcome.
type ComponentResult struct {
	UpgradeID         string     `json:"upgrade_id"`
	Component         string     `json:"component"`
	Status            string     `json:"status"`
	FromVersion       string     `json:"from_version,omitempty"`
	ToVersion         string     `json:"to_version,omitempty"`
	Attempts          int        `json:"attempts"`
	BackupPath        string     `json:"backup_path,omitempty"`
	RollbackAvailable bool       `json:"rollback_available"`
	HealthCheckPassed bool       `json:"health_check_passed"`
	Checksum          string     `json:"checksum,omitempty"`
	Error             string     `json:"error,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// New opens (or creates) the history database at dbPath.
func New(dbPath string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close() //nolint:errcheck,gosec // best effort before bailing
		return nil, fmt.Errorf("%w: %w", ErrFailedToEnable, err)
	}

	if _, err := sqlDB.Exec(createTablesSQL); err != nil {
		sqlDB.Close() //nolint:errcheck,gosec // best effort before bailing
		return nil, fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	return &DB{DB: sqlDB}, nil
}

// RecordSession archives a terminal session and its component records.
// Re-recording the same upgrade_id replaces the previous rows.
func (db *DB) RecordSession(session *state.Session) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("failed to rollback: %v", rbErr)
			}

			return
		}

		err = tx.Commit()
	}()

	if _, err = tx.Exec(
		`INSERT OR REPLACE INTO upgrade_sessions
			(upgrade_id, status, mode, started_at, completed_at, error_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.UpgradeID, string(session.Status), session.Mode,
		session.StartedAt, session.CompletedAt, len(session.Errors),
	); err != nil {
		return fmt.Errorf("%w session: %w", ErrFailedToInsert, err)
	}

	if _, err = tx.Exec(
		"DELETE FROM component_results WHERE upgrade_id = ?", session.UpgradeID,
	); err != nil {
		return fmt.Errorf("%w stale results: %w", ErrFailedToClean, err)
	}

	for name, rec := range session.Components {
		if _, err = tx.Exec(
			`INSERT INTO component_results
				(upgrade_id, component, status, from_version, to_version, attempts,
				 backup_path, rollback_available, health_check_passed, checksum, error, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			session.UpgradeID, name, string(rec.Status), rec.FromVersion, rec.ToVersion,
			rec.Attempts, rec.BackupPath, rec.RollbackAvailable, rec.HealthCheckPassed,
			rec.Checksum, rec.Error, rec.CompletedAt,
		); err != nil {
			return fmt.Errorf("%w component %s: %w", ErrFailedToInsert, name, err)
		}
	}

	return nil
}

// ListSessions returns archived sessions, newest first.
func (db *DB) ListSessions(limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(
		`SELECT upgrade_id, status, mode, started_at, completed_at, error_count
		FROM upgrade_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w sessions: %w", ErrFailedToQuery, err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var sessions []SessionSummary

	for rows.Next() {
		var s SessionSummary

		var mode sql.NullString

		if err := rows.Scan(&s.UpgradeID, &s.Status, &mode, &s.StartedAt, &s.CompletedAt, &s.ErrorCount); err != nil {
			return nil, fmt.Errorf("%w session row: %w", ErrFailedToScan, err)
		}

		s.Mode = mode.String
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// GetSession returns one archived session with its component results.
func (db *DB) GetSession(upgradeID string) (*SessionSummary, []ComponentResult, error) {
	var s SessionSummary

	var mode sql.NullString

	err := db.QueryRow(
		`SELECT upgrade_id, status, mode, started_at, completed_at, error_count
		FROM upgrade_sessions WHERE upgrade_id = ?`, upgradeID).
		Scan(&s.UpgradeID, &s.Status, &mode, &s.StartedAt, &s.CompletedAt, &s.ErrorCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, upgradeID)
		}

		return nil, nil, fmt.Errorf("%w session: %w", ErrFailedToQuery, err)
	}

	s.Mode = mode.String

	results, err := db.queryResults(
		`SELECT upgrade_id, component, status, from_version, to_version, attempts,
			backup_path, rollback_available, health_check_passed, checksum, error, completed_at
		FROM component_results WHERE upgrade_id = ? ORDER BY completed_at`, upgradeID)
	if err != nil {
		return nil, nil, err
	}

	return &s, results, nil
}

// ComponentHistory returns the archived outcomes of one component across
// sessions, newest first.
func (db *DB) ComponentHistory(component string, limit int) ([]ComponentResult, error) {
	if limit <= 0 {
		limit = 50
	}

	return db.queryResults(
		`SELECT upgrade_id, component, status, from_version, to_version, attempts,
			backup_path, rollback_available, health_check_passed, checksum, error, completed_at
		FROM component_results WHERE component = ?
		ORDER BY completed_at DESC LIMIT ?`, component, limit)
}

func (db *DB) queryResults(query string, args ...interface{}) ([]ComponentResult, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w component results: %w", ErrFailedToQuery, err)
	}
	defer rows.Close() //nolint:errcheck // read-only rows

	var results []ComponentResult

	for rows.Next() {
		var r ComponentResult

		var fromVer, toVer, backupPath, checksum, errMsg sql.NullString

		if err := rows.Scan(&r.UpgradeID, &r.Component, &r.Status, &fromVer, &toVer,
			&r.Attempts, &backupPath, &r.RollbackAvailable, &r.HealthCheckPassed,
			&checksum, &errMsg, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("%w component row: %w", ErrFailedToScan, err)
		}

		r.FromVersion = fromVer.String
		r.ToVersion = toVer.String
		r.BackupPath = backupPath.String
		r.Checksum = checksum.String
		r.Error = errMsg.String

		results = append(results, r)
	}

	return results, rows.Err()
}

// Clean removes archived sessions older than the retention period.
func (db *DB) Clean(retentionPeriod time.Duration) (err error) {
	cutoff := time.Now().Add(-retentionPeriod)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToBeginTx, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("failed to rollback: %v", rbErr)
			}

			return
		}

		err = tx.Commit()
	}()

	if _, err = tx.Exec(
		`DELETE FROM component_results WHERE upgrade_id IN
			(SELECT upgrade_id FROM upgrade_sessions WHERE recorded_at < ?)`, cutoff,
	); err != nil {
		return fmt.Errorf("%w component results: %w", ErrFailedToClean, err)
	}

	if _, err = tx.Exec(
		"DELETE FROM upgrade_sessions WHERE recorded_at < ?", cutoff,
	); err != nil {
		return fmt.Errorf("%w sessions: %w", ErrFailedToClean, err)
	}

	return nil
}
