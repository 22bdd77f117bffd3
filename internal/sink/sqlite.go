package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/albachteng/schedcore/internal/jobs"
)

// SQLiteSink persists execution history so it survives restarts. It is an
// external collaborator from the scheduler's point of view; the core never
// reads from it.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id TEXT NOT NULL,
		job_id TEXT NOT NULL,
		job_name TEXT NOT NULL DEFAULT '',
		attempt INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		error TEXT,
		scheduled_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_executions_entry ON executions(entry_id);
	CREATE INDEX IF NOT EXISTS idx_executions_finished ON executions(finished_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteSink) Record(ctx context.Context, ex Execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	query := `
		INSERT INTO executions (entry_id, job_id, job_name, attempt, status, error, scheduled_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		ex.EntryID,
		string(ex.JobID),
		ex.JobName,
		ex.Attempt,
		string(ex.Outcome.Status),
		ex.Outcome.Err,
		ex.ScheduledAt,
		ex.StartedAt,
		ex.FinishedAt,
	)
	return err
}

// ListRecent returns up to limit executions ordered newest first.
func (s *SQLiteSink) ListRecent(ctx context.Context, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT entry_id, job_id, job_name, attempt, status, error, scheduled_at, started_at, finished_at
		FROM executions
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var ex Execution
		var jobID, status string
		var errText sql.NullString
		if err := rows.Scan(
			&ex.EntryID,
			&jobID,
			&ex.JobName,
			&ex.Attempt,
			&status,
			&errText,
			&ex.ScheduledAt,
			&ex.StartedAt,
			&ex.FinishedAt,
		); err != nil {
			return nil, err
		}
		ex.JobID = jobs.ID(jobID)
		ex.Outcome = jobs.Outcome{Status: jobs.Status(status), Err: errText.String}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// ListByEntry returns the history for a single entry, oldest first.
func (s *SQLiteSink) ListByEntry(ctx context.Context, entryID string) ([]Execution, error) {
	query := `
		SELECT entry_id, job_id, job_name, attempt, status, error, scheduled_at, started_at, finished_at
		FROM executions
		WHERE entry_id = ?
		ORDER BY finished_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var ex Execution
		var jobID, status string
		var errText sql.NullString
		if err := rows.Scan(
			&ex.EntryID,
			&jobID,
			&ex.JobName,
			&ex.Attempt,
			&status,
			&errText,
			&ex.ScheduledAt,
			&ex.StartedAt,
			&ex.FinishedAt,
		); err != nil {
			return nil, err
		}
		ex.JobID = jobs.ID(jobID)
		ex.Outcome = jobs.Outcome{Status: jobs.Status(status), Err: errText.String}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Prune deletes executions finished before the cutoff, bounding table growth.
func (s *SQLiteSink) Prune(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
