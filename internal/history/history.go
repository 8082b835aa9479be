// Package history provides a queryable SQLite-backed index of completed and
// paused downloads, surviving process restarts independently of the live
// ledger (SPEC_FULL.md §2 "History index" addition).
//
// Grounded on the teacher's internal/downloader/state.go MasterList/
// DownloadEntry concept (a secondary, queryable record of past downloads
// distinct from the per-job state file) but backed by modernc.org/sqlite —
// a dependency the teacher's own go.mod declares but whose consuming file
// was not present in the retrieved pack subset.
package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Entry is one row of the history index.
type Entry struct {
	JobID     string
	TaskID    string
	Name      string
	Filename  string
	Status    string // TaskStatus.String() at the time of recording
	UpdatedAt int64
}

// Store wraps a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS history (
	job_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	name TEXT NOT NULL,
	filename TEXT NOT NULL,
	status TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (job_id, task_id)
);
`

// Record upserts one entry. The Manager calls it with the task's status each
// time a worker returns, and at startup for every task that is neither
// Pending nor Downloading.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (job_id, task_id, name, filename, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, task_id) DO UPDATE SET
			name=excluded.name, filename=excluded.filename,
			status=excluded.status, updated_at=excluded.updated_at
	`, e.JobID, e.TaskID, e.Name, e.Filename, e.Status, e.UpdatedAt)
	return err
}

// List returns every recorded entry, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, task_id, name, filename, status, updated_at
		FROM history ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.JobID, &e.TaskID, &e.Name, &e.Filename, &e.Status, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Remove drops the entry for one task, called on explicit job removal.
func (s *Store) Remove(ctx context.Context, jobID, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE job_id = ? AND task_id = ?`, jobID, taskID)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
