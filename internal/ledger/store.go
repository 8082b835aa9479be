package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// PersistentLedger durably records the jobs graph to a single JSON file.
//
// Grounded on the teacher's internal/downloader/state.go atomic save/load
// idiom (temp-file + os.Rename) and on cmd/server.go's AcquireLock/
// ReleaseLock single-instance guard, both built on gofrs/flock — here the
// same library guards the ledger file itself rather than a PID/port file,
// since this module has no separate daemon process to serialize against.
type PersistentLedger struct {
	path     string
	lockPath string
	log      *slog.Logger
}

// NewPersistentLedger returns a ledger backed by <path>, e.g. <configDir>/jobs.json.
func NewPersistentLedger(path string, log *slog.Logger) *PersistentLedger {
	if log == nil {
		log = slog.Default()
	}
	return &PersistentLedger{path: path, lockPath: path + ".lock", log: log}
}

// Load returns the persisted job list, or an empty slice if the file is
// absent or malformed — ledger corruption is treated as "no history"
// (spec.md §4.1), not a fatal error.
func (l *PersistentLedger) Load() []Job {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	fl := flock.New(l.lockPath)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err == nil && locked {
		defer func() { _ = fl.Unlock() }()
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.log.Warn("ledger: read failed, treating as empty", "path", l.path, "err", err)
		}
		return nil
	}

	var jobs []Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		l.log.Warn("ledger: malformed file, treating as empty", "path", l.path, "err", err)
		return nil
	}
	return jobs
}

// Snapshot writes the full job list to disk via write-then-rename. It is
// best-effort: failures are logged, never propagated (spec.md §4.1), since
// it may be called on every transition and a caller hard-failing on a
// transient disk hiccup would be worse than a missed snapshot.
func (l *PersistentLedger) Snapshot(jobs []Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	fl := flock.New(l.lockPath)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		l.log.Warn("ledger: could not acquire lock for snapshot, skipping", "err", err)
		return
	}
	defer func() { _ = fl.Unlock() }()

	if jobs == nil {
		jobs = []Job{}
	}
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		l.log.Error("ledger: marshal failed", "err", err)
		return
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		l.log.Error("ledger: write temp file failed", "err", err)
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		l.log.Error("ledger: rename failed", "err", err)
	}
}
