package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistentLedgerLoadMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	l := NewPersistentLedger(path, nil)

	jobs := l.Load()
	require.Nil(t, jobs)
}

func TestPersistentLedgerLoadMalformedFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))
	l := NewPersistentLedger(path, nil)

	jobs := l.Load()
	require.Nil(t, jobs)
}

func TestPersistentLedgerSnapshotThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	l := NewPersistentLedger(path, nil)

	jobs := []Job{{
		ID:   "job-1",
		Name: "Show",
		Tasks: []Task{{
			ID:         "task-1",
			URL:        "https://example.invalid/ep1",
			Filename:   "Ep01.mp4",
			TotalBytes: 1000,
			Progress:   500,
			Status:     Downloading(),
			Segments: []Segment{
				{Index: 0, Start: 0, End: 499, Status: SegmentCompleted},
				{Index: 1, Start: 500, End: 999, Status: SegmentPending},
			},
		}},
	}}

	l.Snapshot(jobs)

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reloaded := NewPersistentLedger(path, nil).Load()
	require.Len(t, reloaded, 1)
	require.Equal(t, "job-1", reloaded[0].ID)
	require.Equal(t, "Show", reloaded[0].Name)
	require.Len(t, reloaded[0].Tasks, 1)

	task := reloaded[0].Tasks[0]
	require.Equal(t, "task-1", task.ID)
	require.Equal(t, "https://example.invalid/ep1", task.URL)
	require.Equal(t, int64(1000), task.TotalBytes)
	require.Equal(t, int64(500), task.Progress)
	require.True(t, task.Status.IsDownloading())
	require.Len(t, task.Segments, 2)
	require.Equal(t, SegmentCompleted, task.Segments[0].Status)
	require.Equal(t, SegmentPending, task.Segments[1].Status)
}

func TestPersistentLedgerSnapshotNilJobsWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	l := NewPersistentLedger(path, nil)

	l.Snapshot(nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))
}
