package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aura-dl/aura-core/internal/ledger"
	"github.com/aura-dl/aura-core/internal/resolver"
	"github.com/aura-dl/aura-core/internal/testutil"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, res resolver.Resolver) *Manager {
	t.Helper()
	m, err := New(Options{ConfigDir: t.TempDir(), Resolver: res})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	settings := m.GetSettings()
	settings.DownloadDir = t.TempDir()
	settings.SegmentsPerFile = 2
	require.NoError(t, m.UpdateSettings(settings))
	return m
}

func waitForStatus(t *testing.T, m *Manager, jobID, taskID string, match func(ledger.TaskStatus) bool) ledger.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.jobs.Get(jobID)
		if ok {
			if task := job.TaskByID(taskID); task != nil && match(task.Status) {
				return *task
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for task status")
	return ledger.Task{}
}

func TestAddJobAndStartDownloadCompletes(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(5_000))
	defer srv.Close()

	m := newTestManager(t, resolver.Static(srv.URL()))

	jobID := m.AddJob(ledger.Job{
		Name: "Show",
		Tasks: []ledger.Task{
			{URL: srv.URL(), Filename: "Ep01.mp4", Status: ledger.Pending()},
		},
	})

	active, _ := m.GetJobBuckets()
	require.Len(t, active, 1)
	taskID := active[0].Tasks[0].ID

	require.NoError(t, m.StartDownload(context.Background(), jobID))
	task := waitForStatus(t, m, jobID, taskID, func(s ledger.TaskStatus) bool {
		return s.IsCompleted() || s.IsError()
	})
	require.True(t, task.Status.IsCompleted(), "status: %s", task.Status)

	_, completed := m.GetJobBuckets()
	require.Len(t, completed, 1)

	entries, err := m.History(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Completed", entries[0].Status)
}

func TestPauseThenResume(t *testing.T) {
	srv := testutil.NewMockServerT(t, testutil.WithFileSize(50_000_000))
	defer srv.Close()

	m := newTestManager(t, resolver.Static(srv.URL()))
	jobID := m.AddJob(ledger.Job{
		Name:  "Show",
		Tasks: []ledger.Task{{URL: srv.URL(), Filename: "Ep01.mp4", Status: ledger.Pending()}},
	})
	active, _ := m.GetJobBuckets()
	taskID := active[0].Tasks[0].ID

	ctx := context.Background()
	require.NoError(t, m.StartDownload(ctx, jobID))
	time.Sleep(50 * time.Millisecond)
	m.Pause(jobID, taskID)

	task := waitForStatus(t, m, jobID, taskID, func(s ledger.TaskStatus) bool { return s.IsPaused() })
	reason, _ := task.Status.PauseReason()
	require.Equal(t, ledger.UserRequest, reason)

	require.NoError(t, m.Resume(ctx, jobID, taskID))
	task = waitForStatus(t, m, jobID, taskID, func(s ledger.TaskStatus) bool {
		return s.IsDownloading() || s.IsCompleted()
	})
	require.False(t, task.Status.IsPaused())
}

func TestUpdateSettingsResizesGate(t *testing.T) {
	m := newTestManager(t, resolver.Static("http://example.invalid"))
	settings := m.GetSettings()
	settings.MaxConcurrentDownloads = 7
	require.NoError(t, m.UpdateSettings(settings))
	require.Equal(t, 7, m.GetSettings().MaxConcurrentDownloads)

	// The default limit is 3, so 7 permits are only available after a resize.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 7; i++ {
		p, err := m.gate.AcquirePermit(ctx)
		require.NoError(t, err)
		defer p.Release()
	}
}

func TestIsEpisodeDownloadedChecksFilesystemNotLedger(t *testing.T) {
	m := newTestManager(t, resolver.Static("http://example.invalid"))
	animeFolder := t.TempDir()

	require.False(t, m.IsEpisodeDownloaded(animeFolder, 3))

	require.NoError(t, os.WriteFile(filepath.Join(animeFolder, "Ep03.mp4"), []byte("data"), 0o644))
	require.True(t, m.IsEpisodeDownloaded(animeFolder, 3))
	require.False(t, m.IsEpisodeDownloaded(animeFolder, 4))

	// A ledger entry claiming the episode is still Pending must not change
	// the filesystem-only answer: IsEpisodeDownloaded never consults m.jobs.
	episode := 3
	m.AddJob(ledger.Job{
		Name: "Show",
		Tasks: []ledger.Task{
			{Filename: "Ep03.mp4", Status: ledger.Pending(), EpisodeNumber: &episode},
		},
	})
	require.True(t, m.IsEpisodeDownloaded(animeFolder, 3))
}

func TestRemoveJobAndClearCompleted(t *testing.T) {
	m := newTestManager(t, resolver.Static("http://example.invalid"))
	jobID := m.AddJob(ledger.Job{
		Name:  "Show",
		Tasks: []ledger.Task{{URL: "http://example.invalid", Filename: "Ep01.mp4", Status: ledger.Completed()}},
	})

	active, completed := m.GetJobBuckets()
	require.Empty(t, active)
	require.Len(t, completed, 1)

	m.ClearCompletedJobs()
	active, completed = m.GetJobBuckets()
	require.Empty(t, active)
	require.Empty(t, completed)

	require.False(t, m.RemoveJob(context.Background(), jobID))
}
