// Package manager implements DownloadManager (spec.md §4.5), the single
// façade external callers (CLI, GUI, scraper) use: it owns the ledger,
// settings, concurrency gate, and the live set of running workers, and is
// the only component that spawns workers.
//
// Grounded on original_source/aura-core/src/manager.rs's Manager struct
// (new/add_job/start_download/pause/resume/get_job_buckets) for the public
// surface, and on the teacher's internal/downloader/manager.go for the Go
// idiom of a struct embedding its collaborators plus a map of per-task
// cancellation handles guarded by a small mutex.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aura-dl/aura-core/internal/applog"
	"github.com/aura-dl/aura-core/internal/config"
	"github.com/aura-dl/aura-core/internal/events"
	"github.com/aura-dl/aura-core/internal/fetch"
	"github.com/aura-dl/aura-core/internal/gate"
	"github.com/aura-dl/aura-core/internal/history"
	"github.com/aura-dl/aura-core/internal/ledger"
	"github.com/aura-dl/aura-core/internal/resolver"
	"github.com/aura-dl/aura-core/internal/sanitize"
	"github.com/aura-dl/aura-core/internal/worker"
	"github.com/google/uuid"
)

// Manager is the top-level façade described by spec.md §4.5.
type Manager struct {
	configDir string

	settings *config.Store
	ledger   *ledger.PersistentLedger
	jobs     *ledger.JobList
	history  *history.Store
	gate     *gate.Gate
	fetcher  *fetch.Fetcher
	resolver resolver.Resolver
	events   events.Sink
	log      *slog.Logger

	cancelMu sync.Mutex
	cancels  map[string]*atomic.Bool // "<jobID>/<taskID>" -> cooperative cancel flag
}

// Options configures a new Manager. Resolver and Events may be nil: a nil
// Resolver means tasks with PendingURL can never be resolved (useful for
// callers that only ever add tasks with a direct URL already known); a nil
// Events sink means progress/status notifications are dropped.
type Options struct {
	ConfigDir string
	Resolver  resolver.Resolver
	Events    events.Sink
	Fetcher   fetch.Options
}

// New loads settings and the ledger from disk, applies crash recovery
// (ledger.NewJobList), and returns a ready-to-use Manager. This is
// DownloadManager.new() (spec.md §4.5).
func New(opts Options) (*Manager, error) {
	dir := opts.ConfigDir
	if dir == "" {
		def, err := config.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("manager: determine config dir: %w", err)
		}
		dir = def
	}

	log := applog.Init(dir)

	settings, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("manager: load settings: %w", err)
	}
	cur := settings.Get()

	led := ledger.NewPersistentLedger(filepath.Join(dir, "jobs.json"), log)
	jobs := ledger.NewJobList(led.Load())

	hist, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("manager: open history: %w", err)
	}

	f, err := fetch.New(opts.Fetcher)
	if err != nil {
		return nil, fmt.Errorf("manager: build fetcher: %w", err)
	}

	res := opts.Resolver
	if res == nil {
		res = resolver.Func(func(ctx context.Context, episodeURL, gateID string, episodeNumber int) (string, error) {
			return "", fmt.Errorf("manager: no URL resolver configured")
		})
	}

	m := &Manager{
		configDir: dir,
		settings:  settings,
		ledger:    led,
		jobs:      jobs,
		history:   hist,
		gate:      gate.New(cur.MaxConcurrentDownloads),
		fetcher:   f,
		resolver:  res,
		events:    opts.Events,
		log:       log,
		cancels:   make(map[string]*atomic.Bool),
	}
	m.recordTerminalTasks()
	return m, nil
}

// Close releases the history database handle. Safe to call once.
func (m *Manager) Close() error {
	return m.history.Close()
}

// GetJobs returns every job (active and completed) as a deep-copied
// snapshot, safe to retain and render.
func (m *Manager) GetJobs() []ledger.Job {
	return m.jobs.Snapshot()
}

// GetJobBuckets splits jobs into active and fully-completed sets, the form
// most front-ends render directly (spec.md §4.5 get_job_buckets).
func (m *Manager) GetJobBuckets() (active, completed []ledger.Job) {
	return m.jobs.Buckets()
}

// GetSettings returns the current settings snapshot.
func (m *Manager) GetSettings() config.Settings {
	return m.settings.Get()
}

// UpdateSettings persists new settings and, if the concurrency limit
// changed, resizes the gate so new workers observe it immediately (spec.md
// §9 "Dynamic concurrency limit").
func (m *Manager) UpdateSettings(next config.Settings) error {
	prev := m.settings.Get()
	if err := m.settings.Update(next); err != nil {
		return err
	}
	if next.MaxConcurrentDownloads != prev.MaxConcurrentDownloads {
		m.gate.Resize(next.MaxConcurrentDownloads)
	}
	return nil
}

// IsEpisodeDownloaded reports whether Ep{NN}.mp4 already exists in
// animeFolder, independent of whatever the ledger currently believes about
// any task for that episode (original_source/aura-core's
// is_episode_downloaded: a pure filesystem exists() check).
func (m *Manager) IsEpisodeDownloaded(animeFolder string, episodeNumber int) bool {
	filename := sanitize.Name(fmt.Sprintf("Ep%02d.mp4", episodeNumber))
	_, err := os.Stat(filepath.Join(animeFolder, filename))
	return err == nil
}

// IsEpisodeInQueue reports whether a task for the given episode number
// exists under jobID and has not yet completed.
func (m *Manager) IsEpisodeInQueue(jobID string, episodeNumber int) bool {
	job, ok := m.jobs.Get(jobID)
	if !ok {
		return false
	}
	if t := job.TaskByEpisodeNumber(episodeNumber); t != nil {
		return !t.Status.IsCompleted()
	}
	return false
}

// AddJob implements add_job (spec.md §4.5): merges incoming into the
// existing job sharing its ID, or appends it as new. IDs are assigned to
// any task missing one.
func (m *Manager) AddJob(job ledger.Job) string {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	for i := range job.Tasks {
		if job.Tasks[i].ID == "" {
			job.Tasks[i].ID = uuid.NewString()
		}
		if job.Tasks[i].URL == "" {
			job.Tasks[i].URL = ledger.PendingURL
		}
		if job.Tasks[i].CreatedAt == 0 {
			job.Tasks[i].CreatedAt = now
		}
	}
	m.jobs.Merge(job)
	m.persist()
	return job.ID
}

// StartDownload spawns one worker goroutine per Pending task in jobID. It
// returns immediately; progress is observed via the Events sink or by
// polling GetJobs.
func (m *Manager) StartDownload(ctx context.Context, jobID string) error {
	job, ok := m.jobs.Get(jobID)
	if !ok {
		return fmt.Errorf("manager: job %q not found", jobID)
	}
	settings := m.settings.Get()
	for _, t := range job.Tasks {
		if !t.Status.IsPending() {
			continue
		}
		cancel := m.cancelFlag(jobID, t.ID)
		w := worker.New(m.workerDeps(settings), jobID, t.ID, cancel)
		go func() {
			w.Run(ctx)
			m.recordTerminal(jobID, t.ID)
		}()
	}
	return nil
}

// Pause raises the task's cooperative cancel flag; the running worker
// observes it on its next poll and transitions to Paused(UserRequest).
// Pause does not change the task's status itself: a task with no running
// worker keeps its status, and a worker still queued on the concurrency
// gate goes on until its first segment fetch sees the flag.
func (m *Manager) Pause(jobID, taskID string) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	if flag, ok := m.cancels[cancelKey(jobID, taskID)]; ok {
		flag.Store(true)
	}
}

// Resume clears any stale cancel flag and re-admits the task by resetting
// Paused back to Pending, then spawns a fresh worker for it. Per
// original_source/aura-core's manager.rs resume(): a UserRequest pause keeps
// its last-known URL, but any other pause reason forces the URL back to
// PendingURL when refresh metadata is available, so the worker re-resolves
// rather than retrying a link that may still be the one that failed.
func (m *Manager) Resume(ctx context.Context, jobID, taskID string) error {
	ok := m.jobs.MutateTask(jobID, taskID, func(t *ledger.Task) {
		if !t.Status.IsPaused() {
			return
		}
		reason, _ := t.Status.PauseReason()
		if reason != ledger.UserRequest && t.HasRefreshMetadata() {
			t.URL = ledger.PendingURL
		}
		t.Status = ledger.Pending()
	})
	if !ok {
		return fmt.Errorf("manager: task %s/%s not found", jobID, taskID)
	}
	m.persist()

	m.cancelMu.Lock()
	delete(m.cancels, cancelKey(jobID, taskID))
	m.cancelMu.Unlock()

	settings := m.settings.Get()
	cancel := m.cancelFlag(jobID, taskID)
	w := worker.New(m.workerDeps(settings), jobID, taskID, cancel)
	go func() {
		w.Run(ctx)
		m.recordTerminal(jobID, taskID)
	}()
	return nil
}

// RemoveJob drops a job from the ledger and its history entries. Active
// workers are not forcibly stopped; callers should Pause every task first.
func (m *Manager) RemoveJob(ctx context.Context, jobID string) bool {
	job, ok := m.jobs.Get(jobID)
	if !ok {
		return false
	}
	for _, t := range job.Tasks {
		_ = m.history.Remove(ctx, jobID, t.ID)
	}
	removed := m.jobs.Remove(jobID)
	m.persist()
	return removed
}

// ClearCompletedJobs drops every job whose tasks are all Completed.
func (m *Manager) ClearCompletedJobs() {
	m.jobs.ClearCompleted()
	m.persist()
}

// History returns the on-disk download history index (SPEC_FULL.md §2
// addition), independent of the live ledger.
func (m *Manager) History(ctx context.Context) ([]history.Entry, error) {
	return m.history.List(ctx)
}

func (m *Manager) workerDeps(settings config.Settings) worker.Deps {
	return worker.Deps{
		Jobs:    m.jobs,
		Persist: m.persist,
		Fetcher: m.fetcher,
		Resolver: m.resolver,
		Acquire: func(ctx context.Context) (func(), error) {
			p, err := m.gate.AcquirePermit(ctx)
			if err != nil {
				return nil, err
			}
			return p.Release, nil
		},
		Events:          m.events,
		Log:             m.log,
		DownloadDir:     settings.DownloadDir,
		UserAgent:       settings.UserAgent,
		SegmentsPerFile: settings.SegmentsPerFile,
	}
}

func (m *Manager) persist() {
	m.ledger.Snapshot(m.jobs.Snapshot())
}

func (m *Manager) cancelFlag(jobID, taskID string) *atomic.Bool {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	key := cancelKey(jobID, taskID)
	if flag, ok := m.cancels[key]; ok {
		flag.Store(false)
		return flag
	}
	flag := &atomic.Bool{}
	m.cancels[key] = flag
	return flag
}

func cancelKey(jobID, taskID string) string {
	return jobID + "/" + taskID
}

// recordTerminal writes one task's current status into the history index,
// called whenever a worker returns (spec.md §4.4's terminal states:
// Completed, Paused, Error).
func (m *Manager) recordTerminal(jobID, taskID string) {
	job, ok := m.jobs.Get(jobID)
	if !ok {
		return
	}
	t := job.TaskByID(taskID)
	if t == nil {
		return
	}
	_ = m.history.Record(context.Background(), history.Entry{
		JobID:     jobID,
		TaskID:    taskID,
		Name:      job.Name,
		Filename:  t.Filename,
		Status:    t.Status.String(),
		UpdatedAt: time.Now().Unix(),
	})
}

// recordTerminalTasks seeds the history index with every non-Pending task
// loaded at startup, so a history query right after New() is already
// accurate for jobs that finished before the last crash.
func (m *Manager) recordTerminalTasks() {
	for _, job := range m.jobs.Snapshot() {
		for _, t := range job.Tasks {
			if t.Status.IsPending() || t.Status.IsDownloading() {
				continue
			}
			m.recordTerminal(job.ID, t.ID)
		}
	}
}
