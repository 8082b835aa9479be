// Package worker implements TaskWorker (spec.md §4.4): the per-task state
// machine driving a Task from Pending through Downloading to Completed.
//
// Grounded directly on original_source/aura-core/src/manager.rs's
// download_task_worker for control flow (admission, size discovery with
// link-refresh escalation, the segment claim loop, the progress ticker,
// final reassembly) and on the teacher's internal/downloader/concurrent.go
// worker()/downloadTask() for the Go idiom: an atomic cancel flag polled
// between chunks, sync/atomic counters for in-flight progress, and a
// ticker goroutine alongside the main loop instead of a hand-rolled event
// loop.
package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aura-dl/aura-core/internal/events"
	"github.com/aura-dl/aura-core/internal/fetch"
	"github.com/aura-dl/aura-core/internal/ledger"
	"github.com/aura-dl/aura-core/internal/plan"
	"github.com/aura-dl/aura-core/internal/resolver"
	"github.com/aura-dl/aura-core/internal/sanitize"
)

// MaxLinkRefreshAttempts bounds URL-refresh escalation (spec.md §4.4 step 4,
// fixed at 3).
const MaxLinkRefreshAttempts = 3

const (
	segmentIdlePoll   = 100 * time.Millisecond
	progressTickEvery = 2 * time.Second
	transientBaseWait = 250 * time.Millisecond
	transientCapStep  = 4 // 250ms * 2^4 = 4s
)

// Deps bundles a worker's collaborators, shared across every task (spec.md
// §3 "Ownership": the Resolver and ConcurrencyGate are shared, never
// mutated by workers).
type Deps struct {
	Jobs    *ledger.JobList
	Persist func() // triggers a ledger snapshot; Manager wires this to PersistentLedger.Snapshot

	Fetcher  *fetch.Fetcher
	Resolver resolver.Resolver
	// Acquire blocks for a concurrency permit and returns its release func.
	Acquire func(ctx context.Context) (release func(), err error)
	Events  events.Sink
	Log     *slog.Logger

	DownloadDir     string
	UserAgent       string
	SegmentsPerFile int
}

// Worker drives exactly one task to completion, pause, or error.
type Worker struct {
	deps   Deps
	jobID  string
	taskID string
	cancel *atomic.Bool // raised by Manager.Pause; polled cooperatively
}

// New returns a worker for one task. cancel is the per-task cooperative
// cancellation flag (spec.md §5 "Per-task cancel: atomic boolean ... created
// lazily on first worker spawn"), owned and supplied by the Manager.
func New(deps Deps, jobID, taskID string, cancel *atomic.Bool) *Worker {
	return &Worker{deps: deps, jobID: jobID, taskID: taskID, cancel: cancel}
}

// Run executes the worker's full contract (spec.md §4.4 steps 1-9). It
// never returns an error: every outcome is translated into a persisted
// task-status transition (spec.md §7: callers observe outcomes only through
// status, not a returned error).
func (w *Worker) Run(ctx context.Context) {
	task, ok := w.deps.Jobs.GetTask(w.jobID, w.taskID)
	if !ok || !task.Status.IsPending() {
		return // admission: not Pending, no-op (step 1)
	}

	if task.URL == ledger.PendingURL {
		if !w.resolveURL(ctx, &task) {
			return
		}
	}

	release, err := w.deps.Acquire(ctx)
	if err != nil {
		w.setError(fmt.Sprintf("could not acquire concurrency permit: %v", err))
		return
	}
	defer release()

	// Re-check admission: while we queued on the gate, another worker for
	// this task may have taken it or its job may have been removed.
	task, ok = w.deps.Jobs.GetTask(w.jobID, w.taskID)
	if !ok || !task.Status.IsPending() {
		return
	}

	totalBytes, ok := w.discoverSize(ctx, &task)
	if !ok {
		return
	}
	w.planOrReconcile(&task, totalBytes)

	job, ok := w.deps.Jobs.Get(w.jobID)
	if !ok {
		w.setError("owning job no longer exists")
		return
	}

	sanitizedFilename := sanitize.Name(task.Filename)
	jobDir := filepath.Join(w.deps.DownloadDir, sanitize.Name(job.Name))
	finalPath := filepath.Join(jobDir, sanitizedFilename)
	partsFolder := filepath.Join(jobDir, sanitize.PartsFolderName(task.Filename))

	if err := os.MkdirAll(partsFolder, 0o755); err != nil {
		w.setError(fmt.Sprintf("create parts folder: %v", err))
		return
	}

	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
		t.Filename = sanitizedFilename
		t.Segments = plan.Reconcile(t.Segments, partsFolder)
		t.Status = ledger.Downloading()
	})
	w.deps.Persist()
	w.publishStatus(ledger.Downloading())

	var inFlight int64
	tickerDone := make(chan struct{})
	go w.progressTicker(&inFlight, tickerDone)
	defer close(tickerDone)

	segCount, completed := w.segmentLoop(ctx, partsFolder, &inFlight)
	if !completed {
		return
	}

	w.reassemble(finalPath, partsFolder, segCount)
}

// resolveURL implements step 2. Returns false if the caller should abort.
func (w *Worker) resolveURL(ctx context.Context, task *ledger.Task) bool {
	if !task.HasRefreshMetadata() {
		w.setError("task has no URL and no refresh metadata to resolve one")
		return false
	}
	url, err := w.deps.Resolver.Resolve(ctx, task.EpisodeURL, task.GateID, *task.EpisodeNumber)
	if err != nil {
		w.setError(err.Error())
		return false
	}
	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) { t.URL = url })
	w.deps.Persist()
	task.URL = url
	return true
}

// discoverSize implements step 4, including link-refresh escalation.
func (w *Worker) discoverSize(ctx context.Context, task *ledger.Task) (int64, bool) {
	for {
		size, err := w.deps.Fetcher.DiscoverLength(ctx, task.URL, w.deps.UserAgent)
		if err == nil {
			if size <= 0 {
				w.setError("CannotDetermineSize")
				return 0, false
			}
			return size, true
		}

		if fetch.IsExpiredLink(err) {
			if refreshed, ok := w.tryRefresh(ctx, task); ok {
				task.URL = refreshed
				continue
			}
			w.setPaused(ledger.LinkExpired)
			return 0, false
		}

		w.setError(err.Error())
		return 0, false
	}
}

// tryRefresh escalates exactly as step 4/step 8's ExpiredLink branch
// describe: bounded by MaxLinkRefreshAttempts, only when refresh metadata
// is present.
func (w *Worker) tryRefresh(ctx context.Context, task *ledger.Task) (string, bool) {
	if !task.HasRefreshMetadata() || task.LinkRefreshAttempts >= MaxLinkRefreshAttempts {
		return "", false
	}
	url, err := w.deps.Resolver.Resolve(ctx, task.EpisodeURL, task.GateID, *task.EpisodeNumber)
	if err != nil {
		return "", false
	}
	attempts := task.LinkRefreshAttempts + 1
	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
		t.URL = url
		t.LinkRefreshAttempts = attempts
	})
	w.deps.Persist()
	task.LinkRefreshAttempts = attempts
	return url, true
}

// planOrReconcile implements step 5: plan once at first discovery, then the
// on-disk plan is authoritative (spec.md §4.3).
func (w *Worker) planOrReconcile(task *ledger.Task, totalBytes int64) {
	if len(task.Segments) == 0 {
		segmentsPerFile := w.deps.SegmentsPerFile
		if segmentsPerFile < 1 {
			segmentsPerFile = 1
		}
		task.Segments = plan.Create(totalBytes, segmentsPerFile)
	}
	task.TotalBytes = totalBytes

	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
		t.TotalBytes = totalBytes
		if len(t.Segments) == 0 {
			t.Segments = task.Segments
		}
	})
	w.deps.Persist()
}

// progressTicker implements step 7's 2s progress recompute, exiting once the
// task leaves Downloading.
func (w *Worker) progressTicker(inFlight *int64, done <-chan struct{}) {
	ticker := time.NewTicker(progressTickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t, ok := w.deps.Jobs.GetTask(w.jobID, w.taskID)
			if !ok || !t.Status.IsDownloading() {
				return
			}
			w.deps.Jobs.RecomputeProgress(w.jobID, w.taskID, atomic.LoadInt64(inFlight))
			w.deps.Persist()
			if updated, ok := w.deps.Jobs.GetTask(w.jobID, w.taskID); ok {
				w.publishProgress(updated)
			}
		}
	}
}

// segmentLoop implements step 8, claiming and fetching segments one at a
// time until every segment is Completed, the task is paused/errored, or the
// caller's context is done. It returns the segment count and whether every
// segment reached Completed (the only case reassembly should run).
func (w *Worker) segmentLoop(ctx context.Context, partsFolder string, inFlight *int64) (int, bool) {
	for {
		t, ok := w.deps.Jobs.GetTask(w.jobID, w.taskID)
		if !ok {
			return 0, false
		}
		if !t.Status.IsDownloading() {
			return len(t.Segments), false
		}

		index, allCompleted, found := w.deps.Jobs.ClaimNextPendingSegment(w.jobID, w.taskID)
		if !found {
			if allCompleted {
				w.finishDownloading()
				return len(t.Segments), true
			}
			// no segment is Pending but not all are Completed (another
			// worker for the same task holds one as Downloading); idle-poll
			// rather than spin.
			time.Sleep(segmentIdlePoll)
			continue
		}

		seg := segmentByIndex(t.Segments, index)
		atomic.StoreInt64(inFlight, 0)
		partPath := filepath.Join(partsFolder, plan.PartFileName(index))

		err := w.deps.Fetcher.FetchRange(ctx, t.URL, w.deps.UserAgent, seg.Start, seg.End, partPath, inFlight, w.cancel)

		switch {
		case err == nil:
			w.deps.Jobs.SetSegment(w.jobID, w.taskID, index, ledger.SegmentCompleted, seg.Size())
			w.deps.Jobs.RecomputeProgress(w.jobID, w.taskID, 0)
			w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
				t.LinkRefreshAttempts = 0
				t.TransientBackoffStep = 0
			})
			w.deps.Persist()
			if updated, ok := w.deps.Jobs.GetTask(w.jobID, w.taskID); ok {
				w.publishProgress(updated)
			}

		case fetch.IsPausedByUser(err):
			_ = os.Remove(partPath)
			w.deps.Jobs.SetSegment(w.jobID, w.taskID, index, ledger.SegmentPending, 0)
			w.setPaused(ledger.UserRequest)
			return len(t.Segments), false

		case fetch.IsExpiredLink(err):
			_ = os.Remove(partPath)
			w.deps.Jobs.SetSegment(w.jobID, w.taskID, index, ledger.SegmentPending, 0)
			if refreshed, ok := w.tryRefresh(ctx, &t); ok {
				w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(task *ledger.Task) { task.URL = refreshed })
				continue
			}
			w.setPaused(ledger.LinkExpired)
			return len(t.Segments), false

		default:
			_ = os.Remove(partPath)
			w.deps.Jobs.SetSegment(w.jobID, w.taskID, index, ledger.SegmentPending, 0)
			step := w.bumpBackoff()
			w.deps.Persist()
			w.sleepBackoff(step)
		}
	}
}

// finishDownloading runs just before reassembly so progress reflects 100%
// even if the last periodic tick hasn't fired.
func (w *Worker) finishDownloading() {
	w.deps.Jobs.RecomputeProgress(w.jobID, w.taskID, 0)
	w.deps.Persist()
}

// reassemble implements step 9: concatenate part files in order into the
// final artifact, then remove the parts folder and transition to Completed.
// Reassembly errors are logged, not fatal: the task stays Downloading (every
// segment is already Completed on disk), so the next run retries reassembly
// directly instead of having to re-download anything.
func (w *Worker) reassemble(finalPath, partsFolder string, segCount int) {
	out, err := os.OpenFile(finalPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		w.logReassembleError("create final file", err)
		return
	}

	buf := make([]byte, 1024*1024)
	for i := 0; i < segCount; i++ {
		if err := appendPart(out, filepath.Join(partsFolder, plan.PartFileName(i)), buf); err != nil {
			_ = out.Close()
			w.logReassembleError(fmt.Sprintf("reassemble part %d", i), err)
			return
		}
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		w.logReassembleError("sync final file", err)
		return
	}
	if err := out.Close(); err != nil {
		w.logReassembleError("close final file", err)
		return
	}
	_ = os.RemoveAll(partsFolder)

	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
		t.Status = ledger.Completed()
	})
	w.deps.Persist()
	w.publishStatus(ledger.Completed())
}

func (w *Worker) logReassembleError(stage string, err error) {
	log := w.deps.Log
	if log == nil {
		log = slog.Default()
	}
	log.Error("reassembly failed, task remains Downloading for retry", "stage", stage, "job_id", w.jobID, "task_id", w.taskID, "err", err)
}

func appendPart(out *os.File, partPath string, buf []byte) error {
	in, err := os.Open(partPath)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	_, err = io.CopyBuffer(out, in, buf)
	return err
}

// bumpBackoff advances and persists the task's transient-error backoff step,
// capped so the wait never exceeds 250ms * 2^4 = 4s.
func (w *Worker) bumpBackoff() int {
	var step int
	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
		if t.TransientBackoffStep < transientCapStep {
			t.TransientBackoffStep++
		}
		step = t.TransientBackoffStep
	})
	return step
}

func (w *Worker) sleepBackoff(step int) {
	wait := transientBaseWait << uint(step)
	time.Sleep(wait)
}

func (w *Worker) setError(message string) {
	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
		t.Status = ledger.Errored(message)
	})
	w.deps.Persist()
	if w.deps.Events != nil {
		w.deps.Events.Publish(events.Failed{JobID: w.jobID, TaskID: w.taskID, Err: fmt.Errorf("%s", message)})
	}
	w.publishStatus(ledger.Errored(message))
}

func (w *Worker) setPaused(reason ledger.PauseReason) {
	w.deps.Jobs.MutateTask(w.jobID, w.taskID, func(t *ledger.Task) {
		t.Status = ledger.Paused(reason)
	})
	w.deps.Persist()
	w.publishStatus(ledger.Paused(reason))
}

func (w *Worker) publishStatus(status ledger.TaskStatus) {
	if w.deps.Events == nil {
		return
	}
	w.deps.Events.Publish(events.StatusChanged{JobID: w.jobID, TaskID: w.taskID, Status: status.String()})
}

func (w *Worker) publishProgress(t ledger.Task) {
	if w.deps.Events == nil {
		return
	}
	w.deps.Events.Publish(events.Progress{
		JobID:       w.jobID,
		TaskID:      w.taskID,
		Downloaded:  t.Progress,
		Total:       t.TotalBytes,
		SegmentsLen: len(t.Segments),
	})
}

func segmentByIndex(segments []ledger.Segment, index int) ledger.Segment {
	for _, s := range segments {
		if s.Index == index {
			return s
		}
	}
	return ledger.Segment{}
}
