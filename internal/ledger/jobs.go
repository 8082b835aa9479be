package ledger

import "sync"

// JobList is the Manager's exclusively-owned in-memory container (spec.md
// §5: "a single exclusive lock ... never held across an await"). All
// methods take/release the lock internally and never return a value that
// aliases internal state, so callers never hold the lock across I/O.
type JobList struct {
	mu   sync.Mutex
	jobs []Job
}

// NewJobList seeds the container, applying crash recovery to the loaded
// jobs (spec.md §3 "On manager startup ..." / §4.5 new()'s recovery rules).
func NewJobList(loaded []Job) *JobList {
	for i := range loaded {
		recoverJob(&loaded[i])
	}
	return &JobList{jobs: loaded}
}

// recoverJob applies the two crash-recovery demotion rules in place.
func recoverJob(j *Job) {
	for ti := range j.Tasks {
		t := &j.Tasks[ti]
		switch {
		case t.Status.IsDownloading():
			t.Status = Pending()
			for si := range t.Segments {
				if t.Segments[si].Status == SegmentDownloading {
					t.Segments[si].Status = SegmentPending
				}
			}
		case t.Status.IsError():
			if t.HasRefreshMetadata() {
				t.Status = Paused(NetworkError)
			}
			for si := range t.Segments {
				if t.Segments[si].Status == SegmentDownloading || t.Segments[si].Status == SegmentError {
					t.Segments[si].Status = SegmentPending
				}
			}
		}
	}
}

// Snapshot returns a deep copy of all jobs, safe to retain indefinitely.
func (l *JobList) Snapshot() []Job {
	l.mu.Lock()
	defer l.mu.Unlock()
	return deepCopyJobs(l.jobs)
}

// Buckets partitions a snapshot into active vs fully-completed jobs
// (Manager.get_job_buckets, spec.md §4.5).
func (l *JobList) Buckets() (active, completed []Job) {
	all := l.Snapshot()
	for _, j := range all {
		if j.AllTasksCompleted() {
			completed = append(completed, j)
		} else {
			active = append(active, j)
		}
	}
	return active, completed
}

// Get returns a deep copy of one job by id.
func (l *JobList) Get(jobID string) (Job, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, j := range l.jobs {
		if j.ID == jobID {
			return deepCopyJob(j), true
		}
	}
	return Job{}, false
}

// Mutate runs fn with exclusive access to the job matching jobID, reporting
// whether the job was found. fn must not block or perform I/O — it runs
// under the lock.
func (l *JobList) Mutate(jobID string, fn func(*Job)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.jobs {
		if l.jobs[i].ID == jobID {
			fn(&l.jobs[i])
			return true
		}
	}
	return false
}

// MutateTask is a convenience over Mutate for the common case of touching a
// single task.
func (l *JobList) MutateTask(jobID, taskID string, fn func(*Task)) bool {
	found := false
	l.Mutate(jobID, func(j *Job) {
		if t := j.TaskByID(taskID); t != nil {
			fn(t)
			found = true
		}
	})
	return found
}

// Merge implements add_job (spec.md §4.5): append a brand-new job, or for a
// known job id, merge each incoming task by episode number.
func (l *JobList) Merge(incoming Job) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.jobs {
		if l.jobs[i].ID != incoming.ID {
			continue
		}
		existing := &l.jobs[i]
		for _, incomingTask := range incoming.Tasks {
			mergeTask(existing, incomingTask)
		}
		return
	}
	l.jobs = append(l.jobs, deepCopyJob(incoming))
}

func mergeTask(existing *Job, incoming Task) {
	if incoming.EpisodeNumber != nil {
		if current := existing.TaskByEpisodeNumber(*incoming.EpisodeNumber); current != nil {
			switch {
			case current.Status.IsCompleted():
				return // skip, already done
			case current.Status.IsDownloading():
				return // skip, do not disturb in-flight
			default:
				current.URL = incoming.URL
				current.EpisodeURL = incoming.EpisodeURL
				current.GateID = incoming.GateID
				current.Status = Pending()
				for si := range current.Segments {
					if current.Segments[si].Status == SegmentError {
						current.Segments[si].Status = SegmentPending
					}
				}
				return
			}
		}
	}
	existing.Tasks = append(existing.Tasks, deepCopyTask(incoming))
}

// GetTask returns a deep copy of one task.
func (l *JobList) GetTask(jobID, taskID string) (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.jobs {
		if l.jobs[i].ID != jobID {
			continue
		}
		if t := l.jobs[i].TaskByID(taskID); t != nil {
			return deepCopyTask(*t), true
		}
	}
	return Task{}, false
}

// ClaimNextPendingSegment atomically transitions the first-by-index Pending
// segment of the task to Downloading and returns its index (spec.md §4.4
// step 8's "first-by-index among Pending" tie-break). allCompleted reports
// whether every segment is already Completed (§4.4 step 8's break-to-
// reassembly branch); found is false while neither condition holds, meaning
// the caller should idle-poll.
func (l *JobList) ClaimNextPendingSegment(jobID, taskID string) (index int, allCompleted bool, found bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.jobs {
		if l.jobs[i].ID != jobID {
			continue
		}
		t := l.jobs[i].TaskByID(taskID)
		if t == nil {
			return 0, false, false
		}
		allDone := true
		for si := range t.Segments {
			if t.Segments[si].Status != SegmentCompleted {
				allDone = false
			}
			if t.Segments[si].Status == SegmentPending {
				t.Segments[si].Status = SegmentDownloading
				return t.Segments[si].Index, false, true
			}
		}
		return 0, allDone, false
	}
	return 0, false, false
}

// SetSegment overwrites one segment's status/downloaded fields by index.
func (l *JobList) SetSegment(jobID, taskID string, index int, status SegmentStatus, downloaded int64) bool {
	return l.MutateTask(jobID, taskID, func(t *Task) {
		for si := range t.Segments {
			if t.Segments[si].Index == index {
				t.Segments[si].Status = status
				t.Segments[si].Downloaded = downloaded
				return
			}
		}
	})
}

// RecomputeProgress sets task.Progress to the sum of completed-segment sizes
// plus inFlight, the exact form of spec.md §3 invariant 2. inFlight should
// be 0 when no segment is currently Downloading (e.g. right after a
// successful fetch, before the next claim).
func (l *JobList) RecomputeProgress(jobID, taskID string, inFlight int64) bool {
	return l.MutateTask(jobID, taskID, func(t *Task) {
		var sum int64
		for _, seg := range t.Segments {
			if seg.Status == SegmentCompleted {
				sum += seg.Size()
			}
		}
		t.Progress = sum + inFlight
	})
}

// Remove drops a job by id, reporting whether it existed.
func (l *JobList) Remove(jobID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.jobs {
		if l.jobs[i].ID == jobID {
			l.jobs = append(l.jobs[:i], l.jobs[i+1:]...)
			return true
		}
	}
	return false
}

// ClearCompleted drops every job whose tasks are all Completed.
func (l *JobList) ClearCompleted() {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.jobs[:0]
	for _, j := range l.jobs {
		if !j.AllTasksCompleted() {
			kept = append(kept, j)
		}
	}
	l.jobs = kept
}

func deepCopyJobs(jobs []Job) []Job {
	out := make([]Job, len(jobs))
	for i, j := range jobs {
		out[i] = deepCopyJob(j)
	}
	return out
}

func deepCopyJob(j Job) Job {
	out := j
	out.Tasks = make([]Task, len(j.Tasks))
	for i, t := range j.Tasks {
		out.Tasks[i] = deepCopyTask(t)
	}
	return out
}

func deepCopyTask(t Task) Task {
	out := t
	out.Segments = make([]Segment, len(t.Segments))
	copy(out.Segments, t.Segments)
	if t.EpisodeNumber != nil {
		n := *t.EpisodeNumber
		out.EpisodeNumber = &n
	}
	return out
}
