// Package ledger holds the Job/Task/Segment data model (spec.md §3) and its
// tagged JSON encoding, plus the PersistentLedger that durably records it.
package ledger

import (
	"encoding/json"
	"fmt"
)

// PauseReason classifies why a Task is Paused.
type PauseReason string

const (
	UserRequest  PauseReason = "UserRequest"
	LinkExpired  PauseReason = "LinkExpired"
	NetworkError PauseReason = "NetworkError"
	Unknown      PauseReason = "Unknown"
)

// TaskStatus is the tagged union Pending|Downloading|Paused(reason)|Completed|Error(message).
// The zero value is an empty tag and should never be observed outside of
// decoding a malformed record.
type TaskStatus struct {
	tag     string
	reason  PauseReason
	message string
}

func Pending() TaskStatus     { return TaskStatus{tag: "Pending"} }
func Downloading() TaskStatus { return TaskStatus{tag: "Downloading"} }
func Completed() TaskStatus   { return TaskStatus{tag: "Completed"} }
func Paused(reason PauseReason) TaskStatus {
	return TaskStatus{tag: "Paused", reason: reason}
}
func Errored(message string) TaskStatus {
	return TaskStatus{tag: "Error", message: message}
}

func (s TaskStatus) IsPending() bool     { return s.tag == "Pending" }
func (s TaskStatus) IsDownloading() bool { return s.tag == "Downloading" }
func (s TaskStatus) IsCompleted() bool   { return s.tag == "Completed" }
func (s TaskStatus) IsPaused() bool      { return s.tag == "Paused" }
func (s TaskStatus) IsError() bool       { return s.tag == "Error" }

// PauseReason returns the reason and true if the status is Paused.
func (s TaskStatus) PauseReason() (PauseReason, bool) {
	if s.tag != "Paused" {
		return "", false
	}
	return s.reason, true
}

// Message returns the error message and true if the status is Error.
func (s TaskStatus) Message() (string, bool) {
	if s.tag != "Error" {
		return "", false
	}
	return s.message, true
}

func (s TaskStatus) String() string {
	switch s.tag {
	case "Paused":
		return fmt.Sprintf("Paused(%s)", s.reason)
	case "Error":
		return fmt.Sprintf("Error(%s)", s.message)
	default:
		return s.tag
	}
}

// MarshalJSON encodes per spec.md §6: bare strings for Pending/Downloading/
// Completed, {"Paused": reason} and {"Error": message} for the others.
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	switch s.tag {
	case "Pending", "Downloading", "Completed":
		return json.Marshal(s.tag)
	case "Paused":
		return json.Marshal(map[string]PauseReason{"Paused": s.reason})
	case "Error":
		return json.Marshal(map[string]string{"Error": s.message})
	default:
		return nil, fmt.Errorf("ledger: cannot marshal empty TaskStatus")
	}
}

func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch bare {
		case "Pending":
			*s = Pending()
		case "Downloading":
			*s = Downloading()
		case "Completed":
			*s = Completed()
		default:
			return fmt.Errorf("ledger: unknown TaskStatus tag %q", bare)
		}
		return nil
	}

	var tagged struct {
		Paused *PauseReason `json:"Paused"`
		Error  *string      `json:"Error"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	switch {
	case tagged.Paused != nil:
		*s = Paused(*tagged.Paused)
	case tagged.Error != nil:
		*s = Errored(*tagged.Error)
	default:
		return fmt.Errorf("ledger: unrecognized TaskStatus payload %s", string(data))
	}
	return nil
}

// SegmentStatus is the tagged union Pending|Downloading|Completed|Error,
// encoded as bare strings (spec.md §6).
type SegmentStatus string

const (
	SegmentPending     SegmentStatus = "Pending"
	SegmentDownloading SegmentStatus = "Downloading"
	SegmentCompleted   SegmentStatus = "Completed"
	SegmentError       SegmentStatus = "Error"
)

// Segment is a contiguous byte range of a task's artifact.
type Segment struct {
	Index      int           `json:"index"`
	Start      int64         `json:"start"`
	End        int64         `json:"end"` // inclusive
	Downloaded int64         `json:"downloaded"`
	Status     SegmentStatus `json:"status"`
}

// Size returns the segment's full byte length (end-start+1).
func (s Segment) Size() int64 { return s.End - s.Start + 1 }

// Task is one downloadable artifact within a Job.
type Task struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Filename   string     `json:"filename"`
	Status     TaskStatus `json:"status"`
	Progress   int64      `json:"progress_bytes"`
	TotalBytes int64      `json:"total_bytes"`

	EpisodeURL    string `json:"episode_url,omitempty"`
	GateID        string `json:"gate_id,omitempty"`
	EpisodeNumber *int   `json:"episode_number,omitempty"`

	Segments []Segment `json:"segments"`

	LinkRefreshAttempts  int `json:"link_refresh_attempts"`
	TransientBackoffStep int `json:"transient_backoff_step"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// PendingURL is the sentinel value meaning "resolve before use" (spec.md §3
// invariant 6).
const PendingURL = "pending"

// HasRefreshMetadata reports whether the task carries the refresh triple
// (episode_url, gate_id, episode_number) required to call a UrlResolver.
func (t *Task) HasRefreshMetadata() bool {
	return t.EpisodeURL != "" && t.GateID != "" && t.EpisodeNumber != nil
}

// Job is a named collection of Tasks, the unit callers add/remove/merge.
type Job struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tasks []Task `json:"tasks"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// AllTasksCompleted reports whether every task in the job is Completed; used
// by Manager.GetJobBuckets and ClearCompletedJobs.
func (j *Job) AllTasksCompleted() bool {
	if len(j.Tasks) == 0 {
		return false
	}
	for _, t := range j.Tasks {
		if !t.Status.IsCompleted() {
			return false
		}
	}
	return true
}

// TaskByID returns a pointer into j.Tasks for in-place mutation, or nil.
func (j *Job) TaskByID(taskID string) *Task {
	for i := range j.Tasks {
		if j.Tasks[i].ID == taskID {
			return &j.Tasks[i]
		}
	}
	return nil
}

// TaskByEpisodeNumber returns the task sharing the given episode number, the
// key add_job merges on (spec.md §4.5).
func (j *Job) TaskByEpisodeNumber(episodeNumber int) *Task {
	for i := range j.Tasks {
		if n := j.Tasks[i].EpisodeNumber; n != nil && *n == episodeNumber {
			return &j.Tasks[i]
		}
	}
	return nil
}
