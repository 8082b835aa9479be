// Package events defines plain observable progress/lifecycle messages.
//
// Grounded on the teacher's internal/engine/events/events.go shape (plain
// structs, a custom error-to-string JSON encoding for the error-carrying
// message) rather than the legacy internal/messages package, which is
// tea.Msg-coupled for the TUI front-end this module does not build.
package events

import (
	"encoding/json"
	"errors"
)

// Progress is emitted roughly every 2s while a task is Downloading (the
// progress ticker, spec.md §4.4 step 7) and immediately on every segment
// completion.
type Progress struct {
	JobID       string
	TaskID      string
	Downloaded  int64
	Total       int64
	SegmentsLen int
}

// StatusChanged is emitted whenever a task transitions between TaskStatus
// values, so an observer front-end doesn't need to diff polled snapshots.
type StatusChanged struct {
	JobID  string
	TaskID string
	Status string // TaskStatus.String()
}

// Failed carries a task's terminal error, with the same string-encoded
// error idiom the teacher's DownloadErrorMsg uses.
type Failed struct {
	JobID  string
	TaskID string
	Err    error
}

func (m Failed) MarshalJSON() ([]byte, error) {
	type encoded struct {
		JobID  string `json:"JobID"`
		TaskID string `json:"TaskID"`
		Err    string `json:"Err,omitempty"`
	}
	out := encoded{JobID: m.JobID, TaskID: m.TaskID}
	if m.Err != nil {
		out.Err = m.Err.Error()
	}
	return json.Marshal(out)
}

func (m *Failed) UnmarshalJSON(data []byte) error {
	var aux struct {
		JobID  string `json:"JobID"`
		TaskID string `json:"TaskID"`
		Err    string `json:"Err"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.JobID, m.TaskID = aux.JobID, aux.TaskID
	m.Err = nil
	if aux.Err != "" {
		m.Err = errors.New(aux.Err)
	}
	return nil
}

// Sink receives events as the Manager and workers publish them. An observer
// front-end implements Sink (or uses Chan, below) to drive a UI.
type Sink interface {
	Publish(event any)
}

// Chan is the simplest Sink: a buffered channel, dropping events if full
// rather than blocking a worker on a slow consumer.
type Chan chan any

func NewChan(buffer int) Chan {
	return make(Chan, buffer)
}

func (c Chan) Publish(event any) {
	select {
	case c <- event:
	default:
	}
}
