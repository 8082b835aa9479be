package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ep(n int) *int { return &n }

// TestCrashRecoveryDemotesDownloading covers S5: a Downloading task with a
// Downloading segment recovers to Pending/Pending, other segments untouched.
func TestCrashRecoveryDemotesDownloading(t *testing.T) {
	loaded := []Job{{
		ID: "J",
		Tasks: []Task{{
			ID:     "t1",
			Status: Downloading(),
			Segments: []Segment{
				{Index: 0, Status: SegmentCompleted},
				{Index: 1, Status: SegmentCompleted},
				{Index: 2, Status: SegmentDownloading},
			},
		}},
	}}

	list := NewJobList(loaded)
	snap := list.Snapshot()

	require.True(t, snap[0].Tasks[0].Status.IsPending())
	require.Equal(t, SegmentCompleted, snap[0].Tasks[0].Segments[0].Status)
	require.Equal(t, SegmentCompleted, snap[0].Tasks[0].Segments[1].Status)
	require.Equal(t, SegmentPending, snap[0].Tasks[0].Segments[2].Status)
}

func TestCrashRecoveryDemotesErrorWithRefreshMetadata(t *testing.T) {
	loaded := []Job{{
		ID: "J",
		Tasks: []Task{{
			ID:            "t1",
			Status:        Errored("boom"),
			EpisodeURL:    "https://site/ep1",
			GateID:        "g1",
			EpisodeNumber: ep(1),
			Segments:      []Segment{{Index: 0, Status: SegmentError}},
		}},
	}}

	list := NewJobList(loaded)
	snap := list.Snapshot()

	reason, ok := snap[0].Tasks[0].Status.PauseReason()
	require.True(t, ok)
	require.Equal(t, NetworkError, reason)
	require.Equal(t, SegmentPending, snap[0].Tasks[0].Segments[0].Status)
}

func TestCrashRecoveryLeavesErrorWithoutRefreshMetadata(t *testing.T) {
	loaded := []Job{{ID: "J", Tasks: []Task{{ID: "t1", Status: Errored("boom")}}}}
	list := NewJobList(loaded)
	require.True(t, list.Snapshot()[0].Tasks[0].Status.IsError())
}

// TestMergeSkipsCompletedAndAppendsNew and TestMergeDoesNotDisturbDownloading cover S6.
func TestMergeSkipsCompletedAndAppendsNew(t *testing.T) {
	list := NewJobList([]Job{{ID: "J", Tasks: []Task{
		{ID: "t1", URL: "old", Status: Completed(), EpisodeNumber: ep(1)},
	}}})

	list.Merge(Job{ID: "J", Tasks: []Task{
		{ID: "t1-new", URL: "new", Status: Pending(), EpisodeNumber: ep(1)},
	}})
	j, ok := list.Get("J")
	require.True(t, ok)
	require.Len(t, j.Tasks, 1)
	require.Equal(t, "old", j.Tasks[0].URL)
	require.True(t, j.Tasks[0].Status.IsCompleted())

	list.Merge(Job{ID: "J", Tasks: []Task{
		{ID: "t2", URL: "fresh", Status: Pending(), EpisodeNumber: ep(2)},
	}})
	j, _ = list.Get("J")
	require.Len(t, j.Tasks, 2)
}

func TestMergeDoesNotDisturbDownloading(t *testing.T) {
	list := NewJobList([]Job{{ID: "J", Tasks: []Task{
		{ID: "t1", URL: "old", Status: Downloading(), EpisodeNumber: ep(1)},
	}}})

	list.Merge(Job{ID: "J", Tasks: []Task{
		{ID: "t1-new", URL: "new", Status: Pending(), EpisodeNumber: ep(1)},
	}})

	j, _ := list.Get("J")
	require.Len(t, j.Tasks, 1)
	require.Equal(t, "old", j.Tasks[0].URL)
	require.True(t, j.Tasks[0].Status.IsDownloading())
}

func TestMergeOverwritesPausedTaskAndResetsErrorSegments(t *testing.T) {
	list := NewJobList([]Job{{ID: "J", Tasks: []Task{
		{ID: "t1", URL: "old", Status: Paused(LinkExpired), EpisodeNumber: ep(1),
			Segments: []Segment{{Index: 0, Status: SegmentError}}},
	}}})

	list.Merge(Job{ID: "J", Tasks: []Task{
		{ID: "t1-new", URL: "new", EpisodeURL: "u", GateID: "g", Status: Pending(), EpisodeNumber: ep(1)},
	}})

	j, _ := list.Get("J")
	require.Equal(t, "new", j.Tasks[0].URL)
	require.True(t, j.Tasks[0].Status.IsPending())
	require.Equal(t, SegmentPending, j.Tasks[0].Segments[0].Status)
}

func TestRemoveAndClearCompleted(t *testing.T) {
	list := NewJobList([]Job{
		{ID: "A", Tasks: []Task{{Status: Completed()}}},
		{ID: "B", Tasks: []Task{{Status: Pending()}}},
	})

	list.ClearCompleted()
	_, ok := list.Get("A")
	require.False(t, ok)
	_, ok = list.Get("B")
	require.True(t, ok)

	require.True(t, list.Remove("B"))
	require.False(t, list.Remove("B"))
}
