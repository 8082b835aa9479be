package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaskStatusJSONRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		status TaskStatus
		wire   string
	}{
		{"pending", Pending(), `"Pending"`},
		{"downloading", Downloading(), `"Downloading"`},
		{"completed", Completed(), `"Completed"`},
		{"paused", Paused(LinkExpired), `{"Paused":"LinkExpired"}`},
		{"error", Errored("disk full"), `{"Error":"disk full"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(tc.status)
			require.NoError(t, err)
			require.JSONEq(t, tc.wire, string(data))

			var decoded TaskStatus
			require.NoError(t, json.Unmarshal(data, &decoded))
			require.Equal(t, tc.status, decoded)
		})
	}
}

func TestTaskStatusUnmarshalRejectsGarbage(t *testing.T) {
	var s TaskStatus
	require.Error(t, json.Unmarshal([]byte(`"NotAStatus"`), &s))
	require.Error(t, json.Unmarshal([]byte(`{"Bogus":1}`), &s))
}

func TestSegmentSize(t *testing.T) {
	s := Segment{Start: 100, End: 199}
	require.Equal(t, int64(100), s.Size())
}

func TestJobAllTasksCompleted(t *testing.T) {
	empty := Job{}
	require.False(t, empty.AllTasksCompleted())

	j := Job{Tasks: []Task{{Status: Completed()}, {Status: Completed()}}}
	require.True(t, j.AllTasksCompleted())

	j.Tasks = append(j.Tasks, Task{Status: Pending()})
	require.False(t, j.AllTasksCompleted())
}
