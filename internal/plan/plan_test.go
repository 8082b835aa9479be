package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aura-dl/aura-core/internal/ledger"
	"github.com/stretchr/testify/require"
)

func TestCreateCoversFileNoGapsNoOverlap(t *testing.T) {
	for _, tc := range []struct {
		total int64
		n     int
	}{
		{1000, 1}, {1000, 3}, {1, 1}, {7, 4}, {1 << 20, 8},
	} {
		segs := Create(tc.total, tc.n)
		require.Len(t, segs, tc.n)
		require.Equal(t, int64(0), segs[0].Start)
		require.Equal(t, tc.total-1, segs[len(segs)-1].End)
		for i := 0; i < len(segs)-1; i++ {
			require.Equal(t, segs[i].End+1, segs[i+1].Start)
		}
	}
}

func TestReconcileMarksCompleteOnSufficientPartFile(t *testing.T) {
	dir := t.TempDir()
	segs := Create(1000, 2) // 500-byte segments
	require.NoError(t, os.WriteFile(filepath.Join(dir, PartFileName(0)), make([]byte, 500), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PartFileName(1)), make([]byte, 200), 0o644))

	out := Reconcile(segs, dir)
	require.Equal(t, ledger.SegmentCompleted, out[0].Status)
	require.Equal(t, int64(500), out[0].Downloaded)
	require.Equal(t, ledger.SegmentPending, out[1].Status)
}

func TestReconcileLeavesMissingPartFilePending(t *testing.T) {
	dir := t.TempDir()
	segs := Create(100, 1)
	out := Reconcile(segs, dir)
	require.Equal(t, ledger.SegmentPending, out[0].Status)
}
