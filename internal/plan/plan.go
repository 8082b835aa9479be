// Package plan implements SegmentPlanner (spec.md §4.3): splitting a known
// total size into N contiguous byte ranges, and reconciling an existing
// plan against part files already on disk after a resume.
//
// Grounded on the teacher's internal/downloader/concurrent.go createTasks/
// calculateChunkSize (the Go idiom for even byte-range splitting) and on
// original_source/aura-core's create_segments, which this follows exactly:
// integer-division segment size with the remainder absorbed by the last
// segment.
package plan

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aura-dl/aura-core/internal/ledger"
)

// Create splits totalSize into n contiguous segments. Panics-free: callers
// are expected to have already validated totalSize >= 1 and n >= 1 (spec.md
// §8 property 2).
func Create(totalSize int64, n int) []ledger.Segment {
	if n < 1 {
		n = 1
	}
	segSize := totalSize / int64(n)
	segments := make([]ledger.Segment, n)
	for i := 0; i < n; i++ {
		start := int64(i) * segSize
		end := start + segSize - 1
		if i == n-1 {
			end = totalSize - 1
		}
		segments[i] = ledger.Segment{
			Index:  i,
			Start:  start,
			End:    end,
			Status: ledger.SegmentPending,
		}
	}
	return segments
}

// PartFileName returns the on-disk name for segment i (spec.md §6).
func PartFileName(index int) string {
	return fmt.Sprintf("part%d.mp4", index)
}

// Reconcile inspects partsFolder and marks any segment whose part file
// already has at least the expected byte length as Completed. Segments with
// a missing or short part file are left Pending — the worker overwrites
// them from scratch on next claim (spec.md §4.3: "simplicity over partial-
// segment resumption").
func Reconcile(segments []ledger.Segment, partsFolder string) []ledger.Segment {
	out := make([]ledger.Segment, len(segments))
	copy(out, segments)
	for i := range out {
		seg := &out[i]
		if seg.Status == ledger.SegmentCompleted {
			continue
		}
		info, err := os.Stat(filepath.Join(partsFolder, PartFileName(seg.Index)))
		if err != nil {
			continue
		}
		if info.Size() >= seg.Size() {
			seg.Status = ledger.SegmentCompleted
			seg.Downloaded = seg.Size()
		}
	}
	return out
}
