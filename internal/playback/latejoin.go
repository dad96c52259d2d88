package playback

import (
	"time"

	"github.com/spksound/syncroom/internal/types"
)

// SyncPoint is everything a late joiner needs to begin mid-stream instead
// of at zero.
type SyncPoint struct {
	MediaURL      string         `json:"media_url,omitempty"`
	StreamURL     string         `json:"stream_url,omitempty"`
	Segment       *types.Segment `json:"segment,omitempty"`
	SegmentOffset int64          `json:"segment_offset_ms"`
	Elapsed       int64          `json:"elapsed_ms"`
	Duration      int64          `json:"duration_ms"`
	ReferenceTime time.Time      `json:"reference_time"`
	// Degraded marks that elapsed fell outside the known segment bounds,
	// typically clock skew or a stale duration. The join still succeeds but
	// sync for this client cannot be trusted until the next seek.
	Degraded bool `json:"degraded,omitempty"`
}

// LocateSegment finds the segment covering elapsed, i.e. the one with
// Start <= elapsed < End, and the offset into it. ok is false when elapsed
// lies beyond every known segment.
func LocateSegment(segments []types.Segment, elapsed int64) (types.Segment, int64, bool) {
	for _, seg := range segments {
		if elapsed >= seg.Start && elapsed < seg.End {
			return seg, elapsed - seg.Start, true
		}
	}
	return types.Segment{}, 0, false
}

// Locate computes the catch-up point for a client joining while playback is
// running. For segmented media the covering segment is resolved; a miss is
// reported through Degraded rather than failing the join.
func Locate(p *types.Playback, now time.Time) SyncPoint {
	elapsed := Elapsed(p, now)
	sp := SyncPoint{
		MediaURL:      p.MediaURL,
		StreamURL:     p.StreamURL,
		Elapsed:       elapsed,
		Duration:      p.Duration,
		ReferenceTime: now,
	}

	if len(p.Segments) == 0 {
		return sp
	}

	seg, offset, ok := LocateSegment(p.Segments, elapsed)
	if !ok {
		sp.Degraded = true
		return sp
	}

	sp.Segment = &seg
	sp.SegmentOffset = offset
	return sp
}
