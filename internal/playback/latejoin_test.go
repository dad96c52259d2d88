package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spksound/syncroom/internal/types"
)

func segments() []types.Segment {
	return []types.Segment{
		{URL: "seg-0.ts", Duration: 10_000, Start: 0, End: 10_000},
		{URL: "seg-1.ts", Duration: 10_000, Start: 10_000, End: 20_000},
		{URL: "seg-2.ts", Duration: 10_000, Start: 20_000, End: 30_000},
	}
}

func TestLocateSegment(t *testing.T) {
	tcases := []struct {
		name       string
		elapsed    int64
		wantURL    string
		wantOffset int64
		wantOk     bool
	}{
		{name: "start of track", elapsed: 0, wantURL: "seg-0.ts", wantOffset: 0, wantOk: true},
		{name: "mid segment", elapsed: 14_500, wantURL: "seg-1.ts", wantOffset: 4_500, wantOk: true},
		{name: "exact boundary belongs to the next segment", elapsed: 20_000, wantURL: "seg-2.ts", wantOffset: 0, wantOk: true},
		{name: "last covered millisecond", elapsed: 29_999, wantURL: "seg-2.ts", wantOffset: 9_999, wantOk: true},
		{name: "beyond all segments", elapsed: 30_000, wantOk: false},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			seg, offset, ok := LocateSegment(segments(), tc.elapsed)
			assert.Equal(t, tc.wantOk, ok, "expected ok to match")
			if !tc.wantOk {
				return
			}
			assert.Equal(t, tc.wantURL, seg.URL, "expected matching segment")
			assert.Equal(t, tc.wantOffset, offset, "expected offset into the segment")
		})
	}
}

func TestLocate(t *testing.T) {
	t.Run("segmented media resolves the covering segment", func(t *testing.T) {
		p := &types.Playback{
			MediaURL:  "https://cdn.example.com/track.mp3",
			StreamURL: "https://cdn.example.com/track/index.m3u8",
			Segments:  segments(),
			Duration:  30_000,
		}
		assert.NoError(t, Play(p, t0, 0, 0))

		now := t0.Add(15 * time.Second)
		sp := Locate(p, now)

		assert.False(t, sp.Degraded, "expected a clean sync point")
		assert.NotNil(t, sp.Segment, "expected a matched segment")
		assert.Equal(t, "seg-1.ts", sp.Segment.URL, "expected the covering segment")
		assert.Equal(t, int64(5_000), sp.SegmentOffset, "expected offset into the segment")
		assert.Equal(t, int64(15_000), sp.Elapsed, "expected total elapsed")
		assert.Equal(t, now, sp.ReferenceTime, "expected the reference time of the sync")
	})

	t.Run("non-segmented media starts from elapsed", func(t *testing.T) {
		p := &types.Playback{MediaURL: "https://cdn.example.com/track.mp3"}
		assert.NoError(t, Play(p, t0, 25_000, 180_000))

		sp := Locate(p, t0)
		assert.Nil(t, sp.Segment, "expected no segment for direct streams")
		assert.False(t, sp.Degraded, "expected no degradation without a segment index")
		assert.Equal(t, int64(25_000), sp.Elapsed, "expected start-from-elapsed")
	})

	t.Run("elapsed outside segment bounds degrades but succeeds", func(t *testing.T) {
		p := &types.Playback{
			MediaURL: "https://cdn.example.com/track.mp3",
			Segments: segments(),
			// stale duration: playback claims more track than the segments cover
			Duration: 60_000,
		}
		assert.NoError(t, Play(p, t0, 45_000, 0))

		sp := Locate(p, t0)
		assert.True(t, sp.Degraded, "expected degraded sync, not a failure")
		assert.Nil(t, sp.Segment, "expected no segment match")
		assert.Equal(t, int64(45_000), sp.Elapsed, "expected elapsed still reported")
	})
}
