package playback

import (
	"errors"
	"time"

	"github.com/spksound/syncroom/internal/types"
)

// State is the playback state machine position for a room.
type State int

const (
	StateStopped State = 0
	StatePlaying State = 1
	StatePaused  State = 2
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

var (
	// ErrNoMedia is returned when a command requires loaded media and the
	// room has none. This is a precondition failure, not a crash.
	ErrNoMedia = errors.New("no media loaded")
	// ErrNotPlaying is returned for pause with nothing playing.
	ErrNotPlaying = errors.New("playback is not running")
)

// StateOf reports where the state machine currently sits.
func StateOf(p *types.Playback) State {
	if p.Enabled {
		return StatePlaying
	}
	if p.MediaURL != "" || p.StreamURL != "" || p.SavedElapsed > 0 {
		return StatePaused
	}
	return StateStopped
}

// Play transitions to Playing. resumeFrom < 0 resumes from the saved elapsed
// time (or zero); duration <= 0 keeps the prior total duration. All times
// are milliseconds on the reference clock; now must come from the room's
// synchronized clock so every process anchors the same instant.
func Play(p *types.Playback, now time.Time, resumeFrom, duration int64) error {
	if p.MediaURL == "" && p.StreamURL == "" {
		return ErrNoMedia
	}

	if duration > 0 {
		p.Duration = duration
	}
	if resumeFrom < 0 {
		resumeFrom = p.SavedElapsed
	}

	start := now.Add(-time.Duration(resumeFrom) * time.Millisecond)
	p.StartedAt = &start
	p.SavedElapsed = 0
	p.Enabled = true
	return nil
}

// Pause freezes progress: the running reference-time delta is captured into
// SavedElapsed and the anchor cleared.
func Pause(p *types.Playback, now time.Time) error {
	if !p.Enabled || p.StartedAt == nil {
		return ErrNotPlaying
	}

	p.SavedElapsed = clamp(now.Sub(*p.StartedAt).Milliseconds(), p.Duration)
	p.StartedAt = nil
	p.Enabled = false
	return nil
}

// Seek re-anchors elapsed time at position. It reuses the pause/play
// arithmetic and is valid from both Playing and Paused.
func Seek(p *types.Playback, now time.Time, position int64) error {
	if p.MediaURL == "" && p.StreamURL == "" {
		return ErrNoMedia
	}

	if p.Enabled {
		if err := Pause(p, now); err != nil {
			return err
		}
	}
	return Play(p, now, clamp(position, p.Duration), 0)
}

// Stop clears all playback fields back to their zero values.
func Stop(p *types.Playback) {
	*p = types.Playback{}
}

// Elapsed is the room's current media-timeline progress in milliseconds.
// Pure read: while Playing it is the clamped reference-time delta, otherwise
// the frozen saved value. It never exceeds the total duration.
func Elapsed(p *types.Playback, now time.Time) int64 {
	if p.Enabled && p.StartedAt != nil {
		return clamp(now.Sub(*p.StartedAt).Milliseconds(), p.Duration)
	}
	return p.SavedElapsed
}

func clamp(elapsed, duration int64) int64 {
	if elapsed < 0 {
		return 0
	}
	if duration > 0 && elapsed > duration {
		return duration
	}
	return elapsed
}
