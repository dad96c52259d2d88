package types

import (
	"encoding/json"
	"time"
)

// Vec2 is a position on the room's 2D listener plane.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Client struct {
	Id         string    `json:"id"`
	Username   string    `json:"username"`
	Position   Vec2      `json:"position"`
	JoinedAt   time.Time `json:"joined_at"`
	LateJoiner bool      `json:"late_joiner,omitempty"`
}

// Segment is one bounded time range of a transcoded stream. Segments are
// ordered by Start and cover the track with no gaps: Segments[i].End ==
// Segments[i+1].Start.
type Segment struct {
	URL      string `json:"url"`
	Duration int64  `json:"duration_ms"`
	Start    int64  `json:"start_ms"`
	End      int64  `json:"end_ms"`
}

// Playback holds a room's playback state. Exactly one of the two
// representations is in effect at any time: while Enabled, StartedAt anchors
// a running reference-time delta and SavedElapsed is zero; while disabled,
// StartedAt is nil and SavedElapsed holds the frozen progress.
type Playback struct {
	Enabled      bool       `json:"enabled"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	SavedElapsed int64      `json:"saved_elapsed_ms"`
	Duration     int64      `json:"duration_ms"`
	MediaURL     string     `json:"media_url,omitempty"`
	StreamURL    string     `json:"stream_url,omitempty"`
	Segments     []Segment  `json:"segments,omitempty"`
}

type Spatial struct {
	Enabled bool `json:"enabled"`
	Source  Vec2 `json:"source"`
	Step    int  `json:"step"`
}

// Room is the persisted unit of synchronization. Clients is kept in join
// order so position assignment is stable across recomputes.
type Room struct {
	Id        string    `json:"id"`
	Clients   []Client  `json:"clients"`
	Playback  Playback  `json:"playback"`
	Spatial   Spatial   `json:"spatial"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r Room) MarshalBinary() ([]byte, error) {
	return json.Marshal(r)
}

func (r *Room) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, r)
}

func (r *Room) AddClient(c Client) {
	if r.Clients == nil {
		r.Clients = make([]Client, 0, 8)
	}
	r.Clients = append(r.Clients, c)
}

// RemoveClientById removes the client with the given id, preserving the
// join order of the remaining clients. It reports whether a client was
// removed.
func (r *Room) RemoveClientById(id string) bool {
	for i, c := range r.Clients {
		if c.Id == id {
			r.Clients = append(r.Clients[:i], r.Clients[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) ClientById(id string) (Client, bool) {
	for _, c := range r.Clients {
		if c.Id == id {
			return c, true
		}
	}
	return Client{}, false
}

func (r *Room) ClientByUsername(username string) (Client, bool) {
	for _, c := range r.Clients {
		if c.Username == username {
			return c, true
		}
	}
	return Client{}, false
}
