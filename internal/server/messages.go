package server

import (
	"net/http"
	"time"

	"github.com/spksound/syncroom/internal/playback"
	"github.com/spksound/syncroom/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the single envelope for every client-to-server event.
// Exactly one of the pointer fields is set.
type ClientMessage struct {
	BaseMessage
	CreateRoom    *CreateRoom    `json:"create_room,omitempty"`
	Join          *Join          `json:"join,omitempty"`
	Leave         *Leave         `json:"leave,omitempty"`
	Play          *Play          `json:"play,omitempty"`
	Pause         *Pause         `json:"pause,omitempty"`
	Seek          *Seek          `json:"seek,omitempty"`
	Stop          *Stop          `json:"stop,omitempty"`
	ToggleSpatial *ToggleSpatial `json:"toggle_spatial,omitempty"`
	SourcePos     *SourcePos     `json:"source_position,omitempty"`
	Sync          *Sync          `json:"sync,omitempty"`
	client        *Client
	// scheduled marks a deferred command being replayed from the room's
	// pending queue after its execution timestamp passed, so it is applied
	// rather than re-deferred. seq is its receipt order within the room,
	// used to break ties between equal execution timestamps.
	scheduled bool
	seq       uint64
}

type CreateRoom struct {
	Username string `json:"username"`
}

type Join struct {
	RoomId   string `json:"room_id"`
	Username string `json:"username"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

// Play schedules a Playing transition. ExecuteAt is an optional future
// reference-clock timestamp in unix milliseconds; zero or past executes
// immediately. ResumeFrom nil resumes from the saved elapsed time.
type Play struct {
	RoomId     string `json:"room_id"`
	ExecuteAt  int64  `json:"execute_at_ms,omitempty"`
	ResumeFrom *int64 `json:"resume_from_ms,omitempty"`
	Duration   int64  `json:"duration_ms,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
}

type Pause struct {
	RoomId    string `json:"room_id"`
	ExecuteAt int64  `json:"execute_at_ms,omitempty"`
}

type Seek struct {
	RoomId    string `json:"room_id"`
	Position  int64  `json:"position_ms"`
	ExecuteAt int64  `json:"execute_at_ms,omitempty"`
}

type Stop struct {
	RoomId string `json:"room_id"`
}

type ToggleSpatial struct {
	RoomId string `json:"room_id"`
	Enable bool   `json:"enable"`
}

// SourcePos manually overrides the source position. Only honored while the
// source is not auto-orbiting.
type SourcePos struct {
	RoomId   string     `json:"room_id"`
	Position types.Vec2 `json:"position"`
}

type Sync struct {
	RoomId string `json:"room_id"`
}

// ServerMessage is the envelope for everything the server emits, whether a
// direct response or a room broadcast.
type ServerMessage struct {
	BaseMessage
	Response       *Response           `json:"response,omitempty"`
	RoomUpdate     *RoomUpdate         `json:"room_update,omitempty"`
	PlaybackUpdate *PlaybackUpdate     `json:"playback_update,omitempty"`
	SpatialUpdate  *SpatialUpdate      `json:"spatial_update,omitempty"`
	LateJoin       *playback.SyncPoint `json:"late_joiner_sync,omitempty"`
	SkipClient     *Client             `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type RoomUpdate struct {
	RoomId  string         `json:"room_id"`
	Clients []types.Client `json:"clients"`
}

type PlaybackUpdate struct {
	RoomId        string    `json:"room_id"`
	State         string    `json:"state"`
	Elapsed       int64     `json:"elapsed_ms"`
	Duration      int64     `json:"duration_ms"`
	StreamURL     string    `json:"stream_url,omitempty"`
	ReferenceTime time.Time `json:"reference_time"`
}

type SpatialUpdate struct {
	RoomId    string                `json:"room_id"`
	Enabled   bool                  `json:"enabled"`
	Source    types.Vec2            `json:"source"`
	Positions map[string]types.Vec2 `json:"positions"`
	Gains     map[string]float64    `json:"gains"`
	Elapsed   int64                 `json:"elapsed_ms"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrRoomNotFound(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        "room not found",
		},
	}
}

// ErrPreconditionFailed covers commands whose preconditions don't hold,
// such as pause with nothing playing or play with no media loaded.
func ErrPreconditionFailed(id int, reason string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusPreconditionFailed,
			Error:        reason,
		},
	}
}

// ErrUpstreamFailure covers failures of external collaborators, the
// transcoding pipeline in particular. No automatic retry.
func ErrUpstreamFailure(id int, reason string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadGateway,
			Error:        reason,
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
