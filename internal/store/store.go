package store

import (
	"context"
	"errors"

	"github.com/spksound/syncroom/internal/types"
)

// ErrRoomNotFound is returned by Get when no room exists under the key.
var ErrRoomNotFound = errors.New("room not found")

// RoomStore is the persistence contract for room state. Rooms are stored as
// whole serialized values and every mutation is a read-modify-write cycle;
// the store offers no compare-and-swap, so concurrent writers to the same
// room race and the last write wins. Accepted at this system's scale, see
// DESIGN.md.
type RoomStore interface {
	Get(ctx context.Context, id string) (*types.Room, error)
	Set(ctx context.Context, room *types.Room) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

func roomKey(id string) string {
	return "room:" + id
}
