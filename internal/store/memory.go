package store

import (
	"context"
	"sync"

	"github.com/spksound/syncroom/internal/types"
)

// MemoryRoomStore keeps rooms in a process-local map. Used when no redis
// address is configured and throughout the engine tests. Values are
// round-tripped through the same JSON encoding as the redis store so both
// behave identically with respect to copies.
type MemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[string][]byte
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[string][]byte)}
}

func (s *MemoryRoomStore) Get(_ context.Context, id string) (*types.Room, error) {
	s.mu.RLock()
	data, ok := s.rooms[roomKey(id)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrRoomNotFound
	}

	var room types.Room
	if err := room.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *MemoryRoomStore) Set(_ context.Context, room *types.Room) error {
	data, err := room.MarshalBinary()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rooms[roomKey(room.Id)] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryRoomStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.rooms, roomKey(id))
	s.mu.Unlock()
	return nil
}

func (s *MemoryRoomStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	_, ok := s.rooms[roomKey(id)]
	s.mu.RUnlock()
	return ok, nil
}

func (s *MemoryRoomStore) Ping(context.Context) error { return nil }

func (s *MemoryRoomStore) Close() error { return nil }
