package store

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/spksound/syncroom/internal/types"
)

type MockRoomStore struct {
	mock.Mock
}

func (m *MockRoomStore) Get(ctx context.Context, id string) (*types.Room, error) {
	args := m.Called(ctx, id)
	if room, ok := args.Get(0).(*types.Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRoomStore) Set(ctx context.Context, room *types.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRoomStore) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRoomStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRoomStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
