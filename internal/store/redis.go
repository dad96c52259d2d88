package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/spksound/syncroom/internal/types"
)

// RedisRoomStore persists rooms as JSON blobs in redis. types.Room
// implements encoding.BinaryMarshaler, which is what the redis client uses
// for value serialization.
type RedisRoomStore struct {
	client *redis.Client
}

func NewRedisRoomStore(addr, password string, db int) *RedisRoomStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRoomStore{client: client}
}

func (s *RedisRoomStore) Get(ctx context.Context, id string) (*types.Room, error) {
	data, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room %q: %w", id, err)
	}

	var room types.Room
	if err := room.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode room %q: %w", id, err)
	}
	return &room, nil
}

func (s *RedisRoomStore) Set(ctx context.Context, room *types.Room) error {
	if err := s.client.Set(ctx, roomKey(room.Id), *room, 0).Err(); err != nil {
		return fmt.Errorf("set room %q: %w", room.Id, err)
	}
	return nil
}

func (s *RedisRoomStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, roomKey(id)).Err(); err != nil {
		return fmt.Errorf("delete room %q: %w", id, err)
	}
	return nil
}

func (s *RedisRoomStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, roomKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("exists room %q: %w", id, err)
	}
	return n > 0, nil
}

func (s *RedisRoomStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisRoomStore) Close() error {
	return s.client.Close()
}
