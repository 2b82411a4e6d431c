package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/domain"
)

// RoomStore keeps one durable JSON record per room:
//
//	SET room:{code} {RoomState JSON} EX ttl
//
// The record is written after every committed mutation and read back only
// when a process restarts and a room is touched again.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func (s *RoomStore) SaveRoom(ctx context.Context, state domain.RoomState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", state.Code, err)
	}
	if err := s.client.Set(ctx, s.key(state.Code), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save room %s: %w", state.Code, err)
	}
	return nil
}

func (s *RoomStore) LoadRoom(ctx context.Context, code string) (domain.RoomState, bool, error) {
	data, err := s.client.Get(ctx, s.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RoomState{}, false, nil
	}
	if err != nil {
		return domain.RoomState{}, false, fmt.Errorf("load room %s: %w", code, err)
	}
	var state domain.RoomState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.RoomState{}, false, fmt.Errorf("unmarshal room %s: %w", code, err)
	}
	return state, true, nil
}

func (s *RoomStore) key(code string) string {
	return "room:" + code
}
