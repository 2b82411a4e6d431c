package memory

import (
	"context"
	"sync"

	"trivia-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore, used in tests
// and redis-less runs.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]domain.RoomState
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]domain.RoomState)}
}

func (s *RoomStore) SaveRoom(_ context.Context, state domain.RoomState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[state.Code] = state.Clone()
	return nil
}

func (s *RoomStore) LoadRoom(_ context.Context, code string) (domain.RoomState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.rooms[code]
	if !ok {
		return domain.RoomState{}, false, nil
	}
	return state.Clone(), true, nil
}
