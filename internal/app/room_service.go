package app

import (
	"context"
	"fmt"
	"sync"

	"trivia-room-service/internal/domain"
)

// RoomStore persists one durable record per room, keyed by code. Records are
// read back only on cold start; the in-memory room is the source of truth.
type RoomStore interface {
	SaveRoom(ctx context.Context, state domain.RoomState) error
	LoadRoom(ctx context.Context, code string) (domain.RoomState, bool, error)
}

// BankRepository loads question bank content (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, bankID string) (domain.QuestionBank, error)
}

// RoomService owns the registry of live rooms. There is exactly one Room per
// code; all room mutation goes through that instance.
type RoomService struct {
	store  RoomStore
	banks  BankRepository
	bankID string

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRoomService(store RoomStore, banks BankRepository, bankID string) *RoomService {
	return &RoomService{
		store:  store,
		banks:  banks,
		bankID: bankID,
		rooms:  make(map[string]*Room),
	}
}

// GetOrCreate returns the live room for code, restoring it from the durable
// store after a restart or creating it fresh on first touch.
func (s *RoomService) GetOrCreate(ctx context.Context, code string) (*Room, error) {
	s.mu.RLock()
	room, ok := s.rooms[code]
	s.mu.RUnlock()
	if ok {
		return room, nil
	}

	bank, err := s.banks.GetBank(ctx, s.bankID)
	if err != nil {
		return nil, fmt.Errorf("load bank: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[code]; ok {
		return room, nil
	}

	state, found, err := s.store.LoadRoom(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if found {
		room = restoreRoom(state, code, bank, s.store)
	} else {
		room = newRoom(code, bank, s.store)
	}
	if err := room.persist(ctx); err != nil {
		return nil, err
	}
	s.rooms[code] = room
	return room, nil
}

// Get returns the live room for code without creating one.
func (s *RoomService) Get(code string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

// Register installs a prebuilt room, for tests that need a custom clock.
func (s *RoomService) Register(room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.Code()] = room
}
