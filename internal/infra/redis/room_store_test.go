package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/domain"
)

func TestRoomStoreRoundtrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewRoomStore(newClient(mr), time.Hour)
	ctx := context.Background()

	state := domain.RoomState{
		Code:         "ABCDE",
		Phase:        domain.PhaseReveal,
		TimerSeconds: 30,
		BankIndex:    2,
		Question: domain.Question{
			Prompt:       "What is 2 + 2?",
			Choices:      []string{"3", "4", "5", "22"},
			CorrectIndex: 1,
		},
		Counts:  [4]int{0, 2, 1, 0},
		Answers: map[string]int{"p1": 1, "p2": 1, "p3": 2},
		Players: []domain.Player{
			{ID: "p1", Name: "Alice", Score: 2000, Connected: true},
			{ID: "p2", Name: "Bob", Score: 1000, Connected: false},
		},
		GameOver: true,
	}
	if err := store.SaveRoom(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("room:ABCDE") {
		t.Fatalf("expected redis key to be set")
	}

	loaded, found, err := store.LoadRoom(ctx, "ABCDE")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatalf("expected record found")
	}
	if loaded.Phase != state.Phase || loaded.BankIndex != state.BankIndex || !loaded.GameOver {
		t.Fatalf("record mismatch: %+v", loaded)
	}
	if len(loaded.Players) != 2 || loaded.Players[0].Score != 2000 {
		t.Fatalf("players mismatch: %+v", loaded.Players)
	}
	if loaded.Answers["p3"] != 2 {
		t.Fatalf("answers mismatch: %+v", loaded.Answers)
	}
}

func TestRoomStoreMissingRecord(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewRoomStore(newClient(mr), time.Hour)
	_, found, err := store.LoadRoom(context.Background(), "ZZZZZ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("expected not found for untouched code")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
