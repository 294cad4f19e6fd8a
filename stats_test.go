package main

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeResultStore struct {
	mu         sync.Mutex
	ended      []int64
	history    []historyCall
	statUpdate []int64
	synced     []int64
	endErr     error
}

type historyCall struct {
	gameID, userID, opponentID int64
	userScore, opponentScore   int
}

func (f *fakeResultStore) EndGame(gameID int64, _, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	f.ended = append(f.ended, gameID)
	return nil
}

func (f *fakeResultStore) GetPlayersFromGame(int64) (GamePlayers, error) {
	return GamePlayers{Player1ID: 10, Player2ID: 20}, nil
}

func (f *fakeResultStore) CreateMatchHistory(gameID, userID, opponentID int64, userScore, opponentScore int, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, historyCall{gameID, userID, opponentID, userScore, opponentScore})
	return nil
}

func (f *fakeResultStore) UpdateUserStatsAfterGame(gameID, _, _ int64, _, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statUpdate = append(f.statUpdate, gameID)
	return nil
}

func (f *fakeResultStore) SyncTeamStats(userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, userID)
	return nil
}

func TestResultWriterPersistsMatch(t *testing.T) {
	store := &fakeResultStore{}
	w := NewResultWriter(store)

	w.MatchEnded("31", 5, 3, 90*time.Second)
	w.Stop() // drains before returning

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.ended) != 1 || store.ended[0] != 31 {
		t.Fatalf("ended = %v, want [31]", store.ended)
	}
	if len(store.history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(store.history))
	}
	// One row per player, with mirrored scores
	h1, h2 := store.history[0], store.history[1]
	if h1.userID != 10 || h1.userScore != 5 || h1.opponentScore != 3 {
		t.Errorf("player 1 history = %+v", h1)
	}
	if h2.userID != 20 || h2.userScore != 3 || h2.opponentScore != 5 {
		t.Errorf("player 2 history = %+v", h2)
	}
	if len(store.statUpdate) != 1 {
		t.Errorf("stat updates = %d, want 1", len(store.statUpdate))
	}
	if len(store.synced) != 2 {
		t.Errorf("sync calls = %d, want 2", len(store.synced))
	}
}

func TestResultWriterSkipsAdHocRooms(t *testing.T) {
	store := &fakeResultStore{}
	w := NewResultWriter(store)

	w.MatchEnded("friends-room", 5, 2, time.Minute)
	w.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.ended) != 0 {
		t.Errorf("non-numeric room id was persisted: %v", store.ended)
	}
}

func TestResultWriterEndGameFailureStopsThere(t *testing.T) {
	store := &fakeResultStore{endErr: errors.New("locked")}
	w := NewResultWriter(store)

	w.MatchEnded("7", 1, 0, time.Second)
	w.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.history) != 0 || len(store.statUpdate) != 0 {
		t.Error("downstream writes ran after EndGame failed")
	}
}

func TestResultWriterNilStore(t *testing.T) {
	w := NewResultWriter(nil)
	w.MatchEnded("7", 1, 0, time.Second)
	w.Stop()
}
