package main

import (
	"log"
	"strconv"
	"sync"
	"time"
)

// ResultStore is the persistence surface the writer needs: match
// results, per-player history and aggregate stats sync. *DB satisfies
// it; tests substitute a fake.
type ResultStore interface {
	EndGame(gameID int64, score1, score2 int) error
	GetPlayersFromGame(gameID int64) (GamePlayers, error)
	CreateMatchHistory(gameID, userID, opponentID int64, userScore, opponentScore int, duration float64) error
	UpdateUserStatsAfterGame(gameID, player1ID, player2ID int64, score1, score2 int) error
	SyncTeamStats(userID int64) error
}

// MatchResult is one finished match handed off by a room
type MatchResult struct {
	GameID   int64
	Score1   int
	Score2   int
	Duration time.Duration
}

// ResultWriter persists match outcomes in the background so a room can
// release its timer without waiting on storage. A storage failure is
// logged and dropped: the in-memory outcome already reached the
// players.
type ResultWriter struct {
	store   ResultStore
	results chan MatchResult
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewResultWriter creates and starts the background writer
func NewResultWriter(store ResultStore) *ResultWriter {
	w := &ResultWriter{
		store:   store,
		results: make(chan MatchResult, 256),
		stop:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.writer()
	return w
}

// MatchEnded enqueues a finished match for persistence (non-blocking).
// Room ids that are not numeric game ids — ad-hoc invite rooms — have
// no backing row and are skipped.
func (w *ResultWriter) MatchEnded(roomID string, score1, score2 int, duration time.Duration) {
	gameID, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		log.Printf("results: room %s has no game row, skipping persistence", roomID)
		return
	}
	select {
	case w.results <- MatchResult{GameID: gameID, Score1: score1, Score2: score2, Duration: duration}:
	default:
		// Channel full — drop rather than blocking a game loop
		log.Printf("results: queue full, dropping result for game %d", gameID)
	}
}

// Stop drains pending results and shuts the writer down
func (w *ResultWriter) Stop() {
	close(w.stop)
	w.wg.Wait()
}

func (w *ResultWriter) writer() {
	defer w.wg.Done()
	for {
		select {
		case res := <-w.results:
			w.persist(res)
		case <-w.stop:
			close(w.results)
			for res := range w.results {
				w.persist(res)
			}
			return
		}
	}
}

// persist writes everything derived from one result. Each step fails
// independently; a missing stats row must not lose the score row.
func (w *ResultWriter) persist(res MatchResult) {
	if w.store == nil {
		return
	}
	if err := w.store.EndGame(res.GameID, res.Score1, res.Score2); err != nil {
		log.Printf("results: end game %d: %v", res.GameID, err)
		return
	}

	players, err := w.store.GetPlayersFromGame(res.GameID)
	if err != nil {
		log.Printf("results: players of game %d: %v", res.GameID, err)
		return
	}

	secs := res.Duration.Seconds()
	if err := w.store.CreateMatchHistory(res.GameID, players.Player1ID, players.Player2ID, res.Score1, res.Score2, secs); err != nil {
		log.Printf("results: history for game %d: %v", res.GameID, err)
	}
	if err := w.store.CreateMatchHistory(res.GameID, players.Player2ID, players.Player1ID, res.Score2, res.Score1, secs); err != nil {
		log.Printf("results: history for game %d: %v", res.GameID, err)
	}

	if err := w.store.UpdateUserStatsAfterGame(res.GameID, players.Player1ID, players.Player2ID, res.Score1, res.Score2); err != nil {
		log.Printf("results: stats for game %d: %v", res.GameID, err)
		return
	}
	for _, id := range []int64{players.Player1ID, players.Player2ID} {
		if err := w.store.SyncTeamStats(id); err != nil {
			log.Printf("results: team sync for user %d: %v", id, err)
		}
	}
}
