package main

import (
	"log"
	"sync"
	"time"
)

// GameCreator persists a matched pair as a game row. *DB satisfies it;
// tests substitute a fake.
type GameCreator interface {
	CreateGame(player1ID, player2ID int64, maxGames int, startedAt time.Time) (int64, error)
}

// WaitingRoom pairs up to two players for a match. The first arrival
// picks the match length, then both confirm before the game row is
// created. One waiting room per process: a third player is turned
// away until a slot frees up.
type WaitingRoom struct {
	mu        sync.Mutex
	player1   *Client
	player2   *Client
	maxGames  int
	confirmed map[*Client]bool
	games     GameCreator
}

// NewWaitingRoom creates an empty waiting room. games may be nil in
// tests that don't touch persistence.
func NewWaitingRoom(games GameCreator) *WaitingRoom {
	return &WaitingRoom{
		confirmed: make(map[*Client]bool),
		games:     games,
	}
}

func validMaxGames(n int) bool {
	switch n {
	case 3, 5, 7, 9, 11:
		return true
	}
	return false
}

// Join seats a player in the waiting room. The first player is
// prompted to choose the match length; the second either waits for
// that choice or, if it was already made, gets the ready handshake.
func (w *WaitingRoom) Join(c *Client) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.player1 == nil:
		w.player1 = c
		c.SendJSON(TypeOnlyMsg{Type: MsgChooseGames})
	case w.player1 == c:
		// repeated join, re-prompt
		c.SendJSON(TypeOnlyMsg{Type: MsgChooseGames})
	case w.player2 == nil:
		w.player2 = c
		if w.maxGames > 0 {
			w.sendReadyLocked()
		} else {
			c.SendJSON(TypeOnlyMsg{Type: MsgWaitingSelect})
		}
	case w.player2 == c:
		// repeated join, nothing to redo
	default:
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Waiting room is full"})
	}
}

// SelectMaxGames records the first player's match-length choice.
// Only player 1 selects; anyone else gets an error.
func (w *WaitingRoom) SelectMaxGames(c *Client, n int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.player1 != c {
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Only the first player selects the match length"})
		return
	}
	if !validMaxGames(n) {
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Invalid match length"})
		return
	}

	w.maxGames = n
	if w.player2 != nil {
		w.sendReadyLocked()
	} else {
		c.SendJSON(TypeOnlyMsg{Type: MsgWaitingOpp})
	}
}

// ConfirmReady marks a seated player as ready. When both have
// confirmed, the game row is created and both get the start message.
// Confirmations from anyone not seated are ignored.
func (w *WaitingRoom) ConfirmReady(c *Client) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c != w.player1 && c != w.player2 {
		return
	}
	if w.player1 == nil || w.player2 == nil || w.maxGames == 0 {
		return
	}

	w.confirmed[c] = true
	if !w.confirmed[w.player1] || !w.confirmed[w.player2] {
		return
	}

	p1, p2, maxGames := w.player1, w.player2, w.maxGames

	var gameID int64
	if w.games != nil {
		id, err := w.games.CreateGame(p1.playerID, p2.playerID, maxGames, time.Now())
		if err != nil {
			log.Printf("create game: %v", err)
			p1.SendJSON(ErrorMsg{Type: MsgError, Message: "Could not create game"})
			p2.SendJSON(ErrorMsg{Type: MsgError, Message: "Could not create game"})
			w.resetLocked()
			return
		}
		gameID = id
	}

	p1.SendJSON(StartMsg{Type: MsgStart, Opponent: p2.username, OpponentID: p2.playerID, GameID: gameID, MaxGames: maxGames})
	p2.SendJSON(StartMsg{Type: MsgStart, Opponent: p1.username, OpponentID: p1.playerID, GameID: gameID, MaxGames: maxGames})
	log.Printf("matched %s vs %s, game %d, first to %d", p1.username, p2.username, gameID, maxGames)
	w.resetLocked()
}

// HandleDisconnect frees the leaver's slot. A remaining second player
// is promoted to first and prompted to choose the match length again,
// since the leaver's choice no longer binds anyone.
func (w *WaitingRoom) HandleDisconnect(c *Client) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch c {
	case w.player1:
		w.player1 = w.player2
		w.player2 = nil
	case w.player2:
		w.player2 = nil
	default:
		return
	}

	w.maxGames = 0
	w.confirmed = make(map[*Client]bool)
	if w.player1 != nil {
		w.player1.SendJSON(NoticeMsg{Type: MsgOpponentLeft, Message: "Your opponent has left matchmaking"})
		w.player1.SendJSON(TypeOnlyMsg{Type: MsgChooseGames})
	}
}

// sendReadyLocked announces the pending match to both players.
// Callers hold w.mu.
func (w *WaitingRoom) sendReadyLocked() {
	w.player1.SendJSON(ReadyMsg{Type: MsgReady, Opponent: w.player2.username, MaxGames: w.maxGames})
	w.player2.SendJSON(ReadyMsg{Type: MsgReady, Opponent: w.player1.username, MaxGames: w.maxGames})
}

func (w *WaitingRoom) resetLocked() {
	w.player1 = nil
	w.player2 = nil
	w.maxGames = 0
	w.confirmed = make(map[*Client]bool)
}
