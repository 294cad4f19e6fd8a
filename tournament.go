package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Winner polling cadence. Vars so tests can shrink the wait.
var (
	winnerPollAttempts = 10
	winnerPollInterval = 200 * time.Millisecond
)

var ErrWinnerTimeout = errors.New("timed out waiting for match winner")

// Tournament orchestrator states
const (
	TournamentCreated          = "created"
	TournamentSemifinal1Active = "semifinal1Running"
	TournamentSemifinal2Active = "semifinal2Running"
	TournamentFinalActive      = "finalRunning"
	TournamentCompleted        = "completed"
	TournamentAborted          = "aborted"
)

// TournamentStore is the persistence surface the orchestrator drives.
// *DB satisfies it; tests substitute a fake.
type TournamentStore interface {
	CreateTournament(name string, playerIDs [4]int64) (*Tournament, error)
	GetTournamentByID(id int64) (*Tournament, error)
	UpdateMatchResult(tournamentID int64, round string, winnerID int64) error
	CreateGame(player1ID, player2ID int64, maxGames int, startedAt time.Time) (int64, error)
	GameWinner(gameID int64) (int64, bool, error)
}

// Orchestrator runs a four-player single-elimination bracket: two
// semifinals, then a final between their winners. It creates one game
// row per match and polls until each game's result lands, so the games
// themselves can be played over any of the server's endpoints.
type Orchestrator struct {
	store    TournamentStore
	maxGames int

	mu    sync.Mutex
	state string
	tid   int64
}

// NewOrchestrator creates an orchestrator. maxGames outside the valid
// set falls back to 5.
func NewOrchestrator(store TournamentStore, maxGames int) *Orchestrator {
	if !validMaxGames(maxGames) {
		maxGames = 5
	}
	return &Orchestrator{
		store:    store,
		maxGames: maxGames,
		state:    TournamentCreated,
	}
}

// State returns the orchestrator's current state
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// TournamentID returns the persisted tournament id, zero before Run
func (o *Orchestrator) TournamentID() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tid
}

func (o *Orchestrator) setState(s string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run plays the whole bracket to completion: players[0] vs players[1],
// players[2] vs players[3], then the two winners. Blocks until the
// final's result is recorded, the context is canceled, or a match
// result never arrives.
func (o *Orchestrator) Run(ctx context.Context, name string, players [4]int64) (winnerID int64, err error) {
	t, err := o.store.CreateTournament(name, players)
	if err != nil {
		o.setState(TournamentAborted)
		return 0, fmt.Errorf("create tournament: %w", err)
	}
	o.mu.Lock()
	o.tid = t.ID
	o.mu.Unlock()
	log.Printf("tournament %d (%s) started", t.ID, name)

	o.setState(TournamentSemifinal1Active)
	sf1Winner, err := o.playMatch(ctx, t.ID, RoundSemifinal1, players[0], players[1])
	if err != nil {
		o.setState(TournamentAborted)
		return 0, err
	}

	o.setState(TournamentSemifinal2Active)
	sf2Winner, err := o.playMatch(ctx, t.ID, RoundSemifinal2, players[2], players[3])
	if err != nil {
		o.setState(TournamentAborted)
		return 0, err
	}

	o.setState(TournamentFinalActive)
	champion, err := o.playMatch(ctx, t.ID, RoundFinal, sf1Winner, sf2Winner)
	if err != nil {
		o.setState(TournamentAborted)
		return 0, err
	}

	o.setState(TournamentCompleted)
	log.Printf("tournament %d won by player %d", t.ID, champion)
	return champion, nil
}

// playMatch creates the game row for one round, waits for its result
// and records the winner in the bracket
func (o *Orchestrator) playMatch(ctx context.Context, tournamentID int64, round string, p1, p2 int64) (int64, error) {
	gameID, err := o.store.CreateGame(p1, p2, o.maxGames, time.Now())
	if err != nil {
		return 0, fmt.Errorf("%s: create game: %w", round, err)
	}
	log.Printf("tournament %d %s: player %d vs player %d (game %d)", tournamentID, round, p1, p2, gameID)

	winner, err := o.awaitWinner(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", round, err)
	}
	if err := o.store.UpdateMatchResult(tournamentID, round, winner); err != nil {
		return 0, fmt.Errorf("%s: record result: %w", round, err)
	}
	return winner, nil
}

// awaitWinner polls the game row until its end time is set. Gives up
// after winnerPollAttempts polls, so a vanished match cannot wedge the
// bracket forever.
func (o *Orchestrator) awaitWinner(ctx context.Context, gameID int64) (int64, error) {
	for i := 0; i < winnerPollAttempts; i++ {
		winner, done, err := o.store.GameWinner(gameID)
		if err != nil {
			return 0, fmt.Errorf("poll game %d: %w", gameID, err)
		}
		if done {
			return winner, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(winnerPollInterval):
		}
	}
	return 0, ErrWinnerTimeout
}
