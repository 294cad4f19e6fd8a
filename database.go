package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// GameRow represents a match record
type GameRow struct {
	ID           int64
	Player1ID    int64
	Player2ID    int64
	MaxGames     int
	ScorePlayer1 int
	ScorePlayer2 int
}

// GamePlayers holds the two participants of a match
type GamePlayers struct {
	Player1ID int64
	Player2ID int64
}

// Tournament represents a 4-player single-elimination bracket
type Tournament struct {
	ID               int64
	Name             string
	Players          [4]int64
	Semifinal1Winner int64
	Semifinal2Winner int64
	FinalPlayer1     int64
	FinalPlayer2     int64
	Winner           int64
}

// Tournament round names, also the values stored by UpdateMatchResult
const (
	RoundSemifinal1 = "semifinal1"
	RoundSemifinal2 = "semifinal2"
	RoundFinal      = "final"
)

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		game_id INTEGER PRIMARY KEY AUTOINCREMENT,
		player1_id INTEGER NOT NULL,
		player2_id INTEGER NOT NULL,
		max_games INTEGER NOT NULL DEFAULT 5,
		score_player1 INTEGER NOT NULL DEFAULT 0,
		score_player2 INTEGER NOT NULL DEFAULT 0,
		time_started DATETIME NOT NULL,
		time_ended DATETIME
	);

	CREATE TABLE IF NOT EXISTS match_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		game_id INTEGER NOT NULL REFERENCES games(game_id),
		user_id INTEGER NOT NULL,
		opponent_id INTEGER NOT NULL,
		user_score INTEGER NOT NULL,
		opponent_score INTEGER NOT NULL,
		result TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		date_played DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_stats (
		user_id INTEGER PRIMARY KEY,
		games_played INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		losses INTEGER NOT NULL DEFAULT 0,
		points_scored INTEGER NOT NULL DEFAULT 0,
		points_conceded INTEGER NOT NULL DEFAULT 0,
		win_rate REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS tournaments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		player1_id INTEGER NOT NULL,
		player2_id INTEGER NOT NULL,
		player3_id INTEGER NOT NULL,
		player4_id INTEGER NOT NULL,
		semifinal1_winner_id INTEGER,
		semifinal2_winner_id INTEGER,
		final_player1_id INTEGER,
		final_player2_id INTEGER,
		winner_id INTEGER,
		size INTEGER NOT NULL DEFAULT 4,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_history_user ON match_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_games_players ON games(player1_id, player2_id);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreateGame inserts a new match with zeroed scores and returns its id
func (db *DB) CreateGame(player1ID, player2ID int64, maxGames int, startedAt time.Time) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO games (player1_id, player2_id, max_games, score_player1, score_player2, time_started)
		 VALUES (?, ?, ?, 0, 0, ?)`,
		player1ID, player2ID, maxGames, startedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// EndGame records the final scores of a match
func (db *DB) EndGame(gameID int64, score1, score2 int) error {
	_, err := db.conn.Exec(
		`UPDATE games SET score_player1 = ?, score_player2 = ?, time_ended = CURRENT_TIMESTAMP
		 WHERE game_id = ?`,
		score1, score2, gameID,
	)
	return err
}

// GetPlayersFromGame returns the two participant ids of a match
func (db *DB) GetPlayersFromGame(gameID int64) (GamePlayers, error) {
	var gp GamePlayers
	err := db.conn.QueryRow(
		"SELECT player1_id, player2_id FROM games WHERE game_id = ?", gameID,
	).Scan(&gp.Player1ID, &gp.Player2ID)
	if err == sql.ErrNoRows {
		return gp, fmt.Errorf("game %d not found", gameID)
	}
	return gp, err
}

// GameWinner returns the winner of a finished match. The second return
// is false while the match is still open.
func (db *DB) GameWinner(gameID int64) (int64, bool, error) {
	var g GameRow
	var ended sql.NullTime
	err := db.conn.QueryRow(
		`SELECT game_id, player1_id, player2_id, max_games, score_player1, score_player2, time_ended
		 FROM games WHERE game_id = ?`, gameID,
	).Scan(&g.ID, &g.Player1ID, &g.Player2ID, &g.MaxGames, &g.ScorePlayer1, &g.ScorePlayer2, &ended)
	if err == sql.ErrNoRows {
		return 0, false, fmt.Errorf("game %d not found", gameID)
	}
	if err != nil {
		return 0, false, err
	}
	if !ended.Valid {
		return 0, false, nil
	}
	if g.ScorePlayer1 >= g.ScorePlayer2 {
		return g.Player1ID, true, nil
	}
	return g.Player2ID, true, nil
}

// CreateMatchHistory writes one player's view of a finished match
func (db *DB) CreateMatchHistory(gameID, userID, opponentID int64, userScore, opponentScore int, duration float64) error {
	result := "loss"
	if userScore > opponentScore {
		result = "win"
	}
	_, err := db.conn.Exec(
		`INSERT INTO match_history (game_id, user_id, opponent_id, user_score, opponent_score, result, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		gameID, userID, opponentID, userScore, opponentScore, result, duration,
	)
	return err
}

// UpdateUserStatsAfterGame bumps both players' aggregate counters
func (db *DB) UpdateUserStatsAfterGame(gameID, player1ID, player2ID int64, score1, score2 int) error {
	type entry struct {
		id       int64
		won      int
		scored   int
		conceded int
	}
	p1 := entry{id: player1ID, scored: score1, conceded: score2}
	p2 := entry{id: player2ID, scored: score2, conceded: score1}
	if score1 > score2 {
		p1.won = 1
	} else {
		p2.won = 1
	}

	for _, e := range []entry{p1, p2} {
		_, err := db.conn.Exec(
			`INSERT INTO user_stats (user_id, games_played, wins, losses, points_scored, points_conceded)
			 VALUES (?, 1, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
				games_played = games_played + 1,
				wins = wins + excluded.wins,
				losses = losses + excluded.losses,
				points_scored = points_scored + excluded.points_scored,
				points_conceded = points_conceded + excluded.points_conceded`,
			e.id, e.won, 1-e.won, e.scored, e.conceded,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// SyncTeamStats recomputes a player's derived win rate from counters
func (db *DB) SyncTeamStats(userID int64) error {
	_, err := db.conn.Exec(
		`UPDATE user_stats
		 SET win_rate = CASE WHEN games_played > 0 THEN CAST(wins AS REAL) / games_played ELSE 0 END
		 WHERE user_id = ?`,
		userID,
	)
	return err
}

// CreateTournament inserts a 4-player bracket with its seed pairings
func (db *DB) CreateTournament(name string, playerIDs [4]int64) (*Tournament, error) {
	res, err := db.conn.Exec(
		`INSERT INTO tournaments (name, player1_id, player2_id, player3_id, player4_id, size)
		 VALUES (?, ?, ?, ?, ?, 4)`,
		name, playerIDs[0], playerIDs[1], playerIDs[2], playerIDs[3],
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetTournamentByID(id)
}

// GetTournamentByID loads a tournament row
func (db *DB) GetTournamentByID(id int64) (*Tournament, error) {
	t := &Tournament{}
	var sf1w, sf2w, fp1, fp2, winner sql.NullInt64
	err := db.conn.QueryRow(
		`SELECT id, name, player1_id, player2_id, player3_id, player4_id,
			semifinal1_winner_id, semifinal2_winner_id,
			final_player1_id, final_player2_id, winner_id
		 FROM tournaments WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Players[0], &t.Players[1], &t.Players[2], &t.Players[3],
		&sf1w, &sf2w, &fp1, &fp2, &winner)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tournament %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	t.Semifinal1Winner = sf1w.Int64
	t.Semifinal2Winner = sf2w.Int64
	t.FinalPlayer1 = fp1.Int64
	t.FinalPlayer2 = fp2.Int64
	t.Winner = winner.Int64
	return t, nil
}

// UpdateMatchResult records a round winner. Each winner column is
// written exactly once per tournament; after semifinal2 the final
// pairing columns are fixed from the two semifinal winners.
func (db *DB) UpdateMatchResult(tournamentID int64, round string, winnerID int64) error {
	var field string
	switch round {
	case RoundSemifinal1:
		field = "semifinal1_winner_id"
	case RoundSemifinal2:
		field = "semifinal2_winner_id"
	case RoundFinal:
		field = "winner_id"
	default:
		return fmt.Errorf("unknown round %q", round)
	}

	_, err := db.conn.Exec(
		"UPDATE tournaments SET "+field+" = ? WHERE id = ? AND "+field+" IS NULL",
		winnerID, tournamentID,
	)
	if err != nil {
		return err
	}

	if round == RoundSemifinal2 {
		t, err := db.GetTournamentByID(tournamentID)
		if err != nil {
			return err
		}
		if t.Semifinal1Winner != 0 && winnerID != 0 {
			_, err = db.conn.Exec(
				"UPDATE tournaments SET final_player1_id = ?, final_player2_id = ? WHERE id = ?",
				t.Semifinal1Winner, winnerID, tournamentID,
			)
			return err
		}
	}
	return nil
}

// GetSetting reads a settings value, empty string if absent
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetSetting upserts a settings value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}
