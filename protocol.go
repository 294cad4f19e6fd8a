package main

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Client -> Server message types
const (
	MsgPing         = "ping"
	MsgBroadcast    = "broadcast"
	MsgSendTo       = "sendTo"
	MsgInput        = "input"
	MsgJoin         = "join"           // matchmaking + game socket
	MsgSelectGames  = "selectMaxGames" // matchmaking: player 1 picks match length
	MsgConfirmReady = "confirmReady"   // matchmaking: ready handshake
	MsgMove         = "move"           // game socket: paddle intent
	MsgEnd          = "end"            // game socket: client-initiated end
	MsgInviteNext   = "inviteNext"     // game socket: rematch invite
	MsgAcceptNext   = "acceptNext"
	MsgDeclineNext  = "declineNext"
)

// Server -> Client message types
const (
	MsgConnected     = "connected"
	MsgPong          = "pong"
	MsgMessage       = "message" // sendTo delivery
	MsgError         = "error"
	MsgChooseGames   = "chooseMaxGames"
	MsgWaitingSelect = "waitingForGameSelection"
	MsgWaitingOpp    = "waitingForOpponent"
	MsgReady         = "ready"
	MsgStart         = "start"
	MsgAssignSide    = "assignSide"
	MsgCountdown     = "startCountdown"
	MsgUpdate        = "update"
	MsgScoreUpdate   = "scoreUpdate"
	MsgOpponentLeft  = "opponentLeft"
	MsgNextInvite    = "nextGameInvite"
	MsgWaitingAnswer = "waitingForResponse"
	MsgNextStarted   = "nextGameStarted"
	MsgNextDeclined  = "nextGameDeclined"
)

// Inbound is the single decode shape for all client messages. The type
// field is a sibling of the payload fields on the wire, so one pass over
// this struct covers every endpoint; the dispatch switches in client.go
// are the closed set of types the server understands. Messages with an
// unrecognized type are dropped, not answered.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	To      string          `json:"to,omitempty"`

	// matchmaking join / selectMaxGames
	ID         int64  `json:"id,omitempty"`
	Username   string `json:"username,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
	MaxGames   int    `json:"maxGames,omitempty"`

	// game socket join / move / end
	PlayerName string `json:"playerName,omitempty"`
	MaxScore   int    `json:"maxScore,omitempty"`
	Action     string `json:"action,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ConnectedMsg acknowledges a gateway connection with the assigned id
type ConnectedMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RelayMsg carries broadcast / sendTo / input payloads between clients
type RelayMsg struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// TypeOnlyMsg covers pong, chooseMaxGames, startCountdown and friends
type TypeOnlyMsg struct {
	Type string `json:"type"`
}

// ErrorMsg reports a handled failure back to the sender
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ReadyMsg tells both waiting players the match is set up
type ReadyMsg struct {
	Type     string `json:"type"`
	Opponent string `json:"opponent"`
	MaxGames int    `json:"maxGames"`
}

// StartMsg tells both players their confirmed match may begin
type StartMsg struct {
	Type       string `json:"type"`
	Opponent   string `json:"opponent"`
	OpponentID int64  `json:"opponent_id"`
	GameID     int64  `json:"game_id"`
	MaxGames   int    `json:"maxGames"`
}

// JoinAckMsg echoes a game-socket join back to the joining player
type JoinAckMsg struct {
	Type       string `json:"type"`
	PlayerName string `json:"playerName"`
	MaxScore   int    `json:"maxScore"`
}

// AssignSideMsg tells a player which paddle they control
type AssignSideMsg struct {
	Type string `json:"type"`
	Side string `json:"side"`
}

// BallState is the ball part of a snapshot
type BallState struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PaddlesState is the paddle part of a snapshot
type PaddlesState struct {
	LeftY  float64 `json:"leftY"`
	RightY float64 `json:"rightY"`
}

// UpdateMsg is the per-tick state snapshot
type UpdateMsg struct {
	Type       string       `json:"type"`
	Ball       BallState    `json:"ball"`
	Paddles    PaddlesState `json:"paddles"`
	LeftScore  int          `json:"leftScore"`
	RightScore int          `json:"rightScore"`
}

// BinaryUpdate is the msgpack form of UpdateMsg, sent to clients that
// opted into binary snapshots with ?binary=1
type BinaryUpdate struct {
	BallX      float64 `msgpack:"bx"`
	BallY      float64 `msgpack:"by"`
	LeftY      float64 `msgpack:"ly"`
	RightY     float64 `msgpack:"ry"`
	LeftScore  int     `msgpack:"ls"`
	RightScore int     `msgpack:"rs"`
	Tick       uint64  `msgpack:"t"`
}

// encodeBinaryUpdate packs a snapshot with msgpack. Returns nil on
// encode failure, in which case the caller falls back to JSON.
func encodeBinaryUpdate(msg UpdateMsg, tick uint64) []byte {
	data, err := msgpack.Marshal(BinaryUpdate{
		BallX:      msg.Ball.X,
		BallY:      msg.Ball.Y,
		LeftY:      msg.Paddles.LeftY,
		RightY:     msg.Paddles.RightY,
		LeftScore:  msg.LeftScore,
		RightScore: msg.RightScore,
		Tick:       tick,
	})
	if err != nil {
		return nil
	}
	return data
}

// ScoreUpdateMsg is broadcast after each non-terminal point
type ScoreUpdateMsg struct {
	Type            string `json:"type"`
	LeftScore       int    `json:"leftScore"`
	RightScore      int    `json:"rightScore"`
	Message         string `json:"message,omitempty"`
	LeftPlayerName  string `json:"leftPlayerName"`
	RightPlayerName string `json:"rightPlayerName"`
}

// EndMsg terminates a match for both players
type EndMsg struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	LeftScore       int    `json:"leftScore"`
	RightScore      int    `json:"rightScore"`
	LeftPlayerName  string `json:"leftPlayerName"`
	RightPlayerName string `json:"rightPlayerName"`
}

// NoticeMsg carries opponentLeft / waitingForResponse / nextGameDeclined
type NoticeMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NextInviteMsg forwards a rematch invite to the opponent
type NextInviteMsg struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// NextStartedMsg confirms an accepted rematch with reset scores
type NextStartedMsg struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	LeftScore  int    `json:"leftScore"`
	RightScore int    `json:"rightScore"`
}
