package main

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"
)

const TickRate = 60 // physics ticks per second

var (
	TickDuration   = time.Second / TickRate
	CountdownDelay = 3500 * time.Millisecond // client-side 3..2..1 overlay
)

// RoomConn is the room's view of a player connection. Sends are
// best-effort: false means the message was dropped (closed or slow
// peer), which the room deliberately ignores for snapshots.
type RoomConn interface {
	SendJSON(v interface{}) bool
	SendBinary(data []byte) bool
	WantsBinary() bool
}

// Room owns one match's live state and its tick loop. The tick callback
// is the only mutator of ball/paddle positions; inbound input messages
// touch nothing but the paddle intent flags.
type Room struct {
	mu    sync.Mutex
	id    string
	court Court
	ball  Ball
	left  Paddle
	right Paddle

	leftConn  RoomConn
	rightConn RoomConn
	leftName  string
	rightName string

	maxScore  int
	startedAt time.Time
	tick      uint64
	rng       *rand.Rand

	running   bool
	finished  bool // score limit reached, id released, rematch possible
	stopped   bool // torn down for good
	stop      chan struct{}
	countdown *time.Timer
	results   *ResultWriter

	// registry hooks, called without holding the room lock
	onRelease  func(r *Room)
	onReinsert func(r *Room) bool
}

// NewRoom creates a room with the first (left) player seated
func NewRoom(id string, maxScore int, leftConn RoomConn, leftName string) *Room {
	if maxScore <= 0 {
		maxScore = 5
	}
	court := DefaultCourt()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Room{
		id:        id,
		court:     court,
		ball:      NewBall(court, rng),
		left:      NewPaddle(court),
		right:     NewPaddle(court),
		leftConn:  leftConn,
		leftName:  leftName,
		maxScore:  maxScore,
		startedAt: time.Now(),
		rng:       rng,
		stop:      make(chan struct{}),
	}
}

// ID returns the room's match id
func (r *Room) ID() string {
	return r.id
}

// MaxScore returns the score limit for this match
func (r *Room) MaxScore() int {
	return r.maxScore
}

// SeatRight seats the second player. Returns false if the seat is taken.
func (r *Room) SeatRight(conn RoomConn, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rightConn != nil {
		return false
	}
	r.rightConn = conn
	r.rightName = name
	return true
}

// Full reports whether both seats are taken
func (r *Room) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leftConn != nil && r.rightConn != nil
}

// Names returns both player names, left first
func (r *Room) Names() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leftName, r.rightName
}

// Peer returns the opposite side's connection, or nil
func (r *Room) Peer(side Side) RoomConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if side == SideLeft {
		return r.rightConn
	}
	return r.leftConn
}

// StartAfterCountdown announces the countdown to both players and arms
// the tick loop once it elapses. The timer is cancelled if the room is
// torn down first.
func (r *Room) StartAfterCountdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.finished || r.running || r.countdown != nil {
		return
	}
	r.sendBothLocked(ScoreUpdateMsg{
		Type:            MsgScoreUpdate,
		LeftScore:       r.left.Score,
		RightScore:      r.right.Score,
		LeftPlayerName:  r.leftName,
		RightPlayerName: r.rightName,
	})
	r.sendBothLocked(TypeOnlyMsg{Type: MsgCountdown})
	r.countdown = time.AfterFunc(CountdownDelay, func() {
		r.mu.Lock()
		r.countdown = nil
		r.mu.Unlock()
		r.Start()
	})
}

// Start arms the 60 Hz loop. Safe to call once; later calls are no-ops.
func (r *Room) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running || r.stopped || r.finished {
		return
	}
	r.running = true
	go r.run(r.stop)
}

func (r *Room) run(stop chan struct{}) {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.step()
		case <-stop:
			return
		}
	}
}

// step advances one tick: paddle motion, physics, terminal check, broadcast
func (r *Room) step() {
	r.mu.Lock()
	if r.stopped || r.finished {
		r.mu.Unlock()
		return
	}
	r.tick++

	MovePaddle(&r.left, r.court)
	MovePaddle(&r.right, r.court)

	finished := false
	scored := Advance(&r.ball, &r.left, &r.right, r.court, r.rng)
	switch {
	case scored != SideNone && r.left.Score+r.right.Score >= r.maxScore:
		r.finishLocked()
		finished = true
	case scored != SideNone:
		r.sendBothLocked(ScoreUpdateMsg{
			Type:            MsgScoreUpdate,
			LeftScore:       r.left.Score,
			RightScore:      r.right.Score,
			Message:         fmt.Sprintf("Score update: %d - %d", r.left.Score, r.right.Score),
			LeftPlayerName:  r.leftName,
			RightPlayerName: r.rightName,
		})
	default:
		r.broadcastSnapshotLocked()
	}
	r.mu.Unlock()

	if finished && r.onRelease != nil {
		r.onRelease(r)
	}
}

// ApplyInput flips one paddle's movement intent. The effect is visible
// on the next tick; last writer wins.
func (r *Room) ApplyInput(side Side, action, direction string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var p *Paddle
	switch side {
	case SideLeft:
		p = &r.left
	case SideRight:
		p = &r.right
	default:
		return
	}

	start := action == "start"
	switch direction {
	case "ArrowUp":
		p.MovingUp = start
	case "ArrowDown":
		p.MovingDown = start
	}
}

// finishLocked handles the score limit being reached: halt the loop,
// tell both players, queue result persistence. The caller releases the
// registry slot afterwards; the room object stays usable for a rematch.
func (r *Room) finishLocked() {
	winner := r.leftName
	if r.right.Score > r.left.Score {
		winner = r.rightName
	}
	r.sendBothLocked(EndMsg{
		Type:            MsgEnd,
		Message:         fmt.Sprintf("%s wins!", winner),
		LeftScore:       r.left.Score,
		RightScore:      r.right.Score,
		LeftPlayerName:  r.leftName,
		RightPlayerName: r.rightName,
	})
	log.Printf("game %s ended %d-%d", r.id, r.left.Score, r.right.Score)

	if r.results != nil {
		r.results.MatchEnded(r.id, r.left.Score, r.right.Score, time.Since(r.startedAt))
	}
	r.finished = true
	r.haltLoopLocked()
}

// HandleDisconnect tears the room down when a player's socket drops
// mid-match. No winner is recorded for an abnormal end; the remaining
// player is notified and the room is released.
func (r *Room) HandleDisconnect(side Side) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}

	peer := r.rightConn
	if side == SideRight {
		peer = r.leftConn
	}
	if peer != nil {
		peer.SendJSON(NoticeMsg{Type: MsgOpponentLeft, Message: "Your opponent has left the game"})
	}
	log.Printf("game %s: player disconnected, room torn down", r.id)
	r.stopLocked()
	r.mu.Unlock()

	if r.onRelease != nil {
		r.onRelease(r)
	}
}

// ResetForRematch zeroes scores, re-centers everything and re-arms the
// countdown. A finished room takes its registry slot back first;
// returns false if the room is dead or the id was reused.
func (r *Room) ResetForRematch() bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	wasFinished := r.finished
	r.mu.Unlock()

	if wasFinished {
		if r.onReinsert == nil || !r.onReinsert(r) {
			return false
		}
	}

	r.mu.Lock()
	r.finished = false
	r.haltLoopLocked()
	r.left = NewPaddle(r.court)
	r.right = NewPaddle(r.court)
	ResetBall(&r.ball, r.court, r.rng)
	r.startedAt = time.Now()
	r.tick = 0
	r.sendBothLocked(NextStartedMsg{
		Type:       MsgNextStarted,
		Message:    "New game started!",
		LeftScore:  0,
		RightScore: 0,
	})
	r.mu.Unlock()

	r.StartAfterCountdown()
	return true
}

// Stop halts the tick loop and cancels any pending countdown. Idempotent.
func (r *Room) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Room) stopLocked() {
	if r.stopped {
		return
	}
	r.stopped = true
	if r.countdown != nil {
		r.countdown.Stop()
		r.countdown = nil
	}
	r.haltLoopLocked()
}

// haltLoopLocked stops the tick goroutine, leaving the room reusable
// (a rematch re-arms with a fresh channel)
func (r *Room) haltLoopLocked() {
	if r.running {
		r.running = false
		close(r.stop)
		r.stop = make(chan struct{})
	}
}

func (r *Room) broadcastSnapshotLocked() {
	msg := UpdateMsg{
		Type:       MsgUpdate,
		Ball:       BallState{X: r.ball.X, Y: r.ball.Y},
		Paddles:    PaddlesState{LeftY: r.left.Y, RightY: r.right.Y},
		LeftScore:  r.left.Score,
		RightScore: r.right.Score,
	}
	var packed []byte
	for _, conn := range []RoomConn{r.leftConn, r.rightConn} {
		if conn == nil {
			continue
		}
		if conn.WantsBinary() {
			if packed == nil {
				packed = encodeBinaryUpdate(msg, r.tick)
			}
			if packed != nil {
				conn.SendBinary(packed)
				continue
			}
		}
		conn.SendJSON(msg)
	}
}

func (r *Room) sendBothLocked(msg interface{}) {
	if r.leftConn != nil {
		r.leftConn.SendJSON(msg)
	}
	if r.rightConn != nil {
		r.rightConn.SendJSON(msg)
	}
}

// Snapshot returns a copy of the current state, for tests and debugging
func (r *Room) Snapshot() (Ball, Paddle, Paddle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ball, r.left, r.right
}
