package main

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// mockConn records everything a room sends to it
type mockConn struct {
	mu     sync.Mutex
	json   []interface{}
	binary [][]byte
	wantsB bool
}

func (m *mockConn) SendJSON(v interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.json = append(m.json, v)
	return true
}

func (m *mockConn) SendBinary(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binary = append(m.binary, data)
	return true
}

func (m *mockConn) WantsBinary() bool { return m.wantsB }

func (m *mockConn) messageTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var types []string
	for _, msg := range m.json {
		raw, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		var env struct {
			Type string `json:"type"`
		}
		json.Unmarshal(raw, &env)
		types = append(types, env.Type)
	}
	return types
}

func (m *mockConn) hasType(want string) bool {
	for _, tp := range m.messageTypes() {
		if tp == want {
			return true
		}
	}
	return false
}

func newTestRoom(maxScore int) (*Room, *mockConn, *mockConn) {
	lc, rc := &mockConn{}, &mockConn{}
	r := NewRoom("42", maxScore, lc, "alice")
	r.SeatRight(rc, "bob")
	return r, lc, rc
}

func TestSeatRightOnlyOnce(t *testing.T) {
	r := NewRoom("1", 5, &mockConn{}, "alice")
	if !r.SeatRight(&mockConn{}, "bob") {
		t.Fatal("first SeatRight failed")
	}
	if r.SeatRight(&mockConn{}, "carol") {
		t.Fatal("second SeatRight succeeded")
	}
	if !r.Full() {
		t.Error("room with both seats taken reports not full")
	}
}

func TestDefaultMaxScore(t *testing.T) {
	r := NewRoom("1", 0, &mockConn{}, "alice")
	if r.MaxScore() != 5 {
		t.Errorf("default max score = %d, want 5", r.MaxScore())
	}
}

func TestApplyInputFlipsIntentFlags(t *testing.T) {
	r, _, _ := newTestRoom(5)

	r.ApplyInput(SideLeft, "start", "ArrowUp")
	_, left, _ := r.Snapshot()
	if !left.MovingUp {
		t.Error("start ArrowUp did not set MovingUp")
	}

	r.ApplyInput(SideLeft, "stop", "ArrowUp")
	_, left, _ = r.Snapshot()
	if left.MovingUp {
		t.Error("stop ArrowUp did not clear MovingUp")
	}

	r.ApplyInput(SideRight, "start", "ArrowDown")
	_, _, right := r.Snapshot()
	if !right.MovingDown {
		t.Error("start ArrowDown did not set right MovingDown")
	}

	// Unknown side and direction are ignored
	r.ApplyInput(SideNone, "start", "ArrowUp")
	r.ApplyInput(SideLeft, "start", "ArrowLeft")
}

func TestStepBroadcastsSnapshot(t *testing.T) {
	r, lc, rc := newTestRoom(5)
	// Park the ball mid-court so the tick is a plain update
	r.mu.Lock()
	r.ball = Ball{X: CourtWidth / 2, Y: CourtHeight / 2, VX: 1, VY: 1, Radius: BallRadius}
	r.mu.Unlock()

	r.step()

	for _, c := range []*mockConn{lc, rc} {
		if !c.hasType(MsgUpdate) {
			t.Fatalf("no update broadcast, got %v", c.messageTypes())
		}
	}
}

func TestStepScoreUpdateOnPoint(t *testing.T) {
	r, lc, _ := newTestRoom(5)
	// Ball about to cross the left edge: right scores, game continues
	r.mu.Lock()
	r.ball = Ball{X: 1, Y: CourtHeight / 2, VX: -7, VY: 0, Radius: BallRadius}
	r.mu.Unlock()

	r.step()

	if !lc.hasType(MsgScoreUpdate) {
		t.Fatalf("no scoreUpdate after point, got %v", lc.messageTypes())
	}
	if lc.hasType(MsgUpdate) {
		t.Error("scoring tick also sent a snapshot")
	}
	_, _, right := r.Snapshot()
	if right.Score != 1 {
		t.Errorf("right score = %d, want 1", right.Score)
	}
}

func TestStepFinishesAtScoreLimit(t *testing.T) {
	r, lc, rc := newTestRoom(3)
	released := false
	r.onRelease = func(room *Room) {
		if room != r {
			t.Error("released a different room")
		}
		released = true
	}

	r.mu.Lock()
	r.left.Score = 2
	r.ball = Ball{X: CourtWidth - 1, Y: CourtHeight / 2, VX: 7, VY: 0, Radius: BallRadius}
	r.mu.Unlock()

	r.step()

	for _, c := range []*mockConn{lc, rc} {
		if !c.hasType(MsgEnd) {
			t.Fatalf("no end message at score limit, got %v", c.messageTypes())
		}
	}
	if !released {
		t.Error("finished room was not released")
	}

	// Further ticks are inert
	before := len(lc.messageTypes())
	r.step()
	if len(lc.messageTypes()) != before {
		t.Error("finished room kept broadcasting")
	}
}

func TestEndMessageNamesWinner(t *testing.T) {
	r, lc, _ := newTestRoom(1)
	r.mu.Lock()
	r.ball = Ball{X: 1, Y: CourtHeight / 2, VX: -7, VY: 0, Radius: BallRadius}
	r.mu.Unlock()

	r.step()

	lc.mu.Lock()
	defer lc.mu.Unlock()
	found := false
	for _, msg := range lc.json {
		if end, ok := msg.(EndMsg); ok {
			found = true
			if end.Message != "bob wins!" {
				t.Errorf("end message = %q, want bob wins!", end.Message)
			}
			if end.RightScore != 1 || end.LeftScore != 0 {
				t.Errorf("end scores = %d-%d, want 0-1", end.LeftScore, end.RightScore)
			}
		}
	}
	if !found {
		t.Fatal("no EndMsg sent")
	}
}

func TestHandleDisconnectNotifiesPeerAndReleases(t *testing.T) {
	r, _, rc := newTestRoom(5)
	released := false
	r.onRelease = func(*Room) { released = true }

	r.HandleDisconnect(SideLeft)

	if !rc.hasType(MsgOpponentLeft) {
		t.Fatalf("peer not told about disconnect, got %v", rc.messageTypes())
	}
	if !released {
		t.Error("room not released on disconnect")
	}

	// Second disconnect is a no-op
	before := len(rc.messageTypes())
	r.HandleDisconnect(SideRight)
	if len(rc.messageTypes()) != before {
		t.Error("second disconnect sent more messages")
	}
}

func TestStopIdempotent(t *testing.T) {
	r, _, _ := newTestRoom(5)
	r.Start()
	r.Stop()
	r.Stop()
	// A stopped room refuses to restart
	r.Start()
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running {
		t.Error("stopped room restarted")
	}
}

func TestStartAfterCountdown(t *testing.T) {
	old := CountdownDelay
	CountdownDelay = 20 * time.Millisecond
	defer func() { CountdownDelay = old }()

	r, lc, rc := newTestRoom(5)
	r.StartAfterCountdown()

	for _, c := range []*mockConn{lc, rc} {
		if !c.hasType(MsgCountdown) {
			t.Fatalf("no countdown message, got %v", c.messageTypes())
		}
		if !c.hasType(MsgScoreUpdate) {
			t.Fatalf("no initial score message, got %v", c.messageTypes())
		}
	}

	deadline := time.After(time.Second)
	for {
		r.mu.Lock()
		running := r.running
		r.mu.Unlock()
		if running {
			break
		}
		select {
		case <-deadline:
			t.Fatal("loop never started after countdown")
		case <-time.After(5 * time.Millisecond):
		}
	}
	r.Stop()
}

func TestCountdownCancelledByStop(t *testing.T) {
	old := CountdownDelay
	CountdownDelay = 20 * time.Millisecond
	defer func() { CountdownDelay = old }()

	r, _, _ := newTestRoom(5)
	r.StartAfterCountdown()
	r.Stop()

	time.Sleep(50 * time.Millisecond)
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running {
		t.Error("countdown fired after Stop")
	}
}

func TestResetForRematch(t *testing.T) {
	old := CountdownDelay
	CountdownDelay = time.Hour // keep the loop from starting during the test
	defer func() { CountdownDelay = old }()

	r, lc, _ := newTestRoom(1)
	reinserted := false
	r.onRelease = func(*Room) {}
	r.onReinsert = func(room *Room) bool {
		reinserted = true
		return true
	}

	// Play the match out
	r.mu.Lock()
	r.ball = Ball{X: 1, Y: CourtHeight / 2, VX: -7, VY: 0, Radius: BallRadius}
	r.mu.Unlock()
	r.step()

	if !r.ResetForRematch() {
		t.Fatal("rematch on finished room failed")
	}
	if !reinserted {
		t.Error("rematch did not reclaim the registry slot")
	}
	if !lc.hasType(MsgNextStarted) {
		t.Fatalf("no nextGameStarted, got %v", lc.messageTypes())
	}

	ball, left, right := r.Snapshot()
	if left.Score != 0 || right.Score != 0 {
		t.Errorf("scores not reset: %d-%d", left.Score, right.Score)
	}
	if ball.X != CourtWidth/2 || ball.Y != CourtHeight/2 {
		t.Errorf("ball not recentered: (%v, %v)", ball.X, ball.Y)
	}
	r.Stop()
}

func TestResetForRematchFailsWhenIDReused(t *testing.T) {
	r, _, _ := newTestRoom(1)
	r.onRelease = func(*Room) {}
	r.onReinsert = func(*Room) bool { return false }

	r.mu.Lock()
	r.ball = Ball{X: 1, Y: CourtHeight / 2, VX: -7, VY: 0, Radius: BallRadius}
	r.mu.Unlock()
	r.step()

	if r.ResetForRematch() {
		t.Error("rematch succeeded though the id was reused")
	}
}

func TestResetForRematchFailsOnStoppedRoom(t *testing.T) {
	r, _, _ := newTestRoom(5)
	r.Stop()
	if r.ResetForRematch() {
		t.Error("rematch succeeded on a stopped room")
	}
}

func TestBinarySnapshotForOptedInClient(t *testing.T) {
	lc := &mockConn{wantsB: true}
	rc := &mockConn{}
	r := NewRoom("7", 5, lc, "alice")
	r.SeatRight(rc, "bob")

	r.mu.Lock()
	r.ball = Ball{X: CourtWidth / 2, Y: CourtHeight / 2, VX: 1, VY: 1, Radius: BallRadius}
	r.mu.Unlock()
	r.step()

	lc.mu.Lock()
	nBin := len(lc.binary)
	var frame []byte
	if nBin > 0 {
		frame = lc.binary[0]
	}
	lc.mu.Unlock()
	if nBin == 0 {
		t.Fatal("opted-in client got no binary snapshot")
	}

	var upd BinaryUpdate
	if err := msgpack.Unmarshal(frame, &upd); err != nil {
		t.Fatalf("binary snapshot does not decode: %v", err)
	}
	if upd.Tick != 1 {
		t.Errorf("snapshot tick = %d, want 1", upd.Tick)
	}

	if !rc.hasType(MsgUpdate) {
		t.Error("JSON client got no snapshot")
	}
}
