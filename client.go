package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120
	maxNameLen        = 24
)

// endpoint distinguishes which WebSocket route a connection came in on
type endpoint int

const (
	epGateway endpoint = iota
	epMatchmaking
	epGame
)

// Client represents one WebSocket connection on any endpoint
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	ep         endpoint

	// gateway
	id string

	// matchmaking
	playerID   int64
	username   string
	difficulty string

	// game socket
	gameID string
	side   Side
	room   *Room
	binary bool

	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a client for the given endpoint
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, ep endpoint) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		ep:         ep,
	}
}

// WantsBinary reports whether this client asked for msgpack snapshots
func (c *Client) WantsBinary() bool {
	return c.binary
}

// ReadPump reads messages from the WebSocket connection until it drops,
// then runs the endpoint's cleanup exactly once
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.cleanup()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// cleanup deregisters the connection from whatever owns it. All paths
// here tolerate being reached when the client was never registered.
func (c *Client) cleanup() {
	switch c.ep {
	case epGateway:
		if c.id != "" {
			c.hub.RemoveClient(c.id)
		}
	case epMatchmaking:
		c.hub.waiting.HandleDisconnect(c)
	case epGame:
		if c.room != nil {
			c.room.HandleDisconnect(c.side)
		}
	}
}

// WritePump writes queued messages and pings to the connection.
// Messages prefixed with the 0xFF marker go out as binary frames.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON marshals and queues a message. False means it was dropped.
func (c *Client) SendJSON(msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return false
	}
	return c.SendRaw(data)
}

// SendRaw queues pre-marshaled bytes as a text message. Delivery is
// best-effort: a full buffer or closed channel drops the message.
func (c *Client) SendRaw(data []byte) (sent bool) {
	defer func() { recover() }()
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendBinary queues bytes as a binary WebSocket frame, prefixed with
// the 0xFF marker so WritePump can tell it from text
func (c *Client) SendBinary(data []byte) (sent bool) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// handleMessage decodes one inbound message and routes it by endpoint
func (c *Client) handleMessage(raw []byte) {
	var env Inbound
	if err := json.Unmarshal(raw, &env); err != nil {
		return // malformed messages are dropped, not answered
	}
	if env.Type == "" {
		return
	}

	switch c.ep {
	case epGateway:
		c.handleGatewayMessage(env)
	case epMatchmaking:
		c.handleMatchmakingMessage(env)
	case epGame:
		c.handleGameMessage(env)
	}
}

// handleGatewayMessage serves the generic pub/sub endpoint. Unknown
// types fall through silently — forward compatibility, not an error.
func (c *Client) handleGatewayMessage(env Inbound) {
	switch env.Type {
	case MsgPing:
		c.SendJSON(TypeOnlyMsg{Type: MsgPong})
	case MsgBroadcast:
		c.hub.Broadcast(RelayMsg{Type: MsgBroadcast, From: c.id, Payload: env.Payload}, c.id)
	case MsgSendTo:
		if env.To != "" {
			c.hub.SendTo(env.To, RelayMsg{Type: MsgMessage, From: c.id, Payload: env.Payload})
		}
	case MsgInput:
		c.hub.Broadcast(RelayMsg{Type: MsgInput, From: c.id, Payload: env.Payload}, c.id)
	}
}

func (c *Client) handleMatchmakingMessage(env Inbound) {
	switch env.Type {
	case MsgJoin:
		if env.Username == "" {
			c.SendJSON(ErrorMsg{Type: MsgError, Message: "Invalid player data"})
			return
		}
		name := env.Username
		if len(name) > maxNameLen {
			name = name[:maxNameLen]
		}
		c.username = name
		c.difficulty = env.Difficulty
		if c.playerID == 0 {
			c.playerID = env.ID
		}
		c.hub.waiting.Join(c)
	case MsgSelectGames:
		c.hub.waiting.SelectMaxGames(c, env.MaxGames)
	case MsgConfirmReady:
		c.hub.waiting.ConfirmReady(c)
	default:
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Unknown message type"})
	}
}

func (c *Client) handleGameMessage(env Inbound) {
	switch env.Type {
	case MsgJoin:
		c.handleGameJoin(env)
	case MsgMove:
		if c.room != nil {
			c.room.ApplyInput(c.side, env.Action, env.Direction)
		}
	case MsgEnd:
		c.handleGameEnd(env)
	case MsgInviteNext:
		c.handleInviteNext()
	case MsgAcceptNext:
		c.handleAcceptNext()
	case MsgDeclineNext:
		c.handleDeclineNext()
	default:
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Unknown message type"})
	}
}

func (c *Client) handleGameJoin(env Inbound) {
	if c.room != nil {
		return // already seated
	}
	name := env.PlayerName
	if name == "" {
		name = "Player"
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	c.username = name

	room, side, err := c.hub.rooms.Join(c.gameID, env.MaxScore, c, name)
	if err != nil {
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Room full"})
		c.conn.Close()
		return
	}
	c.room = room
	c.side = side

	c.SendJSON(JoinAckMsg{Type: MsgJoin, PlayerName: name, MaxScore: room.MaxScore()})
	c.SendJSON(AssignSideMsg{Type: MsgAssignSide, Side: side.String()})
	log.Printf("player %s joined game %s as %s", name, c.gameID, side)

	if side == SideRight {
		room.StartAfterCountdown()
	}
}

// handleGameEnd is the client-initiated end: tell the opponent, tear
// the room down
func (c *Client) handleGameEnd(env Inbound) {
	if c.room == nil {
		return
	}
	if peer := c.room.Peer(c.side); peer != nil {
		peer.SendJSON(NoticeMsg{Type: MsgEnd, Message: env.Message})
	}
	c.hub.rooms.Remove(c.gameID)
	c.room = nil
	log.Printf("game %s ended by player", c.gameID)
}

func (c *Client) handleInviteNext() {
	if c.room == nil {
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Game room not found"})
		return
	}
	peer := c.room.Peer(c.side)
	if peer == nil || !peer.SendJSON(NextInviteMsg{Type: MsgNextInvite, From: c.username}) {
		c.SendJSON(NoticeMsg{Type: MsgOpponentLeft, Message: "Your opponent has left the game"})
		return
	}
	c.SendJSON(NoticeMsg{Type: MsgWaitingAnswer, Message: "Waiting for opponent to accept..."})
}

func (c *Client) handleAcceptNext() {
	if c.room == nil {
		c.SendJSON(ErrorMsg{Type: MsgError, Message: "Game room not found"})
		return
	}
	if c.room.Peer(c.side) == nil {
		c.SendJSON(NoticeMsg{Type: MsgOpponentLeft, Message: "Your opponent has left the game"})
		return
	}
	c.room.ResetForRematch()
}

func (c *Client) handleDeclineNext() {
	if c.room == nil {
		return
	}
	if peer := c.room.Peer(c.side); peer != nil {
		peer.SendJSON(NoticeMsg{Type: MsgNextDeclined, Message: "Opponent declined to play again"})
	}
}
