package main

import (
	"encoding/json"
	"sync"
)

const (
	maxConnsPerIP = 10
	maxTotalConns = 1000
)

// Hub owns everything a connection handler needs: the gateway client
// registry, the room registry, the shared waiting room and the
// persistence collaborators. One hub per process, created at startup
// and passed by handle — never a package-level global.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // gateway clients by id

	// Connection limiting (accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int

	rooms    *Registry
	waiting  *WaitingRoom
	results  *ResultWriter
	db       *DB
	identity *Identity
}

// NewHub wires the hub's registries and collaborators. db may be nil
// in tests that don't touch persistence.
func NewHub(db *DB) *Hub {
	results := NewResultWriter(storeOrNil(db))
	h := &Hub{
		clients:  make(map[string]*Client),
		ipConns:  make(map[string]int),
		rooms:    NewRegistry(results),
		results:  results,
		db:       db,
		identity: NewIdentity(db),
	}
	h.waiting = NewWaitingRoom(gameStoreOrNil(db))
	return h
}

func storeOrNil(db *DB) ResultStore {
	if db == nil {
		return nil
	}
	return db
}

func gameStoreOrNil(db *DB) GameCreator {
	if db == nil {
		return nil
	}
	return db
}

// Shutdown tears down rooms and drains pending result writes
func (h *Hub) Shutdown() {
	h.rooms.Shutdown()
	h.results.Stop()
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// AddClient registers a gateway client under its id
func (h *Hub) AddClient(id string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = c
}

// RemoveClient deregisters a gateway client. Idempotent: close and
// error paths both call it, in any order.
func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// SendTo delivers a message to one client. Returns false when the
// target is absent or its buffer is full; never an error.
func (h *Hub) SendTo(id string, msg interface{}) bool {
	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	return c.SendJSON(msg)
}

// Broadcast fans a message out to every gateway client except the
// sender. Send failures on individual clients are discarded so a slow
// peer cannot stall delivery to the rest.
func (h *Hub) Broadcast(msg interface{}, excludeID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == excludeID {
			continue
		}
		c.SendRaw(data)
	}
}

// ClientIDs returns the ids of all connected gateway clients
func (h *Hub) ClientIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of connected gateway clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
