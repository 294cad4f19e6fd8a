package main

import (
	"errors"
	"sync"
)

const maxRooms = 100

var (
	ErrRoomExists   = errors.New("room id already active")
	ErrRoomFull     = errors.New("room full")
	ErrTooManyRooms = errors.New("too many active rooms")
)

// Registry maps a match id to its live room. At most one room exists
// per id; insert and remove may race from the matchmaking and
// termination paths, so every access goes through the mutex.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	results *ResultWriter
}

// NewRegistry creates an empty room registry. The result writer is
// handed to every room it creates; nil disables persistence.
func NewRegistry(results *ResultWriter) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		results: results,
	}
}

// Create makes a room for the given match id with the first player
// seated on the left. Fails with ErrRoomExists if the id is live.
func (reg *Registry) Create(id string, maxScore int, conn RoomConn, name string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.rooms[id]; ok {
		return nil, ErrRoomExists
	}
	if len(reg.rooms) >= maxRooms {
		return nil, ErrTooManyRooms
	}

	room := NewRoom(id, maxScore, conn, name)
	room.results = reg.results
	room.onRelease = reg.release
	room.onReinsert = reg.reinsert
	reg.rooms[id] = room
	return room, nil
}

// Join seats a player in the match's room, creating it on first join.
// Returns the room and the assigned side.
func (reg *Registry) Join(id string, maxScore int, conn RoomConn, name string) (*Room, Side, error) {
	reg.mu.RLock()
	room := reg.rooms[id]
	reg.mu.RUnlock()

	if room == nil {
		created, err := reg.Create(id, maxScore, conn, name)
		if err == nil {
			return created, SideLeft, nil
		}
		if !errors.Is(err, ErrRoomExists) {
			return nil, SideNone, err
		}
		// lost the create race; fall through to seat on the right
		reg.mu.RLock()
		room = reg.rooms[id]
		reg.mu.RUnlock()
		if room == nil {
			return nil, SideNone, ErrRoomFull
		}
	}

	if !room.SeatRight(conn, name) {
		return nil, SideNone, ErrRoomFull
	}
	return room, SideRight, nil
}

// Get returns the room for the id, or nil
func (reg *Registry) Get(id string) *Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[id]
}

// Remove stops the room's timer and drops it. Idempotent: removing an
// absent id is a no-op.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	room := reg.rooms[id]
	delete(reg.rooms, id)
	reg.mu.Unlock()

	if room != nil {
		room.Stop()
	}
}

// release drops the map entry for a room that finished or stopped
// itself. Rooms call this through their onRelease hook. The identity
// check guards against releasing a fresh room that reused the id.
func (reg *Registry) release(room *Room) {
	reg.mu.Lock()
	if reg.rooms[room.id] == room {
		delete(reg.rooms, room.id)
	}
	reg.mu.Unlock()
}

// reinsert puts a finished room back under its id for a rematch.
// Fails when another room claimed the id in the meantime.
func (reg *Registry) reinsert(room *Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[room.id]; ok {
		return false
	}
	if len(reg.rooms) >= maxRooms {
		return false
	}
	reg.rooms[room.id] = room
	return true
}

// Count returns the number of live rooms
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Shutdown stops every room, for server teardown
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	for _, room := range rooms {
		room.Stop()
	}
}
