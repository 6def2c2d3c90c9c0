// Package room tracks which connections are subscribed to which chat rooms.
// Membership is per-connection, not per-user: a user with two tabs only
// receives group broadcasts on tabs that joined the room. Direct (1:1)
// delivery never consults this package — it fans out to every live
// connection of the recipient via the presence registry.
package room

import "sync"

// Manager is a goroutine-safe room -> connection-set index with a reverse
// index for O(1) cleanup on disconnect. Both maps mutate under one mutex so
// they can never disagree.
type Manager struct {
	mu     sync.RWMutex
	byRoom map[string]map[string]struct{} // room_id -> set of conn IDs
	byConn map[string]map[string]struct{} // conn_id -> set of room IDs
}

// NewManager creates an empty Manager ready for use.
func NewManager() *Manager {
	return &Manager{
		byRoom: make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join subscribes a connection to a room. Joining a room the connection is
// already in is a no-op.
func (m *Manager) Join(connID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns, ok := m.byRoom[roomID]
	if !ok {
		conns = make(map[string]struct{})
		m.byRoom[roomID] = conns
	}
	conns[connID] = struct{}{}

	rooms, ok := m.byConn[connID]
	if !ok {
		rooms = make(map[string]struct{})
		m.byConn[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

// Leave unsubscribes a connection from a room. Empty room entries are
// deleted so byRoom never accumulates dead rooms.
func (m *Manager) Leave(connID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(connID, roomID)
}

// LeaveAll removes a connection from every room it joined. Invoked exactly
// once when the connection closes. Returns the rooms that were left.
func (m *Manager) LeaveAll(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms, ok := m.byConn[connID]
	if !ok {
		return nil
	}
	left := make([]string, 0, len(rooms))
	for roomID := range rooms {
		left = append(left, roomID)
		m.leaveLocked(connID, roomID)
	}
	return left
}

func (m *Manager) leaveLocked(connID, roomID string) {
	if conns, ok := m.byRoom[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(m.byRoom, roomID)
		}
	}
	if rooms, ok := m.byConn[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.byConn, connID)
		}
	}
}

// BroadcastTargets returns a snapshot of the connection IDs currently joined
// to the room. The caller writes to each target outside the manager's lock.
func (m *Manager) BroadcastTargets(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns, ok := m.byRoom[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// Rooms returns a snapshot of the room IDs a connection has joined.
func (m *Manager) Rooms(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms, ok := m.byConn[connID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rooms))
	for id := range rooms {
		out = append(out, id)
	}
	return out
}

// Contains reports whether a connection is currently joined to the room.
func (m *Manager) Contains(connID, roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byRoom[roomID][connID]
	return ok
}

// RoomCount returns the number of rooms with at least one joined connection.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byRoom)
}
