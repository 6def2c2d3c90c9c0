package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection lifecycle states. The HTTP upgrade handshake is the implicit
// "connecting" phase; a Connection object only exists from Open onward.
const (
	StateOpen       int32 = iota + 1 // transport established, no user bound
	StateRegistered                  // bound to a user, may join rooms
	StateClosed                      // terminal
)

// Connection represents a single WebSocket client connection with its
// associated metadata and a write mutex for serializing outbound frames.
// The lifecycle coordinator owns the state machine; the presence and room
// registries only ever reference the connection by ID.
type Connection struct {
	ID        string    // connection ID (UUID)
	Conn      net.Conn  // underlying TCP connection
	Fd        int       // file descriptor for epoll lookups
	CreatedAt time.Time // when the connection was established

	lastPing   atomic.Int64 // UnixNano of the last activity from the client
	state      int32        // atomic: StateOpen -> StateRegistered -> StateClosed
	userID     atomic.Value // string; set once on successful register
	writeMu    sync.Mutex   // serializes writes to this connection
	processing int32        // atomic flag: 0 = idle, 1 = being read by handleConn
}

// MarkAlive records client activity now. Written by read workers and the
// pong path; read by the heartbeat goroutine, hence the atomic.
func (c *Connection) MarkAlive() {
	c.lastPing.Store(time.Now().UnixNano())
}

// LastPing returns the time of the last observed client activity.
func (c *Connection) LastPing() time.Time {
	return time.Unix(0, c.lastPing.Load())
}

// State returns the current lifecycle state.
func (c *Connection) State() int32 {
	return atomic.LoadInt32(&c.state)
}

// markRegistered transitions Open -> Registered. Returns false if the
// connection was not in the Open state (already registered, or closed).
func (c *Connection) markRegistered() bool {
	return atomic.CompareAndSwapInt32(&c.state, StateOpen, StateRegistered)
}

// markClosed transitions to Closed and reports whether this caller performed
// the transition. Exactly one of the racing close paths (read error,
// heartbeat eviction, shutdown) wins and runs cleanup.
func (c *Connection) markClosed() bool {
	old := atomic.SwapInt32(&c.state, StateClosed)
	return old != StateClosed
}

// setUser records the bound user ID. Called once, after the presence
// registry accepted the binding.
func (c *Connection) setUser(userID string) {
	c.userID.Store(userID)
}

// UserID returns the bound user ID, or "" while the connection is only Open.
func (c *Connection) UserID() string {
	if v := c.userID.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a WebSocket protocol-level ping frame (opcode 0x9) on the
// connection. The write mutex ensures this does not interleave with other
// outbound frames.
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry that maps connection IDs and
// file descriptors to their respective Connection objects. It supports O(1)
// lookups by both connection ID and fd. It tracks transport sessions only;
// user and room bookkeeping live in the presence and room registries.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Connection // conn_id -> Connection
	byFd map[int]*Connection    // fd -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Connection),
		byFd: make(map[int]*Connection),
	}
}

// Add registers a new connection in both the ID and fd lookup maps.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.byFd[conn.Fd] = conn
	cm.mu.Unlock()
}

// Remove removes a connection by ID, closes the underlying network
// connection, and removes it from both lookup maps. Returns true if the
// connection was found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byFd, conn.Fd)
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByFd returns the connection for the given file descriptor, or nil if
// not found.
func (cm *ConnectionManager) GetByFd(fd int) *Connection {
	cm.mu.RLock()
	conn := cm.byFd[fd]
	cm.mu.RUnlock()
	return conn
}

// GetByConn returns the connection for the given net.Conn by extracting
// its file descriptor. Returns nil if not found.
func (cm *ConnectionManager) GetByConn(c net.Conn) *Connection {
	fd := socketFD(c)
	return cm.GetByFd(fd)
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
