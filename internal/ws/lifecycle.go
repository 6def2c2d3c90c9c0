package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/NoorMohdDev/Chat-App/internal/metrics"
	"github.com/NoorMohdDev/Chat-App/internal/presence"
	"github.com/NoorMohdDev/Chat-App/internal/room"
	"github.com/NoorMohdDev/Chat-App/internal/session"
)

// ErrNotRegistered is returned when a connection tries to join or leave a
// room before binding to a user. Joins arriving after close are not errors;
// transport and application events interleave unpredictably, so those are
// silent no-ops.
var ErrNotRegistered = errors.New("ws: connection not registered")

// mirrorTimeout bounds Redis mirror writes so a slow Redis can never stall
// the connection paths.
const mirrorTimeout = 3 * time.Second

// Lifecycle drives the per-connection state machine
// (Open -> Registered -> Closed) and keeps the presence registry, the room
// manager, and the Redis mirror consistent with it. The registries are
// injected, never global: the server owns one Lifecycle and funnels every
// connection event through it.
type Lifecycle struct {
	presence *presence.Registry
	rooms    *room.Manager
	mirror   *session.Store // optional; nil disables the Redis mirror
}

// NewLifecycle creates a Lifecycle over the given registries. The mirror may
// be nil.
func NewLifecycle(reg *presence.Registry, rooms *room.Manager, mirror *session.Store) *Lifecycle {
	return &Lifecycle{presence: reg, rooms: rooms, mirror: mirror}
}

// Presence exposes the registry for the relay and diagnostics endpoints.
func (l *Lifecycle) Presence() *presence.Registry { return l.presence }

// Rooms exposes the room manager for the relay and diagnostics endpoints.
func (l *Lifecycle) Rooms() *room.Manager { return l.rooms }

// HandleOpen admits a freshly upgraded connection. The connection starts in
// the Open state with no user bound.
func (l *Lifecycle) HandleOpen(c *Connection) {
	if l.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := l.mirror.Create(ctx, c.ID); err != nil {
			log.Printf("ws: mirror create failed conn=%s: %v", c.ID, err)
		}
	}
}

// Register binds the connection to a user. Re-registering the same user is
// an idempotent success (reconnecting tabs re-send register). Binding to a
// different user fails with presence.ErrConflict and leaves the original
// binding intact. A register racing a close is rolled back so no stale
// presence entry can survive the disconnect.
func (l *Lifecycle) Register(c *Connection, userID string) error {
	if c.State() == StateClosed {
		// Late frame from a dying transport; nothing to do.
		return nil
	}

	if err := l.presence.Register(c.ID, userID); err != nil {
		return err
	}
	c.setUser(userID)
	c.markRegistered()

	// Close may have run between the state check and the presence insert.
	// The closer cleans up what it sees; anything it missed we undo here.
	if c.State() == StateClosed {
		l.presence.Unregister(c.ID)
		return nil
	}

	if l.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := l.mirror.BindUser(ctx, c.ID, userID); err != nil {
			log.Printf("ws: mirror bind failed conn=%s: %v", c.ID, err)
		}
	}

	metrics.UsersOnline.Set(float64(l.presence.Users()))
	return nil
}

// Join subscribes a registered connection to a room. A join arriving after
// Closed is a silent no-op; a join before register is a client error.
func (l *Lifecycle) Join(c *Connection, roomID string) error {
	switch c.State() {
	case StateClosed:
		return nil
	case StateOpen:
		return ErrNotRegistered
	}

	l.rooms.Join(c.ID, roomID)

	// A close racing this join may have swept the rooms before the insert
	// landed; re-run the sweep so the membership cannot outlive the conn.
	if c.State() == StateClosed {
		l.rooms.LeaveAll(c.ID)
		return nil
	}

	metrics.RoomsActive.Set(float64(l.rooms.RoomCount()))
	return nil
}

// Leave unsubscribes a registered connection from a room. Leaving a room
// that was never joined, or leaving after close, is a no-op.
func (l *Lifecycle) Leave(c *Connection, roomID string) error {
	switch c.State() {
	case StateClosed:
		return nil
	case StateOpen:
		return ErrNotRegistered
	}

	l.rooms.Leave(c.ID, roomID)
	metrics.RoomsActive.Set(float64(l.rooms.RoomCount()))
	return nil
}

// HandleClose runs the terminal transition exactly once, even under
// duplicate disconnect signals: unregister presence, leave all rooms,
// delete the mirror entry. After HandleClose returns, no subsequent relay
// dispatch resolves this connection as a target.
func (l *Lifecycle) HandleClose(c *Connection) {
	if !c.markClosed() {
		return
	}

	if _, ok := l.presence.Unregister(c.ID); ok {
		metrics.UsersOnline.Set(float64(l.presence.Users()))
	}
	if left := l.rooms.LeaveAll(c.ID); len(left) > 0 {
		metrics.RoomsActive.Set(float64(l.rooms.RoomCount()))
	}

	if l.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := l.mirror.Delete(ctx, c.ID); err != nil {
			log.Printf("ws: mirror delete failed conn=%s: %v", c.ID, err)
		}
	}
}

// Touch refreshes the mirror TTL for a live connection. Called from the
// heartbeat path.
func (l *Lifecycle) Touch(c *Connection) {
	if l.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := l.mirror.Touch(ctx, c.ID); err != nil {
		log.Printf("ws: mirror touch failed conn=%s: %v", c.ID, err)
	}
}
