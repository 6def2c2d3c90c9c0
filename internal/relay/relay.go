// Package relay receives committed mutation events from the REST layer and
// pushes them to live connections. Delivery is fire-and-forget: no
// acknowledgment, no retry, no queue for offline users. Push is a latency
// optimization; REST remains the sole durability and catch-up mechanism.
package relay

import (
	"log"
	"time"

	"github.com/NoorMohdDev/Chat-App/internal/metrics"
	"github.com/NoorMohdDev/Chat-App/internal/presence"
	"github.com/NoorMohdDev/Chat-App/internal/room"
)

// Sender writes one frame to one connection. Implemented by ws.Server. A
// send error means the connection died mid-fan-out; the relay treats it as
// a delivery miss, never a failure.
type Sender interface {
	SendMessage(connID string, data []byte) error
}

// Relay resolves an event's audience to live connections and dispatches the
// serialized frame to each target independently. It performs no membership
// or authorization re-check: the audience supplied by the REST layer is
// authoritative, avoiding a second source of truth racing the committed
// write.
type Relay struct {
	presence *presence.Registry
	rooms    *room.Manager
	sender   Sender
}

// New creates a Relay over the given registries and frame sender.
func New(reg *presence.Registry, rooms *room.Manager, sender Sender) *Relay {
	return &Relay{presence: reg, rooms: rooms, sender: sender}
}

// Dispatch fans one event out to its resolved targets. The returned error
// covers only malformed events (no audience, no wire mapping); failed or
// impossible deliveries are counted as misses and logged at most.
func (r *Relay) Dispatch(ev *Event) error {
	if err := ev.validate(); err != nil {
		return err
	}

	start := time.Now()

	frame, err := ev.frame()
	if err != nil {
		return err
	}

	targets := r.resolve(ev.Audience)
	delivered := 0
	for _, connID := range targets {
		if err := r.sender.SendMessage(connID, frame); err != nil {
			// The connection disconnected between resolution and write.
			// Non-fatal: the client catches up over REST.
			metrics.DeliveryMisses.Inc()
			continue
		}
		delivered++
	}

	metrics.EventsRelayed.WithLabelValues(string(ev.Entity), string(ev.Kind)).Inc()
	metrics.FanoutLatency.Observe(time.Since(start).Seconds())

	if delivered == 0 && len(targets) == 0 {
		// Nobody online / nobody viewing the room. Expected, not an error.
		log.Printf("relay: no live targets for %s %s chat=%s", ev.Entity, ev.Kind, ev.ChatID)
	}
	return nil
}

// resolve maps an audience to concrete connection IDs. Room audiences use
// join-based membership; user audiences fan out to every live connection of
// each user. A user listed twice contributes each connection once.
func (r *Relay) resolve(aud Audience) []string {
	if aud.RoomID != "" {
		return r.rooms.BroadcastTargets(aud.RoomID)
	}

	seen := make(map[string]struct{})
	var targets []string
	for _, userID := range aud.UserIDs {
		for _, connID := range r.presence.Resolve(userID) {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			targets = append(targets, connID)
		}
	}
	return targets
}
