package relay

import (
	"encoding/json"
	"fmt"

	"github.com/NoorMohdDev/Chat-App/internal/protocol"
)

// Kind classifies a mutation committed by the REST layer.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// Entity names the thing the mutation applies to.
type Entity string

const (
	EntityMessage Entity = "message"
	EntityChat    Entity = "chat"
)

// Audience declares who an event is for. Exactly one field is set: RoomID
// routes through room membership (group chats, tabs that joined the room);
// UserIDs routes through presence (direct chats and chat-list changes, every
// live connection of each user). The REST layer supplies the audience with
// the event; the relay never re-derives it from the store.
type Audience struct {
	RoomID  string   `json:"room_id,omitempty"`
	UserIDs []string `json:"user_ids,omitempty"`
}

// Event is one committed mutation handed off by the REST layer for push
// delivery. Events are transient: the relay never persists them, and a
// target with no live connection simply misses the push and catches up on
// its next REST fetch.
type Event struct {
	Kind     Kind              `json:"kind"`
	Entity   Entity            `json:"entity"`
	ChatID   string            `json:"chat_id"`
	Message  *protocol.Message `json:"message,omitempty"`
	Chat     *protocol.Chat    `json:"chat,omitempty"`
	Audience Audience          `json:"audience"`
}

// Encode serializes the event for the NATS handoff subject.
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("relay: encode event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses an event from the NATS handoff subject.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("relay: decode event: %w", err)
	}
	return &ev, nil
}

// validate checks the structural requirements before dispatch.
func (e *Event) validate() error {
	if e.ChatID == "" {
		return fmt.Errorf("relay: event missing chat_id")
	}
	if e.Audience.RoomID == "" && len(e.Audience.UserIDs) == 0 {
		return fmt.Errorf("relay: event has empty audience")
	}
	if e.Audience.RoomID != "" && len(e.Audience.UserIDs) > 0 {
		return fmt.Errorf("relay: event has both room and user audience")
	}
	switch e.Entity {
	case EntityMessage:
		if e.Message == nil {
			return fmt.Errorf("relay: message event missing message payload")
		}
	case EntityChat:
		if e.Kind != KindDeleted && e.Chat == nil {
			return fmt.Errorf("relay: chat event missing chat payload")
		}
	default:
		return fmt.Errorf("relay: unknown entity %q", e.Entity)
	}
	return nil
}

// frame builds the server->client wire frame for this event. The wire type
// depends on entity, kind, and audience: a created message is a private or a
// room message depending on how it is routed; updates and deletes use the
// same frame for both chat styles.
func (e *Event) frame() ([]byte, error) {
	switch e.Entity {
	case EntityMessage:
		switch e.Kind {
		case KindCreated:
			if e.Audience.RoomID != "" {
				return protocol.NewServerMessage(protocol.TypeRoomMessage,
					protocol.RoomMessageMsg{Message: *e.Message})
			}
			return protocol.NewServerMessage(protocol.TypePrivateMessage,
				protocol.PrivateMessageMsg{Message: *e.Message})
		case KindUpdated:
			return protocol.NewServerMessage(protocol.TypeMessageUpdated,
				protocol.MessageUpdatedMsg{Message: *e.Message})
		case KindDeleted:
			return protocol.NewServerMessage(protocol.TypeMessageDeleted,
				protocol.MessageDeletedMsg{ChatID: e.ChatID, MessageID: e.Message.ID})
		}
	case EntityChat:
		switch e.Kind {
		case KindCreated, KindUpdated:
			return protocol.NewServerMessage(protocol.TypeChatUpserted,
				protocol.ChatUpsertedMsg{Chat: *e.Chat})
		case KindDeleted:
			return protocol.NewServerMessage(protocol.TypeRoomDeleted,
				protocol.RoomDeletedMsg{ChatID: e.ChatID})
		}
	}
	return nil, fmt.Errorf("relay: no wire mapping for entity=%q kind=%q", e.Entity, e.Kind)
}
