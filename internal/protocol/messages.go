// Package protocol defines the WebSocket message types and structures used
// for communication between chat clients and the relay server. All messages
// are serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeRegister  = "register"
	TypeJoinRoom  = "join_room"
	TypeLeaveRoom = "leave_room"
	TypePing      = "ping"
)

// Server -> Client message types.
const (
	TypeRegistered     = "registered"
	TypeRoomJoined     = "room_joined"
	TypePrivateMessage = "receive_private_message"
	TypeRoomMessage    = "receive_room_message"
	TypeMessageUpdated = "updateMessage_client"
	TypeMessageDeleted = "deleteMessage_client"
	TypeChatUpserted   = "show_chats_client"
	TypeRoomDeleted    = "room_deleted"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Shared data models carried in event payloads
// ---------------------------------------------------------------------------

// Message is the wire representation of one chat message as persisted by the
// REST layer and pushed by the relay.
type Message struct {
	ID         string `json:"id"`
	ChatID     string `json:"chat_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name,omitempty"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at,omitempty"`
}

// Chat is the wire representation of a chat visible in a user's chat list.
type Chat struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	IsGroup bool     `json:"is_group"`
	AdminID string   `json:"admin_id,omitempty"`
	Members []string `json:"members"`
}

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// RegisterMsg binds the connection to an authenticated user identity. The
// relay trusts the supplied user ID; authentication happens at the REST
// layer before a client ever learns its own ID.
type RegisterMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// JoinRoomMsg subscribes the connection to a chat room's broadcasts. Clients
// send it when they open a group chat view.
type JoinRoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// LeaveRoomMsg unsubscribes the connection from a chat room's broadcasts.
type LeaveRoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// RegisteredMsg acknowledges a successful (or idempotent repeat) register.
type RegisteredMsg struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	ConnID string `json:"conn_id"`
}

// RoomJoinedMsg acknowledges a join_room.
type RoomJoinedMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// PrivateMessageMsg delivers a newly created direct-chat message to every
// live connection of the recipient.
type PrivateMessageMsg struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// RoomMessageMsg delivers a newly created group-chat message to connections
// joined to the room.
type RoomMessageMsg struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// MessageUpdatedMsg carries the full updated message; clients replace by ID.
type MessageUpdatedMsg struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// MessageDeletedMsg identifies a deleted message; clients remove by ID.
type MessageDeletedMsg struct {
	Type      string `json:"type"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

// ChatUpsertedMsg announces a chat that was created or renamed; clients
// upsert it into their chat list.
type ChatUpsertedMsg struct {
	Type string `json:"type"`
	Chat Chat   `json:"chat"`
}

// RoomDeletedMsg announces that a chat was deleted; clients drop it and its
// messages.
type RoomDeletedMsg struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeRegister:
		var m RegisterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeJoinRoom:
		var m JoinRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeLeaveRoom:
		var m LeaveRoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
