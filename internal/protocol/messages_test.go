package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseClientMessage_Register(t *testing.T) {
	input := []byte(`{"type":"register","user_id":"u-42"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeRegister {
		t.Fatalf("expected type %q, got %q", TypeRegister, msgType)
	}

	rm, ok := msg.(RegisterMsg)
	if !ok {
		t.Fatalf("expected RegisterMsg, got %T", msg)
	}
	if rm.UserID != "u-42" {
		t.Errorf("expected user_id %q, got %q", "u-42", rm.UserID)
	}
}

func TestParseClientMessage_JoinRoom(t *testing.T) {
	input := []byte(`{"type":"join_room","room_id":"g1"}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeJoinRoom {
		t.Fatalf("expected type %q, got %q", TypeJoinRoom, msgType)
	}

	jm, ok := msg.(JoinRoomMsg)
	if !ok {
		t.Fatalf("expected JoinRoomMsg, got %T", msg)
	}
	if jm.RoomID != "g1" {
		t.Errorf("expected room_id %q, got %q", "g1", jm.RoomID)
	}
}

func TestParseClientMessage_UnknownType(t *testing.T) {
	input := []byte(`{"type":"receive_room_message"}`)

	if _, _, err := ParseClientMessage(input); err == nil {
		t.Fatal("expected error for server-only message type")
	}
}

func TestParseClientMessage_MissingType(t *testing.T) {
	cases := []string{
		`{}`,
		`{"type":""}`,
		`not json`,
	}
	for _, input := range cases {
		if _, _, err := ParseClientMessage([]byte(input)); err == nil {
			t.Errorf("input %q: expected error", input)
		}
	}
}

func TestNewServerMessage_RoomMessage(t *testing.T) {
	payload := RoomMessageMsg{
		Message: Message{
			ID:       "m1",
			ChatID:   "g1",
			SenderID: "u-1",
			Content:  "hello",
		},
	}

	data, err := NewServerMessage(TypeRoomMessage, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["type"] != TypeRoomMessage {
		t.Errorf("expected type %q, got %v", TypeRoomMessage, decoded["type"])
	}
	msg, ok := decoded["message"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected nested message object, got %T", decoded["message"])
	}
	if msg["id"] != "m1" || msg["content"] != "hello" {
		t.Errorf("unexpected message payload: %v", msg)
	}
}

func TestNewServerMessage_InjectsTypeOverPayload(t *testing.T) {
	// The type field is imposed by the constructor even if the payload's
	// Type field was left empty.
	data, err := NewServerMessage(TypeRoomDeleted, RoomDeletedMsg{ChatID: "g1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded RoomDeletedMsg
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != TypeRoomDeleted {
		t.Errorf("expected type %q, got %q", TypeRoomDeleted, decoded.Type)
	}
	if decoded.ChatID != "g1" {
		t.Errorf("expected chat_id %q, got %q", "g1", decoded.ChatID)
	}
}
