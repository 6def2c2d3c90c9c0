package relay

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/NoorMohdDev/Chat-App/internal/presence"
	"github.com/NoorMohdDev/Chat-App/internal/protocol"
	"github.com/NoorMohdDev/Chat-App/internal/room"
)

// recordingSender captures frames per connection and can simulate dead
// connections that fail every write.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][][]byte
	dead   map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		frames: make(map[string][][]byte),
		dead:   make(map[string]bool),
	}
}

func (s *recordingSender) SendMessage(connID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead[connID] {
		return errors.New("connection closed")
	}
	s.frames[connID] = append(s.frames[connID], data)
	return nil
}

func (s *recordingSender) received(connID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[connID]
}

func newTestRelay(t *testing.T) (*Relay, *presence.Registry, *room.Manager, *recordingSender) {
	t.Helper()
	reg := presence.NewRegistry()
	rooms := room.NewManager()
	sender := newRecordingSender()
	return New(reg, rooms, sender), reg, rooms, sender
}

func msgEvent(kind Kind, chatID, msgID string, aud Audience) *Event {
	return &Event{
		Kind:   kind,
		Entity: EntityMessage,
		ChatID: chatID,
		Message: &protocol.Message{
			ID:       msgID,
			ChatID:   chatID,
			SenderID: "sender",
			Content:  "hi",
		},
		Audience: aud,
	}
}

func decodeType(t *testing.T, frame []byte) string {
	t.Helper()
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	return env.Type
}

// A user with two registered connections receives a direct message on both,
// regardless of room joins.
func TestDirectFanOutAllDevices(t *testing.T) {
	r, reg, rooms, sender := newTestRelay(t)

	reg.Register("c1", "alice")
	reg.Register("c2", "alice")
	rooms.Join("c1", "g1") // room joins must not matter for direct delivery

	ev := msgEvent(KindCreated, "d1", "m1", Audience{UserIDs: []string{"alice"}})
	if err := r.Dispatch(ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	for _, conn := range []string{"c1", "c2"} {
		frames := sender.received(conn)
		if len(frames) != 1 {
			t.Fatalf("conn %s received %d frames, want 1", conn, len(frames))
		}
		if got := decodeType(t, frames[0]); got != protocol.TypePrivateMessage {
			t.Errorf("conn %s frame type = %q, want %q", conn, got, protocol.TypePrivateMessage)
		}
	}
}

// A room message reaches only connections that joined the room — a second
// connection of the same user that never joined receives nothing.
func TestRoomDeliveryOnlyJoinedConnections(t *testing.T) {
	r, reg, rooms, sender := newTestRelay(t)

	reg.Register("c1", "alice")
	reg.Register("c2", "alice")
	reg.Register("c3", "bob")
	rooms.Join("c1", "g1")
	rooms.Join("c3", "g1")

	ev := msgEvent(KindCreated, "g1", "m1", Audience{RoomID: "g1"})
	if err := r.Dispatch(ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	if frames := sender.received("c1"); len(frames) != 1 {
		t.Errorf("c1 received %d frames, want 1", len(frames))
	} else if got := decodeType(t, frames[0]); got != protocol.TypeRoomMessage {
		t.Errorf("c1 frame type = %q, want %q", got, protocol.TypeRoomMessage)
	}
	if frames := sender.received("c3"); len(frames) != 1 {
		t.Errorf("c3 received %d frames, want 1", len(frames))
	}
	if frames := sender.received("c2"); len(frames) != 0 {
		t.Errorf("c2 (never joined g1) received %d frames, want 0", len(frames))
	}
}

// A target disconnecting mid-broadcast must not receive the event and must
// not surface an error from the relay.
func TestDeadConnectionDuringBroadcastIsSilent(t *testing.T) {
	r, reg, rooms, sender := newTestRelay(t)

	reg.Register("c1", "alice")
	reg.Register("c2", "bob")
	rooms.Join("c1", "g1")
	rooms.Join("c2", "g1")
	sender.dead["c2"] = true

	ev := msgEvent(KindCreated, "g1", "m1", Audience{RoomID: "g1"})
	if err := r.Dispatch(ev); err != nil {
		t.Fatalf("Dispatch() with dead target returned error: %v", err)
	}

	if frames := sender.received("c1"); len(frames) != 1 {
		t.Errorf("live conn c1 received %d frames, want 1", len(frames))
	}
	if frames := sender.received("c2"); len(frames) != 0 {
		t.Errorf("dead conn c2 received %d frames, want 0", len(frames))
	}
}

// Zero live connections for every audience member is a delivery miss, not an
// error.
func TestOfflineAudienceIsSilent(t *testing.T) {
	r, _, _, sender := newTestRelay(t)

	ev := msgEvent(KindCreated, "d1", "m1", Audience{UserIDs: []string{"nobody"}})
	if err := r.Dispatch(ev); err != nil {
		t.Fatalf("Dispatch() with offline audience returned error: %v", err)
	}
	if len(sender.frames) != 0 {
		t.Errorf("expected no frames, got %v", sender.frames)
	}
}

func TestUserAudienceDeduplicatesConnections(t *testing.T) {
	r, reg, _, sender := newTestRelay(t)

	reg.Register("c1", "alice")

	// alice listed twice in the audience must still get one frame per conn.
	ev := msgEvent(KindCreated, "d1", "m1", Audience{UserIDs: []string{"alice", "alice"}})
	if err := r.Dispatch(ev); err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if frames := sender.received("c1"); len(frames) != 1 {
		t.Errorf("c1 received %d frames, want 1", len(frames))
	}
}

func TestWireTypeMapping(t *testing.T) {
	cases := []struct {
		name     string
		event    *Event
		wantType string
	}{
		{
			name:     "created message to room",
			event:    msgEvent(KindCreated, "g1", "m1", Audience{RoomID: "g1"}),
			wantType: protocol.TypeRoomMessage,
		},
		{
			name:     "created message to user",
			event:    msgEvent(KindCreated, "d1", "m1", Audience{UserIDs: []string{"alice"}}),
			wantType: protocol.TypePrivateMessage,
		},
		{
			name:     "updated message",
			event:    msgEvent(KindUpdated, "g1", "m1", Audience{RoomID: "g1"}),
			wantType: protocol.TypeMessageUpdated,
		},
		{
			name:     "deleted message",
			event:    msgEvent(KindDeleted, "g1", "m1", Audience{RoomID: "g1"}),
			wantType: protocol.TypeMessageDeleted,
		},
		{
			name: "created chat",
			event: &Event{
				Kind: KindCreated, Entity: EntityChat, ChatID: "g1",
				Chat:     &protocol.Chat{ID: "g1", IsGroup: true, Members: []string{"alice"}},
				Audience: Audience{UserIDs: []string{"alice"}},
			},
			wantType: protocol.TypeChatUpserted,
		},
		{
			name: "deleted chat",
			event: &Event{
				Kind: KindDeleted, Entity: EntityChat, ChatID: "g1",
				Audience: Audience{UserIDs: []string{"alice"}},
			},
			wantType: protocol.TypeRoomDeleted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := tc.event.frame()
			if err != nil {
				t.Fatalf("frame() error: %v", err)
			}
			if got := decodeType(t, frame); got != tc.wantType {
				t.Errorf("frame type = %q, want %q", got, tc.wantType)
			}
		})
	}
}

func TestDispatchRejectsMalformedEvents(t *testing.T) {
	r, _, _, _ := newTestRelay(t)

	cases := []struct {
		name  string
		event *Event
	}{
		{"empty audience", msgEvent(KindCreated, "g1", "m1", Audience{})},
		{"both audiences", msgEvent(KindCreated, "g1", "m1",
			Audience{RoomID: "g1", UserIDs: []string{"alice"}})},
		{"missing chat id", msgEvent(KindCreated, "", "m1", Audience{RoomID: "g1"})},
		{"message event without payload", &Event{
			Kind: KindCreated, Entity: EntityMessage, ChatID: "g1",
			Audience: Audience{RoomID: "g1"},
		}},
		{"unknown entity", &Event{
			Kind: KindCreated, Entity: "reaction", ChatID: "g1",
			Audience: Audience{RoomID: "g1"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := r.Dispatch(tc.event); err == nil {
				t.Error("Dispatch() = nil, want error")
			}
		})
	}
}

func TestEventEncodeDecodeRoundTrip(t *testing.T) {
	ev := msgEvent(KindCreated, "g1", "m1", Audience{UserIDs: []string{"alice", "bob"}})

	data, err := ev.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent() error: %v", err)
	}
	if decoded.Kind != KindCreated || decoded.Entity != EntityMessage {
		t.Errorf("decoded kind/entity = %s/%s", decoded.Kind, decoded.Entity)
	}
	if decoded.Message == nil || decoded.Message.ID != "m1" {
		t.Errorf("decoded message payload lost: %+v", decoded.Message)
	}
	users := decoded.Audience.UserIDs
	sort.Strings(users)
	if len(users) != 2 || users[0] != "alice" || users[1] != "bob" {
		t.Errorf("decoded audience = %v", users)
	}
}
