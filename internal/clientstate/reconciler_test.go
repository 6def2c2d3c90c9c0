package clientstate

import (
	"fmt"
	"testing"

	"github.com/NoorMohdDev/Chat-App/internal/protocol"
)

func msg(chatID, id, content string) protocol.Message {
	return protocol.Message{
		ID:       id,
		ChatID:   chatID,
		SenderID: "sender",
		Content:  content,
	}
}

// Applying the same Created event twice produces the same result as applying
// it once — both the message list and the unread count.
func TestApplyCreatedIsIdempotent(t *testing.T) {
	r := NewReconciler()

	m := msg("g1", "m1", "hello")
	if !r.Apply(EventCreated, m) {
		t.Fatal("first Apply() should report an effect")
	}
	if r.Apply(EventCreated, m) {
		t.Error("second Apply() of the same event should be a no-op")
	}

	if got := r.Messages("g1"); len(got) != 1 {
		t.Fatalf("Messages() has %d entries, want 1", len(got))
	}
	if got := r.Unread("g1"); got != 1 {
		t.Errorf("Unread(g1) = %d, want 1 (duplicate must not double count)", got)
	}
}

// A pushed Created for the sender's own optimistic entry is a no-op and must
// not count as unread.
func TestOptimisticAppendAbsorbsOwnPush(t *testing.T) {
	r := NewReconciler()

	m := msg("g1", "m1", "hello")
	r.AppendLocal(m)
	if r.Apply(EventCreated, m) {
		t.Error("push for optimistic entry should be a no-op")
	}

	if got := r.Messages("g1"); len(got) != 1 {
		t.Fatalf("Messages() has %d entries, want 1", len(got))
	}
	if got := r.Unread("g1"); got != 0 {
		t.Errorf("Unread(g1) = %d, want 0 for own message", got)
	}
}

func TestUnreadSkipsSelectedChat(t *testing.T) {
	r := NewReconciler()
	r.Select("g1")

	r.Apply(EventCreated, msg("g1", "m1", "visible now"))
	r.Apply(EventCreated, msg("g2", "m2", "background"))

	if got := r.Unread("g1"); got != 0 {
		t.Errorf("Unread(selected) = %d, want 0", got)
	}
	if got := r.Unread("g2"); got != 1 {
		t.Errorf("Unread(g2) = %d, want 1", got)
	}
}

// The unread counter for a chat is zero immediately after selection.
func TestSelectResetsUnread(t *testing.T) {
	r := NewReconciler()

	for i := 0; i < 3; i++ {
		r.Apply(EventCreated, msg("g1", fmt.Sprintf("m%d", i), "x"))
	}
	if got := r.Unread("g1"); got != 3 {
		t.Fatalf("Unread(g1) = %d, want 3", got)
	}

	r.Select("g1")
	if got := r.Unread("g1"); got != 0 {
		t.Errorf("Unread(g1) after Select = %d, want 0", got)
	}
}

func TestApplyUpdatedReplacesByID(t *testing.T) {
	r := NewReconciler()

	r.Apply(EventCreated, msg("g1", "m1", "original"))
	updated := msg("g1", "m1", "edited")
	updated.UpdatedAt = 42
	if !r.Apply(EventUpdated, updated) {
		t.Fatal("Apply(Updated) should report an effect")
	}

	got := r.Messages("g1")
	if len(got) != 1 {
		t.Fatalf("Messages() has %d entries, want 1", len(got))
	}
	if got[0].Content != "edited" || got[0].UpdatedAt != 42 {
		t.Errorf("message not replaced: %+v", got[0])
	}
}

// RemoveChat drops all per-chat state, tombstones included: a chat later
// recreated under the same ID starts clean.
func TestRemoveChatDropsAllState(t *testing.T) {
	r := NewReconciler()

	r.Apply(EventCreated, msg("g1", "m1", "a"))
	r.Apply(EventDeleted, msg("g1", "m1", ""))
	r.RemoveChat("g1")

	if !r.Apply(EventCreated, msg("g1", "m1", "again")) {
		t.Fatal("Apply(Created) after RemoveChat should report an effect")
	}
	if got := r.Messages("g1"); len(got) != 1 || got[0].Content != "again" {
		t.Errorf("Messages() = %+v, want the recreated message", got)
	}
}

// A message edited twice ends on its latest content: every Updated event
// applies by ID, not just the first one per message.
func TestApplySequentialUpdates(t *testing.T) {
	r := NewReconciler()

	r.Apply(EventCreated, msg("g1", "m1", "original"))

	first := msg("g1", "m1", "edit one")
	first.UpdatedAt = 1
	if !r.Apply(EventUpdated, first) {
		t.Fatal("first Apply(Updated) should report an effect")
	}

	second := msg("g1", "m1", "edit two")
	second.UpdatedAt = 2
	if !r.Apply(EventUpdated, second) {
		t.Fatal("second Apply(Updated) should report an effect")
	}

	got := r.Messages("g1")
	if len(got) != 1 {
		t.Fatalf("Messages() has %d entries, want 1", len(got))
	}
	if got[0].Content != "edit two" || got[0].UpdatedAt != 2 {
		t.Errorf("second edit lost: content = %q, want %q", got[0].Content, "edit two")
	}
}

// A duplicate Deleted delivery is absorbed by the tombstone.
func TestApplyDeletedIsIdempotent(t *testing.T) {
	r := NewReconciler()

	r.Apply(EventCreated, msg("g1", "m1", "a"))
	if !r.Apply(EventDeleted, msg("g1", "m1", "")) {
		t.Fatal("first Apply(Deleted) should report an effect")
	}
	if r.Apply(EventDeleted, msg("g1", "m1", "")) {
		t.Error("second Apply(Deleted) should be a no-op")
	}
	if got := r.Messages("g1"); len(got) != 0 {
		t.Errorf("Messages() = %+v, want empty", got)
	}
}

func TestApplyDeletedRemovesByID(t *testing.T) {
	r := NewReconciler()

	r.Apply(EventCreated, msg("g1", "m1", "a"))
	r.Apply(EventCreated, msg("g1", "m2", "b"))
	if !r.Apply(EventDeleted, msg("g1", "m1", "")) {
		t.Fatal("Apply(Deleted) should report an effect")
	}

	got := r.Messages("g1")
	if len(got) != 1 || got[0].ID != "m2" {
		t.Fatalf("Messages() = %+v, want only m2", got)
	}
}

// A push can arrive before the REST snapshot that contains the same message;
// the snapshot merge must not duplicate it — and a snapshot must not
// resurrect a message deleted by push.
func TestSnapshotInterleavesWithPush(t *testing.T) {
	r := NewReconciler()

	// Push beats the fetch.
	r.Apply(EventCreated, msg("g1", "m2", "pushed"))
	// Deletion also beats the fetch.
	r.Apply(EventDeleted, msg("g1", "m3", ""))

	r.SetSnapshot("g1", []protocol.Message{
		msg("g1", "m1", "old"),
		msg("g1", "m2", "pushed"),
		msg("g1", "m3", "deleted meanwhile"),
	})

	got := r.Messages("g1")
	if len(got) != 2 {
		t.Fatalf("Messages() has %d entries, want 2: %+v", len(got), got)
	}
	ids := map[string]bool{}
	for _, m := range got {
		ids[m.ID] = true
	}
	if !ids["m1"] || !ids["m2"] {
		t.Errorf("expected m1 and m2 present, got %+v", got)
	}
	if ids["m3"] {
		t.Error("snapshot resurrected a deleted message")
	}
	// Snapshot merges never affect unread.
	if got := r.Unread("g1"); got != 1 {
		t.Errorf("Unread(g1) = %d, want 1 (only the pushed create)", got)
	}
}

func TestUpdatedBeforeSnapshotInserts(t *testing.T) {
	r := NewReconciler()

	// An update push for a message the client has never fetched.
	updated := msg("g1", "m1", "edited")
	if !r.Apply(EventUpdated, updated) {
		t.Fatal("Apply(Updated) for unseen message should still apply")
	}
	got := r.Messages("g1")
	if len(got) != 1 || got[0].Content != "edited" {
		t.Fatalf("Messages() = %+v", got)
	}
}

func TestChatListLifecycle(t *testing.T) {
	r := NewReconciler()

	chat := protocol.Chat{ID: "g1", Name: "team", IsGroup: true, Members: []string{"a", "b"}}
	r.UpsertChat(chat)
	if got, ok := r.Chat("g1"); !ok || got.Name != "team" {
		t.Fatalf("Chat(g1) = (%+v, %v)", got, ok)
	}

	r.Apply(EventCreated, msg("g1", "m1", "x"))
	r.Select("g1")

	r.RemoveChat("g1")
	if _, ok := r.Chat("g1"); ok {
		t.Error("chat still present after RemoveChat")
	}
	if got := r.Messages("g1"); len(got) != 0 {
		t.Errorf("messages survived RemoveChat: %+v", got)
	}
	if r.Selected() != "" {
		t.Errorf("Selected() = %q after removing selected chat, want \"\"", r.Selected())
	}
}
