// Package clientstate merges the three sources a chat client sees — the
// initial REST snapshot, optimistic local appends on send, and pushed
// mutation events — into one deduplicated per-chat message view, and keeps
// per-chat unread counts. It is designed for a single client event loop but
// is mutex-guarded so transport callbacks can feed it directly.
package clientstate

import (
	"sync"

	"github.com/NoorMohdDev/Chat-App/internal/protocol"
)

// EventKind classifies a pushed mutation as applied client-side.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// chatStore holds one chat's ordered, id-deduplicated message sequence.
// Tombstones survive so a late REST snapshot cannot resurrect a message
// already deleted by push.
type chatStore struct {
	order   []string
	byID    map[string]protocol.Message
	deleted map[string]struct{}
}

func newChatStore() *chatStore {
	return &chatStore{
		byID:    make(map[string]protocol.Message),
		deleted: make(map[string]struct{}),
	}
}

// insert adds a message if its ID is new and not tombstoned. Reports whether
// the message was actually added.
func (cs *chatStore) insert(msg protocol.Message) bool {
	if _, gone := cs.deleted[msg.ID]; gone {
		return false
	}
	if _, ok := cs.byID[msg.ID]; ok {
		return false
	}
	cs.byID[msg.ID] = msg
	cs.order = append(cs.order, msg.ID)
	return true
}

// Reconciler is the client-side state store for chats, messages, and unread
// counts.
type Reconciler struct {
	mu       sync.Mutex
	chats    map[string]protocol.Chat
	stores   map[string]*chatStore
	unread   map[string]int
	selected string
}

// NewReconciler creates an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		chats:  make(map[string]protocol.Chat),
		stores: make(map[string]*chatStore),
		unread: make(map[string]int),
	}
}

func (r *Reconciler) store(chatID string) *chatStore {
	cs, ok := r.stores[chatID]
	if !ok {
		cs = newChatStore()
		r.stores[chatID] = cs
	}
	return cs
}

// SetSnapshot merges a REST message fetch into the chat's view. Messages
// already present (optimistic sends, pushes that beat the fetch) are kept;
// tombstoned messages stay deleted. Snapshot merges never touch unread
// counts — only pushed Created events do.
func (r *Reconciler) SetSnapshot(chatID string, msgs []protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs := r.store(chatID)
	for _, msg := range msgs {
		cs.insert(msg)
	}
}

// AppendLocal records an optimistic local send. The later pushed Created
// event for the same ID becomes a no-op.
func (r *Reconciler) AppendLocal(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(msg.ChatID).insert(msg)
}

// Apply merges one pushed mutation event. Duplicate deliveries change
// nothing: a repeated Created is absorbed by the ID check (so unread never
// double-counts), a repeated Deleted by the tombstone. Updated applies by ID
// unconditionally — each edit event replaces the message, so a message
// edited twice ends on its latest content. It reports whether the event had
// any effect.
func (r *Reconciler) Apply(kind EventKind, msg protocol.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs := r.store(msg.ChatID)
	switch kind {
	case EventCreated:
		// The sender's own optimistic entry already holds this ID; the
		// pushed copy is then a no-op and must not count as unread.
		if !cs.insert(msg) {
			return false
		}
		if r.selected != msg.ChatID {
			r.unread[msg.ChatID]++
		}
		return true

	case EventUpdated:
		if _, gone := cs.deleted[msg.ID]; gone {
			return false
		}
		if _, ok := cs.byID[msg.ID]; ok {
			cs.byID[msg.ID] = msg
			return true
		}
		// Push beat the REST snapshot; take the updated copy as the insert.
		return cs.insert(msg)

	case EventDeleted:
		cs.deleted[msg.ID] = struct{}{}
		if _, ok := cs.byID[msg.ID]; !ok {
			return false
		}
		delete(cs.byID, msg.ID)
		for i, id := range cs.order {
			if id == msg.ID {
				cs.order = append(cs.order[:i], cs.order[i+1:]...)
				break
			}
		}
		return true
	}
	return false
}

// Select marks a chat as the one the viewer is looking at and resets its
// unread counter. Pushed messages for the selected chat are never counted
// unread. Pass "" to deselect.
func (r *Reconciler) Select(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = chatID
	if chatID != "" {
		delete(r.unread, chatID)
	}
}

// Selected returns the currently selected chat ID, or "".
func (r *Reconciler) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Unread returns the number of pushed-but-unseen messages for a chat.
func (r *Reconciler) Unread(chatID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread[chatID]
}

// Messages returns the chat's messages in merge order.
func (r *Reconciler) Messages(chatID string) []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.stores[chatID]
	if !ok {
		return nil
	}
	out := make([]protocol.Message, 0, len(cs.order))
	for _, id := range cs.order {
		out = append(out, cs.byID[id])
	}
	return out
}

// UpsertChat adds or replaces a chat in the client's chat list.
func (r *Reconciler) UpsertChat(chat protocol.Chat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[chat.ID] = chat
}

// RemoveChat drops a chat, its messages, and its unread count. Invoked on a
// room_deleted push. Removing the selected chat deselects it.
func (r *Reconciler) RemoveChat(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chats, chatID)
	delete(r.stores, chatID)
	delete(r.unread, chatID)
	if r.selected == chatID {
		r.selected = ""
	}
}

// Chat returns a chat from the list, if present.
func (r *Reconciler) Chat(chatID string) (protocol.Chat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat, ok := r.chats[chatID]
	return chat, ok
}

// Chats returns the number of chats in the list.
func (r *Reconciler) Chats() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chats)
}
