// Package api implements the REST surface for chats and messages. Handlers
// follow a strict order: commit to PostgreSQL, respond to the caller, then
// hand the committed mutation to the relay over NATS. Push delivery never
// blocks a response and a failed publish never fails a request.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/NoorMohdDev/Chat-App/internal/protocol"
	"github.com/NoorMohdDev/Chat-App/internal/relay"
	"github.com/NoorMohdDev/Chat-App/internal/store"
)

// Publisher hands a committed mutation to the relay transport.
type Publisher interface {
	PublishMutation(data []byte) error
}

// Server holds the REST handlers' dependencies.
type Server struct {
	store *store.Store
	pub   Publisher
}

// NewServer creates the REST server. pub may be nil, in which case mutations
// are committed but never pushed (clients still catch up on fetch).
func NewServer(st *store.Store, pub Publisher) *Server {
	return &Server{store: st, pub: pub}
}

// Routes mounts all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", s.handleListChats)
	mux.HandleFunc("POST /api/chats/direct", s.handleAccessDirectChat)
	mux.HandleFunc("POST /api/chats/group", s.handleCreateGroupChat)
	mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	mux.HandleFunc("PUT /api/chats/{id}", s.handleRenameGroup)
	mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	mux.HandleFunc("GET /api/chats/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/chats/{id}/messages", s.handleCreateMessage)
	mux.HandleFunc("PUT /api/messages/{id}", s.handleUpdateMessage)
	mux.HandleFunc("DELETE /api/messages/{id}", s.handleDeleteMessage)
	return mux
}

// identity extracts the caller's user ID from headers. Authentication happens
// upstream; an empty ID is rejected with 401.
func identity(w http.ResponseWriter, r *http.Request) (userID, userName string, ok bool) {
	userID = r.Header.Get("X-User-ID")
	userName = r.Header.Get("X-User-Name")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
		return "", "", false
	}
	return userID, userName, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store sentinels to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	default:
		log.Printf("[api] store error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// publish encodes the event and hands it to the relay transport. Runs after
// the response has been written; errors are logged, never surfaced.
func (s *Server) publish(ev *relay.Event) {
	if s.pub == nil {
		return
	}
	data, err := ev.Encode()
	if err != nil {
		log.Printf("[api] encode event: %v", err)
		return
	}
	if err := s.pub.PublishMutation(data); err != nil {
		log.Printf("[api] publish event: %v", err)
	}
}

// messageAudience routes group messages through room membership and direct
// messages through presence — every member, so the sender's other devices
// stay in sync too.
func messageAudience(chat *protocol.Chat) relay.Audience {
	if chat.IsGroup {
		return relay.Audience{RoomID: chat.ID}
	}
	return relay.Audience{UserIDs: chat.Members}
}

// publishMessageEvent resolves the message's audience and hands the event to
// the relay. Runs strictly after the response: the mutation is committed and
// acknowledged by then, so a failed audience lookup only skips the push and
// the client catches up on its next fetch.
func (s *Server) publishMessageEvent(ctx context.Context, kind relay.Kind, msg *protocol.Message) {
	chat, err := s.store.GetChat(ctx, msg.ChatID)
	if err != nil {
		log.Printf("[api] audience lookup failed chat=%s: %v (push skipped)", msg.ChatID, err)
		return
	}
	s.publish(&relay.Event{
		Kind:     kind,
		Entity:   relay.EntityMessage,
		ChatID:   msg.ChatID,
		Message:  msg,
		Audience: messageAudience(chat),
	})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	chats, err := s.store.ListChats(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if chats == nil {
		chats = []*protocol.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleAccessDirectChat(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.UserID == userID {
		writeError(w, http.StatusBadRequest, "cannot open a chat with yourself")
		return
	}

	chat, created, err := s.store.AccessDirectChat(r.Context(), userID, req.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, chat)

	if created {
		s.publish(&relay.Event{
			Kind:     relay.KindCreated,
			Entity:   relay.EntityChat,
			ChatID:   chat.ID,
			Chat:     chat,
			Audience: relay.Audience{UserIDs: chat.Members},
		})
	}
}

func (s *Server) handleCreateGroupChat(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ValidateGroup(req.Name, req.Members); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chat, err := s.store.CreateGroupChat(r.Context(), req.Name, userID, req.Members)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)

	s.publish(&relay.Event{
		Kind:     relay.KindCreated,
		Entity:   relay.EntityChat,
		ChatID:   chat.ID,
		Chat:     chat,
		Audience: relay.Audience{UserIDs: chat.Members},
	})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	chat, err := s.store.GetChat(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	member := false
	for _, m := range chat.Members {
		if m == userID {
			member = true
			break
		}
	}
	if !member {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	chat, err := s.store.RenameGroup(r.Context(), r.PathValue("id"), userID, req.Name)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)

	s.publish(&relay.Event{
		Kind:     relay.KindUpdated,
		Entity:   relay.EntityChat,
		ChatID:   chat.ID,
		Chat:     chat,
		Audience: relay.Audience{UserIDs: chat.Members},
	})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	chat, err := s.store.DeleteChat(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": chat.ID})

	s.publish(&relay.Event{
		Kind:     relay.KindDeleted,
		Entity:   relay.EntityChat,
		ChatID:   chat.ID,
		Audience: relay.Audience{UserIDs: chat.Members},
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*protocol.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, userName, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ValidateContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chatID := r.PathValue("id")
	msg, err := s.store.CreateMessage(r.Context(), chatID, userID, userName, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)

	s.publishMessageEvent(r.Context(), relay.KindCreated, msg)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ValidateContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := s.store.UpdateMessage(r.Context(), r.PathValue("id"), userID, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)

	s.publishMessageEvent(r.Context(), relay.KindUpdated, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}
	msg, err := s.store.DeleteMessage(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": msg.ID, "chat_id": msg.ChatID})

	s.publishMessageEvent(r.Context(), relay.KindDeleted, msg)
}
