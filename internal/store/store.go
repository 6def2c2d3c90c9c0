// Package store provides PostgreSQL-backed storage for chats, memberships,
// and messages. It is the system of record: the relay only pushes what this
// layer has already committed.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/NoorMohdDev/Chat-App/internal/protocol"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sentinel errors distinguish "not there" and "not yours" from transport
// failures so the REST layer can map them to status codes.
var (
	ErrNotFound  = errors.New("store: not found")
	ErrForbidden = errors.New("store: forbidden")
)

// Store manages chats and messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies any pending schema migrations from the embedded sources.
// ErrNoChange from an already up-to-date database is not an error.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: apply migrations: %w", err)
	}
	return nil
}

// AccessDirectChat returns the existing 1:1 chat between two users, creating
// it if none exists yet. The returned bool reports whether a new chat was
// created.
func (s *Store) AccessDirectChat(ctx context.Context, userID, otherID string) (*protocol.Chat, bool, error) {
	const lookup = `
		SELECT c.id
		FROM chats c
		JOIN chat_members a ON a.chat_id = c.id AND a.user_id = $1
		JOIN chat_members b ON b.chat_id = c.id AND b.user_id = $2
		WHERE c.is_group = FALSE
		LIMIT 1`

	var chatID string
	err := s.db.QueryRowContext(ctx, lookup, userID, otherID).Scan(&chatID)
	switch {
	case err == nil:
		chat, err := s.GetChat(ctx, chatID)
		return chat, false, err
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("store: lookup direct chat: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	chatID = uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, is_group) VALUES ($1, FALSE)`, chatID); err != nil {
		return nil, false, fmt.Errorf("store: insert chat: %w", err)
	}
	for _, member := range []string{userID, otherID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, member); err != nil {
			return nil, false, fmt.Errorf("store: insert member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("store: commit: %w", err)
	}

	return &protocol.Chat{
		ID:      chatID,
		IsGroup: false,
		Members: []string{userID, otherID},
	}, true, nil
}

// CreateGroupChat creates a named group chat administered by adminID. The
// admin is always a member regardless of the supplied list.
func (s *Store) CreateGroupChat(ctx context.Context, name, adminID string, members []string) (*protocol.Chat, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	chatID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats (id, name, is_group, admin_id) VALUES ($1, $2, TRUE, $3)`,
		chatID, name, adminID); err != nil {
		return nil, fmt.Errorf("store: insert chat: %w", err)
	}

	seen := map[string]bool{}
	all := make([]string, 0, len(members)+1)
	for _, member := range append([]string{adminID}, members...) {
		if member == "" || seen[member] {
			continue
		}
		seen[member] = true
		all = append(all, member)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)`, chatID, member); err != nil {
			return nil, fmt.Errorf("store: insert member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	return &protocol.Chat{
		ID:      chatID,
		Name:    name,
		IsGroup: true,
		AdminID: adminID,
		Members: all,
	}, nil
}

// RenameGroup changes a group chat's name. Only the admin may rename.
func (s *Store) RenameGroup(ctx context.Context, chatID, requesterID, name string) (*protocol.Chat, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroup || chat.AdminID != requesterID {
		return nil, ErrForbidden
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chats SET name = $1 WHERE id = $2`, name, chatID); err != nil {
		return nil, fmt.Errorf("store: rename chat: %w", err)
	}
	chat.Name = name
	return chat, nil
}

// GetChat loads one chat and its member list.
func (s *Store) GetChat(ctx context.Context, chatID string) (*protocol.Chat, error) {
	chat := &protocol.Chat{ID: chatID}
	err := s.db.QueryRowContext(ctx,
		`SELECT name, is_group, admin_id FROM chats WHERE id = $1`, chatID).
		Scan(&chat.Name, &chat.IsGroup, &chat.AdminID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get chat: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM chat_members WHERE chat_id = $1 ORDER BY user_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("store: get members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("store: scan member: %w", err)
		}
		chat.Members = append(chat.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate members: %w", err)
	}
	return chat, nil
}

// ListChats returns every chat the user is a member of, newest first, with
// member lists populated.
func (s *Store) ListChats(ctx context.Context, userID string) ([]*protocol.Chat, error) {
	const query = `
		SELECT c.id, c.name, c.is_group, c.admin_id,
		       ARRAY(SELECT user_id FROM chat_members WHERE chat_id = c.id ORDER BY user_id)
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list chats: %w", err)
	}
	defer rows.Close()

	var chats []*protocol.Chat
	for rows.Next() {
		chat := &protocol.Chat{}
		if err := rows.Scan(&chat.ID, &chat.Name, &chat.IsGroup, &chat.AdminID,
			pq.Array(&chat.Members)); err != nil {
			return nil, fmt.Errorf("store: scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes a chat and (via cascade) its members and messages.
// Direct chats may be deleted by either member; group chats only by the
// admin. The chat as it stood before deletion is returned so callers can
// address its members.
func (s *Store) DeleteChat(ctx context.Context, chatID, requesterID string) (*protocol.Chat, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	allowed := false
	if chat.IsGroup {
		allowed = chat.AdminID == requesterID
	} else {
		for _, member := range chat.Members {
			if member == requesterID {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		return nil, ErrForbidden
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, chatID); err != nil {
		return nil, fmt.Errorf("store: delete chat: %w", err)
	}
	return chat, nil
}

// IsMember reports whether the user belongs to the chat.
func (s *Store) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2`, chatID, userID).
		Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: membership check: %w", err)
	}
	return true, nil
}

// CreateMessage inserts a message sent by a chat member and returns the
// persisted row.
func (s *Store) CreateMessage(ctx context.Context, chatID, senderID, senderName, content string) (*protocol.Message, error) {
	member, err := s.IsMember(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrForbidden
	}

	msg := &protocol.Message{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
	}
	var createdAt time.Time
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, sender_name, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		msg.ID, msg.ChatID, msg.SenderID, msg.SenderName, msg.Content).
		Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: insert message: %w", err)
	}
	msg.CreatedAt = createdAt.UnixMilli()
	return msg, nil
}

// ListMessages returns the messages of a chat in creation order. The
// requester must be a member.
func (s *Store) ListMessages(ctx context.Context, chatID, requesterID string) ([]*protocol.Message, error) {
	member, err := s.IsMember(ctx, chatID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrForbidden
	}

	const query = `
		SELECT id, sender_id, sender_name, content, created_at, updated_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*protocol.Message
	for rows.Next() {
		msg := &protocol.Message{ChatID: chatID}
		var createdAt time.Time
		var updatedAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.Content,
			&createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		msg.CreatedAt = createdAt.UnixMilli()
		if updatedAt.Valid {
			msg.UpdatedAt = updatedAt.Time.UnixMilli()
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages: %w", err)
	}
	return msgs, nil
}

// UpdateMessage replaces a message's content. Only the original sender may
// edit.
func (s *Store) UpdateMessage(ctx context.Context, messageID, requesterID, content string) (*protocol.Message, error) {
	msg := &protocol.Message{ID: messageID, Content: content}
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		UPDATE messages
		SET content = $1, updated_at = NOW()
		WHERE id = $2 AND sender_id = $3
		RETURNING chat_id, sender_id, sender_name, created_at, updated_at`,
		content, messageID, requesterID).
		Scan(&msg.ChatID, &msg.SenderID, &msg.SenderName, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish "no such message" from "not the sender".
		var exists int
		if lerr := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM messages WHERE id = $1`, messageID).Scan(&exists); lerr == nil {
			return nil, ErrForbidden
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: update message: %w", err)
	}
	msg.CreatedAt = createdAt.UnixMilli()
	msg.UpdatedAt = updatedAt.UnixMilli()
	return msg, nil
}

// DeleteMessage removes a message. The sender may always delete their own;
// a group admin may delete any message in their group. The deleted message
// is returned so callers can address its chat.
func (s *Store) DeleteMessage(ctx context.Context, messageID, requesterID string) (*protocol.Message, error) {
	msg := &protocol.Message{ID: messageID}
	var createdAt time.Time
	var adminID string
	err := s.db.QueryRowContext(ctx, `
		SELECT m.chat_id, m.sender_id, m.sender_name, m.content, m.created_at, c.admin_id
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.id = $1`, messageID).
		Scan(&msg.ChatID, &msg.SenderID, &msg.SenderName, &msg.Content, &createdAt, &adminID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load message: %w", err)
	}
	msg.CreatedAt = createdAt.UnixMilli()

	if msg.SenderID != requesterID && adminID != requesterID {
		return nil, ErrForbidden
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID); err != nil {
		return nil, fmt.Errorf("store: delete message: %w", err)
	}
	return msg, nil
}
