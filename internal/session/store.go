// Package session mirrors per-connection metadata into Redis: which user a
// connection is bound to, which relay instance owns it, and when it was last
// active. The mirror is observational — dispatch decisions always come from
// the in-process registries — but it gives operators a live view across
// restarts and lets stale entries age out by TTL if a relay dies without
// cleanup.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// ConnPrefix is the Redis key prefix for all connection hashes.
	ConnPrefix = "conn:"

	// ConnTTL is the time-to-live for connection keys in Redis.
	ConnTTL = 1 * time.Hour

	// Lifecycle state constants, mirroring the in-process state machine.
	StateOpen       = "open"
	StateRegistered = "registered"
)

// Conn represents one connection's mirrored state in Redis.
type Conn struct {
	ID         string `redis:"id"`
	State      string `redis:"state"`   // open | registered
	UserID     string `redis:"user_id"` // empty until registered
	Server     string `redis:"server"`  // which relay instance owns it
	CreatedAt  int64  `redis:"created_at"`
	LastActive int64  `redis:"last_active"`
}

// Store manages connection state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this relay instance
}

// NewStore creates a new connection store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// Create stores a new connection entry in the open state with a 1h TTL.
func (s *Store) Create(ctx context.Context, connID string) error {
	key := ConnPrefix + connID
	now := time.Now().Unix()

	entry := map[string]interface{}{
		"id":          connID,
		"state":       StateOpen,
		"user_id":     "",
		"server":      s.serverName,
		"created_at":  now,
		"last_active": now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, entry)
	pipe.Expire(ctx, key, ConnTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a connection entry. Returns nil if not found.
func (s *Store) Get(ctx context.Context, connID string) (*Conn, error) {
	key := ConnPrefix + connID
	var conn Conn
	err := s.client.HGetAll(ctx, key).Scan(&conn)
	if err != nil {
		return nil, err
	}
	if conn.ID == "" {
		return nil, nil // not found
	}
	return &conn, nil
}

// BindUser records the user a connection registered as and refreshes the TTL.
func (s *Store) BindUser(ctx context.Context, connID, userID string) error {
	key := ConnPrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"state", StateRegistered,
		"user_id", userID,
		"last_active", time.Now().Unix())
	pipe.Expire(ctx, key, ConnTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Touch refreshes the last_active timestamp and TTL. Called from the
// heartbeat path so live entries never expire.
func (s *Store) Touch(ctx context.Context, connID string) error {
	key := ConnPrefix + connID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, ConnTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Delete removes a connection entry from Redis.
func (s *Store) Delete(ctx context.Context, connID string) error {
	key := ConnPrefix + connID
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
