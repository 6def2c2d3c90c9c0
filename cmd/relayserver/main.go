package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/NoorMohdDev/Chat-App/internal/messaging"
	"github.com/NoorMohdDev/Chat-App/internal/presence"
	"github.com/NoorMohdDev/Chat-App/internal/protocol"
	"github.com/NoorMohdDev/Chat-App/internal/ratelimit"
	"github.com/NoorMohdDev/Chat-App/internal/relay"
	"github.com/NoorMohdDev/Chat-App/internal/room"
	"github.com/NoorMohdDev/Chat-App/internal/session"
	"github.com/NoorMohdDev/Chat-App/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsConfig.Name = "chat-relay"

	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "relay-1"
	}

	mirror, err := session.NewStore(redisAddr, serverName)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	limiter := ratelimit.NewLimiter(mirror.Client())

	lifecycle := ws.NewLifecycle(presence.NewRegistry(), room.NewManager(), mirror)

	log.Printf("Chat relay server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections:  %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  server_name:     %s", serverName)

	dispatcher := ws.NewMessageDispatcher(nil)

	// -----------------------------------------------------------------------
	// register — bind the connection to a user identity
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeRegister, func(conn *ws.Connection, msg interface{}) {
		regMsg, ok := msg.(protocol.RegisterMsg)
		if !ok {
			return
		}
		if regMsg.UserID == "" {
			dispatcher.SendError(conn, "invalid_register", "user_id is required")
			return
		}

		if allowed, _ := limiter.Allow(context.Background(), conn.ID, ratelimit.RuleRegister); !allowed {
			dispatcher.SendError(conn, "rate_limited", "too many register attempts")
			return
		}

		if err := lifecycle.Register(conn, regMsg.UserID); err != nil {
			if errors.Is(err, presence.ErrConflict) {
				dispatcher.SendError(conn, "registration_conflict", "connection already bound to another user")
				return
			}
			log.Printf("register failed conn=%s user=%s: %v", conn.ID, regMsg.UserID, err)
			dispatcher.SendError(conn, "register_failed", "registration failed")
			return
		}

		// Re-registering the same user acks again; reconnecting clients
		// treat the ack as confirmation either way.
		resp, _ := protocol.NewServerMessage(protocol.TypeRegistered, protocol.RegisteredMsg{
			UserID: regMsg.UserID,
			ConnID: conn.ID,
		})
		conn.WriteMessage(resp)
		log.Printf("register conn=%s user=%s", conn.ID, regMsg.UserID)
	})

	// -----------------------------------------------------------------------
	// join_room — subscribe the connection to a room's broadcasts
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoinRoom, func(conn *ws.Connection, msg interface{}) {
		joinMsg, ok := msg.(protocol.JoinRoomMsg)
		if !ok {
			return
		}
		if joinMsg.RoomID == "" {
			dispatcher.SendError(conn, "invalid_join", "room_id is required")
			return
		}

		if allowed, _ := limiter.Allow(context.Background(), conn.ID, ratelimit.RuleJoin); !allowed {
			dispatcher.SendError(conn, "rate_limited", "too many room joins")
			return
		}

		if err := lifecycle.Join(conn, joinMsg.RoomID); err != nil {
			if errors.Is(err, ws.ErrNotRegistered) {
				dispatcher.SendError(conn, "not_registered", "register before joining rooms")
				return
			}
			log.Printf("join failed conn=%s room=%s: %v", conn.ID, joinMsg.RoomID, err)
			return
		}

		resp, _ := protocol.NewServerMessage(protocol.TypeRoomJoined, protocol.RoomJoinedMsg{
			RoomID: joinMsg.RoomID,
		})
		conn.WriteMessage(resp)
		log.Printf("join_room conn=%s room=%s", conn.ID, joinMsg.RoomID)
	})

	// -----------------------------------------------------------------------
	// leave_room — unsubscribe the connection; leaving twice is harmless
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeLeaveRoom, func(conn *ws.Connection, msg interface{}) {
		leaveMsg, ok := msg.(protocol.LeaveRoomMsg)
		if !ok {
			return
		}
		if leaveMsg.RoomID == "" {
			dispatcher.SendError(conn, "invalid_leave", "room_id is required")
			return
		}

		if err := lifecycle.Leave(conn, leaveMsg.RoomID); err != nil {
			if errors.Is(err, ws.ErrNotRegistered) {
				dispatcher.SendError(conn, "not_registered", "register before leaving rooms")
			}
			return
		}
		log.Printf("leave_room conn=%s room=%s", conn.ID, leaveMsg.RoomID)
	})

	server := ws.NewServer(config, lifecycle, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	// The relay resolves committed mutations against the live registries and
	// fans frames out over this server's connections.
	relayer := relay.New(lifecycle.Presence(), lifecycle.Rooms(), server)

	if err := natsClient.SubscribeMutations(func(data []byte) {
		ev, err := relay.DecodeEvent(data)
		if err != nil {
			log.Printf("[relay] drop undecodable event: %v", err)
			return
		}
		if err := relayer.Dispatch(ev); err != nil {
			log.Printf("[relay] drop invalid event: %v", err)
		}
	}); err != nil {
		log.Fatalf("failed to subscribe to mutation events: %v", err)
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		natsClient.Close()
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := mirror.Close(); err != nil {
			log.Printf("session mirror close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
