package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testLimiter connects to a local Redis instance and clears test keys.
// Tests are skipped when Redis is unavailable.
func testLimiter(t *testing.T) *Limiter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	for _, prefix := range []string{"rl:reg:test_*", "rl:join:test_*", "rl:conn:test_*", "rl:t:test_*"} {
		iter := client.Scan(ctx, 0, prefix, 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client)
}

func TestAllowWithinLimit(t *testing.T) {
	l := testLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:t:", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < rule.Limit; i++ {
		allowed, err := l.Allow(ctx, "test_conn", rule)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}

	allowed, err := l.Allow(ctx, "test_conn", rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if allowed {
		t.Error("request over the limit was allowed")
	}
}

func TestRemaining(t *testing.T) {
	l := testLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:t:", Limit: 5, Window: 10 * time.Second}

	remaining, err := l.Remaining(ctx, "test_fresh", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != rule.Limit {
		t.Errorf("fresh identifier remaining = %d, want %d", remaining, rule.Limit)
	}

	l.Allow(ctx, "test_fresh", rule)
	l.Allow(ctx, "test_fresh", rule)

	remaining, err = l.Remaining(ctx, "test_fresh", rule)
	if err != nil {
		t.Fatalf("Remaining() error: %v", err)
	}
	if remaining != rule.Limit-2 {
		t.Errorf("remaining = %d, want %d", remaining, rule.Limit-2)
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	l := testLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:t:", Limit: 1, Window: 10 * time.Second}

	if allowed, _ := l.Allow(ctx, "test_a", rule); !allowed {
		t.Fatal("first request for test_a denied")
	}
	if allowed, _ := l.Allow(ctx, "test_a", rule); allowed {
		t.Error("second request for test_a allowed over limit")
	}
	if allowed, _ := l.Allow(ctx, "test_b", rule); !allowed {
		t.Error("test_b throttled by test_a's counter")
	}
}
