package ws

import (
	"sync"
	"testing"
	"time"
)

// Read workers and the pong path record activity while the heartbeat
// goroutine reads it; both sides must be safe to run concurrently.
func TestLastPingConcurrentAccess(t *testing.T) {
	c := &Connection{ID: "c1", state: StateOpen}
	c.MarkAlive()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.MarkAlive()
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if c.LastPing().IsZero() {
					t.Error("LastPing() returned zero after MarkAlive")
					return
				}
			}
		}()
	}
	wg.Wait()

	if since := time.Since(c.LastPing()); since > time.Minute {
		t.Errorf("LastPing() = %s ago, want recent", since)
	}
}

func TestMarkClosedWinsOnce(t *testing.T) {
	c := &Connection{ID: "c1", state: StateOpen}

	var wins int32
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.markClosed() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("markClosed() won %d times, want exactly 1", wins)
	}
	if c.State() != StateClosed {
		t.Errorf("State() = %d, want StateClosed", c.State())
	}
}
