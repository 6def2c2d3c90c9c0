package room

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestJoinAndBroadcastTargets(t *testing.T) {
	m := NewManager()

	m.Join("c1", "g1")
	m.Join("c2", "g1")
	m.Join("c3", "g2")

	targets := m.BroadcastTargets("g1")
	sort.Strings(targets)
	if len(targets) != 2 || targets[0] != "c1" || targets[1] != "c2" {
		t.Fatalf("BroadcastTargets(g1) = %v, want [c1 c2]", targets)
	}
	if got := m.BroadcastTargets("g2"); len(got) != 1 || got[0] != "c3" {
		t.Fatalf("BroadcastTargets(g2) = %v, want [c3]", got)
	}
	if got := m.BroadcastTargets("empty"); len(got) != 0 {
		t.Fatalf("BroadcastTargets(empty) = %v, want none", got)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	m := NewManager()

	m.Join("c1", "g1")
	m.Join("c1", "g1")

	if got := m.BroadcastTargets("g1"); len(got) != 1 {
		t.Errorf("BroadcastTargets(g1) = %v, want single membership", got)
	}
}

func TestLeave(t *testing.T) {
	m := NewManager()

	m.Join("c1", "g1")
	m.Join("c2", "g1")
	m.Leave("c1", "g1")

	if m.Contains("c1", "g1") {
		t.Error("Contains(c1, g1) = true after Leave")
	}
	if got := m.BroadcastTargets("g1"); len(got) != 1 || got[0] != "c2" {
		t.Errorf("BroadcastTargets(g1) = %v, want [c2]", got)
	}

	// Leaving a room never joined is a no-op.
	m.Leave("c9", "g1")
	m.Leave("c2", "g9")
	if got := m.BroadcastTargets("g1"); len(got) != 1 {
		t.Errorf("BroadcastTargets(g1) after noop leaves = %v", got)
	}
}

// A connection that joins a room and later closes without an explicit leave
// must not appear in the room's broadcast targets.
func TestLeaveAllOnClose(t *testing.T) {
	m := NewManager()

	m.Join("c1", "g1")
	m.Join("c1", "g2")
	m.Join("c2", "g1")

	left := m.LeaveAll("c1")
	sort.Strings(left)
	if len(left) != 2 || left[0] != "g1" || left[1] != "g2" {
		t.Fatalf("LeaveAll(c1) = %v, want [g1 g2]", left)
	}

	for _, roomID := range []string{"g1", "g2"} {
		for _, target := range m.BroadcastTargets(roomID) {
			if target == "c1" {
				t.Errorf("closed connection c1 still in BroadcastTargets(%s)", roomID)
			}
		}
	}
	if got := m.Rooms("c1"); len(got) != 0 {
		t.Errorf("Rooms(c1) = %v after LeaveAll, want none", got)
	}

	// Duplicate close signals must not disturb remaining members.
	if again := m.LeaveAll("c1"); again != nil {
		t.Errorf("second LeaveAll(c1) = %v, want nil", again)
	}
	if got := m.BroadcastTargets("g1"); len(got) != 1 || got[0] != "c2" {
		t.Errorf("BroadcastTargets(g1) = %v, want [c2]", got)
	}
}

func TestEmptyRoomsAreDeleted(t *testing.T) {
	m := NewManager()

	m.Join("c1", "g1")
	m.Leave("c1", "g1")

	if m.RoomCount() != 0 {
		t.Errorf("RoomCount() = %d, want 0 (empty room entry must be deleted)", m.RoomCount())
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", n)
			roomID := fmt.Sprintf("g%d", n%3)
			m.Join(conn, roomID)
			m.BroadcastTargets(roomID)
			m.LeaveAll(conn)
		}(i)
	}
	wg.Wait()

	if m.RoomCount() != 0 {
		t.Errorf("RoomCount() = %d after all left, want 0", m.RoomCount())
	}
}
