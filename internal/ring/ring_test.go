package ring

import (
	"fmt"
	"testing"
)

var peers = []string{"10.0.0.1:7070", "10.0.0.2:7070", "10.0.0.3:7070"}

func TestRing_Owner(t *testing.T) {
	r := New(64, peers...)

	key := "test-key-123"
	owner1, found1 := r.Owner(key)
	if !found1 {
		t.Fatal("Expected to find an owner")
	}
	owner2, _ := r.Owner(key)
	if owner1 != owner2 {
		t.Errorf("Determinism failed: same key mapped to different peers: %s vs %s", owner1, owner2)
	}
}

func TestRing_OrderIndependent(t *testing.T) {
	r1 := New(64, peers...)
	r2 := New(64, peers[2], peers[0], peers[1])

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		o1, _ := r1.Owner(key)
		o2, _ := r2.Owner(key)
		if o1 != o2 {
			t.Errorf("Owner mismatch for key %s: %s != %s", key, o1, o2)
		}
	}
}

func TestRing_Distribution(t *testing.T) {
	r := New(128, peers...)

	distribution := make(map[string]int)
	numKeys := 1000
	for i := 0; i < numKeys; i++ {
		owner, found := r.Owner(fmt.Sprintf("key-%d", i))
		if !found {
			t.Fatal("Expected to find owner")
		}
		distribution[owner]++
	}

	if len(distribution) != 3 {
		t.Errorf("Expected 3 peers to own keys, got %d", len(distribution))
	}
	for addr, count := range distribution {
		if pct := float64(count) / float64(numKeys) * 100; pct > 90 {
			t.Errorf("Peer %s owns %.2f%% of keys (too high)", addr, pct)
		}
	}
}

func TestRing_Remove(t *testing.T) {
	r := New(64, peers...)
	r.Remove(peers[1])
	r.Remove("unknown:1")

	for i := 0; i < 100; i++ {
		owner, found := r.Owner(fmt.Sprintf("key-%d", i))
		if !found {
			t.Fatal("Expected owner after removal")
		}
		if owner == peers[1] {
			t.Errorf("key-%d still mapped to removed peer", i)
		}
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRing_RemoveOnlyMovesRemovedKeys(t *testing.T) {
	r := New(128, peers...)

	before := make(map[string]string)
	for i := 0; i < 500; i++ {
		key := fmt.Sprintf("key-%d", i)
		before[key], _ = r.Owner(key)
	}

	r.Remove(peers[2])

	for key, owner := range before {
		after, _ := r.Owner(key)
		if owner != peers[2] && after != owner {
			t.Errorf("key %s moved from %s to %s although its owner stayed", key, owner, after)
		}
	}
}

func TestRing_Add(t *testing.T) {
	r := New(64, peers[0])
	r.Add(peers[1])
	r.Add(peers[1])
	r.Add("")

	got := r.Peers()
	if len(got) != 2 || got[0] != peers[0] || got[1] != peers[1] {
		t.Errorf("Peers() = %v", got)
	}
}

func TestRing_Empty(t *testing.T) {
	r := New(0)
	if owner, found := r.Owner("any-key"); found || owner != "" {
		t.Error("Expected no owner for empty ring")
	}
	if got := r.Owners("any-key", 3); len(got) != 0 {
		t.Errorf("Owners() = %v, want empty", got)
	}
}

func TestRing_Owners(t *testing.T) {
	r := New(64, peers...)

	list := r.Owners("test-key", 3)
	if len(list) != 3 {
		t.Fatalf("Expected 3 owners, got %d", len(list))
	}

	seen := make(map[string]bool)
	for _, addr := range list {
		if seen[addr] {
			t.Errorf("Duplicate peer %s in owners", addr)
		}
		seen[addr] = true
	}

	owner, _ := r.Owner("test-key")
	if list[0] != owner {
		t.Errorf("First owner should be Owner(): got %s, expected %s", list[0], owner)
	}

	if got := r.Owners("key", 5); len(got) != 3 {
		t.Errorf("Expected 3 owners when asking for more than available, got %d", len(got))
	}
}
