package backend

import "testing"

func TestRing_ConsistentHashingForReplies(t *testing.T) {
	ring := NewRing(3)
	key := "pysoa:service.x.deadbeef!cafe"

	first := ring.Index(key)
	for i := 0; i < 100; i++ {
		if got := ring.Index(key); got != first {
			t.Fatalf("Index(%q) = %d on call %d, want stable %d", key, got, i, first)
		}
	}
}

func TestRing_RoundRobinCoversAllShards(t *testing.T) {
	ring := NewRing(3)
	seen := make(map[int]bool)
	for i := 0; i < 100; i++ {
		seen[ring.Index("pysoa:service.example")] = true
	}
	if len(seen) != 3 {
		t.Fatalf("round robin visited %d distinct shards, want 3: %v", len(seen), seen)
	}
}

func TestRing_IndexDispatchesOnResponseMarker(t *testing.T) {
	ring := NewRing(4)

	requestIdx1 := ring.Index("pysoa:service.x")
	requestIdx2 := ring.Index("pysoa:service.x")
	if requestIdx1 == requestIdx2 {
		// Round robin should usually advance; with size 4 this is
		// deterministic on the first two calls.
		t.Fatalf("expected round-robin cursor to advance between calls, got %d twice", requestIdx1)
	}

	replyKey := "pysoa:service.x.clientid!threadid"
	replyIdx1 := ring.Index(replyKey)
	replyIdx2 := ring.Index(replyKey)
	if replyIdx1 != replyIdx2 {
		t.Fatalf("reply queue key hashed to different shards: %d then %d", replyIdx1, replyIdx2)
	}
}

func TestNewRing_PanicsOnZeroSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewRing(0) should panic")
		}
	}()
	NewRing(0)
}
