package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestStandardBackend_SendToQueueEnforcesCapacity(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := NewStandardBackend([]string{mr.Addr()}, ConnectionOptions{})
	if err != nil {
		t.Fatalf("NewStandardBackend() error = %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	conn, err := b.GetConnection(ctx, "pysoa:service.example")
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := SendToQueue(ctx, conn, "pysoa:service.example", []byte("msg"), 60, 3); err != nil {
			t.Fatalf("SendToQueue() attempt %d error = %v", i, err)
		}
	}

	if err := SendToQueue(ctx, conn, "pysoa:service.example", []byte("msg"), 60, 3); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("SendToQueue() at capacity error = %v, want ErrQueueFull", err)
	}
}

func TestStandardBackend_SendToQueueRefreshesExpiry(t *testing.T) {
	mr := miniredis.RunT(t)

	b, err := NewStandardBackend([]string{mr.Addr()}, ConnectionOptions{})
	if err != nil {
		t.Fatalf("NewStandardBackend() error = %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	conn, err := b.GetConnection(ctx, "pysoa:service.example")
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}

	if err := SendToQueue(ctx, conn, "pysoa:service.example", []byte("msg"), 60, 10); err != nil {
		t.Fatalf("SendToQueue() error = %v", err)
	}

	ttl := mr.TTL("pysoa:service.example")
	if ttl <= 0 {
		t.Fatalf("TTL on queue = %v, want a positive expiry", ttl)
	}
}

func TestStandardBackend_DistributesAcrossHosts(t *testing.T) {
	mr1 := miniredis.RunT(t)
	mr2 := miniredis.RunT(t)

	b, err := NewStandardBackend([]string{mr1.Addr(), mr2.Addr()}, ConnectionOptions{})
	if err != nil {
		t.Fatalf("NewStandardBackend() error = %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		conn, err := b.GetConnection(ctx, "pysoa:service.example")
		if err != nil {
			t.Fatalf("GetConnection() error = %v", err)
		}
		seen[conn.Options().Addr] = true
	}

	if len(seen) != 2 {
		t.Fatalf("round robin visited %d hosts, want 2: %v", len(seen), seen)
	}
}
