package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestMemory_GetPut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMemory(clock)
	ctx := context.Background()

	if _, ok := m.Get(ctx, "geocode:miami"); ok {
		t.Fatal("expected miss on empty store")
	}

	m.Put(ctx, "geocode:miami", []byte(`{"lat":25.76}`), time.Hour)
	got, ok := m.Get(ctx, "geocode:miami")
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if string(got) != `{"lat":25.76}` {
		t.Errorf("Get() = %s", got)
	}
}

func TestMemory_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMemory(clock)
	ctx := context.Background()

	m.Put(ctx, "k", []byte("v"), time.Hour)

	clock.Advance(time.Hour - time.Second)
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	clock.Advance(2 * time.Second)
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("expected miss after TTL elapsed")
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after expired read, want 0", m.Len())
	}
}

func TestMemory_PutReplaces(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMemory(clock)
	ctx := context.Background()

	m.Put(ctx, "k", []byte("old"), time.Minute)
	m.Put(ctx, "k", []byte("new"), time.Hour)

	clock.Advance(30 * time.Minute)
	got, ok := m.Get(ctx, "k")
	if !ok {
		t.Fatal("expected hit, second Put should have extended the TTL")
	}
	if string(got) != "new" {
		t.Errorf("Get() = %s, want new", got)
	}
}

func TestMemory_Sweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMemory(clock)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Put(ctx, "stale", []byte("v"), time.Minute)
	m.Put(ctx, "fresh", []byte("v"), time.Hour)

	m.StartSweep(ctx, 5*time.Minute)
	clock.BlockUntil(1)
	clock.Advance(5 * time.Minute)

	deadline := time.After(2 * time.Second)
	for m.Len() != 1 {
		select {
		case <-deadline:
			t.Fatalf("Len() = %d after sweep, want 1", m.Len())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if _, ok := m.Get(ctx, "fresh"); !ok {
		t.Error("sweep removed a live entry")
	}
}
