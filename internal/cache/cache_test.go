package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestMemoryExpiresEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mem := NewMemory(4)
	mem.now = func() time.Time { return now }
	ctx := context.Background()

	if err := mem.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := mem.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected get result %q, %v", got, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := mem.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryEvictsWhenFull(t *testing.T) {
	mem := NewMemory(2)
	ctx := context.Background()
	_ = mem.Set(ctx, "a", []byte("1"), time.Second)
	_ = mem.Set(ctx, "b", []byte("2"), time.Hour)
	_ = mem.Set(ctx, "c", []byte("3"), time.Hour)

	if mem.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", mem.Len())
	}
	if _, err := mem.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected earliest expiring entry to be evicted")
	}
}

func TestRememberLoadsOnce(t *testing.T) {
	mem := NewMemory(8)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := Remember(ctx, mem, Key("news", 5), time.Minute, load)
		if err != nil {
			t.Fatalf("remember: %v", err)
		}
		if len(got) != 2 || got[1] != "b" {
			t.Fatalf("unexpected value %v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected loader to run once, ran %d times", calls)
	}
}

func TestRememberDoesNotCacheErrors(t *testing.T) {
	mem := NewMemory(8)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return 0, errors.New("upstream down")
	}
	for i := 0; i < 2; i++ {
		if _, err := Remember(ctx, mem, "k", time.Minute, load); err == nil {
			t.Fatalf("expected error")
		}
	}
	if calls != 2 {
		t.Fatalf("expected loader to run twice, ran %d times", calls)
	}
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("ORACLE_TEST_REDIS")
	if addr == "" {
		t.Skip("ORACLE_TEST_REDIS not set")
	}
	ctx := context.Background()
	rc, err := NewRedis(ctx, RedisOptions{Address: addr, Prefix: "oracle:test"})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer rc.Close()

	if err := rc.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := rc.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected get result %q, %v", got, err)
	}
	if _, err := rc.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}
