package feed

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	xerrors "Agentic-Oracle/internal/errors"
)

func TestMemoryRecentNewestFirst(t *testing.T) {
	mem := NewMemory(3)
	ctx := context.Background()
	for _, price := range []string{"1", "2", "3", "4"} {
		if err := mem.Publish(ctx, Update{Symbol: "ETHUSDT", Price: price}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	recent, err := mem.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].Price != "4" || recent[2].Price != "2" {
		t.Fatalf("unexpected updates %+v", recent)
	}

	two, _ := mem.Recent(ctx, 2)
	if len(two) != 2 || two[1].Price != "3" {
		t.Fatalf("unexpected limited updates %+v", two)
	}
}

func TestMemoryEmpty(t *testing.T) {
	recent, err := NewMemory(4).Recent(context.Background(), 10)
	if err != nil || len(recent) != 0 {
		t.Fatalf("expected no updates, got %+v %v", recent, err)
	}
}

func TestDetachedReportsUnavailable(t *testing.T) {
	d := NewDetached("")
	recent, err := d.Recent(context.Background(), 10)
	if recent != nil {
		t.Fatalf("expected no updates, got %+v", recent)
	}
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if xerrors.HTTPStatusOf(err) != 503 {
		t.Fatalf("expected 503, got %d", xerrors.HTTPStatusOf(err))
	}
}

func TestRabbitMQRecentUnsupported(t *testing.T) {
	var q *RabbitMQ
	if _, err := q.Recent(context.Background(), 1); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if err := q.Publish(context.Background(), Update{}); err == nil {
		t.Fatalf("expected error on nil queue")
	}
}

func TestRedisFeed(t *testing.T) {
	addr := os.Getenv("ORACLE_TEST_REDIS")
	if addr == "" {
		t.Skip("ORACLE_TEST_REDIS not set")
	}
	ctx := context.Background()
	key := "oracle:test:prices:" + time.Now().Format("150405.000000")
	r, err := NewRedis(ctx, RedisConfig{Address: addr, Key: key, Capacity: 2})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer r.Close()
	defer r.client.Del(ctx, key)

	for _, price := range []string{"1", "2", "3"} {
		if err := r.Publish(ctx, Update{Price: price}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	recent, err := r.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Price != "3" {
		t.Fatalf("unexpected updates %+v", recent)
	}
}
