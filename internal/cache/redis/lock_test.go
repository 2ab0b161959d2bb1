package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"liquidityDesk/internal/model"
)

// LPDESK_TEST_REDIS_ADDR points the lock tests at a live Redis.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("LPDESK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LPDESK_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockKey(t *testing.T) {
	if got := lockKey("lpdesk:flow:a:b"); got != "lock:lpdesk:flow:a:b" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewRequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ClientConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestFlowLockExclusive(t *testing.T) {
	c := testClient(t)
	lock := NewFlowLock(c, nil)
	ctx := context.Background()
	key := "lpdesk:test:" + uuid.NewString()

	release, err := lock.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lock.Acquire(ctx, key, time.Minute); !errors.Is(err, model.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}

	release()
	release()

	again, err := lock.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again()
}
