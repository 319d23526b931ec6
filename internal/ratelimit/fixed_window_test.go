package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLimiter(t *testing.T, mr *miniredis.Miniredis, name string, limit int) *FixedWindowLimiter {
	t.Helper()
	client, err := NewRedisClient(mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", name, limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	limiter.now = func() time.Time { return time.UnixMilli(90_000) }
	return limiter
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newTestLimiter(t, mr, "chat", 2)
	ctx := context.Background()

	for i, wantRemaining := range []int{1, 0} {
		d, err := limiter.Allow(ctx, "ip-1")
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if !d.Allowed || d.Remaining != wantRemaining {
			t.Fatalf("request %d: unexpected decision %+v", i, d)
		}
	}
	d, err := limiter.Allow(ctx, "ip-1")
	if err != nil {
		t.Fatalf("third request: %v", err)
	}
	if d.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if d.RetryAfter != 30*time.Second {
		t.Fatalf("expected 30s retry-after, got %s", d.RetryAfter)
	}
	if d, _ := limiter.Allow(ctx, "ip-2"); !d.Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterRulesAreIndependent(t *testing.T) {
	mr := miniredis.RunT(t)
	chat := newTestLimiter(t, mr, "chat", 1)
	guestbook := newTestLimiter(t, mr, "guestbook", 1)
	ctx := context.Background()

	if d, _ := chat.Allow(ctx, "ip-1"); !d.Allowed {
		t.Fatalf("first chat request should pass")
	}
	if d, _ := guestbook.Allow(ctx, "ip-1"); !d.Allowed {
		t.Fatalf("guestbook quota must not share the chat counter")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newTestLimiter(t, mr, "chat", 1)
	mr.Close()
	d, err := limiter.Allow(context.Background(), "ip-1")
	if err == nil || d.Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewRedisClient("", ""); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "", "chat", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	mr := miniredis.RunT(t)
	client, _ := NewRedisClient(mr.Addr(), "")
	defer client.Close()
	if _, err := NewFixedWindowLimiter(client, "", "chat", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewFixedWindowLimiter(client, "", " ", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty name")
	}
}
