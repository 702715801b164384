package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, cfg), mr
}

func TestCheckRefreshFixedWindow(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxRefreshAttempts: 2, RefreshWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckRefresh(ctx, "u1", "d1"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := l.CheckRefresh(ctx, "u1", "d1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckRefresh(ctx, "u1", "d2"); err != nil {
		t.Fatalf("other device must have its own budget: %v", err)
	}

	if ttl := mr.TTL("tgr:u1:d1"); ttl != time.Minute {
		t.Fatalf("expected window ttl of 1m, got %v", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if err := l.CheckRefresh(ctx, "u1", "d1"); err != nil {
		t.Fatalf("expected new window to allow refresh: %v", err)
	}
}

func TestCheckRefreshDisabled(t *testing.T) {
	l, mr := newTestLimiter(t, Config{})
	for i := 0; i < 10; i++ {
		if err := l.CheckRefresh(context.Background(), "u1", "d1"); err != nil {
			t.Fatalf("disabled limiter must not throttle: %v", err)
		}
	}
	if mr.Exists("tgr:u1:d1") {
		t.Fatal("disabled limiter must not write counters")
	}

	var nilLimiter *Limiter
	if err := nilLimiter.CheckRefresh(context.Background(), "u", "d"); err != nil {
		t.Fatalf("nil limiter must allow: %v", err)
	}
}

func TestLoginFailureBudget(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxLoginFailures: 3, LoginWindow: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "a@b.c"); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if err := l.RecordLoginFailure(ctx, "a@b.c"); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if err := l.CheckLogin(ctx, "a@b.c"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if err := l.ResetLogin(ctx, "a@b.c"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.CheckLogin(ctx, "a@b.c"); err != nil {
		t.Fatalf("expected reset to clear the budget: %v", err)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxRefreshAttempts: 1, RefreshWindow: time.Minute, MaxLoginFailures: 1, LoginWindow: time.Minute})
	mr.Close()

	if err := l.CheckRefresh(context.Background(), "u", "d"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if err := l.CheckLogin(context.Background(), "u"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
