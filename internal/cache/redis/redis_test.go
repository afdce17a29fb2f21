package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ryan26craf/polymarket-kalshi-arbitrage-bot/internal/domain"
)

func TestKeyHelpers(t *testing.T) {
	if got := lockKey("engine:cycle"); got != "lock:engine:cycle" {
		t.Errorf("lockKey = %q", got)
	}
	if got := rateLimitKey("api:10.0.0.1"); got != "ratelimit:api:10.0.0.1" {
		t.Errorf("rateLimitKey = %q", got)
	}
}

func TestHasPattern(t *testing.T) {
	tests := map[string]bool{
		"arb:opportunities": false,
		"arb:*":             true,
		"arb:?":             true,
		"arb:[ab]":          true,
	}
	for ch, want := range tests {
		if got := hasPattern(ch); got != want {
			t.Errorf("hasPattern(%q) = %v, want %v", ch, got, want)
		}
	}
}

func TestPayloadBytes(t *testing.T) {
	if b, ok := payloadBytes("x"); !ok || string(b) != "x" {
		t.Errorf("string payload = %q, %v", b, ok)
	}
	if b, ok := payloadBytes([]byte("y")); !ok || string(b) != "y" {
		t.Errorf("bytes payload = %q, %v", b, ok)
	}
	if _, ok := payloadBytes(42); ok {
		t.Error("int payload accepted")
	}
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	if slidingWindowLua == "" {
		t.Fatal("sliding window script not embedded")
	}
}

// The remaining tests need a live server:
//
//	ARBBOT_TEST_REDIS_ADDR=localhost:6379 go test ./internal/cache/redis
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("ARBBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ARBBOT_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockManager(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)
	key := "test:" + uuid.NewString()

	unlock, err := lm.Acquire(ctx, key, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, key, 10*time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire err = %v, want ErrLockHeld", err)
	}

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, key, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire after unlock: %v", err)
	}
	again()
}

func TestRateLimiter(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)
	key := "test:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Allow #%d denied within limit", i)
		}
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow over limit: %v", err)
	}
	if ok {
		t.Error("fourth request allowed with limit 3")
	}

	if _, err := rl.Allow(ctx, key, 0, time.Minute); err == nil {
		t.Error("zero limit accepted")
	}
}

func TestSignalBus(t *testing.T) {
	c := testClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bus := NewSignalBusWithMaxLen(c, 100)
	name := "test:" + uuid.NewString()

	msgs, err := bus.Subscribe(ctx, name)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Publish(ctx, name, []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-msgs:
		if string(got) != "hello" {
			t.Errorf("received %q", got)
		}
	case <-ctx.Done():
		t.Fatal("no message received")
	}

	stream := "stream:" + name
	empty, err := bus.StreamRead(ctx, stream, "0", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("StreamRead on empty stream = %v, %v", empty, err)
	}
	for _, p := range []string{"a", "b"} {
		if err := bus.StreamAppend(ctx, stream, []byte(p)); err != nil {
			t.Fatalf("StreamAppend: %v", err)
		}
	}
	got, err := bus.StreamRead(ctx, stream, "0", 10)
	if err != nil {
		t.Fatalf("StreamRead: %v", err)
	}
	if len(got) != 2 || string(got[0].Payload) != "a" || string(got[1].Payload) != "b" {
		t.Errorf("StreamRead = %+v", got)
	}
	c.Underlying().Del(context.Background(), stream)
}
