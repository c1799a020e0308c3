package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	bus := NewRedis(client, RedisConfig{
		Group:    "test",
		Consumer: "test-1",
		Block:    50 * time.Millisecond,
	}, nil)
	return bus, client
}

func TestRedis_PublishConsumeFIFO(t *testing.T) {
	t.Parallel()

	bus, _ := newTestRedis(t)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	bus.Handle("k", func(ctx context.Context, msg Message) error {
		var n note
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, n.Text)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, text := range []string{"one", "two", "three"} {
		if err := bus.Publish(ctx, "k", note{Text: text}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	runErr := make(chan error, 1)
	go func() { runErr <- bus.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for deliveries")
	}
	cancel()
	if err := <-runErr; err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("unexpected delivery order: %v", got)
	}
}

func TestRedis_HandlerErrorStillAcks(t *testing.T) {
	t.Parallel()

	bus, client := newTestRedis(t)

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	bus.Handle("k", func(ctx context.Context, msg Message) error {
		mu.Lock()
		calls++
		if calls == 2 {
			close(done)
		}
		mu.Unlock()
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bus.Publish(ctx, "k", note{Text: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, "k", note{Text: "b"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	go func() { _ = bus.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for deliveries")
	}
	cancel()

	// Everything was acknowledged despite the handler errors.
	pending, err := client.XPending(context.Background(), "gavel:q:k", "test").Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending entries, got %d", pending.Count)
	}
}

func TestRedis_ObserveHookSeesErrors(t *testing.T) {
	t.Parallel()

	bus, _ := newTestRedis(t)

	type observation struct {
		key string
		err error
	}
	var mu sync.Mutex
	var seen []observation
	done := make(chan struct{})
	bus.Observe = func(key string, start time.Time, err error) {
		mu.Lock()
		seen = append(seen, observation{key: key, err: err})
		if len(seen) == 2 {
			close(done)
		}
		mu.Unlock()
	}

	handlerErr := errors.New("boom")
	fail := true
	bus.Handle("k", func(ctx context.Context, msg Message) error {
		if fail {
			fail = false
			return handlerErr
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bus.Publish(ctx, "k", note{Text: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, "k", note{Text: "b"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	go func() { _ = bus.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for observations")
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if seen[0].key != "k" || !errors.Is(seen[0].err, handlerErr) {
		t.Fatalf("first observation should carry the handler error: %+v", seen[0])
	}
	if seen[1].err != nil {
		t.Fatalf("second observation should be clean: %+v", seen[1])
	}
}

func TestRedis_DuplicateHandlerPanics(t *testing.T) {
	t.Parallel()

	bus, _ := newTestRedis(t)
	bus.Handle("k", func(ctx context.Context, msg Message) error { return nil })

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate handler")
		}
	}()
	bus.Handle("k", func(ctx context.Context, msg Message) error { return nil })
}

func TestRedis_RunWithoutHandlersFails(t *testing.T) {
	t.Parallel()

	bus, _ := newTestRedis(t)
	if err := bus.Run(context.Background()); err == nil {
		t.Fatalf("expected error when no handlers are registered")
	}
}

func TestRedis_BroadcastSubscribe(t *testing.T) {
	t.Parallel()

	bus, _ := newTestRedis(t)
	ctx := context.Background()

	ch, stop, err := bus.Subscribe(ctx, "topic")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := bus.Broadcast(ctx, "topic", note{Text: "hello"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	select {
	case msg := <-ch:
		var n note
		if err := json.Unmarshal(msg.Body, &n); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Key != "topic" || n.Text != "hello" {
			t.Fatalf("unexpected message: key=%q body=%s", msg.Key, msg.Body)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for broadcast")
	}
}
