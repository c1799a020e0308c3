package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Inproc is an in-memory broker with the same delivery contract as the
// Redis one: per-key FIFO with handlers that never stop the queue, and
// at-most-once fanout topics. It backs tests and single-process runs.
type Inproc struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	subs     map[string][]chan Message
	seq      int
}

// NewInproc constructs an empty in-process broker.
func NewInproc() *Inproc {
	return &Inproc{
		handlers: make(map[string][]Handler),
		subs:     make(map[string][]chan Message),
	}
}

// Handle registers a handler for a routing key. Unlike the Redis
// broker, several handlers may share a key; each stands in for a
// separate consumer group.
func (b *Inproc) Handle(key string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key] = append(b.handlers[key], h)
}

// Run blocks until the context ends. Dispatch happens synchronously in
// Publish, so there is no consume loop to drive.
func (b *Inproc) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Publish delivers the payload synchronously to every handler for the
// key. Handler errors are swallowed, matching the ack-and-continue
// contract. Messages for keys with no handler are dropped.
func (b *Inproc) Publish(ctx context.Context, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	b.mu.Lock()
	b.seq++
	id := fmt.Sprintf("%d-0", b.seq)
	handlers := append([]Handler(nil), b.handlers[key]...)
	b.mu.Unlock()

	msg := Message{ID: id, Key: key, Body: data}
	for _, h := range handlers {
		_ = h(ctx, msg)
	}
	return nil
}

// Broadcast sends the payload to current subscribers of a topic. A full
// subscriber buffer drops the message rather than blocking.
func (b *Inproc) Broadcast(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	b.mu.Lock()
	subs := append([]chan Message(nil), b.subs[topic]...)
	b.mu.Unlock()

	msg := Message{Key: topic, Body: data}
	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe attaches a new subscriber channel to a topic.
func (b *Inproc) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 16)
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	stop := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, sub := range subs {
			if sub == ch {
				b.subs[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, stop, nil
}
