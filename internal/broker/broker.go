package broker

import "context"

// Message is a single delivery from a queue or topic.
type Message struct {
	ID   string
	Key  string
	Body []byte
}

// Handler processes one message. A non-nil error marks the message as
// failed for logging/metrics, but the message is still acknowledged and
// consumption continues: no single message may stall a queue.
type Handler func(ctx context.Context, msg Message) error

// Publisher appends a payload to the durable queue for a routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

// Topics is the fanout side of the broker: at-most-once delivery, no
// replay for late subscribers.
type Topics interface {
	Broadcast(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error)
}

// Consumer dispatches queue messages to registered handlers. Handlers
// run sequentially on a single goroutine per consumer, which is what
// serializes bids for the same auction.
type Consumer interface {
	Handle(key string, h Handler)
	Run(ctx context.Context) error
}
