package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	streamPrefix  = "gavel:q:"
	channelPrefix = "gavel:t:"
	bodyField     = "body"
)

// RedisConfig controls the stream consumer side of a Redis broker.
type RedisConfig struct {
	// Group names the consumer group; one group per service.
	Group string
	// Consumer names this process within the group.
	Consumer string
	// Block bounds each XREADGROUP call. Zero means a short default so
	// shutdown stays responsive.
	Block time.Duration
	// StreamMaxLen trims queue streams approximately. Zero disables
	// trimming.
	StreamMaxLen int64
}

// Redis is a broker backed by Redis: streams with consumer groups for
// durable FIFO queues, pub/sub channels for fanout topics.
type Redis struct {
	client   redis.UniversalClient
	cfg      RedisConfig
	log      *logrus.Entry
	handlers map[string]Handler
	keys     []string
	// Observe, when set, is called around each handled message.
	Observe func(key string, start time.Time, err error)
}

// NewRedis constructs a Redis broker. The client must already be
// connected; connection failure at startup is the caller's fatal error.
func NewRedis(client redis.UniversalClient, cfg RedisConfig, log *logrus.Entry) *Redis {
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Consumer == "" {
		cfg.Consumer = cfg.Group + "-1"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Redis{
		client:   client,
		cfg:      cfg,
		log:      log,
		handlers: make(map[string]Handler),
	}
}

// Publish appends the payload to the stream for the routing key.
func (r *Redis) Publish(ctx context.Context, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	args := &redis.XAddArgs{
		Stream: streamPrefix + key,
		Values: map[string]any{bodyField: data},
	}
	if r.cfg.StreamMaxLen > 0 {
		args.MaxLen = r.cfg.StreamMaxLen
		args.Approx = true
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Broadcast publishes the payload to a pub/sub topic. Subscribers that
// are not connected at this moment never see the message.
func (r *Redis) Broadcast(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	if err := r.client.Publish(ctx, channelPrefix+topic, data).Err(); err != nil {
		return fmt.Errorf("broadcast %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription on a topic. The returned stop
// function closes the subscription and the channel.
func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan Message, func(), error) {
	sub := r.client.Subscribe(ctx, channelPrefix+topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- Message{
				Key:  strings.TrimPrefix(msg.Channel, channelPrefix),
				Body: []byte(msg.Payload),
			}
		}
	}()

	stop := func() { _ = sub.Close() }
	return out, stop, nil
}

// Handle registers the handler for a routing key. Must be called before
// Run.
func (r *Redis) Handle(key string, h Handler) {
	if _, dup := r.handlers[key]; dup {
		panic("broker: duplicate handler for " + key)
	}
	r.handlers[key] = h
	r.keys = append(r.keys, key)
}

// Run consumes all registered queues until the context ends. Messages
// are dispatched one at a time in delivery order and always
// acknowledged; handler errors are logged, never re-raised.
func (r *Redis) Run(ctx context.Context) error {
	if len(r.keys) == 0 {
		return errors.New("broker: no handlers registered")
	}
	if err := r.ensureGroups(ctx); err != nil {
		return err
	}

	streams := make([]string, 0, 2*len(r.keys))
	for _, key := range r.keys {
		streams = append(streams, streamPrefix+key)
	}
	for range r.keys {
		streams = append(streams, ">")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.cfg.Group,
			Consumer: r.cfg.Consumer,
			Streams:  streams,
			Count:    16,
			Block:    r.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			r.log.WithError(err).Warn("read group failed, retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		for _, stream := range res {
			key := strings.TrimPrefix(stream.Stream, streamPrefix)
			for _, m := range stream.Messages {
				r.dispatch(ctx, key, stream.Stream, m)
			}
		}
	}
}

func (r *Redis) dispatch(ctx context.Context, key, stream string, m redis.XMessage) {
	msg := Message{ID: m.ID, Key: key}
	if raw, ok := m.Values[bodyField].(string); ok {
		msg.Body = []byte(raw)
	}

	start := time.Now()
	var err error
	if handler := r.handlers[key]; handler != nil {
		err = handler(ctx, msg)
	}
	if r.Observe != nil {
		r.Observe(key, start, err)
	}
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"key":    key,
			"msg_id": m.ID,
		}).Error("message handling failed, acknowledging anyway")
	}

	if ackErr := r.client.XAck(ctx, stream, r.cfg.Group, m.ID).Err(); ackErr != nil && ctx.Err() == nil {
		r.log.WithError(ackErr).WithField("msg_id", m.ID).Warn("ack failed")
	}
}

func (r *Redis) ensureGroups(ctx context.Context) error {
	for _, key := range r.keys {
		err := r.client.XGroupCreateMkStream(ctx, streamPrefix+key, r.cfg.Group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group %s/%s: %w", key, r.cfg.Group, err)
		}
	}
	return nil
}
