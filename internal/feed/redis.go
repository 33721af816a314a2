package feed

import (
	"context"
	"fmt"

	"github.com/matheus3301/freightdesk/internal/status"
	"github.com/matheus3301/freightdesk/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRelay is a store.Notifier that fans changes out through a Redis
// channel. Every daemon subscribed to the channel, including the writer,
// republishes received changes on its local bus.
type RedisRelay struct {
	client    *redis.Client
	channel   string
	publisher *Publisher
	machine   *status.Machine
	logger    *zap.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ store.Notifier = (*RedisRelay)(nil)

// NewRedisRelay parses redisURL and pings the server.
func NewRedisRelay(ctx context.Context, redisURL, channel string, p *Publisher, m *status.Machine, logger *zap.Logger) (*RedisRelay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if channel == "" {
		channel = Channel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:    client,
		channel:   channel,
		publisher: p,
		machine:   m,
		logger:    logger,
	}, nil
}

// Notify publishes c on the Redis channel. A failed publish is logged; the
// next change or refresh converges subscribers.
func (r *RedisRelay) Notify(c store.Change) {
	data, err := EncodeChange(c)
	if err != nil {
		r.logger.Error("encode change", zap.Error(err))
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, data).Err(); err != nil {
		r.logger.Warn("redis publish failed", zap.Error(err), zap.String("conversation_id", c.ConversationID))
	}
}

// Start subscribes to the channel in the background.
func (r *RedisRelay) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	_ = r.machine.Transition(status.Connecting)

	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	_ = r.machine.Transition(status.Ready)
	r.logger.Info("change feed listening", zap.String("redis_channel", r.channel))

	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				c, err := DecodeChange([]byte(msg.Payload))
				if err != nil {
					r.logger.Warn("dropping malformed change", zap.Error(err))
					continue
				}
				r.publisher.Notify(c)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop ends the subscription and closes the client.
func (r *RedisRelay) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.done != nil {
		<-r.done
	}
	return r.client.Close()
}
