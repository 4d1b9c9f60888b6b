package policy

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const refreshSignal = "refresh"

// Notifier tells other instances that the policy table changed.
type Notifier interface {
	NotifyUpdate(ctx context.Context) error
}

// RedisNotifier broadcasts over a Redis Pub/Sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (n *RedisNotifier) NotifyUpdate(ctx context.Context) error {
	return n.rdb.Publish(ctx, n.channel, refreshSignal).Err()
}

// NopNotifier is used when the service runs as a single instance.
type NopNotifier struct{}

func (NopNotifier) NotifyUpdate(context.Context) error { return nil }

// Listen keeps a subscription to the update channel alive and reloads the store on every
// signal and after every (re)connect, so updates missed while disconnected are picked up.
// Returns when ctx is done.
func Listen(ctx context.Context, rdb *redis.Client, store *Store, channel string, logger *zap.Logger) {
	logger = logger.Named("policy-sync")
	for {
		pubsub := rdb.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleep(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if err := store.Refresh(ctx); err != nil {
			logger.Error("refresh on reconnect failed", zap.Error(err))
		}

		ch := pubsub.Channel()
	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop
				}
				if msg.Payload != refreshSignal {
					logger.Warn("unexpected policy signal", zap.String("payload", msg.Payload))
					continue
				}
				if err := store.Refresh(ctx); err != nil {
					logger.Error("policy refresh failed", zap.Error(err))
				}
			}
		}

		pubsub.Close()
		if !sleep(ctx, time.Second) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
