package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joydrop/backend/internal/models"
)

const (
	// ChannelPrefix prefixes the per-account Redis channel.
	ChannelPrefix = "counter:"
	publishTTL    = 5 * time.Second
	subscribeTTL  = 5 * time.Second
)

// Channel returns the Redis channel for accountID.
func Channel(accountID uuid.UUID) string {
	return ChannelPrefix + accountID.String()
}

// RedisPubSub implements Bus using Redis pub/sub.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for counter updates.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger}
}

// PublishCounter publishes update to its account's channel.
func (r *RedisPubSub) PublishCounter(ctx context.Context, update models.CounterUpdate) error {
	body, err := json.Marshal(update)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTTL)
	defer cancel()
	return r.client.Publish(ctx, Channel(update.AccountID), body).Err()
}

// SubscribeCounter subscribes to an account's channel and calls handler for
// each update. The returned cancel stops the subscription.
func (r *RedisPubSub) SubscribeCounter(accountID uuid.UUID, handler func(models.CounterUpdate)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	confirmCtx, confirmDone := context.WithTimeout(ctx, subscribeTTL)
	defer confirmDone()
	pubsub := r.client.Subscribe(confirmCtx, Channel(accountID))
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var u models.CounterUpdate
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					r.logger.Debug("bad counter payload", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				handler(u)
			}
		}
	}()
	return cancelCtx, nil
}
