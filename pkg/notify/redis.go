package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes window events on a Redis Pub/Sub channel
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher creates a publisher on channel. The client is shared and
// is not closed by Close.
func NewRedisPublisher(client redis.UniversalClient, channel string, logger *zap.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client cannot be nil", ErrInvalidConfiguration)
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: redis channel cannot be empty", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}, nil
}

// Publish sends ev to every current subscriber of the channel
func (p *RedisPublisher) Publish(ctx context.Context, ev *WindowCommitted) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	receivers, err := p.client.Publish(ctx, p.channel, data).Result()
	if err = record("redis", err); err != nil {
		return err
	}

	p.logger.Debug("published window",
		zap.String("channel", p.channel),
		zap.Uint64("to", ev.To),
		zap.Int64("receivers", receivers))
	return nil
}

// Close implements Publisher
func (p *RedisPublisher) Close() error {
	return nil
}
