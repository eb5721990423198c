package messaging

import (
	"context"
	"fmt"

	"github.com/Aidin1998/pincex_clob/internal/config"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// streamClient is the part of a redis client the stream publisher uses.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisPublisher appends committed events to a capped Redis stream.
type RedisPublisher struct {
	client streamClient
	stream string
	maxLen int64
	source string
	logger *zap.Logger
}

var _ model.EventPublisher = (*RedisPublisher)(nil)

func NewRedisPublisher(cfg config.RedisConfig, source string, logger *zap.Logger) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis publisher needs an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newRedisPublisher(client, cfg.Stream, cfg.MaxLen, source, logger), nil
}

func newRedisPublisher(c streamClient, stream string, maxLen int64, source string, logger *zap.Logger) *RedisPublisher {
	if stream == "" {
		stream = "clob:events"
	}
	return &RedisPublisher{client: c, stream: stream, maxLen: maxLen, source: source, logger: logger.Named("redis")}
}

// PublishEvents adds one stream entry per event, in order.
func (p *RedisPublisher) PublishEvents(ctx context.Context, events []model.Event) error {
	for _, ev := range events {
		key, value, err := encodeEvent(p.source, ev)
		if err != nil {
			return err
		}
		args := &redis.XAddArgs{
			Stream: p.stream,
			Values: map[string]interface{}{
				"market":   string(key),
				"sequence": ev.Sequence,
				"type":     string(MessageTypeOf(ev)),
				"payload":  value,
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			p.logger.Error("Failed to append event to stream",
				zap.Error(err),
				zap.String("stream", p.stream),
				zap.Uint64("sequence", ev.Sequence))
			return fmt.Errorf("redis publish: %w", err)
		}
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
