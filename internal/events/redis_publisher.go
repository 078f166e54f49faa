package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisMonitorPublisher pushes events onto a per-test pub/sub channel that
// live monitoring dashboards subscribe to.
type RedisMonitorPublisher struct {
	client        *redis.Client
	channelPrefix string
	logger        *slog.Logger
}

func NewRedisMonitorPublisher(client *redis.Client, channelPrefix string, logger *slog.Logger) *RedisMonitorPublisher {
	if channelPrefix == "" {
		channelPrefix = "test"
	}
	return &RedisMonitorPublisher{
		client:        client,
		channelPrefix: channelPrefix,
		logger:        logger,
	}
}

// MonitorChannel returns the channel for one test, e.g. "test:<id>:monitor".
func MonitorChannel(prefix, testID string) string {
	return fmt.Sprintf("%s:%s:monitor", prefix, testID)
}

func (p *RedisMonitorPublisher) Publish(ctx context.Context, event *SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	channel := MonitorChannel(p.channelPrefix, event.TestID)
	receivers, err := p.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Published session event to monitor channel",
		"event_id", event.ID,
		"event_type", event.Type,
		"channel", channel,
		"receivers", receivers)
	return nil
}

// Close is a no-op; the redis client is owned by the caller.
func (p *RedisMonitorPublisher) Close() error {
	return nil
}
