package config

import (
	"log/slog"
	"strings"

	"github.com/SAP-F-2025/test-session-service/internal/events"
	"github.com/redis/go-redis/v9"
)

// EventConfig holds configuration for event publishing
type EventConfig struct {
	Enabled              bool
	Publisher            string // kafka, redis, kafka+redis or mock
	KafkaBrokers         string
	SessionEventsTopic   string
	BufferSize           int
	MonitorChannelPrefix string
}

// GetKafkaBrokers returns Kafka brokers as a slice
func (c *EventConfig) GetKafkaBrokers() []string {
	brokers := strings.Split(c.KafkaBrokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}

// CreateEventPublisher creates an event publisher based on configuration.
// redisClient may be nil unless a redis publisher is requested.
func (c *EventConfig) CreateEventPublisher(logger *slog.Logger, redisClient *redis.Client) (events.EventPublisher, error) {
	if !c.Enabled {
		logger.Info("Event publishing disabled, using mock publisher")
		return events.NewMockEventPublisher(logger), nil
	}

	switch c.Publisher {
	case "kafka":
		return c.kafkaPublisher(logger)
	case "redis":
		return c.redisPublisher(logger, redisClient), nil
	case "kafka+redis":
		kafkaPublisher, err := c.kafkaPublisher(logger)
		if err != nil {
			return nil, err
		}
		return events.NewFanoutPublisher(kafkaPublisher, c.redisPublisher(logger, redisClient)), nil
	case "mock":
		logger.Info("Using mock event publisher")
		return events.NewMockEventPublisher(logger), nil
	default:
		logger.Warn("Unknown event publisher type, falling back to mock", "publisher", c.Publisher)
		return events.NewMockEventPublisher(logger), nil
	}
}

func (c *EventConfig) kafkaPublisher(logger *slog.Logger) (events.EventPublisher, error) {
	logger.Info("Creating Kafka event publisher",
		"brokers", c.KafkaBrokers,
		"topic", c.SessionEventsTopic)

	return events.NewKafkaEventPublisher(events.PublisherConfig{
		KafkaBrokers: c.GetKafkaBrokers(),
		TopicName:    c.SessionEventsTopic,
		Logger:       logger,
	})
}

func (c *EventConfig) redisPublisher(logger *slog.Logger, client *redis.Client) events.EventPublisher {
	logger.Info("Creating Redis monitor publisher", "channel_prefix", c.MonitorChannelPrefix)
	return events.NewRedisMonitorPublisher(client, c.MonitorChannelPrefix, logger)
}
