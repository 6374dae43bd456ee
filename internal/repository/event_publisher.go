package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/herbtrace-api/internal/models"
)

// RedisEventPublisher publishes fan-out events to a Redis channel.
type RedisEventPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisEventPublisher constructs a publisher for channel.
func NewRedisEventPublisher(client *redis.Client, channel string) *RedisEventPublisher {
	if channel == "" {
		channel = "herbtrace.events"
	}
	return &RedisEventPublisher{client: client, channel: channel}
}

// Channel reports the channel events are published to.
func (p *RedisEventPublisher) Channel() string {
	return p.channel
}

// Publish sends the JSON encoded event. Subscribers that are offline miss it.
func (p *RedisEventPublisher) Publish(ctx context.Context, event models.Event) error {
	if p.client == nil {
		return fmt.Errorf("publish %s: redis client not configured", event.Type)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, p.channel, err)
	}
	return nil
}
