package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes each event as JSON on one Redis channel per room, named
// "<prefix>:<room>". Real-time gateways subscribe to the channels of their connected users.
type RedisSink struct {
	client *redis.Client
	prefix string
}

func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

// Channel returns the Redis channel of a room.
func (s *RedisSink) Channel(room string) string {
	return s.prefix + ":" + room
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	for _, room := range ev.Rooms() {
		if err := s.client.Publish(ctx, s.Channel(room), data).Err(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", s.Channel(room), err)
		}
	}
	return nil
}

// mockNotificationTTL is how long a mock notification stays readable.
const mockNotificationTTL = 5 * time.Minute

// RedisMockSink stores the latest event per room and kind under a key with a short TTL instead
// of publishing it, so end-to-end tests can read it back through the service API.
type RedisMockSink struct {
	client *redis.Client
}

func NewRedisMockSink(client *redis.Client) *RedisMockSink {
	return &RedisMockSink{client: client}
}

// MockKey is the key holding the latest mock notification of a kind for a room.
func MockKey(room string, kind Kind) string {
	return fmt.Sprintf("mocknotify:%s:%s", room, kind)
}

func (s *RedisMockSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	for _, room := range ev.Rooms() {
		key := MockKey(room, ev.Kind)
		if err := s.client.Set(ctx, key, data, mockNotificationTTL).Err(); err != nil {
			return fmt.Errorf("failed to store notification in Redis key '%s': %w", key, err)
		}
		log.Printf("Mock notification stored in Redis key '%s' (TTL: %v)", key, mockNotificationTTL)
	}
	return nil
}
