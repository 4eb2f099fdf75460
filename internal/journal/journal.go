// Package journal publishes match events to a Redis queue consumed by an
// external historian. It is an outbound feed only: room state itself is
// never persisted, and a nil *Journal disables publishing entirely.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// MatchEventRecord holds the minimal info needed by the historian.
type MatchEventRecord struct {
	RoomCode  string                 `json:"room_code"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Journal wraps the Redis client and target queue name.
type Journal struct {
	rdb   *redis.Client
	queue string
}

// Connect initializes a Journal against the given Redis address and verifies
// the connection with a ping.
func Connect(addr, queue string) (*Journal, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Journal{rdb: rdb, queue: queue}, nil
}

// Publish serializes the record to JSON and pushes it onto the queue.
func (j *Journal) Publish(ctx context.Context, rec MatchEventRecord) error {
	if j == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal MatchEventRecord: %w", err)
	}
	if err := j.rdb.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", j.queue, err)
	}
	return nil
}

// PublishAsync fires Publish on its own goroutine with a short timeout.
// Journal failures never affect room state; they are logged and dropped.
func (j *Journal) PublishAsync(roomCode, eventType string, payload map[string]interface{}) {
	if j == nil {
		return
	}
	rec := MatchEventRecord{
		RoomCode:  roomCode,
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := j.Publish(ctx, rec); err != nil {
			log.Warnf("journal: failed to publish %s event for room %s: %v", eventType, roomCode, err)
		}
	}()
}
