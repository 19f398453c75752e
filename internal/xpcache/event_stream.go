package xpcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"medquest/internal/logger"
	"medquest/models"

	"github.com/redis/go-redis/v9"
)

const (
	eventStreamKey    = "xp:events"
	eventStreamMaxLen = 10000
)

// LocalPublisher delivers events to the connections held by this process.
type LocalPublisher interface {
	Publish(event models.GamificationEvent)
}

// EventStream relays gamification events through a Redis Stream so that a
// user's sockets receive them whichever instance recorded the activity.
// Every instance reads the stream through its own consumer group.
type EventStream struct {
	rdb      *redis.Client
	local    LocalPublisher
	log      *logger.Logger
	group    string
	consumer string
}

func NewEventStream(rdb *redis.Client, local LocalPublisher, log *logger.Logger) *EventStream {
	if log == nil {
		log = logger.NewNop()
	}
	hostname, _ := os.Hostname()
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	return &EventStream{
		rdb:      rdb,
		local:    local,
		log:      log.With("component", "event_stream"),
		group:    "xp:group:" + instanceID,
		consumer: "consumer-" + instanceID,
	}
}

func encodeEvent(event models.GamificationEvent) (map[string]interface{}, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"data": string(data)}, nil
}

func decodeEvent(values map[string]interface{}) (models.GamificationEvent, error) {
	var event models.GamificationEvent
	data, ok := values["data"].(string)
	if !ok {
		return event, errors.New("invalid message format: missing data field")
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}

// Publish appends the event to the stream. When Redis is unreachable the
// event is still delivered to local connections.
func (s *EventStream) Publish(event models.GamificationEvent) {
	values, err := encodeEvent(event)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = s.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: eventStreamKey,
			Values: values,
			MaxLen: eventStreamMaxLen,
			Approx: true,
		}).Err()
		cancel()
	}
	if err != nil {
		s.log.Warn("event stream publish failed, delivering locally", "type", event.Type, "userId", event.UserID, "error", err)
		s.local.Publish(event)
	}
}

// Run consumes the stream until ctx is cancelled, then removes this
// instance's consumer group.
func (s *EventStream) Run(ctx context.Context) error {
	// "$": this instance only cares about events from now on
	err := s.rdb.XGroupCreateMkStream(ctx, eventStreamKey, s.group, "$").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.rdb.XGroupDestroy(cleanup, eventStreamKey, s.group).Err()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{eventStreamKey, ">"},
			Count:    100,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.log.Warn("event stream read failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				s.deliver(message)
				if err := s.rdb.XAck(ctx, eventStreamKey, s.group, message.ID).Err(); err != nil {
					s.log.Debug("event ack failed", "id", message.ID, "error", err)
				}
			}
		}
	}
}

func (s *EventStream) deliver(message redis.XMessage) {
	event, err := decodeEvent(message.Values)
	if err != nil {
		s.log.Warn("skipping malformed event", "id", message.ID, "error", err)
		return
	}
	s.local.Publish(event)
}
