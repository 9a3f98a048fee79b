package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// claimTTL bounds how long a delivered event ID is remembered.
const claimTTL = time.Hour

// RedisDispatcher publishes events on Redis pub/sub subjects and delivers
// received events to locally registered handlers. Every replica running Run
// receives each message; a SETNX claim on the event ID lets exactly one of
// them hand it to its handlers.
type RedisDispatcher struct {
	client   redis.UniversalClient
	prefix   string
	logger   *zap.Logger
	handlers handlerSet
}

// NewRedisDispatcher creates a dispatcher publishing under prefix (e.g. "notification").
func NewRedisDispatcher(client redis.UniversalClient, prefix string, logger *zap.Logger) *RedisDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDispatcher{
		client:   client,
		prefix:   prefix,
		logger:   logger,
		handlers: newHandlerSet(),
	}
}

// Publish serializes the event and sends it to the subject of its type.
func (d *RedisDispatcher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}
	if err := d.client.Publish(ctx, event.Type.Subject(d.prefix), data).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return nil
}

// Subscribe registers a handler invoked by Run for received events of the type.
func (d *RedisDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.handlers.add(eventType, handler)
}

// Subjects returns the subjects Run listens on.
func (d *RedisDispatcher) Subjects() []string {
	subjects := make([]string, 0, len(AllEventTypes))
	for _, t := range AllEventTypes {
		subjects = append(subjects, t.Subject(d.prefix))
	}
	return subjects
}

// Run subscribes to every event subject and delivers messages until ctx is done.
func (d *RedisDispatcher) Run(ctx context.Context) error {
	pubsub := d.client.Subscribe(ctx, d.Subjects()...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe notification subjects: %w", err)
	}
	d.logger.Info("notification subscriber started", zap.Strings("subjects", d.Subjects()))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification subscriber stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			d.handle(ctx, msg)
		}
	}
}

func (d *RedisDispatcher) handle(ctx context.Context, msg *redis.Message) {
	event, err := DecodeEvent([]byte(msg.Payload))
	if err != nil {
		d.logger.Warn("dropping undecodable notification", zap.String("subject", msg.Channel), zap.Error(err))
		return
	}
	claimed, err := d.claim(ctx, event.ID)
	if err != nil {
		// At-least-once: a failed claim still delivers.
		d.logger.Warn("claiming notification failed, delivering anyway", zap.String("event_id", event.ID), zap.Error(err))
	} else if !claimed {
		d.logger.Debug("notification claimed by another replica", zap.String("event_id", event.ID))
		return
	}
	if err := d.handlers.deliver(ctx, event); err != nil {
		d.logger.Error("notification handler failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

func (d *RedisDispatcher) claim(ctx context.Context, eventID string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+":claimed:"+eventID, 1, claimTTL).Result()
}
