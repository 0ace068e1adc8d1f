package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/l0p7/purgectl/internal/invalidation"
	"github.com/redis/go-redis/v9"
)

// Sink receives decoded status transitions.
type Sink interface {
	InvalidateOnStatusChange(ctx context.Context, newStatus, oldStatus string, entity invalidation.Entity) invalidation.Result
}

// Subscriber consumes ContentChangeEvent JSON messages from a Redis pub/sub
// channel and feeds them to a Sink.
type Subscriber struct {
	client  redis.UniversalClient
	channel string
	sink    Sink
	logger  *slog.Logger
	ready   chan struct{}
}

func NewSubscriber(client redis.UniversalClient, channel string, sink Sink, logger *slog.Logger) (*Subscriber, error) {
	switch {
	case client == nil:
		return nil, errors.New("events: redis client required")
	case channel == "":
		return nil, errors.New("events: channel required")
	case sink == nil:
		return nil, errors.New("events: sink required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		client:  client,
		channel: channel,
		sink:    sink,
		logger:  logger.With(slog.String("agent", "event_subscriber"), slog.String("channel", channel)),
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once the subscription is confirmed by the server.
func (s *Subscriber) Ready() <-chan struct{} { return s.ready }

// Run blocks until ctx is done or the subscription fails.
func (s *Subscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("events: subscribe %s: %w", s.channel, err)
	}
	close(s.ready)
	s.logger.Info("event subscriber started")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("event subscriber stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("events: subscription closed")
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	event, err := Decode([]byte(payload))
	if err != nil {
		s.logger.Warn("event rejected", slog.String("error", err.Error()))
		return
	}
	result := s.sink.InvalidateOnStatusChange(ctx, event.NewStatus, event.OldStatus, event.Entity)
	s.logger.Debug("event handled",
		slog.String("entity", event.Entity.ID),
		slog.String("outcome", string(result.Outcome)))
}

// Decode parses and validates a ContentChangeEvent.
func Decode(payload []byte) (invalidation.ContentChangeEvent, error) {
	var event invalidation.ContentChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return invalidation.ContentChangeEvent{}, fmt.Errorf("events: decode: %w", err)
	}
	if event.Entity.Permalink == "" {
		return invalidation.ContentChangeEvent{}, errors.New("events: entity permalink required")
	}
	if event.NewStatus == "" {
		return invalidation.ContentChangeEvent{}, errors.New("events: newStatus required")
	}
	return event, nil
}
