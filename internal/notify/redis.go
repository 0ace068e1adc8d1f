package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KindSuccess = "success"
	KindError   = "error"
)

// Notice is the payload published for each notification.
type Notice struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Publisher publishes notices on a Redis pub/sub channel so admin surfaces in
// other processes can display them.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

func NewPublisher(client redis.UniversalClient, channel string, logger *slog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("notify: redis client required")
	}
	if channel == "" {
		return nil, errors.New("notify: channel required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With(slog.String("agent", "notice_publisher")),
		now:     time.Now,
	}, nil
}

func (p *Publisher) Success(ctx context.Context, message string) {
	p.publish(ctx, Notice{Kind: KindSuccess, Message: message})
}

func (p *Publisher) Error(ctx context.Context, err error) {
	if err == nil {
		return
	}
	p.publish(ctx, Notice{Kind: KindError, Message: err.Error()})
}

func (p *Publisher) publish(ctx context.Context, notice Notice) {
	notice.At = p.now().UTC()
	payload, err := json.Marshal(notice)
	if err != nil {
		p.logger.Error("notice encode failed", slog.String("error", err.Error()))
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("notice publish failed",
			slog.String("channel", p.channel),
			slog.String("error", err.Error()))
	}
}
