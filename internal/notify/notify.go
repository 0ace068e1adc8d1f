package notify

import (
	"context"
	"log/slog"
)

// Notifier surfaces operator-visible outcomes of invalidation work.
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, err error)
}

// Log writes notices to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With(slog.String("agent", "notifier"))}
}

func (l *Log) Success(ctx context.Context, message string) {
	l.logger.InfoContext(ctx, "invalidation notice", slog.String("kind", KindSuccess), slog.String("message", message))
}

func (l *Log) Error(ctx context.Context, err error) {
	if err == nil {
		return
	}
	l.logger.ErrorContext(ctx, "invalidation notice", slog.String("kind", KindError), slog.String("error", err.Error()))
}

// Fanout forwards every notice to each notifier in order.
type Fanout []Notifier

func (f Fanout) Success(ctx context.Context, message string) {
	for _, n := range f {
		if n != nil {
			n.Success(ctx, message)
		}
	}
}

func (f Fanout) Error(ctx context.Context, err error) {
	for _, n := range f {
		if n != nil {
			n.Error(ctx, err)
		}
	}
}
