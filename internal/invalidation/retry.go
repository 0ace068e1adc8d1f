package invalidation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/l0p7/purgectl/internal/invalidation/schedule"
	"github.com/l0p7/purgectl/internal/metrics"
)

// Retry arranges the single deferred re-attempt per distribution.
type Retry struct {
	scheduler schedule.Scheduler
	policy    Policy
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

func NewRetry(scheduler schedule.Scheduler, policy Policy, logger *slog.Logger, recorder *metrics.Recorder) *Retry {
	if policy == nil {
		policy = StaticPolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retry{
		scheduler: scheduler,
		policy:    policy,
		logger:    logger.With(slog.String("agent", "retry_scheduler")),
		metrics:   recorder,
	}
}

// Arrange acts on a deferred gate decision. Wildcards are never deferred by the
// gate, so dispatch decisions are ignored. Only the submission that claimed the
// timer schedules a job; merges ride on the existing one.
func (r *Retry) Arrange(ctx context.Context, d GateDecision) error {
	if d.Action != DeferAndSchedule {
		return nil
	}
	if d.Merged {
		r.metrics.ObserveRetry(metrics.RetryMerged)
		r.logger.Debug("batch merged into pending retry",
			slog.String("distribution", d.Batch.Distribution),
			slog.Int("paths", len(d.Batch.Paths)))
		return nil
	}
	if !d.Persisted {
		r.metrics.ObserveRetry(metrics.RetryDropped)
		r.logger.Warn("retry disabled, deferred paths dropped",
			slog.String("distribution", d.Batch.Distribution),
			slog.Any("paths", d.Batch.Paths))
		return nil
	}
	if !d.ArmTimer {
		return nil
	}
	return r.schedule(ctx, d.Batch.Distribution, d.Token)
}

// Rearm schedules a job for a pending batch found in persisted state.
func (r *Retry) Rearm(ctx context.Context, distribution, token string) error {
	return r.schedule(ctx, distribution, token)
}

func (r *Retry) schedule(ctx context.Context, distribution, token string) error {
	if r.scheduler == nil {
		return fmt.Errorf("invalidation: retry: %w", schedule.ErrNotStarted)
	}
	job := schedule.Job{Distribution: distribution, Token: token}
	delay := r.policy.RetryInterval()
	if err := r.scheduler.ScheduleOnce(ctx, job, delay); err != nil {
		return fmt.Errorf("invalidation: schedule retry: %w", err)
	}
	r.metrics.ObserveRetry(metrics.RetryScheduled)
	r.logger.Info("retry scheduled",
		slog.String("distribution", distribution),
		slog.Duration("delay", delay))
	return nil
}
