package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/l0p7/purgectl/internal/invalidation/cdn"
	"github.com/l0p7/purgectl/internal/invalidation/schedule"
	"github.com/l0p7/purgectl/internal/metrics"
	"github.com/l0p7/purgectl/internal/notify"
)

type Options struct {
	Config   ConfigStore
	Builder  *Builder
	Gate     *Gate
	Retry    *Retry
	Client   cdn.Client
	Notifier notify.Notifier
	Policy   Policy
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Dispatcher wires Decision, Builder, Gate and Retry to the CDN client.
type Dispatcher struct {
	config   ConfigStore
	builder  *Builder
	gate     *Gate
	retry    *Retry
	client   cdn.Client
	notifier notify.Notifier
	policy   Policy
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("invalidation: config store required")
	case opts.Gate == nil:
		return nil, errors.New("invalidation: gate required")
	case opts.Retry == nil:
		return nil, errors.New("invalidation: retry scheduler required")
	case opts.Client == nil:
		return nil, errors.New("invalidation: cdn client required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Builder == nil {
		builder, err := NewBuilder(nil, nil, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.Builder = builder
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLog(opts.Logger)
	}
	if opts.Policy == nil {
		opts.Policy = StaticPolicy{}
	}
	return &Dispatcher{
		config:   opts.Config,
		builder:  opts.Builder,
		gate:     opts.Gate,
		retry:    opts.Retry,
		client:   opts.Client,
		notifier: opts.Notifier,
		policy:   opts.Policy,
		logger:   opts.Logger.With(slog.String("agent", "dispatcher")),
		metrics:  opts.Metrics,
	}, nil
}

// InvalidateByQuery sends batch to the CDN or defers it, depending on the gate.
func (d *Dispatcher) InvalidateByQuery(ctx context.Context, batch cdn.Batch) Result {
	return d.invalidateByQuery(ctx, batch, false)
}

func (d *Dispatcher) invalidateByQuery(ctx context.Context, batch cdn.Batch, retry bool) Result {
	result := d.route(ctx, batch, retry)
	d.metrics.ObserveRequest(batch.Distribution, string(result.Outcome))
	return result
}

func (d *Dispatcher) route(ctx context.Context, batch cdn.Batch, retry bool) Result {
	if batch.Distribution == "" {
		return failed(ErrNoDistribution)
	}

	decision, err := d.gate.Submit(ctx, batch, retry)
	d.metrics.ObserveState(metrics.StateOperationSubmit, err)
	if err != nil {
		d.logger.Warn("debounce state unavailable, dispatching directly",
			slog.String("distribution", batch.Distribution),
			slog.String("error", err.Error()))
		return d.dispatch(ctx, batch)
	}

	if decision.Action == DispatchNow {
		return d.dispatch(ctx, decision.Batch)
	}

	if err := d.retry.Arrange(ctx, decision); err != nil {
		d.logger.Error("retry scheduling failed, dispatching pending batch",
			slog.String("distribution", batch.Distribution),
			slog.String("error", err.Error()))
		pending, ok, drainErr := d.gate.Drain(ctx, batch.Distribution, decision.Token)
		d.metrics.ObserveState(metrics.StateOperationDrain, drainErr)
		if drainErr != nil || !ok {
			pending = decision.Batch
		}
		return d.dispatch(ctx, pending)
	}
	d.logger.Info("invalidation deferred",
		slog.String("distribution", batch.Distribution),
		slog.Int("paths", len(decision.Batch.Paths)),
		slog.Bool("merged", decision.Merged))
	return deferred()
}

func (d *Dispatcher) dispatch(ctx context.Context, batch cdn.Batch) Result {
	start := time.Now()
	confirmation, err := d.client.CreateInvalidation(ctx, batch)
	d.metrics.ObserveCDN(metrics.CDNOperationCreate, err, time.Since(start))
	if err != nil {
		d.logger.Error("invalidation failed",
			slog.String("distribution", batch.Distribution),
			slog.String("caller_reference", batch.CallerReference),
			slog.Bool("throttled", errors.Is(err, cdn.ErrThrottled)),
			slog.String("error", err.Error()))
		return failed(err)
	}
	d.logger.Info("invalidation created",
		slog.String("distribution", batch.Distribution),
		slog.String("id", confirmation.ID),
		slog.Int("paths", len(batch.Paths)))
	return succeeded(confirmation.ID)
}

// InvalidateEntity invalidates the paths belonging to one entity.
func (d *Dispatcher) InvalidateEntity(ctx context.Context, entity Entity) Result {
	distribution := d.config.DistributionID()
	if distribution == "" {
		return failed(ErrNoDistribution)
	}
	batch, err := d.builder.BuildForEntity(d.config.BaseURL(), distribution, entity)
	if err != nil {
		return failed(err)
	}
	return d.InvalidateByQuery(ctx, batch)
}

// InvalidateAll invalidates every cached object of the configured distribution.
func (d *Dispatcher) InvalidateAll(ctx context.Context) Result {
	distribution := d.config.DistributionID()
	if distribution == "" {
		return failed(ErrNoDistribution)
	}
	return d.InvalidateByQuery(ctx, d.builder.BuildForAll(distribution))
}

// InvalidateOnStatusChange is the event path. Failures go to the notifier only.
func (d *Dispatcher) InvalidateOnStatusChange(ctx context.Context, newStatus, oldStatus string, entity Entity) Result {
	transition := Transition{NewStatus: newStatus, OldStatus: oldStatus, Entity: entity}
	if !Decide(d.policy, transition) {
		d.logger.Debug("transition ignored",
			slog.String("entity", entity.ID),
			slog.String("old_status", oldStatus),
			slog.String("new_status", newStatus))
		return Result{Outcome: OutcomeSkipped}
	}
	result := d.InvalidateEntity(ctx, entity)
	if result.Outcome == OutcomeFailed {
		d.notifier.Error(ctx, result.Err)
	}
	return result
}

// InvalidateManually runs the operator-triggered "invalidate everything" and
// reports exactly one notice. Callers authenticate the operator first.
func (d *Dispatcher) InvalidateManually(ctx context.Context) Result {
	result := d.InvalidateAll(ctx)
	if result.Outcome == OutcomeFailed {
		d.notifier.Error(ctx, result.Err)
	} else {
		d.notifier.Success(ctx, result.Message)
	}
	return result
}

// HandleRetry runs a fired retry job. Jobs whose token no longer matches the
// persisted pending batch are ignored.
func (d *Dispatcher) HandleRetry(ctx context.Context, job schedule.Job) {
	batch, ok, err := d.gate.Drain(ctx, job.Distribution, job.Token)
	d.metrics.ObserveState(metrics.StateOperationDrain, err)
	if err != nil {
		d.logger.Error("retry drain failed, re-arming",
			slog.String("distribution", job.Distribution),
			slog.String("error", err.Error()))
		if rearmErr := d.retry.Rearm(ctx, job.Distribution, job.Token); rearmErr != nil {
			d.logger.Error("retry re-arm failed",
				slog.String("distribution", job.Distribution),
				slog.String("error", rearmErr.Error()))
			d.notifier.Error(ctx, errors.Join(err, rearmErr))
		}
		return
	}
	if !ok {
		d.metrics.ObserveRetry(metrics.RetryStale)
		d.logger.Debug("stale retry ignored", slog.String("distribution", job.Distribution))
		return
	}
	d.metrics.ObserveRetry(metrics.RetryFired)
	batch.CallerReference = cdn.NewCallerReference("retry", time.Now())
	result := d.invalidateByQuery(ctx, batch, true)
	if result.Outcome == OutcomeFailed {
		d.notifier.Error(ctx, result.Err)
	}
}

// Recover re-arms the retry for a pending batch left in durable state by a
// previous process.
func (d *Dispatcher) Recover(ctx context.Context) error {
	distribution := d.config.DistributionID()
	if distribution == "" {
		return nil
	}
	batch, token, ok, err := d.gate.Pending(ctx, distribution)
	d.metrics.ObserveState(metrics.StateOperationRecover, err)
	if err != nil || !ok {
		return err
	}
	d.logger.Info("re-arming pending retry",
		slog.String("distribution", distribution),
		slog.Int("paths", len(batch.Paths)))
	return d.retry.Rearm(ctx, distribution, token)
}
