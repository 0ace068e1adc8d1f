package invalidation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/l0p7/purgectl/internal/invalidation/cdn"
	"github.com/l0p7/purgectl/internal/invalidation/state"
)

const (
	DefaultNamespace    = "purgectl:debounce:v1"
	defaultCASAttempts  = 8
	defaultMaxPathCount = 3000

	casBackoffBase = 2 * time.Millisecond
	casBackoffMax  = 50 * time.Millisecond

	// A claimed retry that has not drained within this many intervals is
	// treated as lost and claimed again.
	overdueIntervals = 2
)

// Action is the gate's verdict for a submitted batch.
type Action int

const (
	DispatchNow Action = iota
	DeferAndSchedule
)

func (a Action) String() string {
	if a == DeferAndSchedule {
		return "defer"
	}
	return "dispatch"
}

// GateDecision is returned by Submit. For DispatchNow, Batch is what to send.
// For DeferAndSchedule, Batch is the pending batch after merging.
type GateDecision struct {
	Action Action
	Batch  cdn.Batch
	// Persisted is false when deferred work was not stored because retries are disabled.
	Persisted bool
	// Merged is set when the batch joined a pending batch whose timer is already armed.
	Merged bool
	// ArmTimer is set when the caller must schedule the retry identified by Token.
	ArmTimer bool
	Token    string
}

type GateOptions struct {
	Namespace string
	MaxPaths  int
	Logger    *slog.Logger
}

// Gate is the only writer of debounce state. It decides whether a batch goes
// to the CDN now or waits for the retry. Updates to one distribution are
// serialized in process; CompareAndSet arbitrates between replicas.
type Gate struct {
	store     state.Store
	policy    Policy
	namespace string
	maxPaths  int
	attempts  int
	logger    *slog.Logger
	now       func() time.Time
	newToken  func() string
	backoff   func(attempt int) time.Duration
	locks     sync.Map
}

func NewGate(store state.Store, policy Policy, opts GateOptions) *Gate {
	if policy == nil {
		policy = StaticPolicy{}
	}
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.MaxPaths <= 0 {
		opts.MaxPaths = defaultMaxPathCount
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gate{
		store:     store,
		policy:    policy,
		namespace: opts.Namespace,
		maxPaths:  opts.MaxPaths,
		attempts:  defaultCASAttempts,
		logger:    opts.Logger.With(slog.String("agent", "rate_gate")),
		now:       time.Now,
		newToken:  uuid.NewString,
		backoff:   jitteredBackoff,
	}
}

func (g *Gate) key(distribution string) string {
	return g.namespace + ":" + distribution
}

func (g *Gate) lock(distribution string) func() {
	v, _ := g.locks.LoadOrStore(distribution, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// pause waits before the next compare-and-set attempt after a lost race.
func (g *Gate) pause(ctx context.Context, attempt int) error {
	timer := time.NewTimer(g.backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func jitteredBackoff(attempt int) time.Duration {
	d := casBackoffBase << attempt
	if d <= 0 || d > casBackoffMax {
		d = casBackoffMax
	}
	return d/2 + rand.N(d/2+1)
}

// Submit decides the fate of batch. retry marks batches drained from a fired
// retry; they are exempt from AlwaysDefer.
func (g *Gate) Submit(ctx context.Context, batch cdn.Batch, retry bool) (GateDecision, error) {
	key := g.key(batch.Distribution)
	defer g.lock(batch.Distribution)()
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			if err := g.pause(ctx, attempt-1); err != nil {
				return GateDecision{}, fmt.Errorf("invalidation: gate submit %s: %w", batch.Distribution, err)
			}
		}
		current, _, err := g.store.Get(ctx, key)
		if err != nil {
			return GateDecision{}, fmt.Errorf("invalidation: gate read: %w", err)
		}
		now := g.now()

		var (
			next     state.State
			decision GateDecision
		)
		switch {
		case batch.IsWildcard():
			next = state.State{LastDispatchAt: now}
			decision = GateDecision{Action: DispatchNow, Batch: batch}
			if current.Pending != nil {
				g.logger.Debug("wildcard supersedes pending batch",
					slog.String("distribution", batch.Distribution),
					slog.Int("pending_paths", len(current.Pending.Paths)))
			}
		case current.Pending != nil:
			merged := cdn.Merge(*current.Pending, batch, g.maxPaths, now)
			next = current
			next.Pending = &merged
			decision = GateDecision{Action: DeferAndSchedule, Batch: merged, Persisted: true, Merged: true, Token: current.RetryToken}
			if g.overdue(current, now) {
				g.logger.Warn("pending retry overdue, claiming a new one",
					slog.String("distribution", batch.Distribution),
					slog.Time("armed_at", current.ArmedAt))
				next.RetryToken = g.newToken()
				next.ArmedAt = now
				decision.Merged = false
				decision.ArmTimer = true
				decision.Token = next.RetryToken
			}
		case g.shouldDefer(current, now, retry):
			if g.policy.RetryDisabled() {
				return GateDecision{Action: DeferAndSchedule, Batch: batch}, nil
			}
			token := g.newToken()
			pending := batch.Clone()
			next = state.State{LastDispatchAt: current.LastDispatchAt, Pending: &pending, RetryToken: token, ArmedAt: now}
			decision = GateDecision{Action: DeferAndSchedule, Batch: pending, Persisted: true, ArmTimer: true, Token: token}
		default:
			next = state.State{LastDispatchAt: now}
			decision = GateDecision{Action: DispatchNow, Batch: batch}
		}

		ok, err := g.store.CompareAndSet(ctx, key, current.Revision, next)
		if err != nil {
			return GateDecision{}, fmt.Errorf("invalidation: gate write: %w", err)
		}
		if ok {
			return decision, nil
		}
		g.logger.Debug("gate write lost race", slog.String("distribution", batch.Distribution), slog.Int("attempt", attempt+1))
	}
	return GateDecision{}, fmt.Errorf("invalidation: gate submit %s: %w", batch.Distribution, state.ErrConflict)
}

// overdue reports whether the retry claimed for the pending batch should have
// drained already.
func (g *Gate) overdue(current state.State, now time.Time) bool {
	if current.ArmedAt.IsZero() {
		return false
	}
	return now.Sub(current.ArmedAt) > overdueIntervals*g.policy.RetryInterval()
}

func (g *Gate) shouldDefer(current state.State, now time.Time, retry bool) bool {
	if g.policy.AlwaysDefer() && !retry {
		return true
	}
	if current.LastDispatchAt.IsZero() {
		return false
	}
	return now.Sub(current.LastDispatchAt) < g.policy.DebounceWindow()
}

// Drain takes the pending batch armed under token and returns the distribution
// to Idle. It reports false when the token no longer matches.
func (g *Gate) Drain(ctx context.Context, distribution, token string) (cdn.Batch, bool, error) {
	key := g.key(distribution)
	defer g.lock(distribution)()
	for attempt := 0; attempt < g.attempts; attempt++ {
		if attempt > 0 {
			if err := g.pause(ctx, attempt-1); err != nil {
				return cdn.Batch{}, false, fmt.Errorf("invalidation: gate drain %s: %w", distribution, err)
			}
		}
		current, found, err := g.store.Get(ctx, key)
		if err != nil {
			return cdn.Batch{}, false, fmt.Errorf("invalidation: gate read: %w", err)
		}
		if !found || current.Pending == nil || current.RetryToken != token {
			return cdn.Batch{}, false, nil
		}
		ok, err := g.store.CompareAndSet(ctx, key, current.Revision, state.State{})
		if err != nil {
			return cdn.Batch{}, false, fmt.Errorf("invalidation: gate write: %w", err)
		}
		if ok {
			return current.Pending.Clone(), true, nil
		}
	}
	return cdn.Batch{}, false, fmt.Errorf("invalidation: gate drain %s: %w", distribution, state.ErrConflict)
}

// Pending returns the persisted pending batch and its retry token, if any.
func (g *Gate) Pending(ctx context.Context, distribution string) (cdn.Batch, string, bool, error) {
	current, found, err := g.store.Get(ctx, g.key(distribution))
	if err != nil {
		return cdn.Batch{}, "", false, fmt.Errorf("invalidation: gate read: %w", err)
	}
	if !found || current.Pending == nil {
		return cdn.Batch{}, "", false, nil
	}
	return current.Pending.Clone(), current.RetryToken, true, nil
}
