package policy

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/l0p7/purgectl/internal/config"
	"github.com/l0p7/purgectl/internal/expr"
	"github.com/l0p7/purgectl/internal/invalidation"
)

// Policy answers the engine's hooks from the live configuration. The optional
// invalidation expression is a CEL program over result, newStatus, oldStatus
// and entity.
type Policy struct {
	live    *config.Live
	env     *expr.Environment
	program atomic.Pointer[expr.Program]
	logger  *slog.Logger
}

var _ invalidation.Policy = (*Policy)(nil)

func New(live *config.Live, logger *slog.Logger) (*Policy, error) {
	env, err := expr.NewEnvironment()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Policy{
		live:   live,
		env:    env,
		logger: logger.With(slog.String("agent", "policy")),
	}
	if err := p.Reload(live.Snapshot()); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload recompiles the invalidation expression from cfg. On error the
// previously compiled program stays active.
func (p *Policy) Reload(cfg config.Config) error {
	source := strings.TrimSpace(cfg.Policy.InvalidationExpression)
	if source == "" {
		p.program.Store(nil)
		return nil
	}
	program, err := p.env.Compile(source)
	if err != nil {
		return fmt.Errorf("policy: invalidation expression: %w", err)
	}
	p.program.Store(&program)
	return nil
}

func (p *Policy) OverrideInvalidation(raw bool, t invalidation.Transition) bool {
	program := p.program.Load()
	if program == nil {
		return raw
	}
	decision, err := program.EvalBool(map[string]any{
		"result":    raw,
		"newStatus": t.NewStatus,
		"oldStatus": t.OldStatus,
		"entity": map[string]any{
			"id":        t.Entity.ID,
			"type":      t.Entity.Type,
			"permalink": t.Entity.Permalink,
		},
	})
	if err != nil {
		p.logger.Warn("invalidation expression failed, using built-in decision",
			slog.String("expression", program.Source()),
			slog.String("error", err.Error()))
		return raw
	}
	return decision
}

func (p *Policy) AlwaysDefer() bool   { return p.live.Snapshot().Retry.AlwaysDefer }
func (p *Policy) RetryDisabled() bool { return p.live.Snapshot().Retry.Disabled }

func (p *Policy) RetryInterval() time.Duration {
	if interval := p.live.Snapshot().Retry.Interval(); interval > 0 {
		return interval
	}
	return time.Minute
}

func (p *Policy) DebounceWindow() time.Duration {
	return p.live.Snapshot().Retry.Window()
}
