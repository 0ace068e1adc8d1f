package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotStarted is returned when a job is scheduled before Start bound a handler.
var ErrNotStarted = errors.New("schedule: scheduler not started")

// ErrStopped is returned once Stop has been called.
var ErrStopped = errors.New("schedule: scheduler stopped")

// Job identifies one deferred re-attempt. Token ties the job to the pending
// batch it was armed for so late firings can be recognised.
type Job struct {
	Distribution string `json:"distribution"`
	Token        string `json:"token"`
}

// Handler runs a fired job.
type Handler func(ctx context.Context, job Job)

// Scheduler runs a job once after a delay.
type Scheduler interface {
	ScheduleOnce(ctx context.Context, job Job, delay time.Duration) error
}

// Timer schedules jobs on in-process timers. Pending jobs are lost when the
// process exits; the persisted debounce state is used to re-arm them.
type Timer struct {
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	handler Handler
	timers  map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func NewTimer(logger *slog.Logger) *Timer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Timer{
		logger: logger.With(slog.String("agent", "scheduler")),
		timers: make(map[string]*time.Timer),
	}
}

// Start binds the handler invoked for fired jobs. Jobs fire with ctx; once ctx
// is done pending timers are stopped.
func (t *Timer) Start(ctx context.Context, handler Handler) {
	t.mu.Lock()
	t.ctx = ctx
	t.handler = handler
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.Stop()
	}()
}

// ScheduleOnce arms a timer for job. Scheduling a token that is already armed
// is a no-op.
func (t *Timer) ScheduleOnce(_ context.Context, job Job, delay time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil || t.ctx == nil {
		return ErrNotStarted
	}
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if t.stopped {
		return ErrStopped
	}
	if _, exists := t.timers[job.Token]; exists {
		return nil
	}
	if delay < 0 {
		delay = 0
	}

	t.timers[job.Token] = time.AfterFunc(delay, func() {
		t.fire(job)
	})
	t.logger.Debug("retry armed",
		slog.String("distribution", job.Distribution),
		slog.String("token", job.Token),
		slog.Duration("delay", delay))
	return nil
}

func (t *Timer) fire(job Job) {
	t.mu.Lock()
	if _, ok := t.timers[job.Token]; !ok || t.stopped {
		t.mu.Unlock()
		return
	}
	delete(t.timers, job.Token)
	ctx, handler := t.ctx, t.handler
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	if ctx.Err() != nil {
		return
	}
	t.logger.Debug("retry fired", slog.String("distribution", job.Distribution), slog.String("token", job.Token))
	handler(ctx, job)
}

// Pending reports the number of armed timers.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels armed timers and waits for running handlers. A stopped Timer
// accepts no further jobs.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	for token, timer := range t.timers {
		timer.Stop()
		delete(t.timers, token)
	}
	t.mu.Unlock()
	t.wg.Wait()
}
