package invalidation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/l0p7/purgectl/internal/invalidation/cdn"
	"github.com/l0p7/purgectl/internal/invalidation/schedule"
	"github.com/l0p7/purgectl/internal/invalidation/state"
	"github.com/l0p7/purgectl/internal/metrics"
	cdnmocks "github.com/l0p7/purgectl/internal/mocks/cdn"
	notifymocks "github.com/l0p7/purgectl/internal/mocks/notify"
	schedulemocks "github.com/l0p7/purgectl/internal/mocks/schedule"
	statemocks "github.com/l0p7/purgectl/internal/mocks/state"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type staticConfig struct {
	distribution string
	baseURL      string
}

func (c staticConfig) DistributionID() string { return c.distribution }
func (c staticConfig) BaseURL() string        { return c.baseURL }

type harness struct {
	dispatcher *Dispatcher
	gate       *Gate
	client     *cdn.Memory
	scheduler  *schedulemocks.MockScheduler
	notifier   *notifymocks.MockNotifier
	recorder   *metrics.Recorder
	now        time.Time
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	return newHarnessWith(t, policy, state.NewMemory(time.Hour), nil)
}

func newHarnessWith(t *testing.T, policy Policy, store state.Store, client cdn.Client) *harness {
	t.Helper()
	h := &harness{
		client:    cdn.NewMemory(),
		scheduler: schedulemocks.NewMockScheduler(t),
		notifier:  notifymocks.NewMockNotifier(t),
		recorder:  metrics.NewRecorder(nil),
		now:       time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
	}
	if client == nil {
		client = h.client
	}
	h.gate = NewGate(store, policy, GateOptions{MaxPaths: 5})
	h.gate.now = func() time.Time { return h.now }

	builder, err := NewBuilder(nil, nil, nil)
	require.NoError(t, err)

	h.dispatcher, err = NewDispatcher(Options{
		Config:   staticConfig{distribution: "E1", baseURL: "https://example.com/"},
		Builder:  builder,
		Gate:     h.gate,
		Retry:    NewRetry(h.scheduler, policy, nil, h.recorder),
		Client:   client,
		Notifier: h.notifier,
		Policy:   policy,
		Metrics:  h.recorder,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) captureJobs(delay time.Duration) *[]schedule.Job {
	jobs := &[]schedule.Job{}
	h.scheduler.EXPECT().
		ScheduleOnce(mock.Anything, mock.Anything, delay).
		RunAndReturn(func(_ context.Context, job schedule.Job, _ time.Duration) error {
			*jobs = append(*jobs, job)
			return nil
		}).
		Maybe()
	return jobs
}

func batchOf(paths ...string) cdn.Batch {
	return cdn.Batch{CallerReference: fmt.Sprintf("ref-%v", paths), Paths: paths, Distribution: "E1"}
}

var debounce = StaticPolicy{Window: time.Minute, Interval: time.Minute}

func TestStatusChangeDraftToPublish(t *testing.T) {
	h := newHarness(t, debounce)

	result := h.dispatcher.InvalidateOnStatusChange(context.Background(), "publish", "draft", Entity{ID: "7", Permalink: "https://example.com/posts/x"})
	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Equal(t, MessageSucceeded, result.Message)
	require.Equal(t, "I000001", result.InvalidationID)

	batches := h.client.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, []string{"/posts/x"}, batches[0].Paths)
	require.Equal(t, "E1", batches[0].Distribution)
}

func TestStatusChangeIgnoredTransitionSkipsCDN(t *testing.T) {
	client := cdnmocks.NewMockClient(t)
	h := newHarnessWith(t, debounce, state.NewMemory(time.Hour), client)

	result := h.dispatcher.InvalidateOnStatusChange(context.Background(), "draft", "draft", Entity{ID: "7", Permalink: "/x"})
	require.Equal(t, OutcomeSkipped, result.Outcome)
}

func TestStatusChangePolicyForcesInvalidation(t *testing.T) {
	policy := overridePolicy{StaticPolicy: debounce, override: func(bool, Transition) bool { return true }}
	h := newHarness(t, policy)

	result := h.dispatcher.InvalidateOnStatusChange(context.Background(), "draft", "draft", Entity{ID: "7", Permalink: "/x"})
	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, h.client.Batches(), 1)
}

func TestStatusChangeFailureGoesToNotifier(t *testing.T) {
	client := cdnmocks.NewMockClient(t)
	apiErr := fmt.Errorf("cdn: create invalidation: %w", cdn.ErrThrottled)
	client.EXPECT().CreateInvalidation(mock.Anything, mock.Anything).Return(cdn.Confirmation{}, apiErr).Once()
	h := newHarnessWith(t, debounce, state.NewMemory(time.Hour), client)
	h.notifier.EXPECT().Error(mock.Anything, apiErr).Once()

	result := h.dispatcher.InvalidateOnStatusChange(context.Background(), "publish", "draft", Entity{ID: "7", Permalink: "/x"})
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorIs(t, result.Err, cdn.ErrThrottled)
	require.Equal(t, apiErr.Error(), result.Message)
}

func TestRapidSubmissionsArmOneTimer(t *testing.T) {
	h := newHarness(t, debounce)
	jobs := h.captureJobs(time.Minute)
	ctx := context.Background()

	require.Equal(t, OutcomeSuccess, h.dispatcher.InvalidateByQuery(ctx, batchOf("/a")).Outcome)

	h.advance(5 * time.Second)
	second := h.dispatcher.InvalidateByQuery(ctx, batchOf("/b"))
	require.Equal(t, OutcomeDeferred, second.Outcome)
	require.Equal(t, MessageDeferred, second.Message)

	h.advance(5 * time.Second)
	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/c", "/b")).Outcome)

	require.Len(t, *jobs, 1, "exactly one retry per distribution")
	require.Len(t, h.client.Batches(), 1, "deferred work never reaches the CDN")

	pending, token, ok, err := h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, (*jobs)[0].Token, token)
	require.Equal(t, []string{"/b", "/c"}, pending.Paths)

	h.advance(time.Minute)
	h.dispatcher.HandleRetry(ctx, (*jobs)[0])
	batches := h.client.Batches()
	require.Len(t, batches, 2)
	require.Equal(t, []string{"/b", "/c"}, batches[1].Paths)

	_, _, ok, err = h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.False(t, ok)

	h.dispatcher.HandleRetry(ctx, (*jobs)[0])
	require.Len(t, h.client.Batches(), 2, "a second firing is a no-op")
}

func TestSubmitAfterWindowDispatches(t *testing.T) {
	h := newHarness(t, debounce)
	ctx := context.Background()

	require.Equal(t, OutcomeSuccess, h.dispatcher.InvalidateByQuery(ctx, batchOf("/a")).Outcome)
	h.advance(2 * time.Minute)
	require.Equal(t, OutcomeSuccess, h.dispatcher.InvalidateByQuery(ctx, batchOf("/b")).Outcome)
	require.Len(t, h.client.Batches(), 2)
}

func TestWildcardClearsPendingAndStalesTimer(t *testing.T) {
	h := newHarness(t, debounce)
	jobs := h.captureJobs(time.Minute)
	ctx := context.Background()

	h.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/b")).Outcome)
	require.Len(t, *jobs, 1)

	h.notifier.EXPECT().Success(mock.Anything, MessageSucceeded).Once()
	result := h.dispatcher.InvalidateManually(ctx)
	require.Equal(t, OutcomeSuccess, result.Outcome)

	batches := h.client.Batches()
	require.Len(t, batches, 2)
	require.True(t, batches[1].IsWildcard())

	_, _, ok, err := h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.False(t, ok)

	h.dispatcher.HandleRetry(ctx, (*jobs)[0])
	require.Len(t, h.client.Batches(), 2, "stale retry after wildcard is a no-op")
}

func TestManualFailureNotifiesError(t *testing.T) {
	h := newHarnessWith(t, debounce, state.NewMemory(time.Hour), nil)
	h.dispatcher.config = staticConfig{}
	h.notifier.EXPECT().Error(mock.Anything, ErrNoDistribution).Once()

	result := h.dispatcher.InvalidateManually(context.Background())
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorIs(t, result.Err, ErrNoDistribution)
}

func TestAlwaysDeferExemptsRetry(t *testing.T) {
	policy := StaticPolicy{Defer: true, Interval: 30 * time.Second}
	h := newHarness(t, policy)
	jobs := h.captureJobs(30 * time.Second)
	ctx := context.Background()

	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/a")).Outcome)
	require.Empty(t, h.client.Batches())
	require.Len(t, *jobs, 1)

	h.dispatcher.HandleRetry(ctx, (*jobs)[0])
	batches := h.client.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, []string{"/a"}, batches[0].Paths)
	require.Len(t, *jobs, 1)
}

func TestRetryDisabledDropsDeferredWork(t *testing.T) {
	h := newHarness(t, StaticPolicy{Window: time.Minute, Disabled: true})
	ctx := context.Background()

	h.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/b")).Outcome)

	_, _, ok, err := h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, h.client.Batches(), 1)
}

func TestStoreFailureFailsOpen(t *testing.T) {
	store := statemocks.NewMockStore(t)
	store.EXPECT().Get(mock.Anything, "purgectl:debounce:v1:E1").
		Return(state.State{}, false, fmt.Errorf("%w: boom", state.ErrUnavailable))
	h := newHarnessWith(t, debounce, store, nil)

	result := h.dispatcher.InvalidateByQuery(context.Background(), batchOf("/a"))
	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, h.client.Batches(), 1)
}

func TestScheduleFailureDispatchesPending(t *testing.T) {
	h := newHarness(t, debounce)
	h.scheduler.EXPECT().ScheduleOnce(mock.Anything, mock.Anything, time.Minute).
		Return(schedule.ErrNotStarted).Once()
	ctx := context.Background()

	h.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	result := h.dispatcher.InvalidateByQuery(ctx, batchOf("/b"))
	require.Equal(t, OutcomeSuccess, result.Outcome)

	batches := h.client.Batches()
	require.Len(t, batches, 2)
	require.Equal(t, []string{"/b"}, batches[1].Paths)
	_, _, ok, err := h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecoverRearmsPendingBatch(t *testing.T) {
	store := state.NewMemory(time.Hour)
	first := newHarnessWith(t, debounce, store, nil)
	firstJobs := first.captureJobs(time.Minute)
	ctx := context.Background()

	first.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	first.dispatcher.InvalidateByQuery(ctx, batchOf("/b"))
	require.Len(t, *firstJobs, 1)

	restarted := newHarnessWith(t, debounce, store, nil)
	jobs := restarted.captureJobs(time.Minute)
	require.NoError(t, restarted.dispatcher.Recover(ctx))
	require.Len(t, *jobs, 1)
	require.Equal(t, (*firstJobs)[0], (*jobs)[0])

	restarted.dispatcher.HandleRetry(ctx, (*jobs)[0])
	batches := restarted.client.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, []string{"/b"}, batches[0].Paths)
}

func TestRecoverWithoutPendingIsNoop(t *testing.T) {
	h := newHarness(t, debounce)
	require.NoError(t, h.dispatcher.Recover(context.Background()))
}

func TestMergeOverflowCollapsesToWildcard(t *testing.T) {
	h := newHarness(t, debounce)
	jobs := h.captureJobs(time.Minute)
	ctx := context.Background()

	h.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	h.dispatcher.InvalidateByQuery(ctx, batchOf("/1", "/2", "/3"))
	h.dispatcher.InvalidateByQuery(ctx, batchOf("/4", "/5", "/6"))

	pending, _, ok, err := h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, pending.IsWildcard())

	h.dispatcher.HandleRetry(ctx, (*jobs)[0])
	batches := h.client.Batches()
	require.True(t, batches[len(batches)-1].IsWildcard())
}

func TestInvalidateByQueryRequiresDistribution(t *testing.T) {
	h := newHarness(t, debounce)
	result := h.dispatcher.InvalidateByQuery(context.Background(), cdn.Batch{Paths: []string{"/a"}})
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorIs(t, result.Err, ErrNoDistribution)
}

func TestInvalidateEntityBuildError(t *testing.T) {
	h := newHarness(t, debounce)
	result := h.dispatcher.InvalidateEntity(context.Background(), Entity{ID: "1"})
	require.Equal(t, OutcomeFailed, result.Outcome)
	require.ErrorIs(t, result.Err, ErrInvalidPermalink)

	result = h.dispatcher.InvalidateEntity(context.Background(), Entity{ID: "2", Permalink: "https://example.com/?p=123"})
	require.ErrorIs(t, result.Err, ErrInvalidPermalink)
	require.Empty(t, h.client.Batches())
}

func TestListRecentInvalidations(t *testing.T) {
	client := cdnmocks.NewMockClient(t)
	want := []cdn.Invalidation{{ID: "I2", Status: "InProgress"}, {ID: "I1", Status: "Completed"}}
	client.EXPECT().ListInvalidations(mock.Anything, "E1").Return(want, nil).Once()
	h := newHarnessWith(t, debounce, state.NewMemory(time.Hour), client)

	got, err := h.dispatcher.ListRecentInvalidations(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)

	h.dispatcher.config = staticConfig{}
	_, err = h.dispatcher.ListRecentInvalidations(context.Background())
	require.ErrorIs(t, err, ErrNoDistribution)
}

func TestListRecentInvalidationsError(t *testing.T) {
	client := cdnmocks.NewMockClient(t)
	apiErr := errors.New("cdn: list invalidations: access denied")
	client.EXPECT().ListInvalidations(mock.Anything, "E1").Return(nil, apiErr).Once()
	h := newHarnessWith(t, debounce, state.NewMemory(time.Hour), client)

	_, err := h.dispatcher.ListRecentInvalidations(context.Background())
	require.ErrorIs(t, err, apiErr)
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher(Options{})
	require.Error(t, err)
}

// flakyStore fails selected Get calls, counted from the store's creation.
type flakyStore struct {
	state.Store
	mu     sync.Mutex
	gets   int
	failAt map[int]bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: state.NewMemory(time.Hour), failAt: map[int]bool{}}
}

// failGet makes the n-th Get from now fail.
func (s *flakyStore) failGet(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt[s.gets+n] = true
}

func (s *flakyStore) Get(ctx context.Context, key string) (state.State, bool, error) {
	s.mu.Lock()
	s.gets++
	fail := s.failAt[s.gets]
	s.mu.Unlock()
	if fail {
		return state.State{}, false, fmt.Errorf("%w: connection reset", state.ErrUnavailable)
	}
	return s.Store.Get(ctx, key)
}

func TestConcurrentBurstOnRedisDispatchesOnce(t *testing.T) {
	h := newHarnessWith(t, debounce, newMiniredisStore(t), nil)
	jobs := h.captureJobs(time.Minute)
	ctx := context.Background()

	require.Equal(t, OutcomeSuccess, h.dispatcher.InvalidateByQuery(ctx, batchOf("/a")).Outcome)

	const submitters = 32
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []Outcome
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result := h.dispatcher.InvalidateByQuery(ctx, batchOf(fmt.Sprintf("/p%d", i)))
			mu.Lock()
			outcomes = append(outcomes, result.Outcome)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, outcomes, submitters)
	for _, outcome := range outcomes {
		require.Equal(t, OutcomeDeferred, outcome)
	}
	require.Len(t, h.client.Batches(), 1, "only the first submission reaches the CDN")
	require.Len(t, *jobs, 1)
}

func TestRetryDrainFailureRearmsSameToken(t *testing.T) {
	store := newFlakyStore()
	h := newHarnessWith(t, debounce, store, nil)
	jobs := h.captureJobs(time.Minute)
	ctx := context.Background()

	h.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/b")).Outcome)
	require.Len(t, *jobs, 1)

	store.failGet(1)
	h.dispatcher.HandleRetry(ctx, (*jobs)[0])
	require.Len(t, *jobs, 2)
	require.Equal(t, (*jobs)[0], (*jobs)[1])
	require.Len(t, h.client.Batches(), 1)

	h.advance(time.Minute)
	h.dispatcher.HandleRetry(ctx, (*jobs)[1])
	batches := h.client.Batches()
	require.Len(t, batches, 2)
	require.Equal(t, []string{"/b"}, batches[1].Paths)

	_, _, ok, err := h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLostRetryIsReclaimedByLaterSubmission(t *testing.T) {
	store := newFlakyStore()
	h := newHarnessWith(t, debounce, store, nil)
	ctx := context.Background()

	var first schedule.Job
	h.scheduler.EXPECT().ScheduleOnce(mock.Anything, mock.Anything, time.Minute).
		RunAndReturn(func(_ context.Context, job schedule.Job, _ time.Duration) error {
			first = job
			return nil
		}).Once()
	h.scheduler.EXPECT().ScheduleOnce(mock.Anything, mock.Anything, time.Minute).
		Return(schedule.ErrStopped).Once()
	h.notifier.EXPECT().Error(mock.Anything, mock.Anything).
		Run(func(_ context.Context, err error) {
			require.ErrorIs(t, err, state.ErrUnavailable)
			require.ErrorIs(t, err, schedule.ErrStopped)
		}).Once()

	h.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	h.dispatcher.InvalidateByQuery(ctx, batchOf("/b"))

	store.failGet(1)
	h.dispatcher.HandleRetry(ctx, first)

	h.advance(30 * time.Second)
	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/c")).Outcome)

	jobs := h.captureJobs(time.Minute)
	h.advance(3 * time.Minute)
	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/d")).Outcome)
	require.Len(t, *jobs, 1)
	require.NotEqual(t, first.Token, (*jobs)[0].Token)

	h.dispatcher.HandleRetry(ctx, first)
	require.Len(t, h.client.Batches(), 1, "the lost token is stale")

	h.dispatcher.HandleRetry(ctx, (*jobs)[0])
	batches := h.client.Batches()
	require.Len(t, batches, 2)
	require.Equal(t, []string{"/b", "/c", "/d"}, batches[1].Paths)
}

func TestScheduleFailureWithDrainErrorDispatchesMergedBatch(t *testing.T) {
	store := newFlakyStore()
	h := newHarnessWith(t, debounce, store, nil)
	h.scheduler.EXPECT().ScheduleOnce(mock.Anything, mock.Anything, time.Minute).
		Return(schedule.ErrNotStarted).Once()
	ctx := context.Background()

	h.dispatcher.InvalidateByQuery(ctx, batchOf("/a"))
	store.failGet(2)
	result := h.dispatcher.InvalidateByQuery(ctx, batchOf("/b"))
	require.Equal(t, OutcomeSuccess, result.Outcome)

	batches := h.client.Batches()
	require.Len(t, batches, 2)
	require.Equal(t, []string{"/b"}, batches[1].Paths)

	_, _, ok, err := h.gate.Pending(ctx, "E1")
	require.NoError(t, err)
	require.True(t, ok, "the undrained batch stays pending")

	jobs := h.captureJobs(time.Minute)
	h.advance(3 * time.Minute)
	require.Equal(t, OutcomeDeferred, h.dispatcher.InvalidateByQuery(ctx, batchOf("/c")).Outcome)
	require.Len(t, *jobs, 1, "a later submission claims a fresh retry")
}
