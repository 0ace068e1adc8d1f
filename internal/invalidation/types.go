package invalidation

import (
	"errors"
	"time"
)

// ErrNoDistribution is returned when no CDN distribution is configured.
var ErrNoDistribution = errors.New("invalidation: distribution not configured")

// ErrInvalidPermalink is returned when an entity permalink does not name a
// cacheable path of its own.
var ErrInvalidPermalink = errors.New("invalidation: invalid permalink")

// Messages carried by Result for the success and deferred outcomes.
const (
	MessageSucceeded = "Invalidation has been succeeded, please wait a few minutes to remove the cache."
	MessageDeferred  = "Invalidation has been queued because the request limit was reached, please check back in a few minutes."
)

// Entity is a piece of origin content whose edge-cached copies may need to go.
type Entity struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Permalink string `json:"permalink"`
}

// ContentChangeEvent is a status transition reported by the origin.
type ContentChangeEvent struct {
	Entity    Entity `json:"entity"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

// Transition is handed to the policy hook alongside the built-in decision.
type Transition struct {
	NewStatus string
	OldStatus string
	Entity    Entity
}

// Outcome classifies the result of one invalidation request.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDeferred Outcome = "deferred"
	OutcomeFailed   Outcome = "failed"
	// OutcomeSkipped is reported when the decision rejected a transition.
	OutcomeSkipped Outcome = "skipped"
)

// Result reports what happened to one invalidation request.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
	// InvalidationID is set when the CDN accepted the batch.
	InvalidationID string `json:"invalidationId,omitempty"`
	Err            error  `json:"-"`
}

func succeeded(id string) Result {
	return Result{Outcome: OutcomeSuccess, Message: MessageSucceeded, InvalidationID: id}
}

func deferred() Result {
	return Result{Outcome: OutcomeDeferred, Message: MessageDeferred}
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Message: err.Error(), Err: err}
}

// ConfigStore exposes the configuration values read on every request.
type ConfigStore interface {
	DistributionID() string
	BaseURL() string
}

// Policy carries the host-tunable hooks.
type Policy interface {
	// OverrideInvalidation receives the built-in decision and returns the
	// authoritative one.
	OverrideInvalidation(raw bool, t Transition) bool
	// AlwaysDefer forces every non-wildcard submission to be deferred.
	AlwaysDefer() bool
	// RetryDisabled turns the deferred retry off; deferred paths are dropped.
	RetryDisabled() bool
	RetryInterval() time.Duration
	// DebounceWindow is how long after a dispatch further submissions are deferred.
	DebounceWindow() time.Duration
}

// StaticPolicy is a fixed Policy with no override.
type StaticPolicy struct {
	Defer    bool
	Disabled bool
	Interval time.Duration
	Window   time.Duration
}

func (p StaticPolicy) OverrideInvalidation(raw bool, _ Transition) bool { return raw }
func (p StaticPolicy) AlwaysDefer() bool                                { return p.Defer }
func (p StaticPolicy) RetryDisabled() bool                              { return p.Disabled }

func (p StaticPolicy) RetryInterval() time.Duration {
	if p.Interval <= 0 {
		return time.Minute
	}
	return p.Interval
}

func (p StaticPolicy) DebounceWindow() time.Duration {
	if p.Window < 0 {
		return 0
	}
	return p.Window
}
