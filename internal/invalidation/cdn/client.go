package cdn

import (
	"context"
	"errors"
	"time"
)

// ErrThrottled marks CDN API errors caused by the provider's rate quota. The
// original provider error stays in the chain.
var ErrThrottled = errors.New("cdn: request throttled")

// Confirmation is the CDN's acknowledgement of a created invalidation.
type Confirmation struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invalidation is one entry of a distribution's invalidation history.
type Invalidation struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client is the narrow surface the engine needs from a CDN provider.
type Client interface {
	CreateInvalidation(ctx context.Context, batch Batch) (Confirmation, error)
	ListInvalidations(ctx context.Context, distribution string) ([]Invalidation, error)
}
