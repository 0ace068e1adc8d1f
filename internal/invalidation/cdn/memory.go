package cdn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Memory is a dry-run Client that records submitted batches instead of calling
// a provider. It backs the "memory" provider and local development.
type Memory struct {
	mu      sync.Mutex
	seq     int
	batches []Batch
	history map[string][]Invalidation
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		history: make(map[string][]Invalidation),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateInvalidation(ctx context.Context, batch Batch) (Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return Confirmation{}, err
	}
	if batch.Distribution == "" {
		return Confirmation{}, errors.New("cdn: distribution required")
	}
	if len(batch.Paths) == 0 {
		return Confirmation{}, errors.New("cdn: at least one path required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	conf := Confirmation{
		ID:        fmt.Sprintf("I%06d", m.seq),
		Status:    "Completed",
		CreatedAt: m.now(),
	}
	m.batches = append(m.batches, batch.Clone())
	m.history[batch.Distribution] = append(m.history[batch.Distribution], Invalidation(conf))
	return conf, nil
}

// ListInvalidations returns the recorded history newest first.
func (m *Memory) ListInvalidations(ctx context.Context, distribution string) ([]Invalidation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recorded := m.history[distribution]
	out := make([]Invalidation, 0, len(recorded))
	for i := len(recorded) - 1; i >= 0; i-- {
		out = append(out, recorded[i])
	}
	return out, nil
}

// Batches returns a copy of every batch submitted so far.
func (m *Memory) Batches() []Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b.Clone())
	}
	return out
}
