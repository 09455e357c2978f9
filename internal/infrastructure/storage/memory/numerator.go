package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"milkwms/internal/core/numerator"
)

// Numerator hands out gap-free document numbers per prefix and year.
type Numerator struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewNumerator creates an empty Numerator.
func NewNumerator() *Numerator {
	return &Numerator{counters: make(map[string]int64)}
}

func numeratorKey(cfg numerator.Config, period time.Time) string {
	return fmt.Sprintf("%s_%d", cfg.Prefix, period.Year())
}

// GetNextNumber implements numerator.Generator.
func (n *Numerator) GetNextNumber(_ context.Context, cfg numerator.Config, _ *numerator.Options, period time.Time) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := numeratorKey(cfg, period)
	n.counters[key]++
	return cfg.Format(period.Year(), n.counters[key]), nil
}

// SetNextNumber implements numerator.Generator; the next call returns value.
func (n *Numerator) SetNextNumber(_ context.Context, cfg numerator.Config, period time.Time, value int64) error {
	if value < 1 {
		return fmt.Errorf("next number must be positive, got %d", value)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counters[numeratorKey(cfg, period)] = value - 1
	return nil
}

var _ numerator.Generator = (*Numerator)(nil)
