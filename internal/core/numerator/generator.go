// Package numerator defines how warehouse documents get their human-readable numbers.
// The postgres implementation lives in infrastructure/numerator, the in-process one in storage/memory.
package numerator

import (
	"context"
	"time"
)

// Generator hands out per-prefix, per-year sequence numbers such as GIN-2026-00017.
type Generator interface {
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber moves the sequence so the next call returns value; used when importing legacy documents.
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}
