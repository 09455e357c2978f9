package outbound

import (
	"time"

	"milkwms/internal/core/numerator"
)

// NumeratorStrategy numbers requests and notes without gaps.
const NumeratorStrategy = numerator.StrategyStrict

// completionLockTTL bounds how long one process may hold a note completion.
const completionLockTTL = 30 * time.Second
