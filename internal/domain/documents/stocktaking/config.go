package stocktaking

import (
	"time"

	"milkwms/internal/core/numerator"
)

// NumeratorStrategy numbers sheets without gaps.
const NumeratorStrategy = numerator.StrategyStrict

// DefaultHoursBeforeStartToAllowEdit is how long before StartTime a sheet freezes.
const DefaultHoursBeforeStartToAllowEdit = 6

// completionLockTTL bounds how long one process may hold a sheet completion.
const completionLockTTL = time.Minute
