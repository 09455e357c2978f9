package numerator

import "fmt"

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict allocates every number in the database. No gaps.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges in memory. Gaps appear after restarts.
	StrategyCached
)

// Document prefixes.
const (
	PrefixSalesOrder       = "SO"
	PrefixGoodsIssueNote   = "GIN"
	PrefixDisposalRequest  = "DR"
	PrefixDisposalNote     = "DN"
	PrefixPurchaseOrder    = "PO"
	PrefixGoodsReceiptNote = "GRN"
	PrefixStocktaking      = "ST"
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached. Default 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g., "SO", "GRN")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// Format renders a sequence value, e.g. SO-2026-00042.
func (c Config) Format(year int, num int64) string {
	padWidth := c.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}
	if c.IncludeYear {
		return fmt.Sprintf("%s-%04d-%0*d", c.Prefix, year, padWidth, num)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, padWidth, num)
}
