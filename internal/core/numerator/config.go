// Package numerator formats human-readable sequence numbers such as
// MV-2026-00042. Storage of the counters lives in the infrastructure layer.
package numerator

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Strategy defines how counters are advanced.
type Strategy int

const (
	// StrategyStrict advances the counter inside the caller's transaction.
	// A rolled back movement gives its number back, so numbers have no gaps.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges of numbers outside the transaction.
	// Faster under contention, but rollbacks and restarts leave gaps.
	StrategyCached
)

// ResetPeriod controls when a counter starts over at 1.
type ResetPeriod string

const (
	ResetYearly  ResetPeriod = "year"
	ResetMonthly ResetPeriod = "month"
	ResetNever   ResetPeriod = "never"
)

// Config holds numbering configuration for one prefix.
type Config struct {
	Prefix      string
	IncludeYear bool

	// PadWidth is the minimum width of the counter (default 5)
	PadWidth    int
	ResetPeriod ResetPeriod

	Strategy Strategy
	// RangeSize is the block reserved at once by StrategyCached (default 50)
	RangeSize int64
}

// DefaultConfig returns gapless yearly numbering.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: ResetYearly,
		Strategy:    StrategyStrict,
		RangeSize:   50,
	}
}

// Key names the counter used for period.
func (c Config) Key(period time.Time) string {
	switch c.ResetPeriod {
	case ResetMonthly:
		return c.Prefix + "_" + period.Format("2006_01")
	case ResetNever:
		return c.Prefix
	default:
		return c.Prefix + "_" + period.Format("2006")
	}
}

// Format renders counter n.
func (c Config) Format(period time.Time, n int64) string {
	width := c.PadWidth
	if width <= 0 {
		width = 5
	}
	if c.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", c.Prefix, period.Format("2006"), width, n)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, width, n)
}

// Parse extracts the counter from a formatted number, or -1.
func Parse(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 || i == len(formatted)-1 {
		return -1
	}
	n, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
