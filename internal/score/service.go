package score

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBasePoints    = 500
	DefaultRoundDuration = 20 * time.Second
)

// Calculator awards time-weighted points for correct answers:
//
//	base + round(base * (T - elapsed) / T)
//
// with elapsed clamped to [0, T]. A correct answer at the buzzer is worth base,
// an instantaneous one 2*base.
type Calculator struct {
	base     int64
	duration time.Duration
}

func NewCalculator(base int, duration time.Duration) *Calculator {
	if base <= 0 {
		base = DefaultBasePoints
	}
	if duration <= 0 {
		duration = DefaultRoundDuration
	}

	return &Calculator{
		base:     int64(base),
		duration: duration,
	}
}

func (c *Calculator) RoundDuration() time.Duration {
	return c.duration
}

// Points returns the points for an answer given elapsed time since the question started.
func (c *Calculator) Points(correct bool, elapsed time.Duration) int {
	if !correct {
		return 0
	}

	elapsed = min(max(elapsed, 0), c.duration)

	base := decimal.NewFromInt(c.base)
	remaining := decimal.NewFromInt(int64(c.duration - elapsed))
	bonus := base.Mul(remaining).Div(decimal.NewFromInt(int64(c.duration))).Round(0)

	return int(c.base + bonus.IntPart())
}
