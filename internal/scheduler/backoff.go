package scheduler

import (
	"time"
)

// retryBackoff computes the delay before automatic retry attempt n
// (1-based): initial * multiplier^(n-1), capped at max.
type retryBackoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

func defaultBackoff() retryBackoff {
	return retryBackoff{
		initial:    2 * time.Second,
		max:        time.Minute,
		multiplier: 2.0,
	}
}

func (b retryBackoff) delay(attempt int) time.Duration {
	if attempt <= 1 {
		return b.initial
	}
	d := b.initial
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * b.multiplier)
		if d >= b.max {
			return b.max
		}
	}
	return d
}
