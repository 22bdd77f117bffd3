package scheduler

import (
	"math"
	"time"
)

// retryBackoff returns the delay before redispatching a failed occurrence:
// exponential from 100ms, capped at 30s.
func retryBackoff(attempt int) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 30 * time.Second
	)

	delay := float64(baseDelay) * math.Pow(2, float64(attempt))

	if delay > float64(maxDelay) {
		return maxDelay
	}

	return time.Duration(delay)
}
