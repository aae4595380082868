package deadletter

import (
	"math"
	"time"
)

// BackoffStrategy computes the wait before a retry attempt.
// retryCount starts at 1 for the first retry. Implementations must be
// safe for concurrent use.
type BackoffStrategy interface {
	NextInterval(retryCount int) time.Duration
}

// ExponentialBackoff doubles (by default) the wait on each retry.
// Formula: min(InitialInterval * Multiplier^(retryCount-1), MaxInterval).
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func (e ExponentialBackoff) NextInterval(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = 2 * time.Minute
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(retryCount-1))
	if e.MaxInterval > 0 && interval > float64(e.MaxInterval) {
		interval = float64(e.MaxInterval)
	}
	return time.Duration(interval)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoffStrategy doubles from two minutes: the first retry waits
// 2 minutes, the second 4, the third 8, capped at a day.
func DefaultBackoffStrategy() BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: 2 * time.Minute,
		MaxInterval:     24 * time.Hour,
		Multiplier:      2,
	}
}
