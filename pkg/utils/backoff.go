package utils

import (
	"fmt"
	"math"
	"time"
)

// PollStrategy spaces out the checks made while waiting on an external
// process
type PollStrategy interface {
	// NextDelay returns the wait before check number attempt (0-indexed)
	NextDelay(attempt int) time.Duration
}

// ConstantPoll waits the same interval before every check
type ConstantPoll struct {
	Interval time.Duration
}

// NewConstantPoll creates a constant poll strategy
func NewConstantPoll(interval time.Duration) *ConstantPoll {
	return &ConstantPoll{Interval: interval}
}

// NextDelay returns the constant interval
func (cp *ConstantPoll) NextDelay(attempt int) time.Duration {
	return cp.Interval
}

// ExponentialPoll starts with a short interval and backs off to MaxInterval,
// useful for simulations whose run time varies widely
type ExponentialPoll struct {
	Interval    time.Duration
	Multiplier  float64
	MaxInterval time.Duration
}

// NewExponentialPoll creates an exponential poll strategy
func NewExponentialPoll(interval, maxInterval time.Duration, multiplier float64) *ExponentialPoll {
	if multiplier <= 1 {
		multiplier = 2.0
	}
	if maxInterval < interval {
		maxInterval = interval
	}
	return &ExponentialPoll{
		Interval:    interval,
		Multiplier:  multiplier,
		MaxInterval: maxInterval,
	}
}

// NextDelay returns the exponentially increasing interval, capped
func (ep *ExponentialPoll) NextDelay(attempt int) time.Duration {
	delay := float64(ep.Interval) * math.Pow(ep.Multiplier, float64(attempt))
	if delay > float64(ep.MaxInterval) {
		return ep.MaxInterval
	}
	return time.Duration(delay)
}

// PollFromConfig creates a poll strategy from config parameters
func PollFromConfig(kind string, interval, maxInterval time.Duration) (PollStrategy, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	switch kind {
	case "", "constant":
		return NewConstantPoll(interval), nil
	case "exponential":
		if maxInterval == 0 {
			maxInterval = 5 * time.Second
		}
		return NewExponentialPoll(interval, maxInterval, 2.0), nil
	default:
		return nil, fmt.Errorf("unknown poll strategy: %s (must be constant or exponential)", kind)
	}
}
