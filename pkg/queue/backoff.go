package queue

import "time"

// Backoff returns the delay before the given retry. attempt starts at 1.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles initial per attempt, capped at maxDelay.
func ExponentialBackoff(initial, maxDelay time.Duration) Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	return func(attempt int) time.Duration {
		d := initial
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= maxDelay {
				return maxDelay
			}
		}
		return d
	}
}

// ConstantBackoff always waits d.
func ConstantBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// DefaultBackoff starts at one second and doubles up to one minute.
var DefaultBackoff = ExponentialBackoff(time.Second, time.Minute)
