package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// Reconnect returns the delay source for a reconnecting socket. The fixed
// strategy waits interval every time; exponential starts at interval and
// grows to maxInterval. Neither gives up.
func Reconnect(strategy string, interval, maxInterval time.Duration) backoff.BackOff {
	if strategy != StrategyExponential {
		return backoff.NewConstantBackOff(interval)
	}
	if maxInterval < interval {
		maxInterval = interval
	}
	exp := ExponentialBackoff(interval, maxInterval, 2.0)
	exp.(*backoff.ExponentialBackOff).RandomizationFactor = 0
	return exp
}
