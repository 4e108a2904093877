package clients

import (
	"time"

	"github.com/sony/gobreaker"
)

// NewCircuitBreaker returns a breaker for health probes: it trips after 3
// consecutive failures and half-opens again after resetAfter. A zero
// resetAfter means 30 seconds.
func NewCircuitBreaker(name string, resetAfter time.Duration) *gobreaker.CircuitBreaker {
	if resetAfter <= 0 {
		resetAfter = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     resetAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}
