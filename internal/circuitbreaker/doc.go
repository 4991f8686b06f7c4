// Package circuitbreaker implements the per-upstream circuit breaker used by
// the gateway.
//
// A circuit breaker stops calling a failing upstream for a cooldown period and
// then cautiously probes recovery. It has three states:
//
//   - CLOSED: Normal operation, calls pass through
//   - OPEN: Upstream failing, calls rejected with ErrCircuitOpen
//   - HALF_OPEN: Reset timeout elapsed, a bounded number of trial calls admitted
//
// Usage:
//
//	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultSettings())
//	err := cb.Execute(func() error {
//	    return callUpstream()
//	})
//	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
//	    // short-circuited, upstream was not contacted
//	}
package circuitbreaker
