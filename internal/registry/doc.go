// Package registry maps logical service names to upstream base addresses and
// owns one circuit breaker per service. It is the health-check target: every
// round probes each upstream through that service's breaker.
//
//	reg := registry.New(circuitbreaker.DefaultSettings(), prober, logger)
//	_ = reg.Register("auth", "http://localhost:3001")
//	go healthcheck.HealthCheck(ctx, reg, 5*time.Second, logger)
//
//	addr, err := reg.Service("auth")
//	if errors.Is(err, registry.ErrServiceUnavailable) {
//		// breaker is OPEN
//	}
package registry
