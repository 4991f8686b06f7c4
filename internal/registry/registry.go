package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/angeloszaimis/service-gateway/internal/circuitbreaker"
)

var (
	ErrServiceNotFound    = errors.New("service not found")
	ErrServiceUnavailable = errors.New("service unavailable: circuit breaker is OPEN")
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Prober checks a single upstream. A nil error means healthy.
type Prober interface {
	Probe(ctx context.Context, baseAddress string) error
}

// HealthStatus is the per-service entry of the /health report.
type HealthStatus struct {
	Status         string               `json:"status"`
	CircuitBreaker circuitbreaker.State `json:"circuitBreaker"`
	LastChecked    time.Time            `json:"lastChecked"`
}

// ListenerFactory builds a breaker listener bound to one service name.
type ListenerFactory func(name string) circuitbreaker.Listener

type entry struct {
	address string
	breaker *circuitbreaker.CircuitBreaker
}

type ServiceRegistry struct {
	mutex    sync.RWMutex
	services map[string]*entry
	settings circuitbreaker.Settings
	prober   Prober
	watchers []ListenerFactory
	logger   *slog.Logger
}

func New(settings circuitbreaker.Settings, prober Prober, logger *slog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]*entry),
		settings: settings,
		prober:   prober,
		logger:   logger,
	}
}

// Register upserts the address for name. The breaker is created on first
// registration only and survives later re-registrations untouched.
func (r *ServiceRegistry) Register(name, baseAddress string) error {
	if err := ValidateService(name, baseAddress); err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if e, exists := r.services[name]; exists {
		e.address = baseAddress
		r.logger.Info("Service address updated",
			slog.String("service", name),
			slog.String("address", baseAddress))
		return nil
	}

	breaker := circuitbreaker.NewCircuitBreaker(r.settings)
	breaker.Subscribe(r.transitionLogger(name))
	for _, factory := range r.watchers {
		breaker.Subscribe(factory(name))
	}

	r.services[name] = &entry{address: baseAddress, breaker: breaker}
	r.logger.Info("Service registered",
		slog.String("service", name),
		slog.String("address", baseAddress))

	return nil
}

// Watch subscribes a listener built by factory to every current and future breaker.
func (r *ServiceRegistry) Watch(factory ListenerFactory) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.watchers = append(r.watchers, factory)
	for name, e := range r.services {
		e.breaker.Subscribe(factory(name))
	}
}

// Service resolves name to its address. It refuses while the breaker is
// OPEN; the check is advisory and the call itself still runs through the breaker.
func (r *ServiceRegistry) Service(name string) (string, error) {
	e, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	if e.breaker.State() == circuitbreaker.StateOpen {
		return "", fmt.Errorf("%w: %s", ErrServiceUnavailable, name)
	}

	return e.address, nil
}

func (r *ServiceRegistry) Breaker(name string) (*circuitbreaker.CircuitBreaker, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return e.breaker, nil
}

// Names returns the registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll probes every service through its breaker. Failures are logged and dropped.
func (r *ServiceRegistry) CheckAll(ctx context.Context) {
	for _, name := range r.Names() {
		if err := r.check(ctx, name); err != nil {
			r.logger.Warn("Health check failed",
				slog.String("service", name),
				slog.Any("err", err))
		}
	}
}

// HealthStatus probes every service through its breaker and reports the
// outcome along with the breaker state left behind.
func (r *ServiceRegistry) HealthStatus(ctx context.Context) map[string]HealthStatus {
	names := r.Names()
	statuses := make(map[string]HealthStatus, len(names))

	for _, name := range names {
		status := StatusHealthy
		if err := r.check(ctx, name); err != nil {
			status = StatusUnhealthy
		}

		breaker, err := r.Breaker(name)
		if err != nil {
			continue
		}

		statuses[name] = HealthStatus{
			Status:         status,
			CircuitBreaker: breaker.State(),
			LastChecked:    time.Now(),
		}
	}

	return statuses
}

func (r *ServiceRegistry) check(ctx context.Context, name string) error {
	e, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	return e.breaker.Execute(func() error {
		return r.prober.Probe(ctx, e.address)
	})
}

func (r *ServiceRegistry) lookup(name string) (*entry, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	e, ok := r.services[name]
	if !ok {
		return nil, false
	}
	// copy so callers never read address while Register rewrites it
	return &entry{address: e.address, breaker: e.breaker}, true
}

func (r *ServiceRegistry) transitionLogger(name string) circuitbreaker.Listener {
	return circuitbreaker.ListenerFunc(func(event circuitbreaker.Event, state circuitbreaker.State) {
		switch event {
		case circuitbreaker.EventOpen:
			r.logger.Warn("Circuit breaker opened", slog.String("service", name))
		case circuitbreaker.EventHalfOpen, circuitbreaker.EventClosed:
			r.logger.Info("Circuit breaker state changed",
				slog.String("service", name),
				slog.String("state", state.String()))
		}
	})
}
