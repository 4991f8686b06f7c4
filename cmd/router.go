package main

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/angeloszaimis/service-gateway/config"
	"github.com/angeloszaimis/service-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/service-gateway/internal/gateway"
	"github.com/angeloszaimis/service-gateway/internal/healthcheck"
	"github.com/angeloszaimis/service-gateway/internal/metrics"
	"github.com/angeloszaimis/service-gateway/internal/registry"
)

// setupGateway wires the registry, metrics and authenticator from cfg.
func setupGateway(cfg *config.Config, log *slog.Logger) (*gateway.Gateway, error) {
	if cfg.Server.Environment == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := registry.New(circuitbreaker.Settings{
		FailureThreshold:    cfg.CircuitBreaker.FailureThreshold,
		ResetTimeout:        config.Duration(cfg.CircuitBreaker.ResetTimeout),
		HalfOpenMaxRequests: cfg.CircuitBreaker.HalfOpenMaxRequests,
	}, healthcheck.NewProber(config.Duration(cfg.HealthCheck.Timeout)), log)

	exporter := metrics.NewExporter()
	reg.Watch(func(name string) circuitbreaker.Listener {
		exporter.ObserveBreaker(name, int(circuitbreaker.StateClosed))
		return circuitbreaker.ListenerFunc(func(_ circuitbreaker.Event, state circuitbreaker.State) {
			exporter.ObserveBreaker(name, int(state))
		})
	})

	for _, svc := range cfg.Services {
		if err := reg.Register(svc.Name, svc.URL); err != nil {
			return nil, err
		}
	}

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return nil, err
	}

	store := metrics.NewStore(cfg.Metrics.Capacity, exporter)

	return gateway.New(gateway.Options{
		Registry:       reg,
		Store:          store,
		Authenticator:  authenticator,
		Logger:         log,
		Exporter:       exporter,
		Sampler:        metrics.NewSampler(store, metrics.HostSource{}, log),
		BasePath:       cfg.Server.BasePath,
		HealthInterval: config.Duration(cfg.HealthCheck.Interval),
		SampleInterval: config.Duration(cfg.Metrics.SampleInterval),
	})
}
