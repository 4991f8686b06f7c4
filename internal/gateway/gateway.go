package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/angeloszaimis/service-gateway/internal/auth"
	"github.com/angeloszaimis/service-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/service-gateway/internal/healthcheck"
	"github.com/angeloszaimis/service-gateway/internal/metrics"
	"github.com/angeloszaimis/service-gateway/internal/registry"
)

const (
	DefaultBasePath       = "/api"
	DefaultHealthInterval = 5 * time.Second
	DefaultMaxBodyBytes   = 10 << 20
)

// Registry is what the gateway needs from the service registry.
type Registry interface {
	healthcheck.Checker
	Service(name string) (string, error)
	Breaker(name string) (*circuitbreaker.CircuitBreaker, error)
	Names() []string
	HealthStatus(ctx context.Context) map[string]registry.HealthStatus
}

type Options struct {
	Registry      Registry
	Store         *metrics.Store
	Authenticator auth.Authenticator
	Logger        *slog.Logger

	// Optional.
	Exporter       *metrics.Exporter
	Sampler        *metrics.Sampler
	Client         *http.Client
	BasePath       string
	HealthInterval time.Duration
	SampleInterval time.Duration
	MaxBodyBytes   int64
}

func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Registry, validation.Required),
		validation.Field(&o.Store, validation.Required),
		validation.Field(&o.Authenticator, validation.Required),
		validation.Field(&o.Logger, validation.Required),
		validation.Field(&o.BasePath, validation.By(validateBasePath)),
	)
}

// Gateway owns the registry and metrics store for the life of the process and
// shares them between request handling and the background loops.
type Gateway struct {
	registry       Registry
	store          *metrics.Store
	exporter       *metrics.Exporter
	sampler        *metrics.Sampler
	authenticator  auth.Authenticator
	client         *http.Client
	basePath       string
	healthInterval time.Duration
	sampleInterval time.Duration
	maxBodyBytes   int64
	logger         *slog.Logger
	started        time.Time
	engine         *gin.Engine
	wg             sync.WaitGroup
}

// New builds the gateway and its routes. Services must be registered before
// New is called; a proxy route is mounted for every name known at that point.
func New(opts Options) (*Gateway, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway options: %w", err)
	}

	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = DefaultHealthInterval
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = metrics.DefaultSampleInterval
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	g := &Gateway{
		registry:       opts.Registry,
		store:          opts.Store,
		exporter:       opts.Exporter,
		sampler:        opts.Sampler,
		authenticator:  opts.Authenticator,
		client:         opts.Client,
		basePath:       normalizeBasePath(opts.BasePath),
		healthInterval: opts.HealthInterval,
		sampleInterval: opts.SampleInterval,
		maxBodyBytes:   opts.MaxBodyBytes,
		logger:         opts.Logger,
		started:        time.Now(),
	}

	engine, err := g.setupRouter()
	if err != nil {
		return nil, err
	}
	g.engine = engine

	return g, nil
}

func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Start launches the health-check loop and, if configured, the system
// sampler. Both stop when ctx is cancelled; Wait blocks until they have.
func (g *Gateway) Start(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		healthcheck.HealthCheck(ctx, g.registry, g.healthInterval, g.logger)
	}()

	if g.sampler != nil {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.sampler.Run(ctx, g.sampleInterval)
		}()
	}
}

func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) setupRouter() (*gin.Engine, error) {
	router := gin.New()
	router.Use(g.requestID(), g.recovery(), g.accessLog())
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "Not found"})
	})

	api := router.Group(g.basePath)
	api.Use(g.recordMetrics())

	api.GET("/health", g.handleHealth())

	protected := api.Group("")
	protected.Use(g.requireAuth())
	{
		protected.GET("/metrics", gin.WrapF(g.store.Handler()))
		if g.exporter != nil {
			protected.GET("/metrics/prometheus", gin.WrapH(g.exporter.Handler()))
		}

		for _, name := range g.registry.Names() {
			if reserved[name] {
				return nil, fmt.Errorf("service name %q collides with a gateway route", name)
			}
			protected.Any("/"+name, g.handleProxy(name))
			protected.Any("/"+name+"/*path", g.handleProxy(name))
		}
	}

	return router, nil
}

var reserved = map[string]bool{
	"health":  true,
	"metrics": true,
}

type healthResponse struct {
	Uptime    float64                          `json:"uptime"`
	Services  map[string]registry.HealthStatus `json:"services"`
	Timestamp int64                            `json:"timestamp"`
}

func (g *Gateway) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		services := g.registry.HealthStatus(c.Request.Context())

		c.JSON(http.StatusOK, healthResponse{
			Uptime:    time.Since(g.started).Seconds(),
			Services:  services,
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultBasePath
	}

	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}

func validateBasePath(value interface{}) error {
	p, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if p != "" && !strings.HasPrefix(p, "/") {
		return validation.NewError("validation_invalid_base_path", "must start with /")
	}
	return nil
}
