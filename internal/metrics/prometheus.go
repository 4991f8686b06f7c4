package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway"

// Exporter mirrors appended metrics into a dedicated Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	load1           prometheus.Gauge
	memoryTotal     prometheus.Gauge
	memoryFree      prometheus.Gauge
	memoryUsed      prometheus.Gauge
	breakerState    *prometheus.GaugeVec
}

func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Requests handled by the gateway.",
			},
			[]string{"service", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Gateway request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "method"},
		),
		load1: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_load1",
			Help:      "1-minute load average of the gateway host.",
		}),
		memoryTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_memory_total_bytes",
			Help:      "Total memory of the gateway host.",
		}),
		memoryFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_memory_free_bytes",
			Help:      "Free memory of the gateway host.",
		}),
		memoryUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "system_memory_used_bytes",
			Help:      "Used memory of the gateway host.",
		}),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per service (0 closed, 1 open, 2 half-open).",
			},
			[]string{"service"},
		),
	}

	registry.MustRegister(
		e.requestsTotal,
		e.requestDuration,
		e.load1,
		e.memoryTotal,
		e.memoryFree,
		e.memoryUsed,
		e.breakerState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return e
}

func (e *Exporter) ObserveRequest(m RequestMetric) {
	e.requestsTotal.WithLabelValues(m.Service, m.Method, strconv.Itoa(m.StatusCode)).Inc()
	e.requestDuration.WithLabelValues(m.Service, m.Method).Observe(float64(m.ResponseTime) / 1000)
}

func (e *Exporter) ObserveSystem(m SystemMetric) {
	e.load1.Set(m.CPU)
	e.memoryTotal.Set(float64(m.Memory.Total))
	e.memoryFree.Set(float64(m.Memory.Free))
	e.memoryUsed.Set(float64(m.Memory.Used))
}

// ObserveBreaker records the numeric breaker state of a service.
func (e *Exporter) ObserveBreaker(service string, state int) {
	e.breakerState.WithLabelValues(service).Set(float64(state))
}

func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
