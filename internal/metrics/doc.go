// Package metrics keeps the gateway's recent telemetry in memory and exports
// it to Prometheus.
//
// Two independent fixed-capacity ring buffers hold the most recent request
// metrics and system samples. When a buffer is full the oldest entry is
// evicted. Snapshots are copies in insertion order and are never nil, so they
// encode as JSON arrays even when empty.
//
// Example usage:
//
//	store := metrics.NewStore(metrics.DefaultCapacity, metrics.NewExporter())
//	sampler := metrics.NewSampler(store, metrics.HostSource{}, logger)
//	go sampler.Run(ctx, 5*time.Second)
//
//	store.AppendRequest(metrics.RequestMetric{
//		Endpoint:     "/users",
//		Method:       http.MethodGet,
//		ResponseTime: 12,
//		Timestamp:    time.Now(),
//		StatusCode:   http.StatusOK,
//		Service:      "users",
//	})
//
//	snapshot := store.Snapshot()
package metrics
