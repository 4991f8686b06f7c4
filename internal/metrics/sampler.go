package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const DefaultSampleInterval = 5 * time.Second

// Source produces one system sample.
type Source interface {
	Sample(ctx context.Context) (SystemMetric, error)
}

// HostSource reads the 1-minute load average and memory of the local host.
type HostSource struct{}

func (HostSource) Sample(ctx context.Context) (SystemMetric, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return SystemMetric{}, fmt.Errorf("failed to get load average: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemMetric{}, fmt.Errorf("failed to get memory info: %w", err)
	}

	free := vm.Available
	if free > vm.Total {
		free = vm.Total
	}

	return SystemMetric{
		Timestamp: time.Now(),
		CPU:       avg.Load1,
		Memory: Memory{
			Total: vm.Total,
			Free:  free,
			Used:  vm.Total - free,
		},
	}, nil
}

// Sampler appends a system sample to the store on every tick.
type Sampler struct {
	store  *Store
	source Source
	logger *slog.Logger
}

func NewSampler(store *Store, source Source, logger *slog.Logger) *Sampler {
	return &Sampler{
		store:  store,
		source: source,
		logger: logger,
	}
}

// Run samples every interval until ctx is cancelled. Failed samples are
// logged and skipped.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("System sampler started", slog.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("System sampler stopped")
			return

		case <-ticker.C:
			s.SampleOnce(ctx)
		}
	}
}

func (s *Sampler) SampleOnce(ctx context.Context) {
	sample, err := s.source.Sample(ctx)
	if err != nil {
		s.logger.Warn("System sample failed", slog.Any("err", err))
		return
	}

	s.store.AppendSystem(sample)
}
