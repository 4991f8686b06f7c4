package metrics

import (
	"time"
)

const DefaultCapacity = 100

// RequestMetric describes one completed gateway request.
type RequestMetric struct {
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	ResponseTime int64     `json:"responseTime"` // milliseconds
	Timestamp    time.Time `json:"timestamp"`
	StatusCode   int       `json:"statusCode"`
	Service      string    `json:"service"`
}

type Memory struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
	Used  uint64 `json:"used"`
}

// SystemMetric is one host sample. CPU is the 1-minute load average.
type SystemMetric struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       float64   `json:"cpu"`
	Memory    Memory    `json:"memory"`
}

type Snapshot struct {
	Requests []RequestMetric `json:"requests"`
	System   []SystemMetric  `json:"system"`
}

// Recorder receives every appended metric. The Prometheus exporter is one.
type Recorder interface {
	ObserveRequest(m RequestMetric)
	ObserveSystem(m SystemMetric)
}

// Store holds the request and system buffers. Each buffer has its own lock,
// so request traffic never contends with the sampler.
type Store struct {
	requests *Ring[RequestMetric]
	system   *Ring[SystemMetric]
	recorder Recorder
}

// NewStore creates a store whose buffers each hold capacity entries.
// recorder may be nil.
func NewStore(capacity int, recorder Recorder) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Store{
		requests: NewRing[RequestMetric](capacity),
		system:   NewRing[SystemMetric](capacity),
		recorder: recorder,
	}
}

func (s *Store) AppendRequest(m RequestMetric) {
	s.requests.Push(m)
	if s.recorder != nil {
		s.recorder.ObserveRequest(m)
	}
}

func (s *Store) AppendSystem(m SystemMetric) {
	s.system.Push(m)
	if s.recorder != nil {
		s.recorder.ObserveSystem(m)
	}
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Requests: s.requests.Items(),
		System:   s.system.Items(),
	}
}
