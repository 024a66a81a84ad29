// Package monitor keeps per-operation latency and error statistics for the
// read-only metrics snapshot, and mirrors every recording into Prometheus.
package monitor

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/persistorai/graphrouter/internal/metrics"
)

// DefaultWindow is the number of latency samples kept per operation.
const DefaultWindow = 1000

// Stats summarizes one operation kind. Durations are in milliseconds and
// cover the sample window; Count and Errors cover the monitor's lifetime.
type Stats struct {
	Count     int64   `json:"count"`
	Errors    int64   `json:"errors"`
	AvgMs     float64 `json:"avg_ms"`
	MedianMs  float64 `json:"median_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
	StdDevMs  float64 `json:"std_dev_ms"`
	ErrorRate float64 `json:"error_rate"`
}

type series struct {
	count   int64
	errors  int64
	samples []time.Duration
	next    int
}

// Monitor records operation outcomes. The zero value is not usable; call New.
type Monitor struct {
	mu      sync.Mutex
	backend string
	window  int
	ops     map[string]*series
}

// New creates a monitor labelled with the backend name for Prometheus.
func New(backend string, window int) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}

	return &Monitor{backend: backend, window: window, ops: make(map[string]*series)}
}

// Record adds one outcome of op.
func (m *Monitor) Record(op string, d time.Duration, err error) {
	metrics.OperationDuration.WithLabelValues(op, m.backend).Observe(d.Seconds())

	if err != nil {
		metrics.OperationErrors.WithLabelValues(op, m.backend).Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.ops[op]
	if !ok {
		s = &series{samples: make([]time.Duration, 0, m.window)}
		m.ops[op] = s
	}

	s.count++
	if err != nil {
		s.errors++
	}

	if len(s.samples) < m.window {
		s.samples = append(s.samples, d)

		return
	}

	s.samples[s.next] = d
	s.next = (s.next + 1) % m.window
}

// Track starts timing op. Call the returned func with a pointer to the
// operation's error, typically deferred:
//
//	defer m.Track("create_node")(&err)
func (m *Monitor) Track(op string) func(*error) {
	start := time.Now()

	return func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}

		m.Record(op, time.Since(start), err)
	}
}

// Snapshot returns statistics for every recorded operation.
func (m *Monitor) Snapshot() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Stats, len(m.ops))
	for op, s := range m.ops {
		out[op] = s.stats()
	}

	return out
}

// Reset drops all recorded statistics. Prometheus collectors are cumulative
// and are not reset.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.ops = make(map[string]*series)
	m.mu.Unlock()
}

func (s *series) stats() Stats {
	st := Stats{Count: s.count, Errors: s.errors}
	if s.count > 0 {
		st.ErrorRate = float64(s.errors) / float64(s.count)
	}

	n := len(s.samples)
	if n == 0 {
		return st
	}

	ms := make([]float64, n)
	sum := 0.0

	for i, d := range s.samples {
		ms[i] = float64(d) / float64(time.Millisecond)
		sum += ms[i]
	}

	sort.Float64s(ms)

	st.AvgMs = sum / float64(n)
	st.MinMs = ms[0]
	st.MaxMs = ms[n-1]

	if n%2 == 1 {
		st.MedianMs = ms[n/2]
	} else {
		st.MedianMs = (ms[n/2-1] + ms[n/2]) / 2
	}

	if n > 1 {
		variance := 0.0
		for _, v := range ms {
			variance += (v - st.AvgMs) * (v - st.AvgMs)
		}

		st.StdDevMs = math.Sqrt(variance / float64(n-1))
	}

	return st
}
