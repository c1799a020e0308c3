package observability

import (
	"sync"
	"time"
)

// KeySnapshot summarizes processing of one routing key.
type KeySnapshot struct {
	Count         int64   `json:"count"`
	Errors        int64   `json:"errors"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Snapshot is the full metrics view served on /metrics.
type Snapshot struct {
	UptimeSec     int64                  `json:"uptime_sec"`
	TotalMessages int64                  `json:"total_messages"`
	TotalErrors   int64                  `json:"total_errors"`
	Keys          map[string]KeySnapshot `json:"keys"`
}

type keyStats struct {
	count        int64
	errors       int64
	totalLatency time.Duration
	maxLatency   time.Duration
	lastLatency  time.Duration
}

// Metrics counts handled broker messages per routing key.
type Metrics struct {
	mu    sync.Mutex
	start time.Time
	keys  map[string]*keyStats
}

func NewMetrics() *Metrics {
	return &Metrics{
		start: time.Now(),
		keys:  make(map[string]*keyStats),
	}
}

// ObserveMessage records one handled message. Its signature matches the
// broker consumer's Observe hook.
func (m *Metrics) ObserveMessage(key string, start time.Time, err error) {
	if m == nil {
		return
	}
	dur := time.Since(start)

	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.keys[key]
	if !ok {
		stats = &keyStats{}
		m.keys[key] = stats
	}
	stats.count++
	if err != nil {
		stats.errors++
	}
	stats.totalLatency += dur
	if dur > stats.maxLatency {
		stats.maxLatency = dur
	}
	stats.lastLatency = dur
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSec: int64(time.Since(m.start).Seconds()),
		Keys:      make(map[string]KeySnapshot),
	}
	for key, stats := range m.keys {
		avg := 0.0
		if stats.count > 0 {
			avg = float64(stats.totalLatency.Milliseconds()) / float64(stats.count)
		}
		snap.Keys[key] = KeySnapshot{
			Count:         stats.count,
			Errors:        stats.errors,
			AvgLatencyMs:  avg,
			MaxLatencyMs:  float64(stats.maxLatency.Milliseconds()),
			LastLatencyMs: float64(stats.lastLatency.Milliseconds()),
		}
		snap.TotalMessages += stats.count
		snap.TotalErrors += stats.errors
	}
	return snap
}
