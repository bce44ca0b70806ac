package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMetricsCapacity bounds the number of samples kept in memory.
const DefaultMetricsCapacity = 10000

// SimpleMetricsCollector keeps the most recent storage samples and running
// per-operation totals.
type SimpleMetricsCollector struct {
	mutex    sync.RWMutex
	capacity int
	metrics  []StorageMetrics
	totals   map[string]map[string]*OperationStats
	total    int
}

// NewSimpleMetricsCollector creates a collector holding up to
// DefaultMetricsCapacity recent samples.
func NewSimpleMetricsCollector() *SimpleMetricsCollector {
	return NewBoundedMetricsCollector(DefaultMetricsCapacity)
}

// NewBoundedMetricsCollector creates a collector with a custom sample limit.
// Totals are kept for every sample regardless of the limit.
func NewBoundedMetricsCollector(capacity int) *SimpleMetricsCollector {
	if capacity < 1 {
		capacity = 1
	}
	return &SimpleMetricsCollector{
		capacity: capacity,
		metrics:  make([]StorageMetrics, 0),
		totals:   make(map[string]map[string]*OperationStats),
	}
}

// RecordMetric records a storage operation metric
func (s *SimpleMetricsCollector) RecordMetric(metric StorageMetrics) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.metrics) == s.capacity {
		copy(s.metrics, s.metrics[1:])
		s.metrics = s.metrics[:len(s.metrics)-1]
	}
	s.metrics = append(s.metrics, metric)
	s.total++

	if s.totals[metric.Backend] == nil {
		s.totals[metric.Backend] = make(map[string]*OperationStats)
	}
	stats := s.totals[metric.Backend][metric.OperationType]
	if stats == nil {
		stats = &OperationStats{}
		s.totals[metric.Backend][metric.OperationType] = stats
	}
	stats.add(metric)

	event := log.Debug().
		Str("operation", metric.OperationType).
		Str("backend", metric.Backend).
		Int64("duration_ns", metric.Duration).
		Bool("success", metric.Success)
	if metric.Error != nil {
		event = event.Err(metric.Error)
	}
	event.Msg("Storage operation metric recorded")
}

// GetMetrics returns the retained samples, oldest first.
func (s *SimpleMetricsCollector) GetMetrics() []StorageMetrics {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]StorageMetrics, len(s.metrics))
	copy(result, s.metrics)
	return result
}

// MetricsSummary is the JSON shape served by the metrics endpoint.
type MetricsSummary struct {
	TotalOperations int                                  `json:"total_operations"`
	ByBackend       map[string]map[string]OperationStats `json:"by_backend"`
}

// GetMetricsSummary returns per-backend, per-operation totals.
func (s *SimpleMetricsCollector) GetMetricsSummary() MetricsSummary {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	summary := MetricsSummary{
		TotalOperations: s.total,
		ByBackend:       make(map[string]map[string]OperationStats, len(s.totals)),
	}
	for backend, ops := range s.totals {
		summary.ByBackend[backend] = make(map[string]OperationStats, len(ops))
		for op, stats := range ops {
			summary.ByBackend[backend][op] = *stats
		}
	}
	return summary
}

// ClearMetrics clears all collected metrics
func (s *SimpleMetricsCollector) ClearMetrics() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.metrics = make([]StorageMetrics, 0)
	s.totals = make(map[string]map[string]*OperationStats)
	s.total = 0
}

// OperationStats holds statistics for a specific operation type
type OperationStats struct {
	Count         int   `json:"count"`
	SuccessCount  int   `json:"success_count"`
	FailureCount  int   `json:"failure_count"`
	TotalDuration int64 `json:"total_duration_ns"`
	MinDuration   int64 `json:"min_duration_ns"`
	MaxDuration   int64 `json:"max_duration_ns"`
	AvgDuration   int64 `json:"avg_duration_ns"`
}

func (o *OperationStats) add(metric StorageMetrics) {
	o.Count++
	o.TotalDuration += metric.Duration
	if metric.Success {
		o.SuccessCount++
	} else {
		o.FailureCount++
	}
	if o.Count == 1 || metric.Duration < o.MinDuration {
		o.MinDuration = metric.Duration
	}
	if metric.Duration > o.MaxDuration {
		o.MaxDuration = metric.Duration
	}
	o.AvgDuration = o.TotalDuration / int64(o.Count)
}

// GetSuccessRate returns the success rate as a percentage
func (o *OperationStats) GetSuccessRate() float64 {
	if o.Count == 0 {
		return 0.0
	}
	return float64(o.SuccessCount) / float64(o.Count) * 100.0
}

// GetAvgDurationMs returns the average duration in milliseconds
func (o *OperationStats) GetAvgDurationMs() float64 {
	return float64(o.AvgDuration) / float64(time.Millisecond)
}

func record(collector MetricsCollector, backend, operation string, start time.Time, err error) {
	if collector == nil {
		return
	}
	collector.RecordMetric(StorageMetrics{
		OperationType: operation,
		Duration:      time.Since(start).Nanoseconds(),
		Success:       err == nil,
		Backend:       backend,
		Error:         err,
	})
}
