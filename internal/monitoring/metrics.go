// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - requests/successes:   Total and successful request counts
//   - streams/aggregates:   Completion mode split
//   - stream_errors:        Backend error events folded into streams
//   - token counters:       Pass-through (or estimated) usage totals
//
// Served as JSON at /stats. For production, export to Prometheus or similar.
package monitoring

import (
	"sync/atomic"
	"time"
)

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	requests         atomic.Int64
	successes        atomic.Int64
	streams          atomic.Int64
	aggregates       atomic.Int64
	streamErrors     atomic.Int64
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordRequest records a request.
func (mc *MetricsCollector) RecordRequest(success bool, _ time.Duration) {
	mc.requests.Add(1)
	if success {
		mc.successes.Add(1)
	}
}

// RecordCompletion records one finished pipeline run.
func (mc *MetricsCollector) RecordCompletion(mode string, prompt, completion int, hadStreamError bool) {
	switch mode {
	case "stream":
		mc.streams.Add(1)
	case "aggregate":
		mc.aggregates.Add(1)
	}
	if hadStreamError {
		mc.streamErrors.Add(1)
	}
	mc.promptTokens.Add(int64(prompt))
	mc.completionTokens.Add(int64(completion))
}

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"requests":          mc.requests.Load(),
		"successes":         mc.successes.Load(),
		"streams":           mc.streams.Load(),
		"aggregates":        mc.aggregates.Load(),
		"stream_errors":     mc.streamErrors.Load(),
		"prompt_tokens":     mc.promptTokens.Load(),
		"completion_tokens": mc.completionTokens.Load(),
	}
}

// Stop is a no-op for compatibility.
func (mc *MetricsCollector) Stop() {}
