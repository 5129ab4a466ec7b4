package eventbus

import (
	"sync/atomic"
	"time"
)

// MetricsCollector records mirror activity
type MetricsCollector interface {
	RecordPublish(eventType string, success bool, duration time.Duration)
	RecordDropped(eventType string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(eventType string, success bool, duration time.Duration) {}
func (NoOpMetricsCollector) RecordDropped(eventType string)                                       {}

// Counters is an in-process MetricsCollector exposed on /info
type Counters struct {
	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// CounterSnapshot is a point-in-time copy of Counters
type CounterSnapshot struct {
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

func (c *Counters) RecordPublish(eventType string, success bool, duration time.Duration) {
	if success {
		c.published.Add(1)
		return
	}
	c.failed.Add(1)
}

func (c *Counters) RecordDropped(eventType string) {
	c.dropped.Add(1)
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Published: c.published.Load(),
		Failed:    c.failed.Load(),
		Dropped:   c.dropped.Load(),
	}
}
