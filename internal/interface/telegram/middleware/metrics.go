// Package middleware contains the bot's update-processing middlewares.
package middleware

import (
	"sync"
	"sync/atomic"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS MIDDLEWARE
// Per-command counters and latency for the stats endpoint. Business
// numbers (users, calculations) live in the query layer, not here.
// ══════════════════════════════════════════════════════════════════════════════

// MetricsConfig tunes the metrics middleware.
type MetricsConfig struct {
	// SlowRequestThreshold is the latency above which a request counts
	// as slow.
	SlowRequestThreshold time.Duration

	// OnSlowRequest fires for every request over the threshold.
	OnSlowRequest func(command string, duration time.Duration, telegramID int64)
}

// DefaultMetricsConfig returns the standard settings.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SlowRequestThreshold: 2 * time.Second,
		OnSlowRequest:        nil,
	}
}

// MetricsMiddleware collects per-command usage counters.
type MetricsMiddleware struct {
	config MetricsConfig

	startedAt time.Time

	requests atomic.Int64
	errors   atomic.Int64
	panics   atomic.Int64
	inFlight atomic.Int64

	perCommand sync.Map // map[string]*commandCounters
}

// commandCounters accumulates totals for one command.
type commandCounters struct {
	count       atomic.Int64
	failures    atomic.Int64
	totalNanos  atomic.Int64
	maxNanos    atomic.Int64
	lastInvoked atomic.Value // time.Time
}

// NewMetricsMiddleware creates an empty collector.
func NewMetricsMiddleware(config MetricsConfig) *MetricsMiddleware {
	return &MetricsMiddleware{
		config:    config,
		startedAt: time.Now().UTC(),
	}
}

// RequestContext tracks a single in-flight update.
type RequestContext struct {
	// Command under execution.
	Command string

	// TelegramID of the requesting user.
	TelegramID int64

	// StartTime marks when processing began.
	StartTime time.Time

	middleware *MetricsMiddleware
}

// Start opens tracking for one request.
func (m *MetricsMiddleware) Start(command string, telegramID int64) *RequestContext {
	m.requests.Add(1)
	m.inFlight.Add(1)

	return &RequestContext{
		Command:    command,
		TelegramID: telegramID,
		StartTime:  time.Now(),
		middleware: m,
	}
}

// End closes tracking and folds the outcome into the counters.
func (rc *RequestContext) End(err error) {
	m := rc.middleware
	elapsed := time.Since(rc.StartTime)

	m.inFlight.Add(-1)

	counters := m.countersFor(rc.Command)
	counters.count.Add(1)
	if err != nil {
		counters.failures.Add(1)
		m.errors.Add(1)
	}

	nanos := elapsed.Nanoseconds()
	counters.totalNanos.Add(nanos)
	raiseMax(&counters.maxNanos, nanos)
	counters.lastInvoked.Store(time.Now().UTC())

	if m.config.OnSlowRequest != nil && elapsed > m.config.SlowRequestThreshold {
		m.config.OnSlowRequest(rc.Command, elapsed, rc.TelegramID)
	}
}

// RecordPanic counts a recovered panic.
func (m *MetricsMiddleware) RecordPanic() {
	m.panics.Add(1)
}

// countersFor returns the counters for a command, creating them on
// first use.
func (m *MetricsMiddleware) countersFor(command string) *commandCounters {
	if val, ok := m.perCommand.Load(command); ok {
		return val.(*commandCounters)
	}

	val, _ := m.perCommand.LoadOrStore(command, &commandCounters{})
	return val.(*commandCounters)
}

// raiseMax lifts the stored maximum to v if v is larger.
func raiseMax(dst *atomic.Int64, v int64) {
	for {
		cur := dst.Load()
		if cur >= v || dst.CompareAndSwap(cur, v) {
			return
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// MetricsSnapshot is a frozen view of every counter.
type MetricsSnapshot struct {
	// Timestamp of the snapshot.
	Timestamp time.Time `json:"timestamp"`

	// Uptime of the collector.
	Uptime time.Duration `json:"uptime"`

	// Process-wide counters.
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	PanicsRecovered int64   `json:"panics_recovered"`
	ActiveRequests  int64   `json:"active_requests"`
	ErrorRate       float64 `json:"error_rate"`

	// Per-command counters.
	Commands map[string]CommandSnapshot `json:"commands"`
}

// CommandSnapshot is the frozen view of one command.
type CommandSnapshot struct {
	TotalCount  int64         `json:"total_count"`
	ErrorCount  int64         `json:"error_count"`
	AvgDuration time.Duration `json:"avg_duration"`
	MaxDuration time.Duration `json:"max_duration"`
	LastInvoked time.Time     `json:"last_invoked"`
}

// Snapshot freezes all counters into one view.
func (m *MetricsMiddleware) Snapshot() *MetricsSnapshot {
	now := time.Now().UTC()

	snap := &MetricsSnapshot{
		Timestamp:       now,
		Uptime:          now.Sub(m.startedAt),
		TotalRequests:   m.requests.Load(),
		TotalErrors:     m.errors.Load(),
		PanicsRecovered: m.panics.Load(),
		ActiveRequests:  m.inFlight.Load(),
		Commands:        make(map[string]CommandSnapshot),
	}
	if snap.TotalRequests > 0 {
		snap.ErrorRate = float64(snap.TotalErrors) / float64(snap.TotalRequests)
	}

	m.perCommand.Range(func(key, value interface{}) bool {
		snap.Commands[key.(string)] = value.(*commandCounters).snapshot()
		return true
	})

	return snap
}

// snapshot freezes the counters into their wire form.
func (c *commandCounters) snapshot() CommandSnapshot {
	out := CommandSnapshot{
		TotalCount:  c.count.Load(),
		ErrorCount:  c.failures.Load(),
		MaxDuration: time.Duration(c.maxNanos.Load()),
	}
	if out.TotalCount > 0 {
		out.AvgDuration = time.Duration(c.totalNanos.Load() / out.TotalCount)
	}
	if last, ok := c.lastInvoked.Load().(time.Time); ok {
		out.LastInvoked = last
	}

	return out
}
