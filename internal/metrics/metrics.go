// Package metrics records operational metrics of query runs behind a small
// backend interface.
//
// The default backend is a no-op, so instrumentation is always safe to call.
// Concrete metric systems live in subpackages (see metrics/textfile) and are
// installed once per process with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the engine.
const (
	StageTotal           = "querycalc_stage_total"
	StageDurationSeconds = "querycalc_stage_duration_seconds"
	RowsTotal            = "querycalc_rows_total"
	PairEntries          = "querycalc_pair_entries"
	StrategyInfo         = "querycalc_strategy_info"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration style observation.
	ObserveHistogram(name string, value float64, labels Labels)
	// SetGauge sets a gauge to value.
	SetGauge(name string, value float64, labels Labels)
	// Flush writes out collected metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) SetGauge(string, float64, Labels)         {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStage records the duration and outcome of one pipeline stage
// (load, group, join, aggregate, topk, write).
func RecordStage(stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"stage": stage, "status": status}

	b := current()
	b.IncCounter(StageTotal, 1, lbls)
	b.ObserveHistogram(StageDurationSeconds, d.Seconds(), lbls)
}

// RecordRows counts the data rows loaded from one table.
func RecordRows(table string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"table": table})
}

// SetPairEntries records the size of the materialized pair (0 for probe runs).
func SetPairEntries(n int64) {
	current().SetGauge(PairEntries, float64(n), nil)
}

// RecordStrategy marks the strategy the planner chose.
func RecordStrategy(strategy string) {
	current().SetGauge(StrategyInfo, 1, Labels{"strategy": strategy})
}
