// Package textfile implements a metrics backend that writes the Prometheus
// text exposition format to a file, for collection by a node exporter
// textfile collector after a batch run.
package textfile

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/querycalc/internal/metrics"
)

// Backend collects query metrics in a private registry and writes them on Flush.
type Backend struct {
	path string
	reg  *prometheus.Registry

	stageCounter  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	rowCounter    *prometheus.CounterVec
	pairEntries   prometheus.Gauge
	strategyInfo  *prometheus.GaugeVec
}

// NewBackend creates a backend that writes to path.
func NewBackend(path string) (*Backend, error) {
	if path == "" {
		return nil, errors.New("textfile: path is required")
	}

	b := &Backend{
		path: path,
		reg:  prometheus.NewRegistry(),
		stageCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StageTotal,
			Help: "Pipeline stage executions, partitioned by stage and status.",
		}, []string{"stage", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StageDurationSeconds,
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Data rows loaded, partitioned by table.",
		}, []string{"table"}),
		pairEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metrics.PairEntries,
			Help: "Entries in the materialized pair of the last run.",
		}),
		strategyInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metrics.StrategyInfo,
			Help: "Strategy chosen by the planner for the last run.",
		}, []string{"strategy"}),
	}

	for _, c := range []prometheus.Collector{b.stageCounter, b.stageDuration, b.rowCounter, b.pairEntries, b.strategyInfo} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("textfile: register collector: %w", err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StageTotal:
		b.stageCounter.WithLabelValues(labels["stage"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rowCounter.WithLabelValues(labels["table"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StageDurationSeconds {
		return
	}
	b.stageDuration.WithLabelValues(labels["stage"], labels["status"]).Observe(value)
}

func (b *Backend) SetGauge(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.PairEntries:
		b.pairEntries.Set(value)
	case metrics.StrategyInfo:
		b.strategyInfo.Reset()
		b.strategyInfo.WithLabelValues(labels["strategy"]).Set(value)
	}
}

// Flush writes the registry to the configured file. The write goes through
// a temporary file and a rename, so collectors never read a partial file.
func (b *Backend) Flush() error {
	if err := prometheus.WriteToTextfile(b.path, b.reg); err != nil {
		return fmt.Errorf("textfile: write %s: %w", b.path, err)
	}
	return nil
}
