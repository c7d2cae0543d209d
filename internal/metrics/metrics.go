// Package metrics implements Prometheus metrics for extraction runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"firestige.xyz/pcapcpu/internal/core"
)

// Collector holds the run metrics on a private registry. It implements
// pipeline.Observer.
type Collector struct {
	registry *prometheus.Registry

	// PacketsTotal counts packets by the furthest stage they reached
	PacketsTotal *prometheus.CounterVec

	// DecodeFailuresTotal counts skipped packets by reason
	DecodeFailuresTotal *prometheus.CounterVec

	// CPUUsagePercent holds the last run's usage statistics
	CPUUsagePercent *prometheus.GaugeVec

	// SamplesUndefined counts selected samples with busy+idle == 0
	SamplesUndefined prometheus.Gauge

	// RunDurationSeconds measures the last run
	RunDurationSeconds prometheus.Gauge

	// LastRunTimestamp is the unix time the last run finished
	LastRunTimestamp prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		PacketsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pcapcpu_packets_total",
				Help: "Total number of packets by pipeline stage",
			},
			[]string{"stage"},
		),
		DecodeFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pcapcpu_decode_failures_total",
				Help: "Total number of packets skipped by failure reason",
			},
			[]string{"reason"},
		),
		CPUUsagePercent: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pcapcpu_cpu_usage_percent",
				Help: "CPU usage statistics over the selected samples",
			},
			[]string{"stat"},
		),
		SamplesUndefined: f.NewGauge(prometheus.GaugeOpts{
			Name: "pcapcpu_samples_undefined",
			Help: "Selected samples whose busy and idle times sum to zero",
		}),
		RunDurationSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "pcapcpu_run_duration_seconds",
			Help: "Wall time of the last extraction run in seconds",
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "pcapcpu_last_run_timestamp_seconds",
			Help: "Unix time the last extraction run finished",
		}),
	}
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStage counts one packet reaching stage.
func (c *Collector) ObserveStage(stage string) {
	c.PacketsTotal.WithLabelValues(stage).Inc()
}

// ObserveFailure counts one skipped packet.
func (c *Collector) ObserveFailure(reason core.Reason) {
	c.DecodeFailuresTotal.WithLabelValues(string(reason)).Inc()
}

// SetSummary records the usage statistics. Nothing is set for an empty
// summary beyond the undefined count.
func (c *Collector) SetSummary(sum core.Summary) {
	c.SamplesUndefined.Set(float64(sum.Undefined))
	if sum.Empty {
		return
	}
	c.CPUUsagePercent.WithLabelValues("min").Set(sum.Min)
	c.CPUUsagePercent.WithLabelValues("max").Set(sum.Max)
	c.CPUUsagePercent.WithLabelValues("mean").Set(sum.Mean)
	c.CPUUsagePercent.WithLabelValues("median").Set(sum.Median)
	c.CPUUsagePercent.WithLabelValues("stddev").Set(sum.StdDev)
}

// SetRun records the duration of a run that finished at end.
func (c *Collector) SetRun(d time.Duration, end time.Time) {
	c.RunDurationSeconds.Set(d.Seconds())
	c.LastRunTimestamp.Set(float64(end.Unix()))
}
