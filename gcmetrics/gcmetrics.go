// Package gcmetrics exports gc.Heap statistics as Prometheus metrics.
package gcmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kolkov/rcgc/gc"
)

// Collector is a prometheus.Collector reading a heap's statistics on every
// scrape. Heap statistics are safe to read from any goroutine, so the
// collector may be registered with a registry served over HTTP.
type Collector struct {
	heap *gc.Heap

	allocations *prometheus.Desc
	fastFrees   *prometheus.Desc
	swept       *prometheus.Desc
	finalized   *prometheus.Desc
	resurrected *prometheus.Desc
	collections *prometheus.Desc
	live        *prometheus.Desc
	liveBytes   *prometheus.Desc
	threshold   *prometheus.Desc
	lastPause   *prometheus.Desc
}

// NewCollector returns a collector for h. Metric names are prefixed with
// namespace, which may be empty.
func NewCollector(h *gc.Heap, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "gc", name), help, nil, nil)
	}

	return &Collector{
		heap: h,

		allocations: desc("allocations_total", "The total number of values allocated."),
		fastFrees:   desc("fast_frees_total", "The total number of values freed when their last handle was dropped."),
		swept:       desc("swept_total", "The total number of values reclaimed by collections."),
		finalized:   desc("finalized_total", "The total number of finalizers run."),
		resurrected: desc("resurrected_total", "The total number of values revived by a finalizer."),
		collections: desc("collections_total", "The total number of completed collections."),
		live:        desc("live_records", "The number of live values."),
		liveBytes:   desc("live_bytes", "The approximate size of live values in bytes."),
		threshold:   desc("threshold", "The live value count that triggers the next collection."),
		lastPause:   desc("last_pause_seconds", "The duration of the last collection."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.allocations
	ch <- c.fastFrees
	ch <- c.swept
	ch <- c.finalized
	ch <- c.resurrected
	ch <- c.collections
	ch <- c.live
	ch <- c.liveBytes
	ch <- c.threshold
	ch <- c.lastPause
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.heap.Stats()

	ch <- prometheus.MustNewConstMetric(c.allocations, prometheus.CounterValue, float64(s.Allocations))
	ch <- prometheus.MustNewConstMetric(c.fastFrees, prometheus.CounterValue, float64(s.FastFrees))
	ch <- prometheus.MustNewConstMetric(c.swept, prometheus.CounterValue, float64(s.Swept))
	ch <- prometheus.MustNewConstMetric(c.finalized, prometheus.CounterValue, float64(s.Finalized))
	ch <- prometheus.MustNewConstMetric(c.resurrected, prometheus.CounterValue, float64(s.Resurrected))
	ch <- prometheus.MustNewConstMetric(c.collections, prometheus.CounterValue, float64(s.Collections))
	ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(s.Live))
	ch <- prometheus.MustNewConstMetric(c.liveBytes, prometheus.GaugeValue, float64(s.LiveBytes))
	ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, float64(s.Threshold))
	ch <- prometheus.MustNewConstMetric(c.lastPause, prometheus.GaugeValue, s.LastPause.Seconds())
}
