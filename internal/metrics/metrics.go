// Package metrics exports the loop counters and event counts in Prometheus
// format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/motion-sensor/internal/logic"
	"github.com/sweeney/motion-sensor/internal/pipeline"
)

const namespace = "motion"

type statMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(pipeline.Stats) int64
}

func newStat(subsystem, name, help string, kind prometheus.ValueType, value func(pipeline.Stats) int64) statMetric {
	return statMetric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil),
		kind:  kind,
		value: value,
	}
}

// Collector reads pipeline.Stats at scrape time and counts stable events.
type Collector struct {
	stats     func() pipeline.Stats
	connected func() bool

	loops         []statMetric
	mqttConnected *prometheus.Desc
	events        *prometheus.CounterVec
	registry      *prometheus.Registry
}

// New returns a Collector registered on its own registry together with the
// Go runtime and process collectors. connected may be nil.
func New(stats func() pipeline.Stats, connected func() bool) *Collector {
	c := &Collector{
		stats:     stats,
		connected: connected,
		loops: []statMetric{
			newStat("sampler", "cycles_total", "Sampling cycles run.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.SampleCycles }),
			newStat("sampler", "sensor_errors_total", "Sampling cycles skipped on a sensor error.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.SensorErrors }),
			newStat("sampler", "windows_offered_total", "Complete windows handed to the scorer.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.WindowsOffered }),
			newStat("sampler", "windows_replaced_total", "Windows superseded before the scorer took them.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.WindowsReplaced }),
			newStat("window", "size", "Scalars currently in the sliding window.", prometheus.GaugeValue,
				func(s pipeline.Stats) int64 { return s.WindowSize }),
			newStat("window", "capacity", "Sliding window capacity in scalars.", prometheus.GaugeValue,
				func(s pipeline.Stats) int64 { return s.WindowCapacity }),
			newStat("scorer", "cycles_total", "Scoring cycles run.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.ScoreCycles }),
			newStat("scorer", "classifications_total", "Windows classified.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.Classifications }),
			newStat("scorer", "classifier_errors_total", "Classifier calls that failed.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.ClassifierErrors }),
			newStat("scorer", "discarded_total", "Labels outside the valid set.", prometheus.CounterValue,
				func(s pipeline.Stats) int64 { return s.Discarded }),
			newStat("scorer", "pending_tuples", "Inference tuples waiting for a vote.", prometheus.GaugeValue,
				func(s pipeline.Stats) int64 { return s.PendingTuples }),
		},
		mqttConnected: prometheus.NewDesc(prometheus.BuildFQName(namespace, "mqtt", "connected"),
			"1 while the broker connection is up.", nil, nil),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Stable activity events by label.",
		}, []string{"label", "name"}),
		registry: prometheus.NewRegistry(),
	}

	c.registry.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveEvent counts e.
func (c *Collector) ObserveEvent(e logic.Event) {
	c.events.WithLabelValues(strconv.Itoa(int(e.Label)), e.Name).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.loops {
		ch <- m.desc
	}
	if c.connected != nil {
		ch <- c.mqttConnected
	}
	c.events.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, m := range c.loops {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, float64(m.value(s)))
	}
	if c.connected != nil {
		v := 0.0
		if c.connected() {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.mqttConnected, prometheus.GaugeValue, v)
	}
	c.events.Collect(ch)
}

// Handler serves the registry in the text exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
