// Package metrics exports registry activity to Prometheus.
//
// Metrics is a registry.Observer that counts lifecycle events per object
// type. Collector reports table occupancy on every scrape:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	reg, _ := registry.New(cfg, registry.WithObserver(m))
//	prometheus.MustRegister(metrics.NewCollector(reg))
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wippyai/osal/objid"
	"github.com/wippyai/osal/registry"
)

const namespace = "osal"

// Metrics counts registry events.
type Metrics struct {
	Events *prometheus.CounterVec
}

var _ registry.Observer = (*Metrics)(nil)

// New creates the event counters and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "registry",
				Name:      "events_total",
				Help:      "Registry lifecycle events by object type",
			},
			[]string{"type", "event"},
		),
	}
}

// OnRegistryEvent implements registry.Observer.
func (m *Metrics) OnRegistryEvent(e registry.Event) {
	m.Events.WithLabelValues(e.ObjType.String(), e.Type.String()).Inc()
}

var (
	descCapacity = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "capacity"),
		"Number of slots in the table",
		[]string{"type"}, nil,
	)
	descActive = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "active_objects"),
		"Number of usable objects",
		[]string{"type"}, nil,
	)
	descReserved = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "reserved_objects"),
		"Number of slots mid-creation or mid-deletion",
		[]string{"type"}, nil,
	)
	descRefs = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "registry", "references"),
		"Outstanding references across all objects",
		[]string{"type"}, nil,
	)
)

// StatsSource is the part of the registry the collector reads.
type StatsSource interface {
	Stats(t objid.Type) registry.TypeStats
}

type collector struct {
	src StatsSource
}

var _ prometheus.Collector = (*collector)(nil)

// NewCollector returns a collector reporting per-type table occupancy of src.
func NewCollector(src StatsSource) prometheus.Collector {
	return &collector{src: src}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descCapacity
	ch <- descActive
	ch <- descReserved
	ch <- descRefs
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, t := range objid.Types() {
		s := c.src.Stats(t)
		label := t.String()
		ch <- prometheus.MustNewConstMetric(descCapacity, prometheus.GaugeValue, float64(s.Capacity), label)
		ch <- prometheus.MustNewConstMetric(descActive, prometheus.GaugeValue, float64(s.Active), label)
		ch <- prometheus.MustNewConstMetric(descReserved, prometheus.GaugeValue, float64(s.Reserved), label)
		ch <- prometheus.MustNewConstMetric(descRefs, prometheus.GaugeValue, float64(s.Refs), label)
	}
}
