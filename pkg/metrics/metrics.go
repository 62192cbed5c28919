// Meter metrics
//
// Prometheus collectors for acquisitions, derived rates and store appends,
// registered on a private registry together with the Go runtime and
// process collectors.
//
// Copyright (C) 2026 Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shaft-speed-meter/pkg/encoder"
)

const namespace = "speedmeter"

// Acquisition results used as the "result" label.
const (
	ResultOK              = "ok"
	ResultZero            = "zero"
	ResultInvalid         = "invalid"
	ResultBusy            = "busy"
	ResultLineUnavailable = "line_unavailable"
	ResultHardwareFault   = "hardware_fault"
	ResultCancelled       = "cancelled"
	ResultStoreError      = "store_error"
)

// MeterMetrics holds the meter's collectors.
type MeterMetrics struct {
	registry *prometheus.Registry

	Acquisitions     *prometheus.CounterVec
	Edges            prometheus.Counter
	AcquisitionTime  prometheus.Histogram
	LastFrequency    prometheus.Gauge
	LastRPM          prometheus.Gauge
	LastRadPerSecond prometheus.Gauge
	StoreAppends     *prometheus.CounterVec
}

// New creates and registers the meter collectors on a fresh registry.
func New() *MeterMetrics {
	m := &MeterMetrics{
		registry: prometheus.NewRegistry(),

		Acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisitions_total",
			Help:      "Acquisitions by method and result",
		}, []string{"method", "result"}),
		Edges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_total",
			Help:      "Rising edges counted by successful acquisitions",
		}),
		AcquisitionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquisition_duration_seconds",
			Help:      "Measured elapsed time of successful acquisitions",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 9, 15, 30},
		}),
		LastFrequency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_frequency_hz",
			Help:      "Pulse frequency of the most recent measurement",
		}),
		LastRPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_rpm",
			Help:      "Shaft speed of the most recent measurement in revolutions per minute",
		}),
		LastRadPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_rad_per_second",
			Help:      "Shaft speed of the most recent measurement in radians per second",
		}),
		StoreAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_appends_total",
			Help:      "Record appends by sink and result",
		}, []string{"sink", "result"}),
	}

	m.registry.MustRegister(
		m.Acquisitions,
		m.Edges,
		m.AcquisitionTime,
		m.LastFrequency,
		m.LastRPM,
		m.LastRadPerSecond,
		m.StoreAppends,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *MeterMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MeterMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAcquisition records the outcome of one acquisition. edges and
// elapsed are only recorded for successful ones.
func (m *MeterMetrics) ObserveAcquisition(method encoder.Method, result string, edges int, elapsed time.Duration) {
	m.Acquisitions.WithLabelValues(method.Short(), result).Inc()
	if result == ResultOK || result == ResultZero {
		m.Edges.Add(float64(edges))
		m.AcquisitionTime.Observe(elapsed.Seconds())
	}
}

// SetLastRate publishes the most recent derived rate.
func (m *MeterMetrics) SetLastRate(r encoder.Rate) {
	m.LastFrequency.Set(r.FrequencyHz)
	m.LastRPM.Set(r.RPM)
	m.LastRadPerSecond.Set(r.RadPerSec)
}

// ObserveAppend counts a sink append. It matches store.AppendObserver.
func (m *MeterMetrics) ObserveAppend(sink string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultStoreError
	}
	m.StoreAppends.WithLabelValues(sink, result).Inc()
}
