// Package metrics exposes Prometheus instrumentation for the heartbeat
// engine and its collaborators.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the process-wide metric vectors. A nil *Collector is
// valid and records nothing, so components can be wired without
// instrumentation in tests.
type Collector struct {
	pings           *prometheus.CounterVec
	alertsFired     *prometheus.CounterVec
	alertDeliveries *prometheus.CounterVec
	factsRecorded   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector registers the pulsewatch metrics with reg. Passing nil
// uses the default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsewatch_pings_total",
			Help: "Ping ingestion attempts by tenant and result.",
		}, []string{"tenant", "result"}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsewatch_alerts_fired_total",
			Help: "Transition alerts enqueued for delivery, by tenant.",
		}, []string{"tenant"}),
		alertDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsewatch_alert_deliveries_total",
			Help: "Webhook delivery outcomes.",
		}, []string{"result"}),
		factsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulsewatch_facts_recorded_total",
			Help: "Facts appended to tenant logs.",
		}, []string{"tenant"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulsewatch_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(c.pings, c.alertsFired, c.alertDeliveries, c.factsRecorded, c.requestDuration)
	return c
}

// PingObserved counts one ping ingestion attempt.
func (c *Collector) PingObserved(tenant, result string) {
	if c == nil {
		return
	}
	c.pings.WithLabelValues(tenant, result).Inc()
}

// AlertFired counts one transition alert handed to the dispatcher.
func (c *Collector) AlertFired(tenant string) {
	if c == nil {
		return
	}
	c.alertsFired.WithLabelValues(tenant).Inc()
}

// AlertDelivery counts one webhook delivery outcome.
func (c *Collector) AlertDelivery(result string) {
	if c == nil {
		return
	}
	c.alertDeliveries.WithLabelValues(result).Inc()
}

// FactRecorded counts one fact append.
func (c *Collector) FactRecorded(tenant string) {
	if c == nil {
		return
	}
	c.factsRecorded.WithLabelValues(tenant).Inc()
}

// ObserveRequest records one HTTP request latency sample.
func (c *Collector) ObserveRequest(route string, seconds float64) {
	if c == nil {
		return
	}
	c.requestDuration.WithLabelValues(route).Observe(seconds)
}
