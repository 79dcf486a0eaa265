package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the pipeline counters to Prometheus without putting
// prometheus types on the hot path. It reads a metrics snapshot on each
// scrape and reports const metrics.
type Collector struct {
	metrics *Metrics

	events    *prometheus.Desc
	rejects   *prometheus.Desc
	approves  *prometheus.Desc
	dropped   *prometheus.Desc
	coalesced *prometheus.Desc
	deferred  *prometheus.Desc
	trips     *prometheus.Desc
	probes    *prometheus.Desc
	pubDrops  *prometheus.Desc
	overruns  *prometheus.Desc
	panics    *prometheus.Desc
	latency   *prometheus.Desc
}

// NewCollector builds a collector over the given metrics.
func NewCollector(metrics *Metrics) *Collector {
	return &Collector{
		metrics: metrics,
		events: prometheus.NewDesc("pipeline_events_total",
			"Events emitted on the observability stream by type.", []string{"type"}, nil),
		rejects: prometheus.NewDesc("pipeline_risk_rejects_total",
			"Risk rejects by stable reason code.", []string{"reason"}, nil),
		approves: prometheus.NewDesc("pipeline_risk_approves_total",
			"Approved risk decisions.", nil, nil),
		dropped: prometheus.NewDesc("pipeline_intents_dropped_total",
			"Intents dropped for downstream backpressure.", nil, nil),
		coalesced: prometheus.NewDesc("pipeline_amends_coalesced_total",
			"Amend commands absorbed by coalescing.", nil, nil),
		deferred: prometheus.NewDesc("pipeline_sends_deferred_total",
			"Commands parked by the hard venue rate cap.", nil, nil),
		trips: prometheus.NewDesc("pipeline_breaker_trips_total",
			"Circuit breaker trips.", nil, nil),
		probes: prometheus.NewDesc("pipeline_breaker_probes_total",
			"Circuit breaker half-open probes.", nil, nil),
		pubDrops: prometheus.NewDesc("pipeline_publish_drops_total",
			"Best-effort publishes dropped.", nil, nil),
		overruns: prometheus.NewDesc("pipeline_strategy_overruns_total",
			"Strategy invocations that exceeded their budget.", nil, nil),
		panics: prometheus.NewDesc("pipeline_strategy_panics_total",
			"Recovered strategy panics.", nil, nil),
		latency: prometheus.NewDesc("pipeline_stage_latency_seconds",
			"Average stage latency since process start.", []string{"stage"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.rejects
	ch <- c.approves
	ch <- c.dropped
	ch <- c.coalesced
	ch <- c.deferred
	ch <- c.trips
	ch <- c.probes
	ch <- c.pubDrops
	ch <- c.overruns
	ch <- c.panics
	ch <- c.latency
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.metrics.Snapshot()
	for eventType, count := range snap.EventCounts {
		ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue,
			float64(count), eventType.String())
	}
	for reason, count := range snap.RejectReasons {
		ch <- prometheus.MustNewConstMetric(c.rejects, prometheus.CounterValue,
			float64(count), reason.String())
	}
	ch <- prometheus.MustNewConstMetric(c.approves, prometheus.CounterValue, float64(snap.DecisionsApprove))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(snap.IntentsDropped))
	ch <- prometheus.MustNewConstMetric(c.coalesced, prometheus.CounterValue, float64(snap.CoalescedAmends))
	ch <- prometheus.MustNewConstMetric(c.deferred, prometheus.CounterValue, float64(snap.DeferredSends))
	ch <- prometheus.MustNewConstMetric(c.trips, prometheus.CounterValue, float64(snap.BreakerTrips))
	ch <- prometheus.MustNewConstMetric(c.probes, prometheus.CounterValue, float64(snap.BreakerProbes))
	ch <- prometheus.MustNewConstMetric(c.pubDrops, prometheus.CounterValue, float64(snap.PublishDrops))
	ch <- prometheus.MustNewConstMetric(c.overruns, prometheus.CounterValue, float64(snap.StrategyOverruns))
	ch <- prometheus.MustNewConstMetric(c.panics, prometheus.CounterValue, float64(snap.StrategyPanics))
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue,
		snap.DispatchLatency.Avg.Seconds(), "dispatch")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue,
		snap.RiskEvalLatency.Avg.Seconds(), "risk_eval")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue,
		snap.BrokerLatency.Avg.Seconds(), "broker")
}
