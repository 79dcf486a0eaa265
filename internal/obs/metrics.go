package obs

import (
	"sync/atomic"
	"time"

	"main/internal/schema"
)

const (
	maxEventType      = int(schema.EventRateAlarm)
	maxDecisionReason = int(schema.ReasonUnknownSymbol)
)

// Metrics collects lightweight counters and latency stats. All methods are
// safe for concurrent use and tolerate a nil receiver.
type Metrics struct {
	eventCounts   [maxEventType + 1]uint64
	rejectReasons [maxDecisionReason + 1]uint64

	intentsDropped   uint64
	decisionsApprove uint64
	decisionsReject  uint64
	coalescedAmends  uint64
	deferredSends    uint64
	breakerTrips     uint64
	breakerProbes    uint64
	publishDrops     uint64
	strategyOverruns uint64
	strategyPanics   uint64

	dispatchLatency LatencyStats
	riskEvalLatency LatencyStats
	brokerLatency   LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts      map[schema.EventType]uint64
	RejectReasons    map[schema.DecisionReason]uint64
	IntentsDropped   uint64
	DecisionsApprove uint64
	DecisionsReject  uint64
	CoalescedAmends  uint64
	DeferredSends    uint64
	BreakerTrips     uint64
	BreakerProbes    uint64
	PublishDrops     uint64
	StrategyOverruns uint64
	StrategyPanics   uint64
	DispatchLatency  LatencySnapshot
	RiskEvalLatency  LatencySnapshot
	BrokerLatency    LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveEvent counts an emitted event by type.
func (m *Metrics) ObserveEvent(header schema.EventHeader) {
	if m == nil {
		return
	}
	idx := int(header.Type)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncReject counts a risk reject by stable reason code.
func (m *Metrics) IncReject(reason schema.DecisionReason) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decisionsReject, 1)
	idx := int(reason)
	if idx >= 0 && idx < len(m.rejectReasons) {
		atomic.AddUint64(&m.rejectReasons[idx], 1)
	}
}

// IncApprove counts an approved decision.
func (m *Metrics) IncApprove() {
	if m == nil {
		return
	}
	m.inc(&m.decisionsApprove)
}

// IncIntentDropped counts an intent dropped for backpressure.
func (m *Metrics) IncIntentDropped() {
	if m == nil {
		return
	}
	m.inc(&m.intentsDropped)
}

// IncCoalesced counts an AMEND absorbed by coalescing.
func (m *Metrics) IncCoalesced() {
	if m == nil {
		return
	}
	m.inc(&m.coalescedAmends)
}

// IncDeferred counts a send parked by the hard rate cap.
func (m *Metrics) IncDeferred() {
	if m == nil {
		return
	}
	m.inc(&m.deferredSends)
}

// IncBreakerTrip counts a circuit breaker CLOSED->OPEN transition.
func (m *Metrics) IncBreakerTrip() {
	if m == nil {
		return
	}
	m.inc(&m.breakerTrips)
}

// IncBreakerProbe counts a HALF_OPEN probe.
func (m *Metrics) IncBreakerProbe() {
	if m == nil {
		return
	}
	m.inc(&m.breakerProbes)
}

// IncPublishDrop counts a best-effort outbound publish that was dropped.
func (m *Metrics) IncPublishDrop() {
	if m == nil {
		return
	}
	m.inc(&m.publishDrops)
}

// IncOverrun counts a strategy budget overrun.
func (m *Metrics) IncOverrun() {
	if m == nil {
		return
	}
	m.inc(&m.strategyOverruns)
}

// IncPanic counts a recovered strategy panic.
func (m *Metrics) IncPanic() {
	if m == nil {
		return
	}
	m.inc(&m.strategyPanics)
}

// ObserveDispatch measures one strategy invocation.
func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m != nil {
		m.dispatchLatency.Observe(d)
	}
}

// ObserveRiskEval measures one risk evaluation.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m != nil {
		m.riskEvalLatency.Observe(d)
	}
}

// ObserveBroker measures one broker round trip.
func (m *Metrics) ObserveBroker(d time.Duration) {
	if m != nil {
		m.brokerLatency.Observe(d)
	}
}

func (m *Metrics) inc(v *uint64) {
	if m == nil {
		return
	}
	atomic.AddUint64(v, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[schema.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[schema.EventType(i)] = v
		}
	}
	rejectReasons := make(map[schema.DecisionReason]uint64)
	for i := range m.rejectReasons {
		if v := atomic.LoadUint64(&m.rejectReasons[i]); v > 0 {
			rejectReasons[schema.DecisionReason(i)] = v
		}
	}
	return Snapshot{
		EventCounts:      eventCounts,
		RejectReasons:    rejectReasons,
		IntentsDropped:   atomic.LoadUint64(&m.intentsDropped),
		DecisionsApprove: atomic.LoadUint64(&m.decisionsApprove),
		DecisionsReject:  atomic.LoadUint64(&m.decisionsReject),
		CoalescedAmends:  atomic.LoadUint64(&m.coalescedAmends),
		DeferredSends:    atomic.LoadUint64(&m.deferredSends),
		BreakerTrips:     atomic.LoadUint64(&m.breakerTrips),
		BreakerProbes:    atomic.LoadUint64(&m.breakerProbes),
		PublishDrops:     atomic.LoadUint64(&m.publishDrops),
		StrategyOverruns: atomic.LoadUint64(&m.strategyOverruns),
		StrategyPanics:   atomic.LoadUint64(&m.strategyPanics),
		DispatchLatency:  m.dispatchLatency.Snapshot(),
		RiskEvalLatency:  m.riskEvalLatency.Snapshot(),
		BrokerLatency:    m.brokerLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
