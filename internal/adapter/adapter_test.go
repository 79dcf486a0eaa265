package adapter

import (
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/schema"
)

type stubChannel struct {
	sent []schema.OrderCommand
	err  error
	out  chan schema.BrokerResponse
}

func newStubChannel() *stubChannel {
	return &stubChannel{out: make(chan schema.BrokerResponse, 16)}
}

func (s *stubChannel) Send(cmd schema.OrderCommand) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, cmd)
	return nil
}

func (s *stubChannel) Responses() <-chan schema.BrokerResponse { return s.out }
func (s *stubChannel) Close() error                            { return nil }

func (s *stubChannel) last(t *testing.T) schema.OrderCommand {
	t.Helper()
	if len(s.sent) == 0 {
		t.Fatalf("no command sent")
	}
	return s.sent[len(s.sent)-1]
}

func testConfig() Config {
	return Config{
		CommandTimeout: 500 * time.Millisecond,
		Rate:           RateLimiterConfig{SoftLimit: 50, HardLimit: 100, WindowNs: int64(time.Second)},
		Breaker:        BreakerConfig{FailureThreshold: 10, CooldownNs: int64(time.Second), RefailFactor: 2},
		CapitalBase:    1_000_000,
		SnapshotEvery:  100 * time.Millisecond,
		TickEvery:      10 * time.Millisecond,
	}
}

func newTestAdapter(cfg Config) (*Adapter, *stubChannel, *bus.Queue[schema.BrokerResponse], *bus.Queue[risk.Control]) {
	channel := newStubChannel()
	decisions := bus.NewQueue[schema.RiskDecision](16)
	control := bus.NewQueue[Control](16)
	feedback := bus.NewQueue[schema.BrokerResponse](64)
	riskCtl := bus.NewQueue[risk.Control](64)
	a := New(cfg, channel, decisions, control, feedback, riskCtl, nil, obs.NewMetrics())
	return a, channel, feedback, riskCtl
}

func approvedNew(intentID uint64, price schema.Price, qty schema.Quantity) schema.RiskDecision {
	return schema.RiskDecision{
		IntentID:       intentID,
		StrategyID:     1,
		SymbolID:       1,
		Outcome:        schema.OutcomeApprove,
		Intent:         schema.IntentNew,
		Side:           schema.OrderSideBuy,
		SanitizedPrice: price,
		SanitizedQty:   qty,
	}
}

func approvedAmend(intentID, targetID uint64, price schema.Price, qty schema.Quantity) schema.RiskDecision {
	d := approvedNew(intentID, price, qty)
	d.Intent = schema.IntentAmend
	d.TargetID = targetID
	return d
}

func approvedCancel(intentID, targetID uint64) schema.RiskDecision {
	d := approvedNew(intentID, 0, 0)
	d.Intent = schema.IntentCancel
	d.TargetID = targetID
	return d
}

func ack(cmd schema.OrderCommand) schema.BrokerResponse {
	return schema.BrokerResponse{CmdID: cmd.CmdID, OrderID: cmd.OrderID, Kind: schema.ResponseAck}
}

func rejectOf(cmd schema.OrderCommand) schema.BrokerResponse {
	return schema.BrokerResponse{CmdID: cmd.CmdID, OrderID: cmd.OrderID, Kind: schema.ResponseReject, Reason: 1}
}

func TestSubmitAckLifecycle(t *testing.T) {
	a, channel, feedback, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	cmd := channel.last(t)
	if cmd.Action != schema.BrokerActionSubmit || cmd.Qty != 10 {
		t.Fatalf("unexpected submit: %+v", cmd)
	}
	order, ok := a.book.Get(cmd.OrderID)
	if !ok || order.State != OrderStateSubmitting {
		t.Fatalf("order not in flight: %+v", order)
	}

	a.onResponse(ack(cmd), now+1)
	if order.State != OrderStateLive || order.InflightCmd != 0 {
		t.Fatalf("ack not applied: %+v", order)
	}
	if feedback.Len() != 1 {
		t.Fatalf("ack not forwarded to dispatcher")
	}
}

func TestAmendTargetsIntentHandle(t *testing.T) {
	a, channel, feedback, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	// The strategy only ever learns the intent id of its NEW; amends and
	// cancels address the order through that handle.
	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)
	a.onResponse(ack(submit), now+1)

	resp := <-feedback.C()
	if resp.IntentID != 100 {
		t.Fatalf("ack must carry the originating intent, got %d", resp.IntentID)
	}

	a.onDecision(approvedAmend(101, 100, 1_005, 10), now+2)
	amend := channel.last(t)
	if amend.Action != schema.BrokerActionAmend || amend.Price != 1_005 {
		t.Fatalf("amend by intent handle did not reach the broker: %+v", amend)
	}
	a.onResponse(ack(amend), now+3)

	a.onDecision(approvedCancel(102, 100), now+4)
	if channel.last(t).Action != schema.BrokerActionCancel {
		t.Fatalf("cancel by intent handle did not reach the broker")
	}
}

func TestAmendCoalescesBehindInflight(t *testing.T) {
	a, channel, _, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)

	// Two amends while the submit is outstanding: only the latest survives.
	a.onDecision(approvedAmend(101, submit.OrderID, 1_001, 10), now)
	a.onDecision(approvedAmend(102, submit.OrderID, 1_002, 10), now)
	if len(channel.sent) != 1 {
		t.Fatalf("amends must queue behind the in-flight submit, sent=%d", len(channel.sent))
	}

	a.onResponse(ack(submit), now+1)
	amend := channel.last(t)
	if amend.Action != schema.BrokerActionAmend || amend.Price != 1_002 {
		t.Fatalf("expected flushed latest amend, got %+v", amend)
	}
	if amend.CoalescedCount != 1 {
		t.Fatalf("expected one absorbed amend, got %d", amend.CoalescedCount)
	}
}

func TestCancelSupersedesPendingAmend(t *testing.T) {
	a, channel, _, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)

	a.onDecision(approvedAmend(101, submit.OrderID, 1_001, 10), now)
	a.onDecision(approvedCancel(102, submit.OrderID), now)

	a.onResponse(ack(submit), now+1)
	next := channel.last(t)
	if next.Action != schema.BrokerActionCancel {
		t.Fatalf("cancel must supersede the pending amend, got %+v", next)
	}
}

func TestUnknownTargetSynthesizesReject(t *testing.T) {
	a, _, feedback, _ := newTestAdapter(testConfig())

	a.onDecision(approvedAmend(101, 999, 1_001, 10), time.Now().UnixNano())
	if feedback.Len() != 1 {
		t.Fatalf("expected synthetic reject")
	}
	resp := <-feedback.C()
	if resp.Kind != schema.ResponseReject || resp.Reason != ReasonUnknownOrder {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.IntentID != 999 {
		t.Fatalf("reject must echo the dead handle, got %d", resp.IntentID)
	}
}

func TestHardRateCapParksAndReleases(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = RateLimiterConfig{SoftLimit: 1, HardLimit: 2, WindowNs: int64(time.Second)}
	a, channel, _, riskCtl := newTestAdapter(cfg)
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	a.onDecision(approvedNew(101, 1_000, 10), now)
	if len(channel.sent) != 2 {
		t.Fatalf("expected 2 sends before the hard cap, got %d", len(channel.sent))
	}

	// The second send crossed the soft limit and raised a tighten hint.
	foundHint := false
	for riskCtl.Len() > 0 {
		if ctl := <-riskCtl.C(); ctl.Kind == risk.ControlRateHint {
			foundHint = true
		}
	}
	if !foundHint {
		t.Fatalf("soft cap must push a rate hint to the risk engine")
	}

	a.onDecision(approvedNew(102, 1_000, 10), now)
	if len(channel.sent) != 2 {
		t.Fatalf("hard cap must park the third send")
	}
	if len(a.deferred) != 1 {
		t.Fatalf("expected 1 deferred send, got %d", len(a.deferred))
	}

	// Window rolls over: the deferred send goes out.
	a.releaseDeferred(now + int64(2*time.Second))
	if len(channel.sent) != 3 {
		t.Fatalf("deferred send not released, sent=%d", len(channel.sent))
	}
}

func TestCancelBypassesRateCap(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = RateLimiterConfig{SoftLimit: 1, HardLimit: 1, WindowNs: int64(time.Second)}
	a, channel, _, _ := newTestAdapter(cfg)
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)
	a.onResponse(ack(submit), now+1)

	// Limiter window is saturated by the submit; the cancel still goes out.
	a.onDecision(approvedCancel(101, submit.OrderID), now+2)
	if channel.last(t).Action != schema.BrokerActionCancel {
		t.Fatalf("cancel was blocked by the rate cap")
	}
}

func TestBreakerTripsAndProbes(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker = BreakerConfig{FailureThreshold: 2, CooldownNs: int64(time.Second), RefailFactor: 2}
	a, channel, feedback, _ := newTestAdapter(cfg)
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	a.onResponse(rejectOf(channel.last(t)), now+1)
	a.onDecision(approvedNew(101, 1_000, 10), now+2)
	a.onResponse(rejectOf(channel.last(t)), now+3)

	// Breaker is OPEN: a new submit is rejected locally.
	sent := len(channel.sent)
	a.onDecision(approvedNew(102, 1_000, 10), now+4)
	if len(channel.sent) != sent {
		t.Fatalf("send must not reach the broker while OPEN")
	}
	var last schema.BrokerResponse
	for feedback.Len() > 0 {
		last = <-feedback.C()
	}
	if last.Reason != ReasonBreakerOpen {
		t.Fatalf("expected local breaker reject, got %+v", last)
	}

	// After the cooldown one probe goes out, the next send parks.
	probeAt := now + 4 + int64(time.Second)
	a.onDecision(approvedNew(103, 1_000, 10), probeAt)
	if len(channel.sent) != sent+1 {
		t.Fatalf("expected exactly one probe, sent=%d", len(channel.sent)-sent)
	}
	a.onDecision(approvedNew(104, 1_000, 10), probeAt+1)
	if len(channel.sent) != sent+1 {
		t.Fatalf("second send during probe must park")
	}

	// Probe succeeds: the breaker closes and the parked send drains.
	a.onResponse(ack(channel.last(t)), probeAt+2)
	a.releaseDeferred(probeAt + 3)
	if len(channel.sent) != sent+2 {
		t.Fatalf("parked send not released after probe success")
	}
}

func TestHalfOpenProbeKeepsDeferredParked(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker = BreakerConfig{FailureThreshold: 2, CooldownNs: int64(time.Second), RefailFactor: 2}
	a, channel, _, _ := newTestAdapter(cfg)
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	a.onResponse(rejectOf(channel.last(t)), now+1)
	a.onDecision(approvedNew(101, 1_000, 10), now+2)
	a.onResponse(rejectOf(channel.last(t)), now+3)

	// Cooldown elapsed: one probe goes out, the next send parks.
	probeAt := now + 4 + int64(time.Second)
	a.onDecision(approvedNew(102, 1_000, 10), probeAt)
	a.onDecision(approvedNew(103, 1_000, 10), probeAt+1)
	sent := len(channel.sent)
	if len(a.deferred) != 1 {
		t.Fatalf("expected 1 parked send during the probe, got %d", len(a.deferred))
	}

	// With the probe still outstanding the release pass must come back
	// without sending, leaving the entry parked for the next tick.
	a.releaseDeferred(probeAt + 2)
	if len(channel.sent) != sent {
		t.Fatalf("nothing may go out while the probe is pending")
	}
	if len(a.deferred) != 1 {
		t.Fatalf("parked send lost during half-open, deferred=%d", len(a.deferred))
	}

	// Probe succeeds: the next release drains the parked send.
	a.onResponse(ack(channel.last(t)), probeAt+3)
	a.releaseDeferred(probeAt + 4)
	if len(channel.sent) != sent+1 {
		t.Fatalf("parked send not released after probe success")
	}
}

func TestIdleAmendsCoalesceWithinWindow(t *testing.T) {
	cfg := testConfig()
	cfg.CoalesceWindow = 10 * time.Millisecond
	a, channel, _, _ := newTestAdapter(cfg)
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)
	a.onResponse(ack(submit), now+1)

	// A burst of amends against the idle order is held inside the window.
	a.onDecision(approvedAmend(101, submit.OrderID, 1_001, 10), now+2)
	a.onDecision(approvedAmend(102, submit.OrderID, 1_002, 10), now+3)
	a.onDecision(approvedAmend(103, submit.OrderID, 1_003, 10), now+4)
	if len(channel.sent) != 1 {
		t.Fatalf("held amends must not reach the broker, sent=%d", len(channel.sent))
	}

	a.flushCoalesced(now + int64(5*time.Millisecond))
	if len(channel.sent) != 1 {
		t.Fatalf("window flushed early")
	}

	a.flushCoalesced(now + 2 + int64(10*time.Millisecond))
	amend := channel.last(t)
	if amend.Action != schema.BrokerActionAmend || amend.Price != 1_003 {
		t.Fatalf("expected one flushed amend at the latest price, got %+v", amend)
	}
	if amend.CoalescedCount != 2 {
		t.Fatalf("expected two absorbed amends, got %d", amend.CoalescedCount)
	}
	if len(channel.sent) != 2 {
		t.Fatalf("a window of amends must cost one round trip, sent=%d", len(channel.sent))
	}
}

func TestCancelFlushesHeldAmendImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.CoalesceWindow = 10 * time.Millisecond
	a, channel, _, _ := newTestAdapter(cfg)
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)
	a.onResponse(ack(submit), now+1)

	a.onDecision(approvedAmend(101, submit.OrderID, 1_001, 10), now+2)
	a.onDecision(approvedCancel(102, submit.OrderID), now+3)

	cancel := channel.last(t)
	if cancel.Action != schema.BrokerActionCancel {
		t.Fatalf("cancel must not wait out the coalesce window, got %+v", cancel)
	}
	// The held amend died with the cancel.
	if a.coalescer.Len() != 0 || len(a.holds) != 0 {
		t.Fatalf("held amend survived the cancel")
	}
}

func TestDeadlineSynthesizesTimeout(t *testing.T) {
	a, channel, feedback, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	cmd := channel.last(t)

	a.expireOverdue(now + int64(time.Second))
	order, ok := a.book.Get(cmd.OrderID)
	if ok && !order.State.Terminal() {
		t.Fatalf("timed-out submit must settle, state=%s", order.State)
	}
	var timeout schema.BrokerResponse
	for feedback.Len() > 0 {
		timeout = <-feedback.C()
	}
	if timeout.Kind != schema.ResponseTimeout || timeout.Reason != ReasonDeadline {
		t.Fatalf("expected synthesized timeout, got %+v", timeout)
	}
}

func TestGlobalHaltSweepsWorkingOrders(t *testing.T) {
	a, channel, _, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)
	a.onResponse(ack(submit), now+1)

	a.onControl(Control{Transition: schema.GuardrailTransition{
		Scope: schema.ScopeGlobal, To: schema.GuardrailHalt,
	}})
	if channel.last(t).Action != schema.BrokerActionCancel {
		t.Fatalf("HALT must sweep working orders with cancels")
	}
	if a.global != schema.GuardrailHalt {
		t.Fatalf("global state not recorded")
	}
}

func TestOperatorCancelAllSweeps(t *testing.T) {
	a, channel, _, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)
	a.onResponse(ack(submit), now+1)

	a.onControl(Control{Kind: ControlCancelAll})
	if channel.last(t).Action != schema.BrokerActionCancel {
		t.Fatalf("operator cancel-all must sweep working orders")
	}
	// The guardrail posture is untouched by an operator sweep.
	if a.global != schema.GuardrailNormal {
		t.Fatalf("cancel-all must not change guardrail state")
	}
}

func TestOperatorDumpOrdersPushesSnapshot(t *testing.T) {
	a, channel, _, riskCtl := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	a.onResponse(ack(channel.last(t)), now+1)
	for riskCtl.Len() > 0 {
		<-riskCtl.C()
	}

	a.onControl(Control{Kind: ControlDumpOrders})
	ctl := <-riskCtl.C()
	if ctl.Kind != risk.ControlSnapshot {
		t.Fatalf("dump must refresh the exposure snapshot, got %+v", ctl)
	}
	// A dump never touches the book.
	if a.book.Len() != 1 {
		t.Fatalf("dump must not mutate the book, len=%d", a.book.Len())
	}
}

func TestFillUpdatesTrackerAndPushesDrift(t *testing.T) {
	a, channel, feedback, riskCtl := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	cmd := channel.last(t)
	a.onResponse(ack(cmd), now+1)
	for feedback.Len() > 0 {
		<-feedback.C()
	}

	a.onResponse(schema.BrokerResponse{
		CmdID: cmd.CmdID, OrderID: cmd.OrderID, StrategyID: 1, SymbolID: 1,
		Kind: schema.ResponseFill, Side: schema.OrderSideBuy, Price: 1_000, Qty: 10, LeavesQty: 0,
	}, now+2)

	if _, ok := a.book.Get(cmd.OrderID); ok {
		t.Fatalf("fully filled order must leave the book")
	}
	if a.tracker.Position(1) != 10 {
		t.Fatalf("fill not applied: %d", a.tracker.Position(1))
	}
	if feedback.Len() != 1 {
		t.Fatalf("fill not forwarded to dispatcher")
	}

	var snapshots, drifts int
	for riskCtl.Len() > 0 {
		switch ctl := <-riskCtl.C(); ctl.Kind {
		case risk.ControlSnapshot:
			snapshots++
		case risk.ControlDrift:
			drifts++
		}
	}
	if snapshots == 0 || drifts < 2 {
		t.Fatalf("expected snapshot and per-strategy+global drift, got %d/%d", snapshots, drifts)
	}
}

func TestAmendRetriesOnce(t *testing.T) {
	a, channel, _, _ := newTestAdapter(testConfig())
	now := time.Now().UnixNano()

	a.onDecision(approvedNew(100, 1_000, 10), now)
	submit := channel.last(t)
	a.onResponse(ack(submit), now+1)

	a.onDecision(approvedAmend(101, submit.OrderID, 1_001, 10), now+2)
	first := channel.last(t)
	if first.Action != schema.BrokerActionAmend {
		t.Fatalf("expected amend, got %+v", first)
	}

	a.onResponse(rejectOf(first), now+3)
	retry := channel.last(t)
	if retry.Action != schema.BrokerActionAmend || retry.CmdID == first.CmdID {
		t.Fatalf("expected one amend retry, got %+v", retry)
	}

	sent := len(channel.sent)
	a.onResponse(rejectOf(retry), now+4)
	if len(channel.sent) != sent {
		t.Fatalf("amend must retry at most once")
	}
	order, _ := a.book.Get(submit.OrderID)
	if order.State != OrderStateLive {
		t.Fatalf("order should stay live after failed amend, state=%s", order.State)
	}
}
