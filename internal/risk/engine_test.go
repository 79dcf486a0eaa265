package risk

import (
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/guardrail"
	"main/internal/obs"
	"main/internal/position"
	"main/internal/schema"
)

const testNowNs = int64(1_000_000_000_000)

func testLimits() Limits {
	return Limits{
		PriceBandBps:         200,
		MaxQty:               100,
		MaxNotional:          1_000_000,
		StrategyExposureCap:  500_000,
		GlobalExposureCap:    900_000,
		OrderRateLimit:       2,
		GlobalOrderRateLimit: 100,
		OrderRateWindow:      time.Second,
		ExposureStaleAfter:   500 * time.Millisecond,
		DedupWindow:          16,
	}
}

func testEngine(t *testing.T, limits Limits) (*Engine, *bus.Queue[schema.RiskDecision], *bus.Queue[schema.BrokerResponse], *guardrail.FSM) {
	t.Helper()
	registry := schema.NewRegistry()
	venueID, err := registry.AddVenue("SIMX")
	if err != nil {
		t.Fatalf("add venue: %v", err)
	}
	if _, err := registry.AddSymbol("BTC-USDT", venueID, schema.ScaleSpec{}); err != nil {
		t.Fatalf("add symbol: %v", err)
	}

	fsm := guardrail.New(guardrail.DefaultConfig())
	fsm.Register(1)

	intents := bus.NewQueue[schema.OrderIntent](16)
	market := bus.NewQueue[schema.MarketData](16)
	control := bus.NewQueue[Control](16)
	approved := bus.NewQueue[schema.RiskDecision](16)
	feedback := bus.NewQueue[schema.BrokerResponse](16)

	e := NewEngine(limits, registry, fsm, intents, market, control, approved, feedback, nil, nil, obs.NewMetrics())

	// A fresh exposure snapshot so only the scenario under test degrades
	// the cap-scaling state.
	e.onControl(Control{Kind: ControlSnapshot, Snapshot: position.Snapshot{
		TakenAtNs:        testNowNs,
		Positions:        map[uint32]schema.Quantity{},
		StrategyNotional: map[uint32]schema.Notional{},
	}})
	e.mids[1] = 1_000
	return e, approved, feedback, fsm
}

func newIntent(key uint64, qty schema.Quantity, price schema.Price) schema.OrderIntent {
	return schema.OrderIntent{
		IntentID:       key,
		StrategyID:     1,
		SymbolID:       1,
		Side:           schema.OrderSideBuy,
		Type:           schema.IntentNew,
		Price:          price,
		Qty:            qty,
		IdempotencyKey: key,
		CreatedAtNs:    testNowNs,
	}
}

func TestApproveWithinLimits(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	d := e.decide(newIntent(1, 50, 1_001), testNowNs)
	if d.Outcome != schema.OutcomeApprove {
		t.Fatalf("expected approve, got %v reason=%s", d.Outcome, d.Reason)
	}
	if d.SanitizedQty != 50 {
		t.Fatalf("quantity should be untouched, got %d", d.SanitizedQty)
	}
}

func TestDuplicateIntentRejected(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	if d := e.decide(newIntent(7, 10, 1_000), testNowNs); d.Outcome != schema.OutcomeApprove {
		t.Fatalf("first intent should pass: %s", d.Reason)
	}
	d := e.decide(newIntent(7, 10, 1_000), testNowNs)
	if d.Reason != schema.ReasonDuplicateIntent {
		t.Fatalf("expected duplicate reject, got %s", d.Reason)
	}
}

func TestExpiredIntentRejected(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	intent := newIntent(2, 10, 1_000)
	intent.TTLNs = 1_000
	d := e.decide(intent, testNowNs+2_000)
	if d.Reason != schema.ReasonIntentExpired {
		t.Fatalf("expected expiry reject, got %s", d.Reason)
	}
}

func TestUnknownSymbolRejected(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	intent := newIntent(3, 10, 1_000)
	intent.SymbolID = 99
	d := e.decide(intent, testNowNs)
	if d.Reason != schema.ReasonUnknownSymbol {
		t.Fatalf("expected unknown symbol reject, got %s", d.Reason)
	}
}

func TestHaltBlocksNewAllowsCancel(t *testing.T) {
	e, _, _, fsm := testEngine(t, testLimits())
	fsm.Force(schema.ScopeGlobal, 0, schema.GuardrailHalt, testNowNs)

	d := e.decide(newIntent(4, 10, 1_000), testNowNs)
	if d.Reason != schema.ReasonGuardrailHalt {
		t.Fatalf("expected HALT reject, got %s", d.Reason)
	}

	cancel := newIntent(5, 0, 0)
	cancel.Type = schema.IntentCancel
	cancel.TargetID = 42
	d = e.decide(cancel, testNowNs)
	if d.Outcome != schema.OutcomeApprove {
		t.Fatalf("cancel must pass under HALT, got %s", d.Reason)
	}
}

func TestPriceBandReject(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	// Band is 200 bps around mid 1000: 1030 is 300 bps off.
	d := e.decide(newIntent(6, 10, 1_030), testNowNs)
	if d.Reason != schema.ReasonPriceBandViolation {
		t.Fatalf("expected band reject, got %s", d.Reason)
	}
}

func TestWarmClampsQuantity(t *testing.T) {
	e, _, _, fsm := testEngine(t, testLimits())
	fsm.Force(schema.ScopeStrategy, 1, schema.GuardrailWarm, testNowNs)

	d := e.decide(newIntent(8, 80, 1_000), testNowNs)
	if d.Outcome != schema.OutcomeApprove {
		t.Fatalf("expected clamped approve, got %s", d.Reason)
	}
	// WARM halves the 100 cap; 80 clamps to 50.
	if d.SanitizedQty != 50 {
		t.Fatalf("expected qty 50, got %d", d.SanitizedQty)
	}
	if d.GuardrailState != schema.GuardrailWarm {
		t.Fatalf("decision should carry the guardrail state")
	}
}

func TestHardMaxQtyRejects(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	d := e.decide(newIntent(9, 150, 1_000), testNowNs)
	if d.Reason != schema.ReasonMaxQty {
		t.Fatalf("expected max qty reject, got %s", d.Reason)
	}
}

func TestExposureCapRejects(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())
	e.onControl(Control{Kind: ControlSnapshot, Snapshot: position.Snapshot{
		TakenAtNs:        testNowNs,
		StrategyNotional: map[uint32]schema.Notional{1: 480_000},
		GlobalNotional:   480_000,
	}})

	// 50 @ 1000 adds 50k notional on top of 480k against a 500k cap.
	d := e.decide(newIntent(10, 50, 1_000), testNowNs)
	if d.Reason != schema.ReasonExposureCap {
		t.Fatalf("expected exposure reject, got %s", d.Reason)
	}
}

func TestOrderRateRejects(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	for i := uint64(20); i < 22; i++ {
		if d := e.decide(newIntent(i, 1, 1_000), testNowNs); d.Outcome != schema.OutcomeApprove {
			t.Fatalf("intent %d should pass: %s", i, d.Reason)
		}
	}
	d := e.decide(newIntent(22, 1, 1_000), testNowNs)
	if d.Reason != schema.ReasonOrderRate {
		t.Fatalf("expected rate reject, got %s", d.Reason)
	}

	// A cancel is exempt even with the window saturated.
	cancel := newIntent(23, 0, 0)
	cancel.Type = schema.IntentCancel
	cancel.TargetID = 1
	if d := e.decide(cancel, testNowNs); d.Outcome != schema.OutcomeApprove {
		t.Fatalf("cancel must bypass rate limit, got %s", d.Reason)
	}

	// The window rolls over and submissions flow again.
	next := testNowNs + int64(2*time.Second)
	if d := e.decide(newIntent(24, 1, 1_000), next); d.Outcome != schema.OutcomeApprove {
		t.Fatalf("expected approval after window rollover, got %s", d.Reason)
	}
}

func TestGlobalOrderRateRejects(t *testing.T) {
	limits := testLimits()
	limits.OrderRateLimit = 10
	limits.GlobalOrderRateLimit = 3
	e, _, _, fsm := testEngine(t, limits)
	fsm.Register(2)

	// Each strategy stays well under its own cap but together they exhaust
	// the shared window.
	for i := uint64(30); i < 33; i++ {
		intent := newIntent(i, 1, 1_000)
		intent.StrategyID = uint32(1 + i%2)
		if d := e.decide(intent, testNowNs); d.Outcome != schema.OutcomeApprove {
			t.Fatalf("intent %d should pass: %s", i, d.Reason)
		}
	}
	fourth := newIntent(33, 1, 1_000)
	fourth.StrategyID = 2
	d := e.decide(fourth, testNowNs)
	if d.Reason != schema.ReasonOrderRate {
		t.Fatalf("expected global rate reject, got %s", d.Reason)
	}

	next := testNowNs + int64(2*time.Second)
	if d := e.decide(newIntent(34, 1, 1_000), next); d.Outcome != schema.OutcomeApprove {
		t.Fatalf("expected approval after window rollover, got %s", d.Reason)
	}
}

func TestStaleExposureDegradesCaps(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())

	// 600ms after the snapshot the exposure feed is stale; NORMAL degrades
	// to WARM for cap scaling and the quantity clamps.
	later := testNowNs + int64(600*time.Millisecond)
	d := e.decide(newIntent(11, 80, 1_000), later)
	if d.Outcome != schema.OutcomeApprove || d.SanitizedQty != 50 {
		t.Fatalf("expected degraded clamp to 50, got %v qty=%d reason=%s", d.Outcome, d.SanitizedQty, d.Reason)
	}
}

func TestRateHintTightensCaps(t *testing.T) {
	e, _, _, _ := testEngine(t, testLimits())
	e.onControl(Control{Kind: ControlRateHint, UntilNs: testNowNs + int64(time.Second)})

	d := e.decide(newIntent(12, 80, 1_000), testNowNs)
	if d.SanitizedQty != 50 {
		t.Fatalf("expected tightened clamp to 50, got %d", d.SanitizedQty)
	}

	// After the hint expires full caps come back.
	after := testNowNs + int64(2*time.Second)
	e.onControl(Control{Kind: ControlSnapshot, Snapshot: position.Snapshot{TakenAtNs: after}})
	d = e.decide(newIntent(13, 80, 1_000), after)
	if d.SanitizedQty != 80 {
		t.Fatalf("expected full qty 80 after hint expiry, got %d", d.SanitizedQty)
	}
}

func TestRejectSynthesizesFeedback(t *testing.T) {
	e, approved, feedback, _ := testEngine(t, testLimits())

	intent := newIntent(14, 150, 1_000) // over hard MaxQty
	e.evaluate(intent)

	if approved.Len() != 0 {
		t.Fatalf("reject must not reach the adapter")
	}
	if feedback.Len() != 1 {
		t.Fatalf("expected synthetic reject on feedback, got %d", feedback.Len())
	}
	resp := <-feedback.C()
	if resp.Kind != schema.ResponseReject || resp.CmdID != intent.IntentID {
		t.Fatalf("unexpected synthetic reject: %+v", resp)
	}
	if resp.IntentID != intent.IntentID {
		t.Fatalf("synthetic reject must carry the intent handle: %+v", resp)
	}
	if resp.Reason != uint16(schema.ReasonMaxQty) {
		t.Fatalf("reason code not carried: %d", resp.Reason)
	}
}

func TestDriftControlDrivesTransitions(t *testing.T) {
	var transitions []schema.GuardrailTransition
	e, _, _, _ := testEngine(t, testLimits())
	e.onTransition = func(tr schema.GuardrailTransition) { transitions = append(transitions, tr) }

	e.onControl(Control{Kind: ControlDrift, Scope: schema.ScopeGlobal, Drift: -12_000})
	if len(transitions) != 1 || transitions[0].To != schema.GuardrailStorm {
		t.Fatalf("expected STORM transition, got %+v", transitions)
	}
	// Same level again: no spurious transition.
	e.onControl(Control{Kind: ControlDrift, Scope: schema.ScopeGlobal, Drift: -13_000})
	if len(transitions) != 1 {
		t.Fatalf("expected no repeat transition, got %d", len(transitions))
	}
}

func TestDedupLRUEvicts(t *testing.T) {
	d := newDedupLRU(2)
	if d.Observe(1) || d.Observe(2) {
		t.Fatalf("fresh keys reported as seen")
	}
	if !d.Observe(1) {
		t.Fatalf("key 1 should still be tracked")
	}
	d.Observe(3) // evicts key 1
	if d.Observe(1) {
		t.Fatalf("evicted key still reported as seen")
	}
	if d.Observe(0) {
		t.Fatalf("zero key must never match")
	}
}
