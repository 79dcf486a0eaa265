// Package risk is the mandatory gate between strategy intent and broker
// command. Every intent passes a validator chain under the guardrail FSM's
// current posture; exactly one decision is recorded per intent.
package risk

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/guardrail"
	"main/internal/obs"
	"main/internal/position"
	"main/internal/schema"
)

// ControlKind classifies risk engine control messages.
type ControlKind uint16

const (
	ControlUnknown ControlKind = iota
	// ControlDrift feeds a PnL drift sample into a guardrail machine.
	ControlDrift
	// ControlSnapshot replaces the exposure snapshot.
	ControlSnapshot
	// ControlReset is the operator path out of HALT.
	ControlReset
	// ControlForce pins a guardrail machine to an explicit state.
	ControlForce
	// ControlRateHint tightens cap scaling one level until UntilNs, raised
	// by the adapter when venue sends approach the soft cap.
	ControlRateHint
)

// Control is an out-of-band message for the risk engine.
type Control struct {
	Kind       ControlKind
	Scope      schema.GuardrailScope
	StrategyID uint32
	Drift      int64
	State      schema.GuardrailState
	Snapshot   position.Snapshot
	UntilNs    int64
}

// Engine owns the guardrail FSM, the validator chain and the idempotency
// window. All state is confined to the Run goroutine.
type Engine struct {
	limits   Limits
	registry *schema.Registry
	fsm      *guardrail.FSM

	intents *bus.Queue[schema.OrderIntent]
	market  *bus.Queue[schema.MarketData]
	control *bus.Queue[Control]

	approved *bus.Queue[schema.RiskDecision]
	feedback *bus.Queue[schema.BrokerResponse]

	// onTransition fans a guardrail transition out to the dispatcher, the
	// order adapter and the event stream. Called on the engine goroutine.
	onTransition func(schema.GuardrailTransition)

	stream  *obs.Stream
	metrics *obs.Metrics

	chain          []Validator
	dedup          *dedupLRU
	mids           map[uint32]schema.Price
	exposure       position.Snapshot
	tightenUntilNs int64
	scratch        []byte
}

// NewEngine wires the engine and builds the validator chain from limits.
func NewEngine(
	limits Limits,
	registry *schema.Registry,
	fsm *guardrail.FSM,
	intents *bus.Queue[schema.OrderIntent],
	market *bus.Queue[schema.MarketData],
	control *bus.Queue[Control],
	approved *bus.Queue[schema.RiskDecision],
	feedback *bus.Queue[schema.BrokerResponse],
	onTransition func(schema.GuardrailTransition),
	stream *obs.Stream,
	metrics *obs.Metrics,
) *Engine {
	return &Engine{
		limits:       limits,
		registry:     registry,
		fsm:          fsm,
		intents:      intents,
		market:       market,
		control:      control,
		approved:     approved,
		feedback:     feedback,
		onTransition: onTransition,
		stream:       stream,
		metrics:      metrics,
		chain: []Validator{
			&PriceBandValidator{BandBps: limits.PriceBandBps},
			&SizeValidator{MaxQty: limits.MaxQty, MaxNotional: limits.MaxNotional},
			&ExposureValidator{StrategyCap: limits.StrategyExposureCap, GlobalCap: limits.GlobalExposureCap},
			NewRateValidator(limits.OrderRateLimit, limits.GlobalOrderRateLimit, int64(limits.OrderRateWindow)),
		},
		dedup: newDedupLRU(limits.DedupWindow),
		mids:  make(map[uint32]schema.Price),
	}
}

// Run drives the engine until the context is cancelled or the intent queue
// closes. Control and market taps are drained with priority so posture
// changes land before the next intent is judged.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ctl, ok := <-e.control.C():
			if !ok {
				return
			}
			e.onControl(ctl)
		case md, ok := <-e.market.C():
			if !ok {
				return
			}
			if mid := md.Mid(); mid > 0 {
				e.mids[md.SymbolID] = mid
			}
		case intent, ok := <-e.intents.C():
			if !ok {
				return
			}
			e.evaluate(intent)
		}
	}
}

// evaluate runs one intent through the gate and publishes the decision.
func (e *Engine) evaluate(intent schema.OrderIntent) {
	start := time.Now()
	decision := e.decide(intent, start.UnixNano())
	e.metrics.ObserveRiskEval(time.Since(start))

	e.scratch = codec.EncodeRiskDecision(e.scratch, decision)
	buf := make([]byte, len(e.scratch))
	copy(buf, e.scratch)
	e.stream.Emit(schema.EventRiskDecision, decision.IntentID, decision.DecidedAtNs, buf)

	if decision.Outcome == schema.OutcomeApprove {
		e.metrics.IncApprove()
		if err := e.approved.Publish(context.Background(), decision, 5*time.Millisecond); err != nil {
			logs.Warnf("risk: approved decision dropped, intent=%d: %v", decision.IntentID, err)
		}
		return
	}

	e.metrics.IncReject(decision.Reason)
	// The owning strategy learns of the reject through the same feedback
	// path broker rejects use.
	_ = e.feedback.TryPublish(schema.BrokerResponse{
		CmdID:      intent.IntentID,
		IntentID:   intent.IntentID,
		OrderID:    intent.TargetID,
		StrategyID: intent.StrategyID,
		SymbolID:   intent.SymbolID,
		Kind:       schema.ResponseReject,
		Reason:     uint16(decision.Reason),
		Side:       intent.Side,
		Price:      intent.Price,
		Qty:        intent.Qty,
	})
}

func (e *Engine) decide(intent schema.OrderIntent, nowNs int64) schema.RiskDecision {
	decision := schema.RiskDecision{
		IntentID:       intent.IntentID,
		StrategyID:     intent.StrategyID,
		SymbolID:       intent.SymbolID,
		Intent:         intent.Type,
		Side:           intent.Side,
		TargetID:       intent.TargetID,
		SanitizedPrice: intent.Price,
		SanitizedQty:   intent.Qty,
		DecidedAtNs:    nowNs,
	}

	state := e.fsm.Effective(intent.StrategyID)
	decision.GuardrailState = state

	if e.dedup.Observe(intent.IdempotencyKey) {
		return rejected(decision, schema.ReasonDuplicateIntent)
	}
	if intent.Expired(nowNs) {
		return rejected(decision, schema.ReasonIntentExpired)
	}
	if _, ok := e.registry.Symbol(schema.SymbolID(intent.SymbolID)); !ok {
		return rejected(decision, schema.ReasonUnknownSymbol)
	}

	// Cancels pass the gate in any state: de-risking must stay possible
	// even under HALT.
	if state == schema.GuardrailHalt && intent.Type != schema.IntentCancel {
		return rejected(decision, schema.ReasonGuardrailHalt)
	}

	exposureState := state
	if e.exposure.Stale(nowNs, int64(e.limits.ExposureStaleAfter)) {
		exposureState = guardrail.Degrade(exposureState)
	}
	if nowNs < e.tightenUntilNs {
		exposureState = guardrail.Degrade(exposureState)
	}

	cp := Checkpoint{
		Intent:   intent,
		State:    exposureState,
		CapBps:   e.fsm.CapMultiplierBps(exposureState),
		Mid:      e.mids[intent.SymbolID],
		Exposure: e.exposure,
		NowNs:    nowNs,
		Qty:      intent.Qty,
	}
	for _, v := range e.chain {
		if reason := v.Validate(&cp); reason != schema.ReasonNone {
			return rejected(decision, reason)
		}
	}

	decision.Outcome = schema.OutcomeApprove
	decision.SanitizedQty = cp.Qty
	return decision
}

func (e *Engine) onControl(ctl Control) {
	switch ctl.Kind {
	case ControlDrift:
		var tr schema.GuardrailTransition
		var ok bool
		if ctl.Scope == schema.ScopeGlobal {
			tr, ok = e.fsm.UpdateGlobal(ctl.Drift, time.Now().UnixNano())
		} else {
			tr, ok = e.fsm.UpdateStrategy(ctl.StrategyID, ctl.Drift, time.Now().UnixNano())
		}
		if ok {
			e.publishTransition(tr)
		}
	case ControlSnapshot:
		e.exposure = ctl.Snapshot
	case ControlReset:
		if tr, ok := e.fsm.Reset(ctl.Scope, ctl.StrategyID, time.Now().UnixNano()); ok {
			e.publishTransition(tr)
		}
	case ControlForce:
		if tr, ok := e.fsm.Force(ctl.Scope, ctl.StrategyID, ctl.State, time.Now().UnixNano()); ok {
			e.publishTransition(tr)
		}
	case ControlRateHint:
		if ctl.UntilNs > e.tightenUntilNs {
			e.tightenUntilNs = ctl.UntilNs
		}
	}
}

func (e *Engine) publishTransition(tr schema.GuardrailTransition) {
	logs.Warnf("guardrail %s: %s -> %s (metric=%d strategy=%d)",
		scopeName(tr.Scope), tr.From, tr.To, tr.Metric, tr.StrategyID)
	e.scratch = codec.EncodeGuardrailTransition(e.scratch, tr)
	buf := make([]byte, len(e.scratch))
	copy(buf, e.scratch)
	e.stream.Emit(schema.EventGuardrailTransition, uint64(tr.StrategyID), tr.TsNs, buf)
	if e.onTransition != nil {
		e.onTransition(tr)
	}
}

func rejected(decision schema.RiskDecision, reason schema.DecisionReason) schema.RiskDecision {
	decision.Outcome = schema.OutcomeReject
	decision.Reason = reason
	return decision
}

func scopeName(scope schema.GuardrailScope) string {
	if scope == schema.ScopeGlobal {
		return "global"
	}
	return "strategy"
}
