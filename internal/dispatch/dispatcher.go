// Package dispatch owns the strategy invocation loop: it fans market data
// out to the strategies registered for the event's symbol, enforces the
// per-strategy wall-clock budget, and forwards the produced intents to the
// risk gate. One goroutine owns all dispatcher state.
package dispatch

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/obs"
	"main/internal/position"
	"main/internal/schema"
	"main/internal/strategy"
)

// ControlKind classifies dispatcher control messages.
type ControlKind uint16

const (
	ControlUnknown ControlKind = iota
	ControlEnable
	ControlDisable
	ControlGuardrail
)

// Control is an out-of-band message for the dispatcher: operator
// enable/disable and guardrail transitions it must observe.
type Control struct {
	Kind       ControlKind
	StrategyID uint32
	Transition schema.GuardrailTransition
}

// Config tunes the dispatcher.
type Config struct {
	// DefaultBudget applies to entries registered without one.
	DefaultBudget time.Duration
	// OverrunLimit overruns within OverrunWindow disable a strategy.
	OverrunLimit  int
	OverrunWindow time.Duration
	// MaxIntentsPerEvent sizes the reusable intent buffer.
	MaxIntentsPerEvent int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultBudget:      200 * time.Microsecond,
		OverrunLimit:       3,
		OverrunWindow:      10 * time.Second,
		MaxIntentsPerEvent: 16,
	}
}

type strategyRuntime struct {
	windowStart  time.Time
	overruns     int
	throttled    bool
	guardrail    schema.GuardrailState
	intentBuffer *strategy.Context
}

// Dispatcher routes market events to strategies and intents to the risk
// gate. Per-strategy intent ordering is preserved because a single
// goroutine performs all invocations and publishes in invocation order.
type Dispatcher struct {
	cfg     Config
	table   *strategy.Table
	ids     *strategy.IntentSequencer
	tracker *position.Tracker

	market   *bus.Queue[schema.MarketData]
	feedback *bus.Queue[schema.BrokerResponse]
	control  *bus.Queue[Control]
	intents  *bus.Queue[schema.OrderIntent]

	stream  *obs.Stream
	metrics *obs.Metrics

	global  schema.GuardrailState
	runtime map[uint32]*strategyRuntime
	out     []schema.OrderIntent
	scratch []byte
}

// New wires a dispatcher. The feedback queue carries broker responses that
// must reach the owning strategy's OnOrderUpdate.
func New(
	cfg Config,
	table *strategy.Table,
	ids *strategy.IntentSequencer,
	market *bus.Queue[schema.MarketData],
	feedback *bus.Queue[schema.BrokerResponse],
	control *bus.Queue[Control],
	intents *bus.Queue[schema.OrderIntent],
	stream *obs.Stream,
	metrics *obs.Metrics,
) *Dispatcher {
	if cfg.MaxIntentsPerEvent <= 0 {
		cfg.MaxIntentsPerEvent = DefaultConfig().MaxIntentsPerEvent
	}
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = DefaultConfig().DefaultBudget
	}
	return &Dispatcher{
		cfg:      cfg,
		table:    table,
		ids:      ids,
		tracker:  position.NewTracker(),
		market:   market,
		feedback: feedback,
		control:  control,
		intents:  intents,
		stream:   stream,
		metrics:  metrics,
		runtime:  make(map[uint32]*strategyRuntime),
		out:      make([]schema.OrderIntent, cfg.MaxIntentsPerEvent),
	}
}

// Run drives the dispatcher until the context is cancelled or the market
// queue closes.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ctl, ok := <-d.control.C():
			if !ok {
				return
			}
			d.onControl(ctl)
		case resp, ok := <-d.feedback.C():
			if !ok {
				return
			}
			d.onFeedback(resp)
		case md, ok := <-d.market.C():
			if !ok {
				return
			}
			d.onMarket(md)
		}
	}
}

func (d *Dispatcher) onMarket(md schema.MarketData) {
	d.tracker.MarkPrice(md.SymbolID, md.Mid())
	now := time.Now()
	for _, entry := range d.table.ForSymbol(md.SymbolID) {
		if !entry.Enabled {
			continue
		}
		d.invoke(entry, md, now)
	}
}

func (d *Dispatcher) invoke(entry *strategy.Entry, md schema.MarketData, now time.Time) {
	rt := d.runtimeFor(entry.ID)
	throttled := rt.throttled
	rt.throttled = false

	ctx := strategy.NewContext(entry.ID, d.ids)
	ctx.Event = md
	ctx.Position = d.tracker.Position(md.SymbolID)
	ctx.Guardrail = d.effectiveGuardrail(rt)
	ctx.Throttled = throttled
	ctx.NowNs = now.UnixNano()

	start := time.Now()
	n, panicked := d.safeInvoke(entry, ctx)
	elapsed := time.Since(start)
	d.metrics.ObserveDispatch(elapsed)

	if panicked {
		d.disable(entry, schema.StrategyDisabledPanic, elapsed)
		return
	}

	budget := entry.Budget
	if budget <= 0 {
		budget = d.cfg.DefaultBudget
	}
	if elapsed > budget {
		d.metrics.IncOverrun()
		if d.recordOverrun(rt, start) {
			d.disable(entry, schema.StrategyDisabledBudget, elapsed)
			return
		}
	}

	for i := 0; i < n && i < len(d.out); i++ {
		intent := d.out[i]
		if err := d.intents.TryPublish(intent); err != nil {
			d.metrics.IncIntentDropped()
			if !rt.throttled {
				rt.throttled = true
				d.emitStatus(entry.ID, schema.StrategyThrottled, 0)
			}
			continue
		}
		d.scratch = codec.EncodeOrderIntent(d.scratch, intent)
		d.emit(schema.EventOrderIntent, intent.IntentID, intent.CreatedAtNs, d.scratch)
	}
}

// safeInvoke isolates strategy panics so one misbehaving strategy cannot
// take down the loop.
func (d *Dispatcher) safeInvoke(entry *strategy.Entry, ctx *strategy.Context) (n int, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.IncPanic()
			logs.Errorf("strategy %s(%d) panic: %v", entry.Name, entry.ID, r)
			n, panicked = 0, true
		}
	}()
	return entry.Strategy.OnMarketEvent(ctx, d.out), false
}

// recordOverrun counts budget overruns in a rolling window and reports
// whether the limit was hit.
func (d *Dispatcher) recordOverrun(rt *strategyRuntime, now time.Time) bool {
	if d.cfg.OverrunLimit <= 0 {
		return false
	}
	if rt.windowStart.IsZero() || now.Sub(rt.windowStart) > d.cfg.OverrunWindow {
		rt.windowStart = now
		rt.overruns = 0
	}
	rt.overruns++
	return rt.overruns >= d.cfg.OverrunLimit
}

func (d *Dispatcher) disable(entry *strategy.Entry, kind schema.StrategyStatusKind, elapsed time.Duration) {
	if err := d.table.SetEnabled(entry.ID, false); err != nil {
		return
	}
	logs.Warnf("strategy %s(%d) disabled: %s", entry.Name, entry.ID, statusName(kind))
	d.emitStatus(entry.ID, kind, elapsed)
}

func (d *Dispatcher) onFeedback(resp schema.BrokerResponse) {
	if resp.Kind == schema.ResponseFill {
		d.tracker.ApplyFill(resp.StrategyID, schema.Fill{
			OrderID:  resp.OrderID,
			SymbolID: resp.SymbolID,
			Side:     resp.Side,
			Price:    resp.Price,
			Qty:      resp.Qty,
		})
	}
	entry, ok := d.table.Get(resp.StrategyID)
	if !ok {
		return
	}
	entry.Strategy.OnOrderUpdate(resp)
}

func (d *Dispatcher) onControl(ctl Control) {
	switch ctl.Kind {
	case ControlEnable:
		if d.table.SetEnabled(ctl.StrategyID, true) == nil {
			d.emitStatus(ctl.StrategyID, schema.StrategyEnabled, 0)
		}
	case ControlDisable:
		if d.table.SetEnabled(ctl.StrategyID, false) == nil {
			d.emitStatus(ctl.StrategyID, schema.StrategyDisabledOperator, 0)
		}
	case ControlGuardrail:
		tr := ctl.Transition
		if tr.Scope == schema.ScopeGlobal {
			d.global = tr.To
			return
		}
		d.runtimeFor(tr.StrategyID).guardrail = tr.To
	}
}

func (d *Dispatcher) runtimeFor(strategyID uint32) *strategyRuntime {
	rt, ok := d.runtime[strategyID]
	if !ok {
		rt = &strategyRuntime{}
		d.runtime[strategyID] = rt
	}
	return rt
}

func (d *Dispatcher) effectiveGuardrail(rt *strategyRuntime) schema.GuardrailState {
	if rt.guardrail > d.global {
		return rt.guardrail
	}
	return d.global
}

func (d *Dispatcher) emitStatus(strategyID uint32, kind schema.StrategyStatusKind, elapsed time.Duration) {
	status := schema.StrategyStatus{
		StrategyID: strategyID,
		Kind:       kind,
		ElapsedNs:  int64(elapsed),
		TsNs:       time.Now().UnixNano(),
	}
	d.scratch = codec.EncodeStrategyStatus(d.scratch, status)
	d.emit(schema.EventStrategyStatus, uint64(strategyID), status.TsNs, d.scratch)
}

func (d *Dispatcher) emit(eventType schema.EventType, traceID uint64, tsEvent int64, payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	d.stream.Emit(eventType, traceID, tsEvent, buf)
}

func statusName(kind schema.StrategyStatusKind) string {
	switch kind {
	case schema.StrategyEnabled:
		return "enabled"
	case schema.StrategyDisabledBudget:
		return "budget_overrun"
	case schema.StrategyDisabledPanic:
		return "panic"
	case schema.StrategyDisabledOperator:
		return "operator"
	case schema.StrategyThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}
