// Package adapter turns approved risk decisions into broker commands. It
// owns the live order table, coalesces bursts of amends, enforces the
// venue rate caps and wraps the broker channel in a circuit breaker. One
// goroutine owns all adapter state.
package adapter

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/obs"
	"main/internal/position"
	"main/internal/risk"
	"main/internal/schema"
)

// Reason codes on responses the adapter synthesizes locally. They live
// above the risk DecisionReason range so the two never collide.
const (
	ReasonUnknownOrder uint16 = 0x1001
	ReasonBreakerOpen  uint16 = 0x1002
	ReasonSendFailed   uint16 = 0x1003
	ReasonDeadline     uint16 = 0x1004
)

// Config tunes the order adapter.
type Config struct {
	// CommandTimeout boxes every broker wait; an overdue command gets a
	// synthesized TIMEOUT response.
	CommandTimeout time.Duration
	Rate           RateLimiterConfig
	Breaker        BreakerConfig
	// CoalesceWindow holds amends to an idle order so a burst collapses
	// into one broker round trip per window. Zero sends amends immediately.
	CoalesceWindow time.Duration
	// CapitalBase normalizes equity into drift units of one millionth for
	// the guardrail FSM.
	CapitalBase schema.Notional
	// SnapshotEvery is the exposure snapshot push cadence.
	SnapshotEvery time.Duration
	// TickEvery drives deadline checks and deferred releases.
	TickEvery time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: 500 * time.Millisecond,
		Rate: RateLimiterConfig{
			SoftLimit: 80,
			HardLimit: 100,
			WindowNs:  int64(10 * time.Second),
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			CooldownNs:       int64(2 * time.Second),
			RefailFactor:     2,
		},
		CoalesceWindow: 2 * time.Millisecond,
		CapitalBase:    1_000_000_000_000,
		SnapshotEvery:  100 * time.Millisecond,
		TickEvery:      10 * time.Millisecond,
	}
}

// ControlKind classifies adapter control messages.
type ControlKind uint16

const (
	// ControlGuardrail carries a guardrail transition the adapter must
	// observe. It is the zero value so transition-only controls work.
	ControlGuardrail ControlKind = iota
	// ControlCancelAll is the operator path to a full working-order sweep.
	ControlCancelAll
	// ControlDumpOrders logs every working order and pushes a fresh
	// exposure snapshot to the risk engine.
	ControlDumpOrders
)

// Control is an out-of-band message for the adapter.
type Control struct {
	Kind       ControlKind
	Transition schema.GuardrailTransition
}

type deferredSend struct {
	orderID   uint64
	intentID  uint64
	action    schema.BrokerAction
	price     schema.Price
	qty       schema.Quantity
	coalesced uint32
}

// Adapter is the order-side terminus of the pipeline.
type Adapter struct {
	cfg     Config
	channel broker.Channel

	decisions *bus.Queue[schema.RiskDecision]
	control   *bus.Queue[Control]
	feedback  *bus.Queue[schema.BrokerResponse]
	riskCtl   *bus.Queue[risk.Control]

	stream  *obs.Stream
	metrics *obs.Metrics

	book      *Book
	coalescer *Coalescer
	limiter   *RateLimiter
	breaker   *Breaker
	tracker   *position.Tracker

	deferred []deferredSend
	// holds maps order id to the flush deadline of an amend being
	// coalesced inside the window while the order is idle.
	holds  map[uint64]int64
	global schema.GuardrailState

	orderSeq uint64
	cmdSeq   uint64
	scratch  []byte
	overdue  []*LiveOrder
	working  []*LiveOrder
}

// New wires an adapter around a broker channel. The feedback queue routes
// responses back to the dispatcher; riskCtl carries exposure snapshots and
// PnL drift to the risk engine.
func New(
	cfg Config,
	channel broker.Channel,
	decisions *bus.Queue[schema.RiskDecision],
	control *bus.Queue[Control],
	feedback *bus.Queue[schema.BrokerResponse],
	riskCtl *bus.Queue[risk.Control],
	stream *obs.Stream,
	metrics *obs.Metrics,
) *Adapter {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultConfig().CommandTimeout
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = DefaultConfig().TickEvery
	}
	if cfg.CoalesceWindow > 0 && cfg.CoalesceWindow < cfg.TickEvery {
		// Held amends flush on the tick, so the tick must not outlast the
		// window.
		cfg.TickEvery = cfg.CoalesceWindow
	}
	return &Adapter{
		cfg:       cfg,
		channel:   channel,
		decisions: decisions,
		control:   control,
		feedback:  feedback,
		riskCtl:   riskCtl,
		stream:    stream,
		metrics:   metrics,
		book:      NewBook(),
		coalescer: NewCoalescer(),
		limiter:   NewRateLimiter(cfg.Rate),
		breaker:   NewBreaker(cfg.Breaker),
		tracker:   position.NewTracker(),
		holds:     make(map[uint64]int64),
	}
}

// Run drives the adapter until the context is cancelled.
func (a *Adapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickEvery)
	defer ticker.Stop()
	lastSnapshot := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case ctl, ok := <-a.control.C():
			if !ok {
				return
			}
			a.onControl(ctl)
		case resp, ok := <-a.channel.Responses():
			if !ok {
				return
			}
			a.onResponse(resp, time.Now().UnixNano())
		case decision, ok := <-a.decisions.C():
			if !ok {
				return
			}
			a.onDecision(decision, time.Now().UnixNano())
		case now := <-ticker.C:
			nowNs := now.UnixNano()
			a.expireOverdue(nowNs)
			a.flushCoalesced(nowNs)
			a.releaseDeferred(nowNs)
			if now.Sub(lastSnapshot) >= a.cfg.SnapshotEvery {
				lastSnapshot = now
				a.pushSnapshot(nowNs)
			}
		}
	}
}

func (a *Adapter) onDecision(d schema.RiskDecision, nowNs int64) {
	switch d.Intent {
	case schema.IntentNew:
		a.orderSeq++
		order := &LiveOrder{
			OrderID:    a.orderSeq,
			IntentID:   d.IntentID,
			StrategyID: d.StrategyID,
			SymbolID:   d.SymbolID,
			Side:       d.Side,
			Price:      d.SanitizedPrice,
			Qty:        d.SanitizedQty,
			LeavesQty:  d.SanitizedQty,
		}
		if err := a.book.Add(order); err != nil {
			logs.Errorf("adapter: add order %d: %v", order.OrderID, err)
			return
		}
		a.send(order, schema.BrokerActionSubmit, d.SanitizedPrice, d.SanitizedQty, d.IntentID, 0, nowNs)

	case schema.IntentAmend:
		order, ok := a.book.Resolve(d.TargetID)
		if !ok {
			a.synthesize(d, schema.ResponseReject, ReasonUnknownOrder)
			return
		}
		if order.State.InFlight() {
			if a.coalescer.Amend(order.OrderID, d.IntentID, d.SanitizedPrice, d.SanitizedQty) {
				a.metrics.IncCoalesced()
			}
			return
		}
		if a.cfg.CoalesceWindow > 0 {
			// Idle order: hold the amend so a burst inside the window
			// costs one round trip when the hold flushes.
			if a.coalescer.Amend(order.OrderID, d.IntentID, d.SanitizedPrice, d.SanitizedQty) {
				a.metrics.IncCoalesced()
			}
			if _, held := a.holds[order.OrderID]; !held {
				a.holds[order.OrderID] = nowNs + int64(a.cfg.CoalesceWindow)
			}
			return
		}
		a.send(order, schema.BrokerActionAmend, d.SanitizedPrice, d.SanitizedQty, d.IntentID, 0, nowNs)

	case schema.IntentCancel:
		order, ok := a.book.Resolve(d.TargetID)
		if !ok {
			a.synthesize(d, schema.ResponseReject, ReasonUnknownOrder)
			return
		}
		if order.State.InFlight() {
			a.coalescer.Cancel(order.OrderID, d.IntentID)
			return
		}
		// A held amend dies with the cancel; the cancel itself never waits.
		a.dropPending(order.OrderID)
		a.send(order, schema.BrokerActionCancel, 0, 0, d.IntentID, 0, nowNs)
	}
}

// send pushes one command through the breaker and rate limiter. Cancels
// bypass both: de-risking is never blocked or counted against the caps.
func (a *Adapter) send(order *LiveOrder, action schema.BrokerAction, price schema.Price, qty schema.Quantity, intentID uint64, coalesced uint32, nowNs int64) {
	if action != schema.BrokerActionCancel {
		switch a.breaker.State(nowNs) {
		case BreakerOpen:
			a.rejectLocal(order, intentID, ReasonBreakerOpen)
			return
		case BreakerHalfOpen:
			if !a.breaker.AllowProbe() {
				a.park(order, action, price, qty, intentID, coalesced)
				return
			}
			a.metrics.IncBreakerProbe()
		}

		switch a.limiter.Check(nowNs, order.StrategyID) {
		case RateHard:
			a.metrics.IncDeferred()
			a.emitRateAlarm(schema.RateAlarmHard, nowNs)
			a.park(order, action, price, qty, intentID, coalesced)
			return
		case RateSoft:
			a.emitRateAlarm(schema.RateAlarmSoft, nowNs)
			_ = a.riskCtl.TryPublish(risk.Control{
				Kind:    risk.ControlRateHint,
				UntilNs: nowNs + a.cfg.Rate.WindowNs,
			})
		}
		a.limiter.Record(nowNs, order.StrategyID)
	}

	a.cmdSeq++
	cmd := schema.OrderCommand{
		CmdID:          a.cmdSeq,
		IntentID:       intentID,
		OrderID:        order.OrderID,
		StrategyID:     order.StrategyID,
		SymbolID:       order.SymbolID,
		Action:         action,
		Side:           order.Side,
		TimeInForce:    order.TimeInForce,
		Price:          price,
		Qty:            qty,
		CoalescedCount: coalesced,
		DeadlineNs:     nowNs + int64(a.cfg.CommandTimeout),
		GuardrailState: a.global,
	}

	if action == schema.BrokerActionAmend {
		order.Price = price
		order.Qty = qty
	}
	order.LastIntent = intentID
	a.book.MarkInflight(order, cmd.CmdID, cmd.DeadlineNs, inflightState(action))

	a.scratch = codec.EncodeOrderCommand(a.scratch, cmd)
	buf := make([]byte, len(a.scratch))
	copy(buf, a.scratch)
	a.stream.Emit(schema.EventOrderCommand, intentID, nowNs, buf)

	if err := a.channel.Send(cmd); err != nil {
		logs.Errorf("adapter: send cmd %d: %v", cmd.CmdID, err)
		a.onResponse(schema.BrokerResponse{
			CmdID:      cmd.CmdID,
			OrderID:    order.OrderID,
			StrategyID: order.StrategyID,
			SymbolID:   order.SymbolID,
			Kind:       schema.ResponseReject,
			Reason:     ReasonSendFailed,
			Side:       order.Side,
		}, nowNs)
	}
}

func (a *Adapter) park(order *LiveOrder, action schema.BrokerAction, price schema.Price, qty schema.Quantity, intentID uint64, coalesced uint32) {
	a.deferred = append(a.deferred, deferredSend{
		orderID:   order.OrderID,
		intentID:  intentID,
		action:    action,
		price:     price,
		qty:       qty,
		coalesced: coalesced,
	})
}

// releaseDeferred retries parked sends. Each parked entry is visited at
// most once per call: a send that parks again (half-open breaker, rate cap)
// lands on the fresh deferred slice and waits for the next tick, so the
// Run loop always gets back to its select.
func (a *Adapter) releaseDeferred(nowNs int64) {
	if len(a.deferred) == 0 {
		return
	}
	pending := a.deferred
	a.deferred = nil
	for i, d := range pending {
		if a.breaker.State(nowNs) == BreakerOpen {
			a.deferred = append(a.deferred, pending[i:]...)
			return
		}
		order, ok := a.book.Get(d.orderID)
		if !ok || order.State.Terminal() {
			continue
		}
		if a.limiter.Check(nowNs, order.StrategyID) == RateHard {
			a.deferred = append(a.deferred, pending[i:]...)
			return
		}
		// A parked submit sits in SUBMITTING with no command bound, so the
		// in-flight test here is on the command id, not the state.
		if order.InflightCmd != 0 {
			// Another command got in first; fold back into the coalescer.
			if d.action == schema.BrokerActionCancel {
				a.coalescer.Cancel(d.orderID, d.intentID)
			} else if a.coalescer.Amend(d.orderID, d.intentID, d.price, d.qty) {
				a.metrics.IncCoalesced()
			}
			continue
		}
		a.send(order, d.action, d.price, d.qty, d.intentID, d.coalesced, nowNs)
	}
}

// flushCoalesced sends amends whose coalescing window has elapsed.
func (a *Adapter) flushCoalesced(nowNs int64) {
	for orderID, dueNs := range a.holds {
		if nowNs < dueNs {
			continue
		}
		delete(a.holds, orderID)
		order, ok := a.book.Get(orderID)
		if !ok || order.State.Terminal() || order.InflightCmd != 0 {
			continue
		}
		op, ok := a.coalescer.Take(orderID)
		if !ok {
			continue
		}
		a.send(order, op.action, op.price, op.qty, op.intentID, op.coalesced, nowNs)
	}
}

// dropPending discards a queued follow-up and its hold for an order.
func (a *Adapter) dropPending(orderID uint64) {
	a.coalescer.Drop(orderID)
	delete(a.holds, orderID)
}

func (a *Adapter) onResponse(resp schema.BrokerResponse, nowNs int64) {
	a.scratch = codec.EncodeBrokerResponse(a.scratch, resp)
	buf := make([]byte, len(a.scratch))
	copy(buf, a.scratch)
	a.stream.Emit(schema.EventBrokerResponse, resp.CmdID, nowNs, buf)

	if resp.Kind == schema.ResponseFill {
		a.onFill(resp, nowNs)
		return
	}

	order, ok := a.book.ByCmd(resp.CmdID)
	if !ok {
		// Late response for a command already settled or timed out.
		return
	}
	a.metrics.ObserveBroker(time.Duration(nowNs - (order.DeadlineNs - int64(a.cfg.CommandTimeout))))
	a.fillIdentity(&resp, order)

	switch resp.Kind {
	case schema.ResponseAck:
		a.breaker.OnSuccess()
		a.onAck(order)
	case schema.ResponseReject, schema.ResponseTimeout:
		if a.breaker.OnFailure(nowNs) {
			a.metrics.IncBreakerTrip()
			logs.Errorf("adapter: circuit breaker tripped, sweeping %d working orders", a.book.Len())
			a.sweep(nowNs)
		}
		a.onFailure(order, resp.Kind, nowNs)
	}

	a.forward(resp)
}

func (a *Adapter) onAck(order *LiveOrder) {
	switch order.State {
	case OrderStateSubmitting, OrderStateAmending:
		a.book.ClearInflight(order)
		order.State = OrderStateLive
		order.Retried = false
		a.flushPending(order)
	case OrderStateCancelling:
		a.dropPending(order.OrderID)
		a.book.Settle(order, OrderStateCancelled)
	}
}

// onFailure applies the retry policy: a failed submit is terminal; a
// failed amend or cancel is retried exactly once before giving up.
func (a *Adapter) onFailure(order *LiveOrder, kind schema.ResponseKind, nowNs int64) {
	terminal := OrderStateRejected
	if kind == schema.ResponseTimeout {
		terminal = OrderStateTimedOut
	}

	switch order.State {
	case OrderStateSubmitting:
		a.dropPending(order.OrderID)
		a.book.Settle(order, terminal)
	case OrderStateAmending:
		a.book.ClearInflight(order)
		order.State = OrderStateLive
		if !order.Retried {
			order.Retried = true
			a.send(order, schema.BrokerActionAmend, order.Price, order.Qty, order.LastIntent, 0, nowNs)
			return
		}
		order.Retried = false
		a.flushPending(order)
	case OrderStateCancelling:
		a.book.ClearInflight(order)
		order.State = OrderStateLive
		if !order.Retried {
			order.Retried = true
			a.send(order, schema.BrokerActionCancel, 0, 0, order.LastIntent, 0, nowNs)
			return
		}
		logs.Errorf("adapter: cancel for order %d failed twice, order left live", order.OrderID)
		order.Retried = false
	}
}

func (a *Adapter) onFill(resp schema.BrokerResponse, nowNs int64) {
	order, ok := a.book.Get(resp.OrderID)
	if ok {
		a.fillIdentity(&resp, order)
		// Fills always correlate to the originating intent, the handle the
		// owning strategy holds.
		resp.IntentID = order.IntentID
		order.LeavesQty = resp.LeavesQty
	}

	fill := schema.Fill{
		OrderID:  resp.OrderID,
		SymbolID: resp.SymbolID,
		Side:     resp.Side,
		Price:    resp.Price,
		Qty:      resp.Qty,
	}
	a.tracker.ApplyFill(resp.StrategyID, fill)
	a.scratch = codec.EncodeFill(a.scratch, fill)
	buf := make([]byte, len(a.scratch))
	copy(buf, a.scratch)
	a.stream.Emit(schema.EventFill, resp.CmdID, nowNs, buf)

	a.pushSnapshot(nowNs)
	a.pushDrift(resp.StrategyID)

	if ok && resp.LeavesQty == 0 {
		a.dropPending(order.OrderID)
		a.book.Settle(order, OrderStateFilled)
	}
	a.forward(resp)
}

// expireOverdue synthesizes TIMEOUT responses for commands whose deadline
// passed without a broker reply.
func (a *Adapter) expireOverdue(nowNs int64) {
	a.overdue = a.book.Overdue(nowNs, a.overdue[:0])
	for _, order := range a.overdue {
		a.onResponse(schema.BrokerResponse{
			CmdID:      order.InflightCmd,
			IntentID:   order.LastIntent,
			OrderID:    order.OrderID,
			StrategyID: order.StrategyID,
			SymbolID:   order.SymbolID,
			Kind:       schema.ResponseTimeout,
			Reason:     ReasonDeadline,
			Side:       order.Side,
		}, nowNs)
	}
}

// sweep cancels every working order in one pass. Called on guardrail HALT
// and on breaker trips.
func (a *Adapter) sweep(nowNs int64) {
	a.working = a.book.Working(a.working[:0])
	for _, order := range a.working {
		if order.State == OrderStateCancelling {
			continue
		}
		if order.State.InFlight() {
			a.coalescer.Cancel(order.OrderID, order.IntentID)
			continue
		}
		a.dropPending(order.OrderID)
		a.send(order, schema.BrokerActionCancel, 0, 0, order.IntentID, 0, nowNs)
	}
}

func (a *Adapter) flushPending(order *LiveOrder) {
	op, ok := a.coalescer.Take(order.OrderID)
	if !ok || order.State.Terminal() {
		return
	}
	if op.action == schema.BrokerActionCancel {
		a.send(order, schema.BrokerActionCancel, 0, 0, op.intentID, op.coalesced, time.Now().UnixNano())
		return
	}
	a.send(order, schema.BrokerActionAmend, op.price, op.qty, op.intentID, op.coalesced, time.Now().UnixNano())
}

func (a *Adapter) onControl(ctl Control) {
	switch ctl.Kind {
	case ControlCancelAll:
		logs.Warnf("adapter: operator cancel-all, sweeping %d working orders", a.book.Len())
		a.sweep(time.Now().UnixNano())
	case ControlDumpOrders:
		a.dumpOrders(time.Now().UnixNano())
	case ControlGuardrail:
		tr := ctl.Transition
		if tr.Scope != schema.ScopeGlobal {
			return
		}
		a.global = tr.To
		if tr.To == schema.GuardrailHalt {
			logs.Warnf("adapter: global HALT, sweeping %d working orders", a.book.Len())
			a.sweep(time.Now().UnixNano())
		}
	}
}

// dumpOrders logs every working order for operator inspection and refreshes
// the exposure snapshot on the risk engine.
func (a *Adapter) dumpOrders(nowNs int64) {
	a.working = a.book.Working(a.working[:0])
	logs.Infof("adapter: dumping %d working orders", len(a.working))
	for _, order := range a.working {
		logs.Infof("adapter: order=%d intent=%d strategy=%d symbol=%d side=%d px=%d qty=%d leaves=%d state=%s inflight=%d",
			order.OrderID, order.IntentID, order.StrategyID, order.SymbolID,
			order.Side, order.Price, order.Qty, order.LeavesQty, order.State, order.InflightCmd)
	}
	a.pushSnapshot(nowNs)
}

func (a *Adapter) pushSnapshot(nowNs int64) {
	_ = a.riskCtl.TryPublish(risk.Control{
		Kind:     risk.ControlSnapshot,
		Snapshot: a.tracker.Snapshot(nowNs),
	})
}

// pushDrift converts mark-to-market equity into drift units of one
// millionth of the capital base and feeds both guardrail machines.
func (a *Adapter) pushDrift(strategyID uint32) {
	if a.cfg.CapitalBase <= 0 {
		return
	}
	_ = a.riskCtl.TryPublish(risk.Control{
		Kind:       risk.ControlDrift,
		Scope:      schema.ScopeStrategy,
		StrategyID: strategyID,
		Drift:      int64(a.tracker.Equity(strategyID)) * 1_000_000 / int64(a.cfg.CapitalBase),
	})
	_ = a.riskCtl.TryPublish(risk.Control{
		Kind:  risk.ControlDrift,
		Scope: schema.ScopeGlobal,
		Drift: int64(a.tracker.GlobalEquity()) * 1_000_000 / int64(a.cfg.CapitalBase),
	})
}

func (a *Adapter) emitRateAlarm(level schema.RateAlarmLevel, nowNs int64) {
	alarm := schema.RateAlarm{
		Level:    level,
		InWindow: uint32(a.limiter.InWindow(nowNs)),
		Limit:    uint32(a.cfg.Rate.HardLimit),
		TsNs:     nowNs,
	}
	a.scratch = codec.EncodeRateAlarm(a.scratch, alarm)
	buf := make([]byte, len(a.scratch))
	copy(buf, a.scratch)
	a.stream.Emit(schema.EventRateAlarm, 0, nowNs, buf)
}

// rejectLocal settles a submit that could not be sent and informs the
// owning strategy.
func (a *Adapter) rejectLocal(order *LiveOrder, intentID uint64, reason uint16) {
	resp := schema.BrokerResponse{
		CmdID:      intentID,
		IntentID:   order.IntentID,
		OrderID:    order.OrderID,
		StrategyID: order.StrategyID,
		SymbolID:   order.SymbolID,
		Kind:       schema.ResponseReject,
		Reason:     reason,
		Side:       order.Side,
		Price:      order.Price,
		Qty:        order.Qty,
	}
	if order.State == OrderStateSubmitting || order.State == OrderStateUnknown {
		a.book.Settle(order, OrderStateRejected)
	}
	a.forward(resp)
}

// synthesize fabricates a response for a decision that never reached the
// broker. The target id is echoed as the intent so the owning strategy can
// drop a handle that no longer maps to a live order.
func (a *Adapter) synthesize(d schema.RiskDecision, kind schema.ResponseKind, reason uint16) {
	a.forward(schema.BrokerResponse{
		CmdID:      d.IntentID,
		IntentID:   d.TargetID,
		OrderID:    d.TargetID,
		StrategyID: d.StrategyID,
		SymbolID:   d.SymbolID,
		Kind:       kind,
		Reason:     reason,
		Side:       d.Side,
	})
}

func (a *Adapter) forward(resp schema.BrokerResponse) {
	if err := a.feedback.TryPublish(resp); err != nil {
		logs.Warnf("adapter: feedback dropped for cmd %d: %v", resp.CmdID, err)
	}
}

// fillIdentity backfills strategy/symbol/intent on responses from brokers
// that only echo ids.
func (a *Adapter) fillIdentity(resp *schema.BrokerResponse, order *LiveOrder) {
	if resp.IntentID == 0 {
		resp.IntentID = order.LastIntent
	}
	if resp.StrategyID == 0 {
		resp.StrategyID = order.StrategyID
	}
	if resp.SymbolID == 0 {
		resp.SymbolID = order.SymbolID
	}
	if resp.OrderID == 0 {
		resp.OrderID = order.OrderID
	}
}

func inflightState(action schema.BrokerAction) OrderState {
	switch action {
	case schema.BrokerActionAmend:
		return OrderStateAmending
	case schema.BrokerActionCancel:
		return OrderStateCancelling
	default:
		return OrderStateSubmitting
	}
}
