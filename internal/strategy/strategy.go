package strategy

import (
	"hash/fnv"
	"sync/atomic"

	"main/internal/schema"
)

// Strategy is the capability interface every trading strategy implements.
// OnMarketEvent writes intents into the caller-provided buffer and returns
// how many were written, so the hot path allocates nothing. Strategies are
// expected not to block; the dispatcher enforces a wall-clock budget.
type Strategy interface {
	OnMarketEvent(ctx *Context, out []schema.OrderIntent) int

	// OnOrderUpdate delivers broker rejects and fills for the strategy's
	// own orders so it can regenerate or adjust.
	OnOrderUpdate(resp schema.BrokerResponse)
}

// Context is the read-only view handed to a strategy for one invocation.
type Context struct {
	StrategyID uint32
	Event      schema.MarketData
	Position   schema.Quantity
	Guardrail  schema.GuardrailState
	Throttled  bool
	NowNs      int64

	ids *IntentSequencer
}

// NewContext assembles an invocation context.
func NewContext(strategyID uint32, ids *IntentSequencer) *Context {
	return &Context{StrategyID: strategyID, ids: ids}
}

// IntentSpec carries the caller-controlled fields of a new intent.
type IntentSpec struct {
	Type           schema.IntentType
	Side           schema.OrderSide
	Price          schema.Price
	Qty            schema.Quantity
	TimeInForce    schema.TimeInForce
	TargetID       uint64
	TTLNs          int64
	IdempotencyKey uint64
}

// BuildIntent stamps ids, timestamps and a default idempotency key onto a
// spec. The result is immutable from the strategy's point of view.
func (c *Context) BuildIntent(spec IntentSpec) schema.OrderIntent {
	intentID := c.ids.Next()
	key := spec.IdempotencyKey
	if key == 0 {
		key = defaultIdempotencyKey(c.StrategyID, intentID)
	}
	tif := spec.TimeInForce
	if tif == schema.TimeInForceUnknown {
		tif = schema.TimeInForceGTC
	}
	return schema.OrderIntent{
		IntentID:       intentID,
		StrategyID:     c.StrategyID,
		SymbolID:       c.Event.SymbolID,
		Side:           spec.Side,
		Type:           spec.Type,
		TimeInForce:    tif,
		TargetID:       spec.TargetID,
		Price:          spec.Price,
		Qty:            spec.Qty,
		IdempotencyKey: key,
		TTLNs:          spec.TTLNs,
		CreatedAtNs:    c.NowNs,
	}
}

// IntentSequencer hands out monotonic intent ids across all strategies.
type IntentSequencer struct {
	next uint64
}

// NewIntentSequencer returns a sequencer starting after the given seed.
func NewIntentSequencer(seed uint64) *IntentSequencer {
	return &IntentSequencer{next: seed}
}

// Next returns the next intent id.
func (s *IntentSequencer) Next() uint64 {
	return atomic.AddUint64(&s.next, 1)
}

func defaultIdempotencyKey(strategyID uint32, intentID uint64) uint64 {
	h := fnv.New64a()
	var buf [12]byte
	buf[0] = byte(strategyID)
	buf[1] = byte(strategyID >> 8)
	buf[2] = byte(strategyID >> 16)
	buf[3] = byte(strategyID >> 24)
	for i := 0; i < 8; i++ {
		buf[4+i] = byte(intentID >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return h.Sum64()
}
