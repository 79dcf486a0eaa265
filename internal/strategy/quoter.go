package strategy

import "main/internal/schema"

// Quoter is a reference two-sided quoting strategy. It re-quotes a fixed
// size around the book mid with an inventory skew and replaces its resting
// orders when the mid moves by more than one requote step. It exists for
// wiring tests and the replay tool; it is not a trading recommendation.
type Quoter struct {
	HalfSpread  schema.Price
	Size        schema.Quantity
	RequoteStep schema.Price
	SkewPerLot  schema.Price
	TTLNs       int64

	lastMid schema.Price
	bidID   uint64
	askID   uint64
}

// OnMarketEvent quotes both sides around the adjusted mid.
func (q *Quoter) OnMarketEvent(ctx *Context, out []schema.OrderIntent) int {
	mid := ctx.Event.Mid()
	if mid <= 0 || ctx.Throttled {
		return 0
	}
	if ctx.Guardrail >= schema.GuardrailStorm {
		// De-risk only: pull resting quotes, never add under STORM/HALT.
		return q.cancelAll(ctx, out)
	}
	if q.lastMid != 0 && abs(int64(mid-q.lastMid)) < int64(q.RequoteStep) {
		return 0
	}
	q.lastMid = mid

	skew := schema.Price(int64(ctx.Position) * int64(q.SkewPerLot) * -1)
	fair := mid + skew

	n := 0
	n += q.quoteSide(ctx, out[n:], schema.OrderSideBuy, fair-q.HalfSpread, &q.bidID)
	n += q.quoteSide(ctx, out[n:], schema.OrderSideSell, fair+q.HalfSpread, &q.askID)
	return n
}

// OnOrderUpdate clears a resting handle when the broker reports a terminal
// state so the next tick re-quotes that side. Responses are matched on the
// intent id: the quoter never learns broker order ids, only the intent that
// placed each side.
func (q *Quoter) OnOrderUpdate(resp schema.BrokerResponse) {
	switch resp.Kind {
	case schema.ResponseReject, schema.ResponseTimeout:
		q.forget(resp.IntentID)
	case schema.ResponseFill:
		if resp.LeavesQty == 0 {
			q.forget(resp.IntentID)
		}
	}
}

func (q *Quoter) quoteSide(ctx *Context, out []schema.OrderIntent, side schema.OrderSide, price schema.Price, resting *uint64) int {
	if len(out) == 0 || price <= 0 {
		return 0
	}
	spec := IntentSpec{
		Type:  schema.IntentNew,
		Side:  side,
		Price: price,
		Qty:   q.Size,
		TTLNs: q.TTLNs,
	}
	if *resting != 0 {
		spec.Type = schema.IntentAmend
		spec.TargetID = *resting
	}
	intent := ctx.BuildIntent(spec)
	if spec.Type == schema.IntentNew {
		*resting = intent.IntentID
	}
	out[0] = intent
	return 1
}

func (q *Quoter) cancelAll(ctx *Context, out []schema.OrderIntent) int {
	n := 0
	for _, resting := range []*uint64{&q.bidID, &q.askID} {
		if *resting == 0 || n >= len(out) {
			continue
		}
		out[n] = ctx.BuildIntent(IntentSpec{Type: schema.IntentCancel, TargetID: *resting})
		*resting = 0
		n++
	}
	return n
}

func (q *Quoter) forget(handle uint64) {
	if handle == 0 {
		return
	}
	if q.bidID == handle {
		q.bidID = 0
	}
	if q.askID == handle {
		q.askID = 0
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
