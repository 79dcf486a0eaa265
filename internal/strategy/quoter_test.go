package strategy

import (
	"testing"

	"main/internal/schema"
)

// newQuoterHarness returns a tick builder sharing one sequencer across ticks,
// mirroring production's monotonic shared sequencer.
func newQuoterHarness() func(mid schema.Price) *Context {
	seq := NewIntentSequencer(0)
	return func(mid schema.Price) *Context {
		ctx := NewContext(1, seq)
		ctx.Event = schema.MarketData{
			SymbolID: 7,
			Kind:     schema.MarketDataQuote,
			BidPrice: mid - 5,
			AskPrice: mid + 5,
		}
		ctx.NowNs = 1_000
		return ctx
	}
}

func TestQuoterQuotesBothSides(t *testing.T) {
	q := &Quoter{HalfSpread: 10, Size: 2, RequoteStep: 4, TTLNs: 500}
	out := make([]schema.OrderIntent, 8)
	quoterContext := newQuoterHarness()

	n := q.OnMarketEvent(quoterContext(1_000), out)
	if n != 2 {
		t.Fatalf("expected 2 intents, got %d", n)
	}
	bid, ask := out[0], out[1]
	if bid.Side != schema.OrderSideBuy || bid.Type != schema.IntentNew || bid.Price != 990 {
		t.Fatalf("unexpected bid: %+v", bid)
	}
	if ask.Side != schema.OrderSideSell || ask.Price != 1_010 {
		t.Fatalf("unexpected ask: %+v", ask)
	}
	if bid.TTLNs != 500 || bid.IdempotencyKey == 0 {
		t.Fatalf("intent not fully stamped: %+v", bid)
	}
}

func TestQuoterHoldsInsideRequoteStep(t *testing.T) {
	q := &Quoter{HalfSpread: 10, Size: 2, RequoteStep: 4}
	out := make([]schema.OrderIntent, 8)
	quoterContext := newQuoterHarness()

	if n := q.OnMarketEvent(quoterContext(1_000), out); n != 2 {
		t.Fatalf("first tick should quote, got %d", n)
	}
	// Mid moved less than one step: keep the resting quotes.
	if n := q.OnMarketEvent(quoterContext(1_002), out); n != 0 {
		t.Fatalf("expected no requote inside step, got %d", n)
	}
	// Past the step the quoter amends the resting orders in place.
	n := q.OnMarketEvent(quoterContext(1_020), out)
	if n != 2 {
		t.Fatalf("expected requote, got %d", n)
	}
	if out[0].Type != schema.IntentAmend || out[0].TargetID == 0 {
		t.Fatalf("expected amend of resting bid, got %+v", out[0])
	}
}

func TestQuoterSkewsAgainstInventory(t *testing.T) {
	q := &Quoter{HalfSpread: 10, Size: 2, RequoteStep: 4, SkewPerLot: 3}
	out := make([]schema.OrderIntent, 8)
	quoterContext := newQuoterHarness()

	ctx := quoterContext(1_000)
	ctx.Position = 4 // long: quote lower to shed inventory
	if n := q.OnMarketEvent(ctx, out); n != 2 {
		t.Fatalf("expected 2 intents")
	}
	if out[0].Price != 990-12 {
		t.Fatalf("expected skewed bid 978, got %d", out[0].Price)
	}
}

func TestQuoterCancelsUnderStorm(t *testing.T) {
	q := &Quoter{HalfSpread: 10, Size: 2, RequoteStep: 4}
	out := make([]schema.OrderIntent, 8)
	quoterContext := newQuoterHarness()

	if n := q.OnMarketEvent(quoterContext(1_000), out); n != 2 {
		t.Fatalf("expected initial quotes")
	}

	ctx := quoterContext(1_050)
	ctx.Guardrail = schema.GuardrailStorm
	n := q.OnMarketEvent(ctx, out)
	if n != 2 {
		t.Fatalf("expected 2 cancels, got %d", n)
	}
	for i := 0; i < n; i++ {
		if out[i].Type != schema.IntentCancel || out[i].TargetID == 0 {
			t.Fatalf("expected cancel of resting order, got %+v", out[i])
		}
	}
	// Nothing resting anymore: STORM ticks stay silent.
	if n := q.OnMarketEvent(ctx, out); n != 0 {
		t.Fatalf("expected no further intents under STORM, got %d", n)
	}
}

func TestQuoterThrottledStaysSilent(t *testing.T) {
	q := &Quoter{HalfSpread: 10, Size: 2, RequoteStep: 4}
	out := make([]schema.OrderIntent, 8)
	quoterContext := newQuoterHarness()

	ctx := quoterContext(1_000)
	ctx.Throttled = true
	if n := q.OnMarketEvent(ctx, out); n != 0 {
		t.Fatalf("throttled strategy must not emit, got %d", n)
	}
}

func TestQuoterForgetsTerminalOrders(t *testing.T) {
	q := &Quoter{HalfSpread: 10, Size: 2, RequoteStep: 4}
	out := make([]schema.OrderIntent, 8)
	quoterContext := newQuoterHarness()

	if n := q.OnMarketEvent(quoterContext(1_000), out); n != 2 {
		t.Fatalf("expected initial quotes")
	}
	bidID := out[0].IntentID

	q.OnOrderUpdate(schema.BrokerResponse{IntentID: bidID, Kind: schema.ResponseReject})

	// The rejected side re-enters as NEW, the surviving side amends.
	n := q.OnMarketEvent(quoterContext(1_020), out)
	if n != 2 {
		t.Fatalf("expected requote, got %d", n)
	}
	if out[0].Type != schema.IntentNew {
		t.Fatalf("expected fresh bid after reject, got %+v", out[0])
	}
	if out[1].Type != schema.IntentAmend {
		t.Fatalf("expected ask amend, got %+v", out[1])
	}
}

func TestQuoterKeepsHandleOnAmendReject(t *testing.T) {
	q := &Quoter{HalfSpread: 10, Size: 2, RequoteStep: 4}
	out := make([]schema.OrderIntent, 8)
	quoterContext := newQuoterHarness()

	if n := q.OnMarketEvent(quoterContext(1_000), out); n != 2 {
		t.Fatalf("expected initial quotes")
	}

	// Requote: both sides go out as amends carrying fresh intent ids.
	n := q.OnMarketEvent(quoterContext(1_020), out)
	if n != 2 || out[0].Type != schema.IntentAmend {
		t.Fatalf("expected amends, got %d %+v", n, out[0])
	}

	// A rejected amend answers with the amend's own intent id; the resting
	// order survives, so its handle must too.
	q.OnOrderUpdate(schema.BrokerResponse{IntentID: out[0].IntentID, Kind: schema.ResponseReject})
	n = q.OnMarketEvent(quoterContext(1_040), out)
	if n != 2 || out[0].Type != schema.IntentAmend {
		t.Fatalf("bid must still amend through the surviving handle, got %+v", out[0])
	}
}

func TestTableRegistration(t *testing.T) {
	table := NewTable()
	entry := Entry{ID: 1, Name: "q", Symbols: []schema.SymbolID{7}, Enabled: true, Strategy: &Quoter{}}
	if err := table.Register(entry); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := table.Register(entry); err != ErrDuplicateStrategy {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if got := table.ForSymbol(7); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("symbol lookup failed: %+v", got)
	}
	if err := table.SetEnabled(1, false); err != nil {
		t.Fatalf("set enabled: %v", err)
	}
	if e, _ := table.Get(1); e.Enabled {
		t.Fatalf("disable not applied")
	}
	if err := table.SetEnabled(99, true); err != ErrUnknownStrategy {
		t.Fatalf("expected unknown strategy error, got %v", err)
	}
}

func TestBuildIntentDefaults(t *testing.T) {
	ctx := NewContext(3, NewIntentSequencer(100))
	ctx.Event = schema.MarketData{SymbolID: 9}
	ctx.NowNs = 42

	intent := ctx.BuildIntent(IntentSpec{Type: schema.IntentNew, Side: schema.OrderSideBuy, Price: 10, Qty: 1})
	if intent.IntentID != 101 {
		t.Fatalf("sequencer not applied: %d", intent.IntentID)
	}
	if intent.TimeInForce != schema.TimeInForceGTC {
		t.Fatalf("expected GTC default, got %v", intent.TimeInForce)
	}
	if intent.IdempotencyKey == 0 || intent.CreatedAtNs != 42 || intent.SymbolID != 9 {
		t.Fatalf("intent not stamped: %+v", intent)
	}
}
