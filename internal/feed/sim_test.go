package feed

import (
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/schema"
)

func testRegistry(t *testing.T, names ...string) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIMX")
	if err != nil {
		t.Fatalf("add venue: %v", err)
	}
	for _, name := range names {
		if _, err := reg.AddSymbol(name, venueID, schema.ScaleSpec{}); err != nil {
			t.Fatalf("add symbol %s: %v", name, err)
		}
	}
	return reg
}

func TestSimRequiresSymbols(t *testing.T) {
	if _, err := NewSim(SimConfig{}, schema.NewRegistry(), nil); err == nil {
		t.Fatalf("expected error for empty registry")
	}
}

func TestSimTickPublishesToAllOuts(t *testing.T) {
	reg := testRegistry(t, "BTC-USDT", "ETH-USDT")
	market := bus.NewQueue[schema.MarketData](16)
	riskTap := bus.NewQueue[schema.MarketData](16)

	s, err := NewSim(SimConfig{
		Interval:  time.Millisecond,
		BasePrice: 65_000_00,
		Spread:    5_00,
		Size:      50,
		WalkStep:  6_50,
		Seed:      1,
	}, reg, nil, market, riskTap)
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}

	for i := range s.symbols {
		s.tick(i, 1_000)
	}
	if market.Len() != 2 || riskTap.Len() != 2 {
		t.Fatalf("tick fanout wrong: market=%d risk=%d", market.Len(), riskTap.Len())
	}

	md := <-market.C()
	if md.Kind != schema.MarketDataQuote || md.SymbolID != 1 {
		t.Fatalf("unexpected tick: %+v", md)
	}
	if md.BidPrice >= md.AskPrice || md.AskPrice-md.BidPrice != 2*5_00 {
		t.Fatalf("spread not applied: bid=%d ask=%d", md.BidPrice, md.AskPrice)
	}
	if md.Price < 65_000_00-6_50 || md.Price > 65_000_00+6_50 {
		t.Fatalf("mid walked outside one step: %d", md.Price)
	}
}

func TestSimSymbolSeqIsPerSymbol(t *testing.T) {
	reg := testRegistry(t, "BTC-USDT", "ETH-USDT")
	market := bus.NewQueue[schema.MarketData](16)

	s, err := NewSim(SimConfig{BasePrice: 1_000, Spread: 1, Size: 1, WalkStep: 1, Seed: 1}, reg, nil, market)
	if err != nil {
		t.Fatalf("new sim: %v", err)
	}

	s.tick(0, 1)
	s.tick(0, 2)
	s.tick(1, 3)

	seqs := map[uint32][]uint64{}
	for market.Len() > 0 {
		md := <-market.C()
		seqs[md.SymbolID] = append(seqs[md.SymbolID], md.SymbolSeq)
	}
	if got := seqs[1]; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("symbol 1 seq wrong: %v", got)
	}
	if got := seqs[2]; len(got) != 1 || got[0] != 1 {
		t.Fatalf("symbol 2 seq wrong: %v", got)
	}
}
