package position

import "main/internal/schema"

// Tracker reduces fills into per-symbol positions and per-strategy
// notional exposure. It is owned by the execution-side collaborator;
// the risk engine only ever sees immutable snapshots of it.
type Tracker struct {
	positions map[uint32]schema.Quantity
	lastPrice map[uint32]schema.Price
	byStrat   map[uint32]map[uint32]schema.Quantity
	cash      map[uint32]int64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[uint32]schema.Quantity),
		lastPrice: make(map[uint32]schema.Price),
		byStrat:   make(map[uint32]map[uint32]schema.Quantity),
		cash:      make(map[uint32]int64),
	}
}

// ApplyFill updates positions for the owning strategy and returns the new
// per-symbol quantity.
func (t *Tracker) ApplyFill(strategyID uint32, fill schema.Fill) schema.Quantity {
	delta := int64(fill.Qty)
	if fill.Side == schema.OrderSideSell {
		delta = -delta
	}
	next := schema.Quantity(int64(t.positions[fill.SymbolID]) + delta)
	t.positions[fill.SymbolID] = next
	if fill.Price > 0 {
		t.lastPrice[fill.SymbolID] = fill.Price
	}

	strat, ok := t.byStrat[strategyID]
	if !ok {
		strat = make(map[uint32]schema.Quantity)
		t.byStrat[strategyID] = strat
	}
	strat[fill.SymbolID] = schema.Quantity(int64(strat[fill.SymbolID]) + delta)
	t.cash[strategyID] -= delta*int64(fill.Price) + int64(fill.Fee)
	return next
}

// Equity returns the mark-to-market PnL for a strategy: cashflow from
// fills plus the current value of its open positions.
func (t *Tracker) Equity(strategyID uint32) schema.Notional {
	total := t.cash[strategyID]
	for symbolID, qty := range t.byStrat[strategyID] {
		total += int64(qty) * int64(t.lastPrice[symbolID])
	}
	return schema.Notional(total)
}

// GlobalEquity returns the mark-to-market PnL across all strategies.
func (t *Tracker) GlobalEquity() schema.Notional {
	var total schema.Notional
	for strategyID := range t.byStrat {
		total += t.Equity(strategyID)
	}
	return total
}

// MarkPrice refreshes the valuation price for a symbol from market data.
func (t *Tracker) MarkPrice(symbolID uint32, price schema.Price) {
	if price > 0 {
		t.lastPrice[symbolID] = price
	}
}

// Position returns the current quantity for a symbol.
func (t *Tracker) Position(symbolID uint32) schema.Quantity {
	return t.positions[symbolID]
}

// Snapshot captures an immutable view of exposure at the given time.
func (t *Tracker) Snapshot(nowNs int64) Snapshot {
	snap := Snapshot{
		TakenAtNs:        nowNs,
		Positions:        make(map[uint32]schema.Quantity, len(t.positions)),
		StrategyNotional: make(map[uint32]schema.Notional, len(t.byStrat)),
	}
	for symbolID, qty := range t.positions {
		snap.Positions[symbolID] = qty
	}
	for strategyID, positions := range t.byStrat {
		var total int64
		for symbolID, qty := range positions {
			total += absInt64(int64(qty) * int64(t.lastPrice[symbolID]))
		}
		snap.StrategyNotional[strategyID] = schema.Notional(total)
		snap.GlobalNotional += schema.Notional(total)
	}
	return snap
}

// Snapshot is a read-only exposure view consulted by the size validator.
type Snapshot struct {
	TakenAtNs        int64
	Positions        map[uint32]schema.Quantity
	StrategyNotional map[uint32]schema.Notional
	GlobalNotional   schema.Notional
}

// Stale reports whether the snapshot is older than the given threshold.
func (s Snapshot) Stale(nowNs, thresholdNs int64) bool {
	if s.TakenAtNs == 0 {
		return true
	}
	return thresholdNs > 0 && nowNs-s.TakenAtNs > thresholdNs
}

// Position returns the snapshot quantity for a symbol.
func (s Snapshot) Position(symbolID uint32) schema.Quantity {
	return s.Positions[symbolID]
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
