package strategy

import (
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrDuplicateStrategy = errors.New("strategy already registered")
	ErrUnknownStrategy   = errors.New("strategy not registered")
)

// Entry is one row of the dispatch table.
type Entry struct {
	ID       uint32
	Name     string
	Symbols  []schema.SymbolID
	Budget   time.Duration
	Enabled  bool
	Strategy Strategy
}

// Table is the explicit registration table keyed by strategy id. It is
// owned by the dispatcher; registration happens before the run loop starts.
type Table struct {
	entries  map[uint32]*Entry
	bySymbol map[uint32][]*Entry
	order    []uint32
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make(map[uint32]*Entry),
		bySymbol: make(map[uint32][]*Entry),
	}
}

// Register adds a strategy for its configured symbols.
func (t *Table) Register(entry Entry) error {
	if entry.ID == 0 || entry.Strategy == nil {
		return ErrUnknownStrategy
	}
	if _, ok := t.entries[entry.ID]; ok {
		return ErrDuplicateStrategy
	}
	e := entry
	t.entries[e.ID] = &e
	t.order = append(t.order, e.ID)
	for _, symbolID := range e.Symbols {
		t.bySymbol[uint32(symbolID)] = append(t.bySymbol[uint32(symbolID)], &e)
	}
	return nil
}

// Get returns the entry for a strategy id.
func (t *Table) Get(id uint32) (*Entry, bool) {
	e, ok := t.entries[id]
	return e, ok
}

// ForSymbol returns the entries registered for a symbol, in registration
// order per symbol.
func (t *Table) ForSymbol(symbolID uint32) []*Entry {
	return t.bySymbol[symbolID]
}

// SetEnabled flips a strategy on or off.
func (t *Table) SetEnabled(id uint32, enabled bool) error {
	e, ok := t.entries[id]
	if !ok {
		return ErrUnknownStrategy
	}
	e.Enabled = enabled
	return nil
}

// IDs returns all registered ids in registration order.
func (t *Table) IDs() []uint32 {
	out := make([]uint32, len(t.order))
	copy(out, t.order)
	return out
}
