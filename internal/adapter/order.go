package adapter

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// OrderState tracks the adapter's view of an order lifecycle.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateSubmitting
	OrderStateLive
	OrderStateAmending
	OrderStateCancelling
	OrderStateFilled
	OrderStateCancelled
	OrderStateRejected
	OrderStateTimedOut
)

func (s OrderState) String() string {
	switch s {
	case OrderStateSubmitting:
		return "SUBMITTING"
	case OrderStateLive:
		return "LIVE"
	case OrderStateAmending:
		return "AMENDING"
	case OrderStateCancelling:
		return "CANCELLING"
	case OrderStateFilled:
		return "FILLED"
	case OrderStateCancelled:
		return "CANCELLED"
	case OrderStateRejected:
		return "REJECTED"
	case OrderStateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected, OrderStateTimedOut:
		return true
	default:
		return false
	}
}

// InFlight reports whether a command is outstanding for the order.
func (s OrderState) InFlight() bool {
	switch s {
	case OrderStateSubmitting, OrderStateAmending, OrderStateCancelling:
		return true
	default:
		return false
	}
}

// LiveOrder is the adapter's record for one order.
type LiveOrder struct {
	OrderID     uint64
	IntentID    uint64
	StrategyID  uint32
	SymbolID    uint32
	Side        schema.OrderSide
	TimeInForce schema.TimeInForce
	Price       schema.Price
	Qty         schema.Quantity
	LeavesQty   schema.Quantity
	State       OrderState

	// InflightCmd correlates the outstanding command, zero when idle.
	InflightCmd uint64
	// LastIntent is the intent behind the most recent command, used to
	// stamp responses so strategies can correlate them.
	LastIntent uint64
	DeadlineNs int64
	// Retried marks that the in-flight amend/cancel already got its one
	// retry after a reject or timeout.
	Retried bool
}

// Book indexes live orders by order id, by in-flight command id and by the
// originating intent id strategies hold as their order handle.
type Book struct {
	orders   map[uint64]*LiveOrder
	byCmd    map[uint64]uint64
	byIntent map[uint64]uint64
}

// NewBook creates an empty order book view.
func NewBook() *Book {
	return &Book{
		orders:   make(map[uint64]*LiveOrder),
		byCmd:    make(map[uint64]uint64),
		byIntent: make(map[uint64]uint64),
	}
}

// Add registers a new order in SUBMITTING state.
func (b *Book) Add(order *LiveOrder) error {
	if _, ok := b.orders[order.OrderID]; ok {
		return ErrDuplicateOrder
	}
	order.State = OrderStateSubmitting
	b.orders[order.OrderID] = order
	if order.IntentID != 0 {
		b.byIntent[order.IntentID] = order.OrderID
	}
	if order.InflightCmd != 0 {
		b.byCmd[order.InflightCmd] = order.OrderID
	}
	return nil
}

// Get returns the order by id.
func (b *Book) Get(orderID uint64) (*LiveOrder, bool) {
	o, ok := b.orders[orderID]
	return o, ok
}

// Resolve finds the order an amend or cancel targets. Strategies address
// resting orders by the intent id that created them, so the target id is
// tried as an order id first and as an originating intent id second.
func (b *Book) Resolve(targetID uint64) (*LiveOrder, bool) {
	if o, ok := b.orders[targetID]; ok {
		return o, true
	}
	orderID, ok := b.byIntent[targetID]
	if !ok {
		return nil, false
	}
	return b.Get(orderID)
}

// ByCmd resolves the order owning an in-flight command.
func (b *Book) ByCmd(cmdID uint64) (*LiveOrder, bool) {
	orderID, ok := b.byCmd[cmdID]
	if !ok {
		return nil, false
	}
	return b.Get(orderID)
}

// MarkInflight binds a command id and deadline to an order.
func (b *Book) MarkInflight(order *LiveOrder, cmdID uint64, deadlineNs int64, state OrderState) {
	if order.InflightCmd != 0 {
		delete(b.byCmd, order.InflightCmd)
	}
	order.InflightCmd = cmdID
	order.DeadlineNs = deadlineNs
	order.State = state
	b.byCmd[cmdID] = order.OrderID
}

// ClearInflight releases the command binding after a response.
func (b *Book) ClearInflight(order *LiveOrder) {
	if order.InflightCmd != 0 {
		delete(b.byCmd, order.InflightCmd)
	}
	order.InflightCmd = 0
	order.DeadlineNs = 0
}

// Settle moves an order to a terminal state and drops it from the book.
func (b *Book) Settle(order *LiveOrder, state OrderState) {
	b.ClearInflight(order)
	order.State = state
	delete(b.byIntent, order.IntentID)
	delete(b.orders, order.OrderID)
}

// Overdue appends orders whose in-flight command deadline has passed.
func (b *Book) Overdue(nowNs int64, dst []*LiveOrder) []*LiveOrder {
	for _, o := range b.orders {
		if o.State.InFlight() && o.DeadlineNs > 0 && nowNs > o.DeadlineNs {
			dst = append(dst, o)
		}
	}
	return dst
}

// Working appends orders that are live or have a command in flight, for
// bulk-cancel sweeps.
func (b *Book) Working(dst []*LiveOrder) []*LiveOrder {
	for _, o := range b.orders {
		if !o.State.Terminal() {
			dst = append(dst, o)
		}
	}
	return dst
}

// Len returns the number of tracked orders.
func (b *Book) Len() int {
	return len(b.orders)
}
