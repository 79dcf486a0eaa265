package adapter

import "main/internal/schema"

// pendingOp is the single queued follow-up for an order with a command in
// flight. Consecutive amends collapse into the latest one; a cancel
// supersedes any pending amend and is never replaced.
type pendingOp struct {
	action    schema.BrokerAction
	intentID  uint64
	price     schema.Price
	qty       schema.Quantity
	coalesced uint32
}

// Coalescer holds at most one pending operation per order id.
type Coalescer struct {
	pending map[uint64]*pendingOp
}

// NewCoalescer creates an empty coalescer.
func NewCoalescer() *Coalescer {
	return &Coalescer{pending: make(map[uint64]*pendingOp)}
}

// Amend queues an amend behind the in-flight command. It reports whether a
// previous pending amend was absorbed. An amend behind a pending cancel is
// absorbed outright: the order is already on its way out.
func (c *Coalescer) Amend(orderID, intentID uint64, price schema.Price, qty schema.Quantity) (absorbed bool) {
	op, ok := c.pending[orderID]
	if !ok {
		c.pending[orderID] = &pendingOp{
			action:   schema.BrokerActionAmend,
			intentID: intentID,
			price:    price,
			qty:      qty,
		}
		return false
	}
	if op.action == schema.BrokerActionCancel {
		return true
	}
	op.intentID = intentID
	op.price = price
	op.qty = qty
	op.coalesced++
	return true
}

// Cancel queues a cancel, superseding any pending amend.
func (c *Coalescer) Cancel(orderID, intentID uint64) {
	op, ok := c.pending[orderID]
	if !ok {
		c.pending[orderID] = &pendingOp{action: schema.BrokerActionCancel, intentID: intentID}
		return
	}
	op.action = schema.BrokerActionCancel
	op.intentID = intentID
}

// Take pops the pending operation for an order, if any.
func (c *Coalescer) Take(orderID uint64) (pendingOp, bool) {
	op, ok := c.pending[orderID]
	if !ok {
		return pendingOp{}, false
	}
	delete(c.pending, orderID)
	return *op, true
}

// Drop discards any pending operation for an order.
func (c *Coalescer) Drop(orderID uint64) {
	delete(c.pending, orderID)
}

// Len returns the number of orders with a pending operation.
func (c *Coalescer) Len() int {
	return len(c.pending)
}
