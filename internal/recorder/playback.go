package recorder

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"main/internal/codec"
	"main/internal/position"
	"main/internal/schema"
)

// Playback drives recorded events back through the order and position
// state machines. It rebuilds live orders from order commands, settles
// them from broker responses, applies fills to a position tracker and
// flags records that could never have been produced by a consistent
// pipeline: responses to unknown commands, fills for unknown orders,
// fills beyond the ordered quantity.
type Playback struct {
	tracker    *position.Tracker
	orders     map[uint64]*playOrder
	cmds       map[uint64]cmdRef
	strategies map[uint32]struct{}
	counts     map[schema.EventType]int
	records    int
	violations []string
}

type playOrder struct {
	orderID    uint64
	intentID   uint64
	strategyID uint32
	symbolID   uint32
	side       schema.OrderSide
	price      schema.Price
	qty        schema.Quantity
	filled     schema.Quantity
	closing    bool
}

type cmdRef struct {
	orderID uint64
	action  schema.BrokerAction
}

// NewPlayback returns an empty playback.
func NewPlayback() *Playback {
	return &Playback{
		tracker:    position.NewTracker(),
		orders:     make(map[uint64]*playOrder),
		cmds:       make(map[uint64]cmdRef),
		strategies: make(map[uint32]struct{}),
		counts:     make(map[schema.EventType]int),
	}
}

// Apply feeds one record into the state machines.
func (p *Playback) Apply(rec Record) {
	p.records++
	p.counts[rec.Header.Type]++

	switch rec.Header.Type {
	case schema.EventMarketData:
		md, ok := codec.DecodeMarketData(rec.Payload)
		if !ok {
			p.corrupt(rec)
			return
		}
		if mid := md.Mid(); mid > 0 {
			p.tracker.MarkPrice(md.SymbolID, mid)
		}
	case schema.EventOrderCommand:
		cmd, ok := codec.DecodeOrderCommand(rec.Payload)
		if !ok {
			p.corrupt(rec)
			return
		}
		p.onCommand(cmd)
	case schema.EventBrokerResponse:
		resp, ok := codec.DecodeBrokerResponse(rec.Payload)
		if !ok {
			p.corrupt(rec)
			return
		}
		p.onResponse(resp)
	case schema.EventFill:
		fill, ok := codec.DecodeFill(rec.Payload)
		if !ok {
			p.corrupt(rec)
			return
		}
		p.onFill(fill)
	}
}

func (p *Playback) onCommand(cmd schema.OrderCommand) {
	switch cmd.Action {
	case schema.BrokerActionSubmit:
		p.orders[cmd.OrderID] = &playOrder{
			orderID:    cmd.OrderID,
			intentID:   cmd.IntentID,
			strategyID: cmd.StrategyID,
			symbolID:   cmd.SymbolID,
			side:       cmd.Side,
			price:      cmd.Price,
			qty:        cmd.Qty,
		}
		p.strategies[cmd.StrategyID] = struct{}{}
	case schema.BrokerActionAmend:
		order, ok := p.orders[cmd.OrderID]
		if !ok {
			p.violate("amend command %d targets unknown order %d", cmd.CmdID, cmd.OrderID)
			return
		}
		order.price = cmd.Price
		order.qty = cmd.Qty
	case schema.BrokerActionCancel:
		if _, ok := p.orders[cmd.OrderID]; !ok {
			p.violate("cancel command %d targets unknown order %d", cmd.CmdID, cmd.OrderID)
			return
		}
	}
	p.cmds[cmd.CmdID] = cmdRef{orderID: cmd.OrderID, action: cmd.Action}
}

func (p *Playback) onResponse(resp schema.BrokerResponse) {
	ref, known := p.cmds[resp.CmdID]
	if known {
		delete(p.cmds, resp.CmdID)
	} else if resp.CmdID != 0 && resp.Kind != schema.ResponseFill {
		// Fills arrive unsolicited; anything else answers a command the
		// WAL never recorded.
		p.violate("response for unknown command %d", resp.CmdID)
		return
	}

	switch resp.Kind {
	case schema.ResponseReject, schema.ResponseTimeout:
		if known && ref.action == schema.BrokerActionSubmit {
			delete(p.orders, ref.orderID)
		}
	case schema.ResponseAck:
		if known && ref.action == schema.BrokerActionCancel {
			delete(p.orders, ref.orderID)
		}
	case schema.ResponseFill:
		// The fill record follows its response in the WAL, so the order
		// stays resolvable until the fill has been applied.
		if resp.LeavesQty == 0 {
			if order, ok := p.orders[resp.OrderID]; ok {
				order.closing = true
			}
		}
	}
}

func (p *Playback) onFill(fill schema.Fill) {
	order, ok := p.orders[fill.OrderID]
	if !ok {
		p.violate("fill for unknown order %d", fill.OrderID)
		return
	}
	order.filled += fill.Qty
	if order.filled > order.qty {
		p.violate("order %d filled %d beyond its quantity %d", order.orderID, order.filled, order.qty)
	}
	p.tracker.ApplyFill(order.strategyID, fill)
	if order.closing || order.filled >= order.qty {
		delete(p.orders, order.orderID)
	}
}

func (p *Playback) corrupt(rec Record) {
	p.violate("undecodable %s payload at seq %d", rec.Header.Type, rec.Header.Seq)
}

func (p *Playback) violate(format string, args ...any) {
	p.violations = append(p.violations, fmt.Sprintf(format, args...))
}

// OpenOrder is one order still working when the recording ends.
type OpenOrder struct {
	OrderID    uint64           `json:"orderId"`
	IntentID   uint64           `json:"intentId"`
	StrategyID uint32           `json:"strategyId"`
	SymbolID   uint32           `json:"symbolId"`
	Side       schema.OrderSide `json:"side"`
	Price      schema.Price     `json:"price"`
	Qty        schema.Quantity  `json:"qty"`
	Filled     schema.Quantity  `json:"filled"`
}

// Summary is the verified end state of a playback.
type Summary struct {
	Records      int                        `json:"records"`
	Counts       map[string]int             `json:"counts"`
	OpenOrders   []OpenOrder                `json:"openOrders"`
	Positions    map[uint32]schema.Quantity `json:"positions"`
	Equity       map[uint32]schema.Notional `json:"equity"`
	GlobalEquity schema.Notional            `json:"globalEquity"`
	Violations   []string                   `json:"violations,omitempty"`
}

// Summary reports the rebuilt state and the violations found.
func (p *Playback) Summary() Summary {
	s := Summary{
		Records:      p.records,
		Counts:       make(map[string]int, len(p.counts)),
		Positions:    make(map[uint32]schema.Quantity),
		Equity:       make(map[uint32]schema.Notional, len(p.strategies)),
		GlobalEquity: p.tracker.GlobalEquity(),
		Violations:   p.violations,
	}
	for eventType, n := range p.counts {
		s.Counts[eventType.String()] = n
	}
	symbols := make(map[uint32]struct{})
	for _, order := range p.orders {
		s.OpenOrders = append(s.OpenOrders, OpenOrder{
			OrderID:    order.orderID,
			IntentID:   order.intentID,
			StrategyID: order.strategyID,
			SymbolID:   order.symbolID,
			Side:       order.side,
			Price:      order.price,
			Qty:        order.qty,
			Filled:     order.filled,
		})
		symbols[order.symbolID] = struct{}{}
	}
	sort.Slice(s.OpenOrders, func(i, j int) bool { return s.OpenOrders[i].OrderID < s.OpenOrders[j].OrderID })
	for strategyID := range p.strategies {
		s.Equity[strategyID] = p.tracker.Equity(strategyID)
	}
	snap := p.tracker.Snapshot(0)
	for symbolID, qty := range snap.Positions {
		if qty != 0 {
			s.Positions[symbolID] = qty
		}
	}
	return s
}

// ReplaySegment feeds every record of one segment file into the playback.
func (p *Playback) ReplaySegment(path string) error {
	reader, err := Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		p.Apply(rec)
	}
}

// Replay runs every segment under dir through a fresh playback and
// returns the verified summary.
func Replay(dir, prefix string) (Summary, error) {
	segments, err := Segments(dir, prefix)
	if err != nil {
		return Summary{}, err
	}
	if len(segments) == 0 {
		return Summary{}, fmt.Errorf("no segments under %s with prefix %s", dir, prefix)
	}
	p := NewPlayback()
	for _, path := range segments {
		if err := p.ReplaySegment(path); err != nil {
			return Summary{}, fmt.Errorf("replay %s: %w", path, err)
		}
	}
	return p.Summary(), nil
}
