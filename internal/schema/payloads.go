package schema

// Price is a scaled integer. The scale is defined by configuration.
type Price int64

// Quantity is a scaled integer. The scale is defined by configuration.
type Quantity int64

// Notional is a scaled integer. The scale is defined by configuration.
type Notional int64

// Fee is a scaled integer. The scale is defined by configuration.
type Fee int64

// MarketDataKind describes the meaning of the market data payload.
type MarketDataKind uint16

const (
	MarketDataUnknown MarketDataKind = iota
	MarketDataTrade
	MarketDataQuote
	MarketDataDepth
)

// MarketData is the payload for EventMarketData. SymbolSeq is strictly
// increasing per symbol; gaps are tolerated as missed updates.
type MarketData struct {
	SymbolID  uint32
	Kind      MarketDataKind
	Flags     uint16
	SymbolSeq uint64
	Price     Price
	Size      Quantity
	BidPrice  Price
	BidSize   Quantity
	AskPrice  Price
	AskSize   Quantity
}

// Mid returns the quote midpoint, falling back to the last trade price
// when one side of the book is empty.
func (m MarketData) Mid() Price {
	if m.BidPrice > 0 && m.AskPrice > 0 {
		return Price((int64(m.BidPrice) + int64(m.AskPrice)) / 2)
	}
	return m.Price
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// IntentType describes the requested order action.
type IntentType uint16

const (
	IntentUnknown IntentType = iota
	IntentNew
	IntentAmend
	IntentCancel
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

// OrderIntent is the payload for EventOrderIntent. It is immutable once
// created; ownership transfers on channel send.
type OrderIntent struct {
	IntentID       uint64
	StrategyID     uint32
	SymbolID       uint32
	Side           OrderSide
	Type           IntentType
	TimeInForce    TimeInForce
	Flags          uint16
	TargetID       uint64 // order targeted by AMEND/CANCEL
	Price          Price
	Qty            Quantity
	IdempotencyKey uint64
	TTLNs          int64
	CreatedAtNs    int64
}

// Expired reports whether the intent TTL has elapsed at the given time.
func (o OrderIntent) Expired(nowNs int64) bool {
	return o.TTLNs > 0 && nowNs > o.CreatedAtNs+o.TTLNs
}

// GuardrailState is the disciplinary state throttling risk appetite.
type GuardrailState uint16

const (
	GuardrailNormal GuardrailState = iota
	GuardrailWarm
	GuardrailStorm
	GuardrailHalt
)

func (s GuardrailState) String() string {
	switch s {
	case GuardrailNormal:
		return "NORMAL"
	case GuardrailWarm:
		return "WARM"
	case GuardrailStorm:
		return "STORM"
	case GuardrailHalt:
		return "HALT"
	default:
		return "UNKNOWN"
	}
}

// DecisionOutcome is the verdict of the risk gate on an intent.
type DecisionOutcome uint16

const (
	OutcomeUnknown DecisionOutcome = iota
	OutcomeApprove
	OutcomeReject
)

// DecisionReason is a stable reason code attached to risk decisions.
type DecisionReason uint16

const (
	ReasonNone DecisionReason = iota
	ReasonDuplicateIntent
	ReasonIntentExpired
	ReasonPriceBandViolation
	ReasonMaxQty
	ReasonMaxNotional
	ReasonExposureCap
	ReasonOrderRate
	ReasonGuardrailHalt
	ReasonStrategyDisabled
	ReasonUnknownSymbol
)

func (r DecisionReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonDuplicateIntent:
		return "duplicate_intent"
	case ReasonIntentExpired:
		return "intent_expired"
	case ReasonPriceBandViolation:
		return "price_band_violation"
	case ReasonMaxQty:
		return "max_qty"
	case ReasonMaxNotional:
		return "max_notional"
	case ReasonExposureCap:
		return "exposure_cap"
	case ReasonOrderRate:
		return "order_rate"
	case ReasonGuardrailHalt:
		return "guardrail_halt"
	case ReasonStrategyDisabled:
		return "strategy_disabled"
	case ReasonUnknownSymbol:
		return "unknown_symbol"
	default:
		return "unknown"
	}
}

// RiskDecision is the payload for EventRiskDecision. Exactly one decision
// exists per intent and it is never mutated after creation.
type RiskDecision struct {
	IntentID       uint64
	StrategyID     uint32
	SymbolID       uint32
	Outcome        DecisionOutcome
	Reason         DecisionReason
	Intent         IntentType
	Side           OrderSide
	TargetID       uint64
	SanitizedPrice Price
	SanitizedQty   Quantity
	GuardrailState GuardrailState
	DecidedAtNs    int64
}

// BrokerAction is the instruction carried by an order command.
type BrokerAction uint16

const (
	BrokerActionUnknown BrokerAction = iota
	BrokerActionSubmit
	BrokerActionAmend
	BrokerActionCancel
)

// OrderCommand is the payload for EventOrderCommand: the adapter's actual,
// possibly coalesced, instruction to the broker.
type OrderCommand struct {
	CmdID          uint64
	IntentID       uint64
	OrderID        uint64
	StrategyID     uint32
	SymbolID       uint32
	Action         BrokerAction
	Side           OrderSide
	TimeInForce    TimeInForce
	Price          Price
	Qty            Quantity
	CoalescedCount uint32
	DeadlineNs     int64
	GuardrailState GuardrailState
}

// ResponseKind describes the broker's reply to a command.
type ResponseKind uint16

const (
	ResponseUnknown ResponseKind = iota
	ResponseAck
	ResponseReject
	ResponseFill
	ResponseTimeout
)

// BrokerResponse is the payload for EventBrokerResponse, correlated to a
// command by CmdID and to a live order by OrderID. IntentID carries the
// intent the response answers, which for submit responses and fills is the
// originating intent strategies use as their order handle.
type BrokerResponse struct {
	CmdID      uint64
	IntentID   uint64
	OrderID    uint64
	StrategyID uint32
	SymbolID   uint32
	Kind       ResponseKind
	Reason     uint16
	Side       OrderSide
	Price      Price
	Qty        Quantity
	LeavesQty  Quantity
}

// Fill is the payload for EventFill.
type Fill struct {
	OrderID  uint64
	SymbolID uint32
	Side     OrderSide
	Flags    uint16
	Price    Price
	Qty      Quantity
	Fee      Fee
}

// GuardrailScope distinguishes per-strategy from global guardrail state.
type GuardrailScope uint16

const (
	ScopeGlobal GuardrailScope = iota
	ScopeStrategy
)

// GuardrailTransition is the payload for EventGuardrailTransition. It is
// the sole channel by which downstream components learn of state changes.
type GuardrailTransition struct {
	Scope      GuardrailScope
	StrategyID uint32
	From       GuardrailState
	To         GuardrailState
	Metric     int64
	TsNs       int64
}

// RateAlarmLevel distinguishes the soft and hard venue rate caps.
type RateAlarmLevel uint16

const (
	RateAlarmSoft RateAlarmLevel = iota + 1
	RateAlarmHard
)

// RateAlarm is the payload for EventRateAlarm, raised when broker sends
// approach or hit the venue rate caps.
type RateAlarm struct {
	Level    RateAlarmLevel
	InWindow uint32
	Limit    uint32
	TsNs     int64
}

// StrategyStatusKind classifies strategy lifecycle notices.
type StrategyStatusKind uint16

const (
	StrategyStatusUnknown StrategyStatusKind = iota
	StrategyEnabled
	StrategyDisabledBudget
	StrategyDisabledPanic
	StrategyDisabledOperator
	StrategyThrottled
)

// StrategyStatus is the payload for EventStrategyStatus.
type StrategyStatus struct {
	StrategyID uint32
	Kind       StrategyStatusKind
	ElapsedNs  int64
	TsNs       int64
}
