package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 2

// EventType defines the category of an event flowing through the pipeline.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketData
	EventOrderIntent
	EventRiskDecision
	EventGuardrailTransition
	EventOrderCommand
	EventBrokerResponse
	EventFill
	EventStrategyStatus
	EventOperatorCommand
	EventRateAlarm
)

// String returns a stable name for metrics labels and logs.
func (t EventType) String() string {
	switch t {
	case EventMarketData:
		return "market_data"
	case EventOrderIntent:
		return "order_intent"
	case EventRiskDecision:
		return "risk_decision"
	case EventGuardrailTransition:
		return "guardrail_transition"
	case EventOrderCommand:
		return "order_command"
	case EventBrokerResponse:
		return "broker_response"
	case EventFill:
		return "fill"
	case EventStrategyStatus:
		return "strategy_status"
	case EventOperatorCommand:
		return "operator_command"
	case EventRateAlarm:
		return "rate_alarm"
	default:
		return "unknown"
	}
}

// EventHeader is the common metadata attached to every event.
// TraceID threads intent -> decision -> command -> response for one flow.
type EventHeader struct {
	Type    EventType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}
