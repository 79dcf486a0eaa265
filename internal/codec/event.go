package codec

import "main/internal/schema"

// DecodeEvent expands a wire payload into its typed struct by event type.
// Unknown or truncated payloads return (nil, false).
func DecodeEvent(eventType schema.EventType, payload []byte) (any, bool) {
	switch eventType {
	case schema.EventMarketData:
		if v, ok := DecodeMarketData(payload); ok {
			return v, true
		}
	case schema.EventOrderIntent:
		if v, ok := DecodeOrderIntent(payload); ok {
			return v, true
		}
	case schema.EventRiskDecision:
		if v, ok := DecodeRiskDecision(payload); ok {
			return v, true
		}
	case schema.EventGuardrailTransition:
		if v, ok := DecodeGuardrailTransition(payload); ok {
			return v, true
		}
	case schema.EventOrderCommand:
		if v, ok := DecodeOrderCommand(payload); ok {
			return v, true
		}
	case schema.EventBrokerResponse:
		if v, ok := DecodeBrokerResponse(payload); ok {
			return v, true
		}
	case schema.EventFill:
		if v, ok := DecodeFill(payload); ok {
			return v, true
		}
	case schema.EventStrategyStatus, schema.EventOperatorCommand:
		if v, ok := DecodeStrategyStatus(payload); ok {
			return v, true
		}
	case schema.EventRateAlarm:
		if v, ok := DecodeRateAlarm(payload); ok {
			return v, true
		}
	}
	return nil, false
}
