package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const RiskDecisionPayloadSize = 58

// EncodeRiskDecision serializes a risk decision into a fixed-size payload.
func EncodeRiskDecision(dst []byte, decision schema.RiskDecision) []byte {
	if cap(dst) < RiskDecisionPayloadSize {
		dst = make([]byte, RiskDecisionPayloadSize)
	} else {
		dst = dst[:RiskDecisionPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], decision.IntentID)
	binary.LittleEndian.PutUint32(dst[8:12], decision.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], decision.SymbolID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(decision.Outcome))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(decision.Reason))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(decision.Intent))
	binary.LittleEndian.PutUint16(dst[22:24], uint16(decision.Side))
	binary.LittleEndian.PutUint64(dst[24:32], decision.TargetID)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(decision.SanitizedPrice))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(decision.SanitizedQty))
	binary.LittleEndian.PutUint16(dst[48:50], uint16(decision.GuardrailState))
	binary.LittleEndian.PutUint64(dst[50:58], uint64(decision.DecidedAtNs))

	return dst
}

// DecodeRiskDecision parses a fixed-size risk decision payload.
func DecodeRiskDecision(src []byte) (schema.RiskDecision, bool) {
	if len(src) < RiskDecisionPayloadSize {
		return schema.RiskDecision{}, false
	}
	return schema.RiskDecision{
		IntentID:       binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:     binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:       binary.LittleEndian.Uint32(src[12:16]),
		Outcome:        schema.DecisionOutcome(binary.LittleEndian.Uint16(src[16:18])),
		Reason:         schema.DecisionReason(binary.LittleEndian.Uint16(src[18:20])),
		Intent:         schema.IntentType(binary.LittleEndian.Uint16(src[20:22])),
		Side:           schema.OrderSide(binary.LittleEndian.Uint16(src[22:24])),
		TargetID:       binary.LittleEndian.Uint64(src[24:32]),
		SanitizedPrice: schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		SanitizedQty:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		GuardrailState: schema.GuardrailState(binary.LittleEndian.Uint16(src[48:50])),
		DecidedAtNs:    int64(binary.LittleEndian.Uint64(src[50:58])),
	}, true
}
