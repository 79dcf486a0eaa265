package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const (
	GuardrailTransitionPayloadSize = 26
	StrategyStatusPayloadSize      = 22
	RateAlarmPayloadSize           = 18
)

// EncodeGuardrailTransition serializes a guardrail transition into a
// fixed-size payload.
func EncodeGuardrailTransition(dst []byte, tr schema.GuardrailTransition) []byte {
	if cap(dst) < GuardrailTransitionPayloadSize {
		dst = make([]byte, GuardrailTransitionPayloadSize)
	} else {
		dst = dst[:GuardrailTransitionPayloadSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(tr.Scope))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(tr.From))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(tr.To))
	binary.LittleEndian.PutUint32(dst[6:10], tr.StrategyID)
	binary.LittleEndian.PutUint64(dst[10:18], uint64(tr.Metric))
	binary.LittleEndian.PutUint64(dst[18:26], uint64(tr.TsNs))

	return dst
}

// DecodeGuardrailTransition parses a fixed-size guardrail transition payload.
func DecodeGuardrailTransition(src []byte) (schema.GuardrailTransition, bool) {
	if len(src) < GuardrailTransitionPayloadSize {
		return schema.GuardrailTransition{}, false
	}
	return schema.GuardrailTransition{
		Scope:      schema.GuardrailScope(binary.LittleEndian.Uint16(src[0:2])),
		From:       schema.GuardrailState(binary.LittleEndian.Uint16(src[2:4])),
		To:         schema.GuardrailState(binary.LittleEndian.Uint16(src[4:6])),
		StrategyID: binary.LittleEndian.Uint32(src[6:10]),
		Metric:     int64(binary.LittleEndian.Uint64(src[10:18])),
		TsNs:       int64(binary.LittleEndian.Uint64(src[18:26])),
	}, true
}

// EncodeStrategyStatus serializes a strategy status into a fixed-size payload.
func EncodeStrategyStatus(dst []byte, st schema.StrategyStatus) []byte {
	if cap(dst) < StrategyStatusPayloadSize {
		dst = make([]byte, StrategyStatusPayloadSize)
	} else {
		dst = dst[:StrategyStatusPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], st.StrategyID)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(st.Kind))
	binary.LittleEndian.PutUint64(dst[6:14], uint64(st.ElapsedNs))
	binary.LittleEndian.PutUint64(dst[14:22], uint64(st.TsNs))

	return dst
}

// EncodeRateAlarm serializes a rate alarm into a fixed-size payload.
func EncodeRateAlarm(dst []byte, alarm schema.RateAlarm) []byte {
	if cap(dst) < RateAlarmPayloadSize {
		dst = make([]byte, RateAlarmPayloadSize)
	} else {
		dst = dst[:RateAlarmPayloadSize]
	}

	binary.LittleEndian.PutUint16(dst[0:2], uint16(alarm.Level))
	binary.LittleEndian.PutUint32(dst[2:6], alarm.InWindow)
	binary.LittleEndian.PutUint32(dst[6:10], alarm.Limit)
	binary.LittleEndian.PutUint64(dst[10:18], uint64(alarm.TsNs))

	return dst
}

// DecodeRateAlarm parses a fixed-size rate alarm payload.
func DecodeRateAlarm(src []byte) (schema.RateAlarm, bool) {
	if len(src) < RateAlarmPayloadSize {
		return schema.RateAlarm{}, false
	}
	return schema.RateAlarm{
		Level:    schema.RateAlarmLevel(binary.LittleEndian.Uint16(src[0:2])),
		InWindow: binary.LittleEndian.Uint32(src[2:6]),
		Limit:    binary.LittleEndian.Uint32(src[6:10]),
		TsNs:     int64(binary.LittleEndian.Uint64(src[10:18])),
	}, true
}

// DecodeStrategyStatus parses a fixed-size strategy status payload.
func DecodeStrategyStatus(src []byte) (schema.StrategyStatus, bool) {
	if len(src) < StrategyStatusPayloadSize {
		return schema.StrategyStatus{}, false
	}
	return schema.StrategyStatus{
		StrategyID: binary.LittleEndian.Uint32(src[0:4]),
		Kind:       schema.StrategyStatusKind(binary.LittleEndian.Uint16(src[4:6])),
		ElapsedNs:  int64(binary.LittleEndian.Uint64(src[6:14])),
		TsNs:       int64(binary.LittleEndian.Uint64(src[14:22])),
	}, true
}
