// Package codec provides fixed-size little-endian payload codecs for the
// event types that cross process boundaries: the WAL recorder, the replay
// tool and the outbound publisher all share these layouts.
package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderIntentPayloadSize = 72

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, intent schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], intent.IntentID)
	binary.LittleEndian.PutUint32(dst[8:12], intent.StrategyID)
	binary.LittleEndian.PutUint32(dst[12:16], intent.SymbolID)
	binary.LittleEndian.PutUint16(dst[16:18], uint16(intent.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(intent.Type))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(intent.TimeInForce))
	binary.LittleEndian.PutUint16(dst[22:24], intent.Flags)
	binary.LittleEndian.PutUint64(dst[24:32], intent.TargetID)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(intent.Price))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(intent.Qty))
	binary.LittleEndian.PutUint64(dst[48:56], intent.IdempotencyKey)
	binary.LittleEndian.PutUint64(dst[56:64], uint64(intent.TTLNs))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(intent.CreatedAtNs))

	return dst
}

// DecodeOrderIntent parses a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, false
	}
	return schema.OrderIntent{
		IntentID:       binary.LittleEndian.Uint64(src[0:8]),
		StrategyID:     binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:       binary.LittleEndian.Uint32(src[12:16]),
		Side:           schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Type:           schema.IntentType(binary.LittleEndian.Uint16(src[18:20])),
		TimeInForce:    schema.TimeInForce(binary.LittleEndian.Uint16(src[20:22])),
		Flags:          binary.LittleEndian.Uint16(src[22:24]),
		TargetID:       binary.LittleEndian.Uint64(src[24:32]),
		Price:          schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Qty:            schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		IdempotencyKey: binary.LittleEndian.Uint64(src[48:56]),
		TTLNs:          int64(binary.LittleEndian.Uint64(src[56:64])),
		CreatedAtNs:    int64(binary.LittleEndian.Uint64(src[64:72])),
	}, true
}
