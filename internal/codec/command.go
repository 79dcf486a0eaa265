package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const (
	OrderCommandPayloadSize   = 68
	BrokerResponsePayloadSize = 62
)

// EncodeOrderCommand serializes an order command into a fixed-size payload.
func EncodeOrderCommand(dst []byte, cmd schema.OrderCommand) []byte {
	if cap(dst) < OrderCommandPayloadSize {
		dst = make([]byte, OrderCommandPayloadSize)
	} else {
		dst = dst[:OrderCommandPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], cmd.CmdID)
	binary.LittleEndian.PutUint64(dst[8:16], cmd.IntentID)
	binary.LittleEndian.PutUint64(dst[16:24], cmd.OrderID)
	binary.LittleEndian.PutUint32(dst[24:28], cmd.StrategyID)
	binary.LittleEndian.PutUint32(dst[28:32], cmd.SymbolID)
	binary.LittleEndian.PutUint16(dst[32:34], uint16(cmd.Action))
	binary.LittleEndian.PutUint16(dst[34:36], uint16(cmd.Side))
	binary.LittleEndian.PutUint16(dst[36:38], uint16(cmd.TimeInForce))
	binary.LittleEndian.PutUint16(dst[38:40], uint16(cmd.GuardrailState))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(cmd.Price))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(cmd.Qty))
	binary.LittleEndian.PutUint32(dst[56:60], cmd.CoalescedCount)
	binary.LittleEndian.PutUint64(dst[60:68], uint64(cmd.DeadlineNs))

	return dst
}

// DecodeOrderCommand parses a fixed-size order command payload.
func DecodeOrderCommand(src []byte) (schema.OrderCommand, bool) {
	if len(src) < OrderCommandPayloadSize {
		return schema.OrderCommand{}, false
	}
	return schema.OrderCommand{
		CmdID:          binary.LittleEndian.Uint64(src[0:8]),
		IntentID:       binary.LittleEndian.Uint64(src[8:16]),
		OrderID:        binary.LittleEndian.Uint64(src[16:24]),
		StrategyID:     binary.LittleEndian.Uint32(src[24:28]),
		SymbolID:       binary.LittleEndian.Uint32(src[28:32]),
		Action:         schema.BrokerAction(binary.LittleEndian.Uint16(src[32:34])),
		Side:           schema.OrderSide(binary.LittleEndian.Uint16(src[34:36])),
		TimeInForce:    schema.TimeInForce(binary.LittleEndian.Uint16(src[36:38])),
		GuardrailState: schema.GuardrailState(binary.LittleEndian.Uint16(src[38:40])),
		Price:          schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		Qty:            schema.Quantity(int64(binary.LittleEndian.Uint64(src[48:56]))),
		CoalescedCount: binary.LittleEndian.Uint32(src[56:60]),
		DeadlineNs:     int64(binary.LittleEndian.Uint64(src[60:68])),
	}, true
}

// EncodeBrokerResponse serializes a broker response into a fixed-size payload.
func EncodeBrokerResponse(dst []byte, resp schema.BrokerResponse) []byte {
	if cap(dst) < BrokerResponsePayloadSize {
		dst = make([]byte, BrokerResponsePayloadSize)
	} else {
		dst = dst[:BrokerResponsePayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], resp.CmdID)
	binary.LittleEndian.PutUint64(dst[8:16], resp.IntentID)
	binary.LittleEndian.PutUint64(dst[16:24], resp.OrderID)
	binary.LittleEndian.PutUint32(dst[24:28], resp.StrategyID)
	binary.LittleEndian.PutUint32(dst[28:32], resp.SymbolID)
	binary.LittleEndian.PutUint16(dst[32:34], uint16(resp.Kind))
	binary.LittleEndian.PutUint16(dst[34:36], resp.Reason)
	binary.LittleEndian.PutUint16(dst[36:38], uint16(resp.Side))
	binary.LittleEndian.PutUint64(dst[38:46], uint64(resp.Price))
	binary.LittleEndian.PutUint64(dst[46:54], uint64(resp.Qty))
	binary.LittleEndian.PutUint64(dst[54:62], uint64(resp.LeavesQty))

	return dst
}

// DecodeBrokerResponse parses a fixed-size broker response payload.
func DecodeBrokerResponse(src []byte) (schema.BrokerResponse, bool) {
	if len(src) < BrokerResponsePayloadSize {
		return schema.BrokerResponse{}, false
	}
	return schema.BrokerResponse{
		CmdID:      binary.LittleEndian.Uint64(src[0:8]),
		IntentID:   binary.LittleEndian.Uint64(src[8:16]),
		OrderID:    binary.LittleEndian.Uint64(src[16:24]),
		StrategyID: binary.LittleEndian.Uint32(src[24:28]),
		SymbolID:   binary.LittleEndian.Uint32(src[28:32]),
		Kind:       schema.ResponseKind(binary.LittleEndian.Uint16(src[32:34])),
		Reason:     binary.LittleEndian.Uint16(src[34:36]),
		Side:       schema.OrderSide(binary.LittleEndian.Uint16(src[36:38])),
		Price:      schema.Price(int64(binary.LittleEndian.Uint64(src[38:46]))),
		Qty:        schema.Quantity(int64(binary.LittleEndian.Uint64(src[46:54]))),
		LeavesQty:  schema.Quantity(int64(binary.LittleEndian.Uint64(src[54:62]))),
	}, true
}
