package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const (
	MarketDataPayloadSize = 64
	FillPayloadSize       = 40
)

// EncodeMarketData serializes a market data tick into a fixed-size payload.
func EncodeMarketData(dst []byte, md schema.MarketData) []byte {
	if cap(dst) < MarketDataPayloadSize {
		dst = make([]byte, MarketDataPayloadSize)
	} else {
		dst = dst[:MarketDataPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], md.SymbolID)
	binary.LittleEndian.PutUint16(dst[4:6], uint16(md.Kind))
	binary.LittleEndian.PutUint16(dst[6:8], md.Flags)
	binary.LittleEndian.PutUint64(dst[8:16], md.SymbolSeq)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(md.Price))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(md.Size))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(md.BidPrice))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(md.BidSize))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(md.AskPrice))
	binary.LittleEndian.PutUint64(dst[56:64], uint64(md.AskSize))

	return dst
}

// DecodeMarketData parses a fixed-size market data payload.
func DecodeMarketData(src []byte) (schema.MarketData, bool) {
	if len(src) < MarketDataPayloadSize {
		return schema.MarketData{}, false
	}
	return schema.MarketData{
		SymbolID:  binary.LittleEndian.Uint32(src[0:4]),
		Kind:      schema.MarketDataKind(binary.LittleEndian.Uint16(src[4:6])),
		Flags:     binary.LittleEndian.Uint16(src[6:8]),
		SymbolSeq: binary.LittleEndian.Uint64(src[8:16]),
		Price:     schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Size:      schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		BidPrice:  schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		BidSize:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[40:48]))),
		AskPrice:  schema.Price(int64(binary.LittleEndian.Uint64(src[48:56]))),
		AskSize:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[56:64]))),
	}, true
}

// EncodeFill serializes a fill into a fixed-size payload.
func EncodeFill(dst []byte, fill schema.Fill) []byte {
	if cap(dst) < FillPayloadSize {
		dst = make([]byte, FillPayloadSize)
	} else {
		dst = dst[:FillPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], fill.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], fill.SymbolID)
	binary.LittleEndian.PutUint16(dst[12:14], uint16(fill.Side))
	binary.LittleEndian.PutUint16(dst[14:16], fill.Flags)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(fill.Price))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(fill.Qty))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(fill.Fee))

	return dst
}

// DecodeFill parses a fixed-size fill payload.
func DecodeFill(src []byte) (schema.Fill, bool) {
	if len(src) < FillPayloadSize {
		return schema.Fill{}, false
	}
	return schema.Fill{
		OrderID:  binary.LittleEndian.Uint64(src[0:8]),
		SymbolID: binary.LittleEndian.Uint32(src[8:12]),
		Side:     schema.OrderSide(binary.LittleEndian.Uint16(src[12:14])),
		Flags:    binary.LittleEndian.Uint16(src[14:16]),
		Price:    schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Qty:      schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Fee:      schema.Fee(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}
