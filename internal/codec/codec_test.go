package codec

import (
	"testing"

	"main/internal/schema"
)

func TestOrderIntentRoundTrip(t *testing.T) {
	orig := schema.OrderIntent{
		IntentID:       0xDEADBEEF01,
		StrategyID:     7,
		SymbolID:       42,
		Side:           schema.OrderSideSell,
		Type:           schema.IntentAmend,
		TimeInForce:    schema.TimeInForceIOC,
		Flags:          3,
		TargetID:       991,
		Price:          -12_345,
		Qty:            500,
		IdempotencyKey: 0xABCDEF,
		TTLNs:          1_000_000,
		CreatedAtNs:    1_700_000_000_000_000_000,
	}
	decoded, ok := DecodeOrderIntent(EncodeOrderIntent(nil, orig))
	if !ok || decoded != orig {
		t.Fatalf("intent round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestOrderCommandRoundTrip(t *testing.T) {
	orig := schema.OrderCommand{
		CmdID:          11,
		IntentID:       22,
		OrderID:        33,
		StrategyID:     4,
		SymbolID:       5,
		Action:         schema.BrokerActionAmend,
		Side:           schema.OrderSideBuy,
		TimeInForce:    schema.TimeInForceGTC,
		GuardrailState: schema.GuardrailWarm,
		Price:          65_000_00,
		Qty:            100,
		CoalescedCount: 2,
		DeadlineNs:     1_700_000_000_500_000_000,
	}
	decoded, ok := DecodeOrderCommand(EncodeOrderCommand(nil, orig))
	if !ok || decoded != orig {
		t.Fatalf("command round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestBrokerResponseRoundTrip(t *testing.T) {
	orig := schema.BrokerResponse{
		CmdID:      41,
		IntentID:   812,
		OrderID:    9,
		StrategyID: 3,
		SymbolID:   7,
		Kind:       schema.ResponseFill,
		Reason:     0,
		Side:       schema.OrderSideSell,
		Price:      64_990_00,
		Qty:        25,
		LeavesQty:  5,
	}
	decoded, ok := DecodeBrokerResponse(EncodeBrokerResponse(nil, orig))
	if !ok || decoded != orig {
		t.Fatalf("response round-trip mismatch: got %+v want %+v", decoded, orig)
	}
	if decoded.IntentID != 812 {
		t.Fatalf("intent correlation lost on the wire: %d", decoded.IntentID)
	}
}

func TestRiskDecisionRoundTrip(t *testing.T) {
	orig := schema.RiskDecision{
		IntentID:       77,
		StrategyID:     1,
		SymbolID:       2,
		Outcome:        schema.OutcomeApprove,
		Reason:         schema.ReasonNone,
		Intent:         schema.IntentNew,
		Side:           schema.OrderSideBuy,
		TargetID:       0,
		SanitizedPrice: 64_995_00,
		SanitizedQty:   50,
		GuardrailState: schema.GuardrailStorm,
		DecidedAtNs:    123_456_789,
	}
	decoded, ok := DecodeRiskDecision(EncodeRiskDecision(nil, orig))
	if !ok || decoded != orig {
		t.Fatalf("decision round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestEncodeReusesBuffer(t *testing.T) {
	scratch := make([]byte, 0, 128)
	out := EncodeMarketData(scratch, schema.MarketData{SymbolID: 9, Price: 100})
	if &out[0] != &scratch[:1][0] {
		t.Fatalf("expected encode to reuse the provided buffer")
	}
	if len(out) != MarketDataPayloadSize {
		t.Fatalf("expected %d bytes, got %d", MarketDataPayloadSize, len(out))
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, ok := DecodeOrderIntent(make([]byte, OrderIntentPayloadSize-1)); ok {
		t.Fatalf("truncated intent must not decode")
	}
	if _, ok := DecodeBrokerResponse(nil); ok {
		t.Fatalf("nil response must not decode")
	}
}

func TestDecodeEvent(t *testing.T) {
	fill := schema.Fill{OrderID: 5, SymbolID: 2, Side: schema.OrderSideSell, Price: 101, Qty: 3, Fee: 1}
	v, ok := DecodeEvent(schema.EventFill, EncodeFill(nil, fill))
	if !ok {
		t.Fatalf("expected fill to decode")
	}
	if got, isFill := v.(schema.Fill); !isFill || got != fill {
		t.Fatalf("unexpected decoded value %+v", v)
	}
	if _, ok := DecodeEvent(schema.EventUnknown, nil); ok {
		t.Fatalf("unknown type must not decode")
	}
}
