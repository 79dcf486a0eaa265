package risk

import (
	"main/internal/position"
	"main/internal/schema"
)

// Checkpoint is the mutable evaluation state threaded through the validator
// chain for one intent. Validators may tighten Qty (sanitization); they
// never loosen it.
type Checkpoint struct {
	Intent   schema.OrderIntent
	State    schema.GuardrailState
	CapBps   int64
	Mid      schema.Price
	Exposure position.Snapshot
	NowNs    int64

	// Qty is the running sanitized quantity, seeded from the intent.
	Qty schema.Quantity
}

// Notional returns the order notional at the intent price for the running
// quantity.
func (cp *Checkpoint) Notional() schema.Notional {
	return schema.Notional(int64(cp.Intent.Price) * int64(cp.Qty))
}

// Validator is one link of the risk chain. ReasonNone means pass.
type Validator interface {
	Name() string
	Validate(cp *Checkpoint) schema.DecisionReason
}

// PriceBandValidator rejects prices outside a band around the last mid.
// No sanitization here: a price that far off is a bug, not an oversize.
type PriceBandValidator struct {
	BandBps int64
}

func (v *PriceBandValidator) Name() string { return "price_band" }

func (v *PriceBandValidator) Validate(cp *Checkpoint) schema.DecisionReason {
	if v.BandBps <= 0 || cp.Intent.Type == schema.IntentCancel {
		return schema.ReasonNone
	}
	if cp.Mid <= 0 {
		// No reference price yet. Let the size checks carry the load.
		return schema.ReasonNone
	}
	diff := int64(cp.Intent.Price) - int64(cp.Mid)
	if diff < 0 {
		diff = -diff
	}
	if diff*10_000 > int64(cp.Mid)*v.BandBps {
		return schema.ReasonPriceBandViolation
	}
	return schema.ReasonNone
}

// SizeValidator enforces quantity and notional caps. The hard MaxQty is a
// reject; the guardrail-scaled cap clamps the quantity down instead, so a
// WARM or STORM state shrinks orders rather than killing them.
type SizeValidator struct {
	MaxQty      schema.Quantity
	MaxNotional schema.Notional
}

func (v *SizeValidator) Name() string { return "size" }

func (v *SizeValidator) Validate(cp *Checkpoint) schema.DecisionReason {
	if cp.Intent.Type == schema.IntentCancel {
		return schema.ReasonNone
	}
	if v.MaxQty > 0 {
		if cp.Qty > v.MaxQty {
			return schema.ReasonMaxQty
		}
		scaled := schema.Quantity(int64(v.MaxQty) * cp.CapBps / 10_000)
		if cp.Qty > scaled {
			cp.Qty = scaled
		}
		if cp.Qty <= 0 {
			return schema.ReasonGuardrailHalt
		}
	}
	if v.MaxNotional > 0 {
		scaled := schema.Notional(int64(v.MaxNotional) * cp.CapBps / 10_000)
		if cp.Notional() > scaled {
			return schema.ReasonMaxNotional
		}
	}
	return schema.ReasonNone
}

// ExposureValidator rejects orders whose worst-case resulting notional
// breaches the per-strategy or global caps.
type ExposureValidator struct {
	StrategyCap schema.Notional
	GlobalCap   schema.Notional
}

func (v *ExposureValidator) Name() string { return "exposure" }

func (v *ExposureValidator) Validate(cp *Checkpoint) schema.DecisionReason {
	if cp.Intent.Type == schema.IntentCancel {
		return schema.ReasonNone
	}
	added := int64(cp.Notional())
	if added < 0 {
		added = -added
	}
	if v.StrategyCap > 0 {
		current := int64(cp.Exposure.StrategyNotional[cp.Intent.StrategyID])
		if current+added > int64(v.StrategyCap) {
			return schema.ReasonExposureCap
		}
	}
	if v.GlobalCap > 0 {
		if int64(cp.Exposure.GlobalNotional)+added > int64(v.GlobalCap) {
			return schema.ReasonExposureCap
		}
	}
	return schema.ReasonNone
}

// RateValidator caps order submissions in a rolling window, per strategy
// and across all strategies combined. Cancels are exempt so de-risking is
// never rate limited.
type RateValidator struct {
	Limit       int
	GlobalLimit int
	WindowNs    int64

	windows map[uint32]*rateWindow
	global  rateWindow
}

type rateWindow struct {
	startNs int64
	count   int
}

// NewRateValidator builds the order rate check. Zero disables a scope.
func NewRateValidator(limit, globalLimit int, windowNs int64) *RateValidator {
	return &RateValidator{
		Limit:       limit,
		GlobalLimit: globalLimit,
		WindowNs:    windowNs,
		windows:     make(map[uint32]*rateWindow),
	}
}

func (v *RateValidator) Name() string { return "order_rate" }

func (v *RateValidator) Validate(cp *Checkpoint) schema.DecisionReason {
	if cp.Intent.Type == schema.IntentCancel {
		return schema.ReasonNone
	}
	if v.Limit > 0 {
		w, ok := v.windows[cp.Intent.StrategyID]
		if !ok {
			w = &rateWindow{}
			v.windows[cp.Intent.StrategyID] = w
		}
		if !w.admit(cp.NowNs, v.WindowNs, v.Limit) {
			return schema.ReasonOrderRate
		}
	}
	if v.GlobalLimit > 0 && !v.global.admit(cp.NowNs, v.WindowNs, v.GlobalLimit) {
		return schema.ReasonOrderRate
	}
	return schema.ReasonNone
}

func (w *rateWindow) admit(nowNs, windowNs int64, limit int) bool {
	if nowNs-w.startNs > windowNs {
		w.startNs = nowNs
		w.count = 0
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}
