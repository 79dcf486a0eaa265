package risk

import (
	"time"

	"main/internal/schema"
)

// Limits are the static risk caps. Scaled-integer fields share the symbol
// scale configured in the registry. Zero values disable the check.
type Limits struct {
	// PriceBandBps rejects prices further than this many basis points from
	// the last observed mid.
	PriceBandBps int64 `json:"priceBandBps"`
	// MaxQty is the hard per-order quantity ceiling before guardrail
	// scaling. Orders above it are rejected outright.
	MaxQty schema.Quantity `json:"maxQty"`
	// MaxNotional caps per-order notional after guardrail scaling.
	MaxNotional schema.Notional `json:"maxNotional"`
	// StrategyExposureCap caps the resulting per-strategy notional.
	StrategyExposureCap schema.Notional `json:"strategyExposureCap"`
	// GlobalExposureCap caps the resulting global notional.
	GlobalExposureCap schema.Notional `json:"globalExposureCap"`
	// OrderRateLimit per strategy within OrderRateWindow.
	OrderRateLimit int `json:"orderRateLimit"`
	// GlobalOrderRateLimit caps all strategies combined within the same
	// window.
	GlobalOrderRateLimit int           `json:"globalOrderRateLimit"`
	OrderRateWindow      time.Duration `json:"orderRateWindow"`
	// ExposureStaleAfter degrades the guardrail state used for cap scaling
	// when the exposure snapshot is older than this.
	ExposureStaleAfter time.Duration `json:"exposureStaleAfter"`
	// DedupWindow is the idempotency LRU capacity.
	DedupWindow int `json:"dedupWindow"`
}

// DefaultLimits returns conservative production defaults.
func DefaultLimits() Limits {
	return Limits{
		PriceBandBps:         200,
		MaxQty:               1_000_000,
		MaxNotional:          10_000_000_000,
		StrategyExposureCap:  50_000_000_000,
		GlobalExposureCap:    200_000_000_000,
		OrderRateLimit:       100,
		GlobalOrderRateLimit: 400,
		OrderRateWindow:      time.Second,
		ExposureStaleAfter:   500 * time.Millisecond,
		DedupWindow:          8192,
	}
}
