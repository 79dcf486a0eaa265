// Package ops holds the operational surface of the pipeline: file
// configuration, the operator control endpoint and the audit trail.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/adapter"
	"main/internal/broker"
	"main/internal/dispatch"
	"main/internal/feed"
	"main/internal/guardrail"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
)

// FileConfig mirrors the JSON config layout. Prices, quantities and
// notionals are decimal strings resolved against the symbol scales.
type FileConfig struct {
	Registry   RegistryConfig   `json:"registry"`
	Strategies []StrategyConfig `json:"strategies"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Limits     LimitsConfig     `json:"limits"`
	Guardrail  GuardrailConfig  `json:"guardrail"`
	Adapter    AdapterConfig    `json:"adapter"`
	Feed       FeedConfig       `json:"feed"`
	Broker     BrokerConfig     `json:"broker"`
	Recorder   recorder.Config  `json:"recorder"`
	Publish    PublishConfig    `json:"publish"`
	Audit      AuditConfig      `json:"audit"`
	Server     ServerConfig     `json:"server"`
}

// RegistryConfig defines venue and symbol mappings.
type RegistryConfig struct {
	Venues  []VenueConfig  `json:"venues"`
	Symbols []SymbolConfig `json:"symbols"`
}

// VenueConfig describes a venue entry.
type VenueConfig struct {
	Name string `json:"name"`
}

// SymbolConfig describes a symbol entry.
type SymbolConfig struct {
	Name  string           `json:"name"`
	Venue string           `json:"venue"`
	Scale schema.ScaleSpec `json:"scale"`
}

// StrategyConfig describes one dispatch table row.
type StrategyConfig struct {
	ID       uint32   `json:"id"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Symbols  []string `json:"symbols"`
	BudgetUs int64    `json:"budgetUs"`
	Enabled  *bool    `json:"enabled"`

	// Quoter parameters, decimal strings in display units.
	HalfSpread  string `json:"halfSpread"`
	Size        string `json:"size"`
	RequoteStep string `json:"requoteStep"`
	SkewPerLot  string `json:"skewPerLot"`
	QuoteTTLMs  int64  `json:"quoteTtlMs"`
}

// DispatchConfig tunes the dispatcher.
type DispatchConfig struct {
	DefaultBudgetUs    int64 `json:"defaultBudgetUs"`
	OverrunLimit       int   `json:"overrunLimit"`
	OverrunWindowMs    int64 `json:"overrunWindowMs"`
	MaxIntentsPerEvent int   `json:"maxIntentsPerEvent"`
}

// LimitsConfig carries the risk caps as decimal strings.
type LimitsConfig struct {
	ReferenceSymbol      string `json:"referenceSymbol"`
	PriceBandBps         int64  `json:"priceBandBps"`
	MaxQty               string `json:"maxQty"`
	MaxNotional          string `json:"maxNotional"`
	StrategyExposureCap  string `json:"strategyExposureCap"`
	GlobalExposureCap    string `json:"globalExposureCap"`
	OrderRateLimit       int    `json:"orderRateLimit"`
	GlobalOrderRateLimit int    `json:"globalOrderRateLimit"`
	OrderRateWindowMs    int64  `json:"orderRateWindowMs"`
	ExposureStaleAfterMs int64  `json:"exposureStaleAfterMs"`
	DedupWindow          int    `json:"dedupWindow"`
}

// GuardrailConfig carries drawdown thresholds as decimal fractions, for
// example "-0.005" for half a percent.
type GuardrailConfig struct {
	Warm        string `json:"warm"`
	Storm       string `json:"storm"`
	Halt        string `json:"halt"`
	Hysteresis  string `json:"hysteresis"`
	WarmCapBps  int64  `json:"warmCapBps"`
	StormCapBps int64  `json:"stormCapBps"`
}

// AdapterConfig tunes the order adapter.
type AdapterConfig struct {
	CommandTimeoutMs      int64  `json:"commandTimeoutMs"`
	CoalesceWindowMs      int64  `json:"coalesceWindowMs"`
	RateSoftLimit         int    `json:"rateSoftLimit"`
	RateHardLimit         int    `json:"rateHardLimit"`
	RateStrategySoftLimit int    `json:"rateStrategySoftLimit"`
	RateStrategyHardLimit int    `json:"rateStrategyHardLimit"`
	RateWindowMs          int64  `json:"rateWindowMs"`
	BreakerFailures       int    `json:"breakerFailures"`
	BreakerCooldownMs     int64  `json:"breakerCooldownMs"`
	CapitalBase           string `json:"capitalBase"`
	SnapshotEveryMs       int64  `json:"snapshotEveryMs"`
}

// FeedConfig tunes the synthetic market data source. Prices are decimal
// strings in display units of the reference symbol.
type FeedConfig struct {
	Enabled    bool   `json:"enabled"`
	IntervalUs int64  `json:"intervalUs"`
	BasePrice  string `json:"basePrice"`
	Spread     string `json:"spread"`
	Size       string `json:"size"`
	WalkStep   string `json:"walkStep"`
	Seed       int64  `json:"seed"`
}

// BrokerConfig selects the venue session.
type BrokerConfig struct {
	Mode string            `json:"mode"` // "sim" or "wire"
	Wire broker.WireConfig `json:"wire"`
	Sim  SimConfig         `json:"sim"`
}

// SimConfig is the JSON shape of the simulator settings.
type SimConfig struct {
	AckDelayUs  int64 `json:"ackDelayUs"`
	FillDelayUs int64 `json:"fillDelayUs"`
	RejectEvery int   `json:"rejectEvery"`
}

// PublishConfig describes the outbound NATS publisher.
type PublishConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

// AuditConfig describes the operator audit store.
type AuditConfig struct {
	DSN string `json:"dsn"`
}

// ServerConfig describes the HTTP surfaces.
type ServerConfig struct {
	ControlAddr   string `json:"controlAddr"`
	ControlToken  string `json:"controlToken"`
	MetricsAddr   string `json:"metricsAddr"`
	PyroscopeAddr string `json:"pyroscopeAddr"`
}

// StrategySpec is one resolved dispatch table row.
type StrategySpec struct {
	ID      uint32
	Name    string
	Kind    string
	Symbols []schema.SymbolID
	Budget  time.Duration
	Enabled bool

	HalfSpread  schema.Price
	Size        schema.Quantity
	RequoteStep schema.Price
	SkewPerLot  schema.Price
	QuoteTTL    time.Duration
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Registry   *schema.Registry
	Strategies []StrategySpec
	Dispatch   dispatch.Config
	Limits     risk.Limits
	Guardrail  guardrail.Config
	Adapter    adapter.Config
	Feed       feed.SimConfig
	FeedOn     bool
	Broker     BrokerConfig
	Recorder   recorder.Config
	Publish    PublishConfig
	Audit      AuditConfig
	Server     ServerConfig
}

// Load reads a JSON config file and resolves every section.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	registry, err := buildRegistry(cfg.Registry)
	if err != nil {
		return Loaded{}, err
	}
	strategies, err := resolveStrategies(cfg.Strategies, registry)
	if err != nil {
		return Loaded{}, err
	}
	limits, err := resolveLimits(cfg.Limits, registry)
	if err != nil {
		return Loaded{}, err
	}
	guard, err := resolveGuardrail(cfg.Guardrail)
	if err != nil {
		return Loaded{}, err
	}
	adapterCfg, err := resolveAdapter(cfg.Adapter, registry, cfg.Limits.ReferenceSymbol)
	if err != nil {
		return Loaded{}, err
	}
	feedCfg, err := resolveFeed(cfg.Feed, registry, cfg.Limits.ReferenceSymbol)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{
		Registry:   registry,
		Strategies: strategies,
		Dispatch:   resolveDispatch(cfg.Dispatch),
		Limits:     limits,
		Guardrail:  guard,
		Adapter:    adapterCfg,
		Feed:       feedCfg,
		FeedOn:     cfg.Feed.Enabled,
		Broker:     cfg.Broker,
		Recorder:   cfg.Recorder,
		Publish:    cfg.Publish,
		Audit:      cfg.Audit,
		Server:     cfg.Server,
	}, nil
}

func buildRegistry(cfg RegistryConfig) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, venue := range cfg.Venues {
		if _, err := reg.AddVenue(venue.Name); err != nil {
			return nil, err
		}
	}
	for _, sym := range cfg.Symbols {
		venueID, ok := reg.VenueIDByName(sym.Venue)
		if !ok {
			return nil, fmt.Errorf("venue not found: %s", sym.Venue)
		}
		if err := validateScale(sym.Scale); err != nil {
			return nil, fmt.Errorf("invalid scale for %s: %w", sym.Name, err)
		}
		if _, err := reg.AddSymbol(sym.Name, venueID, sym.Scale); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func validateScale(scale schema.ScaleSpec) error {
	if scale.PriceScale < 0 || scale.QuantityScale < 0 || scale.NotionalScale < 0 || scale.FeeScale < 0 {
		return fmt.Errorf("scale must be >= 0")
	}
	return nil
}

func resolveStrategies(cfgs []StrategyConfig, reg *schema.Registry) ([]StrategySpec, error) {
	specs := make([]StrategySpec, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.ID == 0 {
			return nil, fmt.Errorf("strategy id must be > 0: %s", cfg.Name)
		}
		if len(cfg.Symbols) == 0 {
			return nil, fmt.Errorf("strategy %s has no symbols", cfg.Name)
		}
		spec := StrategySpec{
			ID:      cfg.ID,
			Name:    cfg.Name,
			Kind:    cfg.Kind,
			Budget:  time.Duration(cfg.BudgetUs) * time.Microsecond,
			Enabled: cfg.Enabled == nil || *cfg.Enabled,
		}
		var scale schema.ScaleSpec
		for i, name := range cfg.Symbols {
			symbolID, ok := reg.SymbolIDByName(name)
			if !ok {
				return nil, fmt.Errorf("strategy %s: symbol not found: %s", cfg.Name, name)
			}
			symbol, _ := reg.Symbol(symbolID)
			if i == 0 {
				scale = symbol.Scale
			}
			spec.Symbols = append(spec.Symbols, symbolID)
		}

		var err error
		if spec.HalfSpread, err = scaledPrice(cfg.HalfSpread, scale); err != nil {
			return nil, fmt.Errorf("strategy %s: halfSpread: %w", cfg.Name, err)
		}
		if spec.RequoteStep, err = scaledPrice(cfg.RequoteStep, scale); err != nil {
			return nil, fmt.Errorf("strategy %s: requoteStep: %w", cfg.Name, err)
		}
		if spec.SkewPerLot, err = scaledPrice(cfg.SkewPerLot, scale); err != nil {
			return nil, fmt.Errorf("strategy %s: skewPerLot: %w", cfg.Name, err)
		}
		size, err := scaledInt(cfg.Size, scale.QuantityScale)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: size: %w", cfg.Name, err)
		}
		spec.Size = schema.Quantity(size)
		spec.QuoteTTL = time.Duration(cfg.QuoteTTLMs) * time.Millisecond
		specs = append(specs, spec)
	}
	return specs, nil
}

func resolveDispatch(cfg DispatchConfig) dispatch.Config {
	out := dispatch.DefaultConfig()
	if cfg.DefaultBudgetUs > 0 {
		out.DefaultBudget = time.Duration(cfg.DefaultBudgetUs) * time.Microsecond
	}
	if cfg.OverrunLimit > 0 {
		out.OverrunLimit = cfg.OverrunLimit
	}
	if cfg.OverrunWindowMs > 0 {
		out.OverrunWindow = time.Duration(cfg.OverrunWindowMs) * time.Millisecond
	}
	if cfg.MaxIntentsPerEvent > 0 {
		out.MaxIntentsPerEvent = cfg.MaxIntentsPerEvent
	}
	return out
}

func resolveLimits(cfg LimitsConfig, reg *schema.Registry) (risk.Limits, error) {
	out := risk.DefaultLimits()
	scale, err := referenceScale(reg, cfg.ReferenceSymbol)
	if err != nil {
		return out, err
	}
	if cfg.PriceBandBps > 0 {
		out.PriceBandBps = cfg.PriceBandBps
	}
	if cfg.MaxQty != "" {
		v, err := scaledInt(cfg.MaxQty, scale.QuantityScale)
		if err != nil {
			return out, fmt.Errorf("maxQty: %w", err)
		}
		out.MaxQty = schema.Quantity(v)
	}
	if cfg.MaxNotional != "" {
		v, err := scaledInt(cfg.MaxNotional, scale.NotionalScale)
		if err != nil {
			return out, fmt.Errorf("maxNotional: %w", err)
		}
		out.MaxNotional = schema.Notional(v)
	}
	if cfg.StrategyExposureCap != "" {
		v, err := scaledInt(cfg.StrategyExposureCap, scale.NotionalScale)
		if err != nil {
			return out, fmt.Errorf("strategyExposureCap: %w", err)
		}
		out.StrategyExposureCap = schema.Notional(v)
	}
	if cfg.GlobalExposureCap != "" {
		v, err := scaledInt(cfg.GlobalExposureCap, scale.NotionalScale)
		if err != nil {
			return out, fmt.Errorf("globalExposureCap: %w", err)
		}
		out.GlobalExposureCap = schema.Notional(v)
	}
	if cfg.OrderRateLimit > 0 {
		out.OrderRateLimit = cfg.OrderRateLimit
	}
	if cfg.GlobalOrderRateLimit > 0 {
		out.GlobalOrderRateLimit = cfg.GlobalOrderRateLimit
	}
	if cfg.OrderRateWindowMs > 0 {
		out.OrderRateWindow = time.Duration(cfg.OrderRateWindowMs) * time.Millisecond
	}
	if cfg.ExposureStaleAfterMs > 0 {
		out.ExposureStaleAfter = time.Duration(cfg.ExposureStaleAfterMs) * time.Millisecond
	}
	if cfg.DedupWindow > 0 {
		out.DedupWindow = cfg.DedupWindow
	}
	return out, nil
}

// resolveGuardrail converts decimal drawdown fractions into drift units of
// one millionth.
func resolveGuardrail(cfg GuardrailConfig) (guardrail.Config, error) {
	out := guardrail.DefaultConfig()
	assign := func(text string, dst *int64, name string) error {
		if text == "" {
			return nil
		}
		frac, err := decimal.NewFromString(text)
		if err != nil {
			return fmt.Errorf("guardrail %s: %w", name, err)
		}
		*dst = frac.Mul(decimal.NewFromInt(1_000_000)).IntPart()
		return nil
	}
	if err := assign(cfg.Warm, &out.Thresholds.Warm, "warm"); err != nil {
		return out, err
	}
	if err := assign(cfg.Storm, &out.Thresholds.Storm, "storm"); err != nil {
		return out, err
	}
	if err := assign(cfg.Halt, &out.Thresholds.Halt, "halt"); err != nil {
		return out, err
	}
	if err := assign(cfg.Hysteresis, &out.Thresholds.Hysteresis, "hysteresis"); err != nil {
		return out, err
	}
	if out.Thresholds.Hysteresis < 0 {
		out.Thresholds.Hysteresis = -out.Thresholds.Hysteresis
	}
	if cfg.WarmCapBps > 0 {
		out.Multipliers.WarmBps = cfg.WarmCapBps
	}
	if cfg.StormCapBps > 0 {
		out.Multipliers.StormBps = cfg.StormCapBps
	}
	if out.Thresholds.Warm <= out.Thresholds.Storm || out.Thresholds.Storm <= out.Thresholds.Halt {
		return out, fmt.Errorf("guardrail thresholds must be ordered warm > storm > halt")
	}
	return out, nil
}

func resolveAdapter(cfg AdapterConfig, reg *schema.Registry, referenceSymbol string) (adapter.Config, error) {
	out := adapter.DefaultConfig()
	if cfg.CommandTimeoutMs > 0 {
		out.CommandTimeout = time.Duration(cfg.CommandTimeoutMs) * time.Millisecond
	}
	if cfg.CoalesceWindowMs > 0 {
		out.CoalesceWindow = time.Duration(cfg.CoalesceWindowMs) * time.Millisecond
	}
	if cfg.RateSoftLimit > 0 {
		out.Rate.SoftLimit = cfg.RateSoftLimit
	}
	if cfg.RateHardLimit > 0 {
		out.Rate.HardLimit = cfg.RateHardLimit
	}
	if cfg.RateStrategySoftLimit > 0 {
		out.Rate.StrategySoftLimit = cfg.RateStrategySoftLimit
	}
	if cfg.RateStrategyHardLimit > 0 {
		out.Rate.StrategyHardLimit = cfg.RateStrategyHardLimit
	}
	if cfg.RateWindowMs > 0 {
		out.Rate.WindowNs = int64(time.Duration(cfg.RateWindowMs) * time.Millisecond)
	}
	if cfg.BreakerFailures > 0 {
		out.Breaker.FailureThreshold = cfg.BreakerFailures
	}
	if cfg.BreakerCooldownMs > 0 {
		out.Breaker.CooldownNs = int64(time.Duration(cfg.BreakerCooldownMs) * time.Millisecond)
	}
	if cfg.SnapshotEveryMs > 0 {
		out.SnapshotEvery = time.Duration(cfg.SnapshotEveryMs) * time.Millisecond
	}
	if cfg.CapitalBase != "" {
		scale, err := referenceScale(reg, referenceSymbol)
		if err != nil {
			return out, err
		}
		v, err := scaledInt(cfg.CapitalBase, scale.NotionalScale)
		if err != nil {
			return out, fmt.Errorf("capitalBase: %w", err)
		}
		out.CapitalBase = schema.Notional(v)
	}
	return out, nil
}

func resolveFeed(cfg FeedConfig, reg *schema.Registry, referenceSymbol string) (feed.SimConfig, error) {
	var out feed.SimConfig
	if !cfg.Enabled {
		return out, nil
	}
	scale, err := referenceScale(reg, referenceSymbol)
	if err != nil {
		return out, err
	}
	if cfg.IntervalUs > 0 {
		out.Interval = time.Duration(cfg.IntervalUs) * time.Microsecond
	}
	if out.BasePrice, err = scaledPrice(cfg.BasePrice, scale); err != nil {
		return out, fmt.Errorf("feed basePrice: %w", err)
	}
	if out.Spread, err = scaledPrice(cfg.Spread, scale); err != nil {
		return out, fmt.Errorf("feed spread: %w", err)
	}
	if out.WalkStep, err = scaledPrice(cfg.WalkStep, scale); err != nil {
		return out, fmt.Errorf("feed walkStep: %w", err)
	}
	size, err := scaledInt(cfg.Size, scale.QuantityScale)
	if err != nil {
		return out, fmt.Errorf("feed size: %w", err)
	}
	out.Size = schema.Quantity(size)
	out.Seed = cfg.Seed
	return out, nil
}

func referenceScale(reg *schema.Registry, name string) (schema.ScaleSpec, error) {
	if name == "" {
		symbols := reg.Symbols()
		if len(symbols) == 0 {
			return schema.ScaleSpec{}, fmt.Errorf("registry has no symbols")
		}
		return symbols[0].Scale, nil
	}
	id, ok := reg.SymbolIDByName(name)
	if !ok {
		return schema.ScaleSpec{}, fmt.Errorf("reference symbol not found: %s", name)
	}
	symbol, _ := reg.Symbol(id)
	return symbol.Scale, nil
}

func scaledPrice(text string, scale schema.ScaleSpec) (schema.Price, error) {
	v, err := scaledInt(text, scale.PriceScale)
	return schema.Price(v), err
}

// scaledInt parses a decimal string into a scaled integer, rejecting
// values that lose precision at the symbol scale.
func scaledInt(text string, scale schema.Scale) (int64, error) {
	if text == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, err
	}
	shifted := d.Shift(int32(scale))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("value %s exceeds scale %d", text, scale)
	}
	return shifted.IntPart(), nil
}
