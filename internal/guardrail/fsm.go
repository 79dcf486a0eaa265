package guardrail

import (
	"main/internal/schema"
)

// Thresholds are drawdown levels (scaled drift units, negative) that
// trigger escalation, and the hysteresis band required for recovery.
type Thresholds struct {
	Warm       int64
	Storm      int64
	Halt       int64
	Hysteresis int64
}

// Multipliers scale the effective size/notional caps per state, in basis
// points. NORMAL is always 10000 and HALT is always 0.
type Multipliers struct {
	WarmBps  int64
	StormBps int64
}

// Config bundles the tunable FSM parameters.
type Config struct {
	Thresholds  Thresholds
	Multipliers Multipliers
}

// DefaultConfig mirrors the platform defaults: -0.5% / -1.0% / -2.0%
// drawdown in scaled drift units with a quarter-band hysteresis.
func DefaultConfig() Config {
	return Config{
		Thresholds: Thresholds{
			Warm:       -5_000,
			Storm:      -10_000,
			Halt:       -20_000,
			Hysteresis: 1_250,
		},
		Multipliers: Multipliers{WarmBps: 5_000, StormBps: 2_500},
	}
}

type machine struct {
	state schema.GuardrailState
	drift int64
}

// FSM holds one disciplinary machine per strategy plus a global one.
// It is owned by the risk engine; all mutation happens on the engine's
// goroutine and other components observe it via emitted transitions.
type FSM struct {
	cfg        Config
	global     machine
	strategies map[uint32]*machine
}

// New creates an FSM with every machine in NORMAL.
func New(cfg Config) *FSM {
	return &FSM{
		cfg:        cfg,
		strategies: make(map[uint32]*machine),
	}
}

// Register creates the per-strategy machine at NORMAL.
func (f *FSM) Register(strategyID uint32) {
	if _, ok := f.strategies[strategyID]; !ok {
		f.strategies[strategyID] = &machine{}
	}
}

// StrategyState returns the per-strategy state.
func (f *FSM) StrategyState(strategyID uint32) schema.GuardrailState {
	if m, ok := f.strategies[strategyID]; ok {
		return m.state
	}
	return schema.GuardrailNormal
}

// GlobalState returns the global state.
func (f *FSM) GlobalState() schema.GuardrailState {
	return f.global.state
}

// Effective returns the more restrictive of the strategy and global states.
func (f *FSM) Effective(strategyID uint32) schema.GuardrailState {
	s := f.StrategyState(strategyID)
	if f.global.state > s {
		return f.global.state
	}
	return s
}

// CapMultiplierBps returns the size/notional cap scaling for a state.
func (f *FSM) CapMultiplierBps(state schema.GuardrailState) int64 {
	switch state {
	case schema.GuardrailNormal:
		return 10_000
	case schema.GuardrailWarm:
		return f.cfg.Multipliers.WarmBps
	case schema.GuardrailStorm:
		return f.cfg.Multipliers.StormBps
	default:
		return 0
	}
}

// UpdateStrategy feeds a new drift sample into the per-strategy machine.
func (f *FSM) UpdateStrategy(strategyID uint32, drift, nowNs int64) (schema.GuardrailTransition, bool) {
	m, ok := f.strategies[strategyID]
	if !ok {
		m = &machine{}
		f.strategies[strategyID] = m
	}
	return f.update(m, schema.ScopeStrategy, strategyID, drift, nowNs)
}

// UpdateGlobal feeds a new drift sample into the global machine.
func (f *FSM) UpdateGlobal(drift, nowNs int64) (schema.GuardrailTransition, bool) {
	return f.update(&f.global, schema.ScopeGlobal, 0, drift, nowNs)
}

// Reset is the only path out of HALT. It returns the machine to NORMAL.
func (f *FSM) Reset(scope schema.GuardrailScope, strategyID uint32, nowNs int64) (schema.GuardrailTransition, bool) {
	m := f.machineFor(scope, strategyID)
	if m == nil || m.state == schema.GuardrailNormal {
		return schema.GuardrailTransition{}, false
	}
	return f.transition(m, scope, strategyID, schema.GuardrailNormal, m.drift, nowNs), true
}

// Force applies a privileged operator transition to an explicit state.
func (f *FSM) Force(scope schema.GuardrailScope, strategyID uint32, state schema.GuardrailState, nowNs int64) (schema.GuardrailTransition, bool) {
	m := f.machineFor(scope, strategyID)
	if m == nil || m.state == state {
		return schema.GuardrailTransition{}, false
	}
	return f.transition(m, scope, strategyID, state, m.drift, nowNs), true
}

func (f *FSM) machineFor(scope schema.GuardrailScope, strategyID uint32) *machine {
	if scope == schema.ScopeGlobal {
		return &f.global
	}
	m, ok := f.strategies[strategyID]
	if !ok {
		m = &machine{}
		f.strategies[strategyID] = m
	}
	return m
}

// update applies the threshold-crossing rules: escalation is immediate,
// recovery demotes one level at a time and only once the metric clears
// the entry threshold plus the hysteresis band. HALT is sticky.
func (f *FSM) update(m *machine, scope schema.GuardrailScope, strategyID uint32, drift, nowNs int64) (schema.GuardrailTransition, bool) {
	m.drift = drift
	target := f.levelFor(drift)

	switch {
	case target > m.state:
		return f.transition(m, scope, strategyID, target, drift, nowNs), true
	case target < m.state:
		if m.state == schema.GuardrailHalt {
			return schema.GuardrailTransition{}, false
		}
		if drift > f.entryThreshold(m.state)+f.cfg.Thresholds.Hysteresis {
			return f.transition(m, scope, strategyID, m.state-1, drift, nowNs), true
		}
	}
	return schema.GuardrailTransition{}, false
}

func (f *FSM) levelFor(drift int64) schema.GuardrailState {
	t := f.cfg.Thresholds
	switch {
	case drift <= t.Halt:
		return schema.GuardrailHalt
	case drift <= t.Storm:
		return schema.GuardrailStorm
	case drift <= t.Warm:
		return schema.GuardrailWarm
	default:
		return schema.GuardrailNormal
	}
}

func (f *FSM) entryThreshold(state schema.GuardrailState) int64 {
	t := f.cfg.Thresholds
	switch state {
	case schema.GuardrailWarm:
		return t.Warm
	case schema.GuardrailStorm:
		return t.Storm
	case schema.GuardrailHalt:
		return t.Halt
	default:
		return 0
	}
}

func (f *FSM) transition(m *machine, scope schema.GuardrailScope, strategyID uint32, to schema.GuardrailState, drift, nowNs int64) schema.GuardrailTransition {
	from := m.state
	m.state = to
	return schema.GuardrailTransition{
		Scope:      scope,
		StrategyID: strategyID,
		From:       from,
		To:         to,
		Metric:     drift,
		TsNs:       nowNs,
	}
}

// Degrade steps a state one level more restrictive. It is applied by the
// size validator when the exposure feed goes stale.
func Degrade(s schema.GuardrailState) schema.GuardrailState {
	if s >= schema.GuardrailHalt {
		return schema.GuardrailHalt
	}
	return s + 1
}
