package adapter

// BreakerState is the venue circuit breaker state.
type BreakerState uint16

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive broker failures trip the breaker.
	FailureThreshold int
	// CooldownNs is the OPEN dwell before a probe is allowed.
	CooldownNs int64
	// RefailFactor multiplies the cooldown when a probe fails.
	RefailFactor int64
}

// Breaker is a consecutive-failure circuit breaker around the broker
// channel. Only the adapter goroutine touches it.
type Breaker struct {
	cfg BreakerConfig

	state      BreakerState
	failures   int
	openedNs   int64
	cooldownNs int64
	probing    bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RefailFactor <= 1 {
		cfg.RefailFactor = 2
	}
	return &Breaker{cfg: cfg, cooldownNs: cfg.CooldownNs}
}

// State returns the current breaker state, moving OPEN to HALF_OPEN once
// the cooldown has elapsed.
func (b *Breaker) State(nowNs int64) BreakerState {
	if b.state == BreakerOpen && nowNs-b.openedNs >= b.cooldownNs {
		b.state = BreakerHalfOpen
		b.probing = false
	}
	return b.state
}

// AllowProbe reports whether a HALF_OPEN probe may be sent. At most one
// probe is outstanding at a time.
func (b *Breaker) AllowProbe() bool {
	if b.state != BreakerHalfOpen || b.probing {
		return false
	}
	b.probing = true
	return true
}

// OnSuccess records a broker success. A successful probe closes the
// breaker and restores the base cooldown.
func (b *Breaker) OnSuccess() {
	b.failures = 0
	if b.state != BreakerClosed {
		b.state = BreakerClosed
		b.probing = false
		b.cooldownNs = b.cfg.CooldownNs
	}
}

// OnFailure records a broker failure and reports whether the breaker
// tripped on this call. A failed probe reopens with an extended cooldown.
func (b *Breaker) OnFailure(nowNs int64) bool {
	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedNs = nowNs
		b.cooldownNs *= b.cfg.RefailFactor
		b.probing = false
		return true
	case BreakerOpen:
		return false
	}
	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.state = BreakerOpen
		b.openedNs = nowNs
		b.failures = 0
		return true
	}
	return false
}
