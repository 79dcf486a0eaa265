package adapter

// RateVerdict is the limiter's answer for one prospective send.
type RateVerdict uint16

const (
	// RateOK permits the send.
	RateOK RateVerdict = iota
	// RateSoft permits the send but signals the caps should tighten.
	RateSoft
	// RateHard defers the send until the window frees up.
	RateHard
)

// RateLimiterConfig tunes the venue rate limiter. The global caps bound all
// sends in the window; the strategy caps bound each strategy separately so
// one noisy strategy cannot consume the whole venue budget.
type RateLimiterConfig struct {
	// SoftLimit sends within WindowNs raise a tighten-caps alarm.
	SoftLimit int
	// HardLimit sends within WindowNs defer further sends.
	HardLimit int
	// StrategySoftLimit and StrategyHardLimit are the per-strategy
	// equivalents. Zero derives them from the global caps.
	StrategySoftLimit int
	StrategyHardLimit int
	WindowNs          int64
}

// sendWindow is a fixed-capacity ring of send timestamps.
type sendWindow struct {
	sends []int64
	head  int
	count int
}

func newSendWindow(capacity int) *sendWindow {
	return &sendWindow{sends: make([]int64, capacity)}
}

func (w *sendWindow) prune(nowNs, windowNs int64) {
	for w.count > 0 && nowNs-w.sends[w.head] >= windowNs {
		w.head = (w.head + 1) % len(w.sends)
		w.count--
	}
}

func (w *sendWindow) record(nowNs int64) {
	if w.count == len(w.sends) {
		return
	}
	w.sends[(w.head+w.count)%len(w.sends)] = nowNs
	w.count++
}

// RateLimiter holds sliding-window counters over broker sends, one global
// and one per strategy. Deferred commands are queued by the adapter, never
// dropped.
type RateLimiter struct {
	cfg      RateLimiterConfig
	global   *sendWindow
	strategy map[uint32]*sendWindow
}

// NewRateLimiter creates a limiter sized to the hard caps.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.HardLimit <= 0 {
		cfg.HardLimit = 100
	}
	if cfg.SoftLimit <= 0 || cfg.SoftLimit > cfg.HardLimit {
		cfg.SoftLimit = cfg.HardLimit * 8 / 10
	}
	if cfg.StrategyHardLimit <= 0 || cfg.StrategyHardLimit > cfg.HardLimit {
		cfg.StrategyHardLimit = cfg.HardLimit
	}
	if cfg.StrategySoftLimit <= 0 || cfg.StrategySoftLimit > cfg.StrategyHardLimit {
		cfg.StrategySoftLimit = cfg.StrategyHardLimit * 8 / 10
	}
	return &RateLimiter{
		cfg:      cfg,
		global:   newSendWindow(cfg.HardLimit),
		strategy: make(map[uint32]*sendWindow),
	}
}

// Check classifies a prospective send for a strategy at the given time
// without recording. The stricter of the global and per-strategy verdicts
// wins.
func (r *RateLimiter) Check(nowNs int64, strategyID uint32) RateVerdict {
	r.global.prune(nowNs, r.cfg.WindowNs)
	verdict := classify(r.global.count, r.cfg.SoftLimit, r.cfg.HardLimit)

	if w, ok := r.strategy[strategyID]; ok {
		w.prune(nowNs, r.cfg.WindowNs)
		if v := classify(w.count, r.cfg.StrategySoftLimit, r.cfg.StrategyHardLimit); v > verdict {
			verdict = v
		}
	}
	return verdict
}

// Record counts one send against both scopes.
func (r *RateLimiter) Record(nowNs int64, strategyID uint32) {
	r.global.prune(nowNs, r.cfg.WindowNs)
	r.global.record(nowNs)

	w, ok := r.strategy[strategyID]
	if !ok {
		w = newSendWindow(r.cfg.StrategyHardLimit)
		r.strategy[strategyID] = w
	}
	w.prune(nowNs, r.cfg.WindowNs)
	w.record(nowNs)
}

// InWindow returns the number of sends currently inside the global window.
func (r *RateLimiter) InWindow(nowNs int64) int {
	r.global.prune(nowNs, r.cfg.WindowNs)
	return r.global.count
}

func classify(count, soft, hard int) RateVerdict {
	switch {
	case count >= hard:
		return RateHard
	case count >= soft:
		return RateSoft
	default:
		return RateOK
	}
}
