// Package feed produces market data for the pipeline. The simulator walks
// each symbol's price randomly around its base so the full intent/decision
// path can run without a venue connection.
package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/obs"
	"main/internal/schema"
)

// SimConfig tunes the synthetic feed.
type SimConfig struct {
	Interval  time.Duration
	BasePrice schema.Price
	Spread    schema.Price
	Size      schema.Quantity
	// WalkStep is the maximum absolute per-tick mid move.
	WalkStep schema.Price
	Seed     int64
}

// Sim publishes synthetic quotes for every registry symbol. Each symbol
// carries its own strictly increasing SymbolSeq.
type Sim struct {
	cfg     SimConfig
	rng     *rand.Rand
	symbols []schema.Symbol
	mids    []schema.Price
	seqs    []uint64

	outs    []*bus.Queue[schema.MarketData]
	stream  *obs.Stream
	scratch []byte
}

// NewSim creates a simulator over the registry symbols. Every tick is
// published to each out queue (dispatcher and risk tap).
func NewSim(cfg SimConfig, reg *schema.Registry, stream *obs.Stream, outs ...*bus.Queue[schema.MarketData]) (*Sim, error) {
	symbols := reg.Symbols()
	if len(symbols) == 0 {
		return nil, errors.New("feed: registry has no symbols")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = 100_000_000
	}
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.WalkStep <= 0 {
		cfg.WalkStep = cfg.BasePrice / 10_000
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mids := make([]schema.Price, len(symbols))
	for i := range mids {
		mids[i] = cfg.BasePrice
	}
	return &Sim{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		symbols: symbols,
		mids:    mids,
		seqs:    make([]uint64, len(symbols)),
		outs:    outs,
		stream:  stream,
	}, nil
}

// Run ticks until the context is cancelled.
func (s *Sim) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for i := range s.symbols {
				s.tick(i, now.UnixNano())
			}
		}
	}
}

func (s *Sim) tick(i int, nowNs int64) {
	step := schema.Price(s.rng.Int63n(int64(2*s.cfg.WalkStep)+1) - int64(s.cfg.WalkStep))
	mid := s.mids[i] + step
	if mid <= s.cfg.Spread {
		mid = s.cfg.BasePrice
	}
	s.mids[i] = mid
	s.seqs[i]++

	md := schema.MarketData{
		SymbolID:  uint32(s.symbols[i].ID),
		Kind:      schema.MarketDataQuote,
		SymbolSeq: s.seqs[i],
		Price:     mid,
		Size:      s.cfg.Size,
		BidPrice:  mid - s.cfg.Spread,
		BidSize:   s.cfg.Size,
		AskPrice:  mid + s.cfg.Spread,
		AskSize:   s.cfg.Size,
	}
	for _, out := range s.outs {
		_ = out.TryPublish(md)
	}
	s.scratch = codec.EncodeMarketData(s.scratch, md)
	buf := make([]byte, len(s.scratch))
	copy(buf, s.scratch)
	s.stream.Emit(schema.EventMarketData, 0, nowNs, buf)
}
