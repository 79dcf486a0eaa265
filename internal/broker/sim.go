package broker

import (
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var ErrSessionClosed = errors.New("broker session closed")

// SimConfig tunes the in-process simulator.
type SimConfig struct {
	// AckDelay before each command is acknowledged.
	AckDelay time.Duration
	// FillDelay after a submit ack before the full fill, zero disables
	// auto fills.
	FillDelay time.Duration
	// RejectEvery rejects every Nth non-cancel command, zero disables.
	RejectEvery int
	// Mute drops responses entirely so deadline handling can be exercised.
	Mute bool
	// Buffer sizes the response channel.
	Buffer int
}

// Sim is a scriptable in-process venue. The default behavior acks every
// command and fully fills submits after FillDelay; Script overrides the
// response plan per command.
type Sim struct {
	cfg SimConfig

	// Script, when set, returns the responses for a command. A nil return
	// falls back to the default plan.
	Script func(cmd schema.OrderCommand) []schema.BrokerResponse

	mu     sync.Mutex
	out    chan schema.BrokerResponse
	closed bool
	seen   int
}

// NewSim creates a simulator session.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	return &Sim{
		cfg: cfg,
		out: make(chan schema.BrokerResponse, cfg.Buffer),
	}
}

// Send schedules the scripted or default responses for a command.
func (s *Sim) Send(cmd schema.OrderCommand) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.seen++
	seen := s.seen
	s.mu.Unlock()

	if s.Script != nil {
		if responses := s.Script(cmd); responses != nil {
			s.deliver(responses, s.cfg.AckDelay)
			return nil
		}
	}
	if s.cfg.Mute {
		return nil
	}

	if s.cfg.RejectEvery > 0 && cmd.Action != schema.BrokerActionCancel && seen%s.cfg.RejectEvery == 0 {
		s.deliver([]schema.BrokerResponse{{
			CmdID:   cmd.CmdID,
			OrderID: cmd.OrderID,
			Kind:    schema.ResponseReject,
			Side:    cmd.Side,
		}}, s.cfg.AckDelay)
		return nil
	}

	plan := []schema.BrokerResponse{{
		CmdID:   cmd.CmdID,
		OrderID: cmd.OrderID,
		Kind:    schema.ResponseAck,
		Side:    cmd.Side,
		Price:   cmd.Price,
		Qty:     cmd.Qty,
	}}
	s.deliver(plan, s.cfg.AckDelay)

	if cmd.Action == schema.BrokerActionSubmit && s.cfg.FillDelay > 0 {
		s.deliver([]schema.BrokerResponse{{
			OrderID:    cmd.OrderID,
			StrategyID: cmd.StrategyID,
			SymbolID:   cmd.SymbolID,
			Kind:       schema.ResponseFill,
			Side:       cmd.Side,
			Price:      cmd.Price,
			Qty:        cmd.Qty,
			LeavesQty:  0,
		}}, s.cfg.AckDelay+s.cfg.FillDelay)
	}
	return nil
}

func (s *Sim) deliver(responses []schema.BrokerResponse, delay time.Duration) {
	emit := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		for _, resp := range responses {
			select {
			case s.out <- resp:
			default:
			}
		}
	}
	if delay <= 0 {
		emit()
		return
	}
	time.AfterFunc(delay, emit)
}

// Responses exposes the response channel.
func (s *Sim) Responses() <-chan schema.BrokerResponse {
	return s.out
}

// Close ends the session.
func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.out)
	return nil
}
