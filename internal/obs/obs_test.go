package obs

import (
	"context"
	"testing"
	"time"

	"main/internal/bus"
	"main/internal/schema"
)

func TestStreamEmitStampsHeader(t *testing.T) {
	s := NewStream(4, 3, NewMetrics())

	s.Emit(schema.EventFill, 99, 1_000, []byte("a"))
	s.Emit(schema.EventFill, 0, 0, []byte("b"))

	env := <-s.C()
	if env.Header.Type != schema.EventFill || env.Header.Source != 3 {
		t.Fatalf("header not stamped: %+v", env.Header)
	}
	if env.Header.Seq != 1 || env.Header.TraceID != 99 || env.Header.TsEvent != 1_000 {
		t.Fatalf("header fields wrong: %+v", env.Header)
	}
	env = <-s.C()
	if env.Header.Seq != 2 {
		t.Fatalf("sequence not monotonic: %d", env.Header.Seq)
	}
	// A zero event time falls back to the receive time.
	if env.Header.TsEvent == 0 || env.Header.TsEvent != env.Header.TsRecv {
		t.Fatalf("zero TsEvent not backfilled: %+v", env.Header)
	}
}

func TestStreamFullDropsAndCounts(t *testing.T) {
	m := NewMetrics()
	s := NewStream(1, 1, m)

	s.Emit(schema.EventFill, 0, 1, nil)
	s.Emit(schema.EventFill, 0, 2, nil)
	if got := m.Snapshot().PublishDrops; got != 1 {
		t.Fatalf("expected 1 drop, got %d", got)
	}
}

func TestNilStreamIsSafe(t *testing.T) {
	var s *Stream
	s.Emit(schema.EventFill, 0, 0, nil)
	if s.C() != nil {
		t.Fatalf("nil stream must expose a nil channel")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestFanoutCopiesToAllTaps(t *testing.T) {
	s := NewStream(8, 1, NewMetrics())
	wal := bus.NewQueue[Envelope](8)
	nats := bus.NewQueue[Envelope](8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunFanout(ctx, s, wal, nats)
	}()

	s.Emit(schema.EventFill, 1, 1, []byte("x"))
	s.Emit(schema.EventFill, 2, 2, []byte("y"))
	s.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("fanout did not stop on stream close")
	}

	for _, tap := range []*bus.Queue[Envelope]{wal, nats} {
		var got int
		for range tap.C() {
			got++
		}
		if got != 2 {
			t.Fatalf("tap received %d envelopes, want 2", got)
		}
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.IncApprove()
	m.IncReject(schema.ReasonMaxQty)
	m.IncReject(schema.ReasonMaxQty)
	m.IncCoalesced()
	m.ObserveDispatch(10 * time.Microsecond)
	m.ObserveDispatch(30 * time.Microsecond)

	snap := m.Snapshot()
	if snap.DecisionsApprove != 1 || snap.DecisionsReject != 2 {
		t.Fatalf("decision counts wrong: %+v", snap)
	}
	if snap.RejectReasons[schema.ReasonMaxQty] != 2 {
		t.Fatalf("reason count wrong: %+v", snap.RejectReasons)
	}
	if snap.CoalescedAmends != 1 {
		t.Fatalf("coalesced count wrong")
	}
	lat := snap.DispatchLatency
	if lat.Count != 2 || lat.Min != 10*time.Microsecond || lat.Max != 30*time.Microsecond || lat.Avg != 20*time.Microsecond {
		t.Fatalf("latency stats wrong: %+v", lat)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncApprove()
	m.IncReject(schema.ReasonMaxQty)
	m.ObserveEvent(schema.EventHeader{})
	m.ObserveBroker(time.Millisecond)
	if snap := m.Snapshot(); snap.DecisionsApprove != 0 {
		t.Fatalf("nil metrics snapshot not zero")
	}
}

func TestTraceGeneratorUnique(t *testing.T) {
	g := NewTraceGenerator()
	a, b := g.Next(), g.Next()
	if a == b {
		t.Fatalf("trace ids must be unique")
	}
	if a>>32 != b>>32 {
		t.Fatalf("process prefix must be stable within a generator")
	}
}
