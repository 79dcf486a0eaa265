package obs

import (
	"context"
	"sync/atomic"
	"time"

	"main/internal/bus"
	"main/internal/schema"
)

// Envelope pairs a header with an encoded payload on the event stream.
type Envelope struct {
	Header  schema.EventHeader
	Payload []byte
}

// Stream is the observability fan-in. Components emit encoded events here;
// the recorder, the outbound publisher and any other tap consume from the
// queue. Emission never blocks the hot path; a full queue drops the event
// and bumps a counter.
type Stream struct {
	queue   *bus.Queue[Envelope]
	metrics *Metrics
	source  uint16
	seq     uint64
}

// NewStream creates a stream backed by a bounded queue.
func NewStream(capacity int, source uint16, metrics *Metrics) *Stream {
	return &Stream{
		queue:   bus.NewQueue[Envelope](capacity),
		metrics: metrics,
		source:  source,
	}
}

// Emit stamps a header and offers the event to the queue. It tolerates a
// nil receiver so components can run without a stream attached.
func (s *Stream) Emit(eventType schema.EventType, traceID uint64, tsEvent int64, payload []byte) {
	if s == nil {
		return
	}
	tsRecv := time.Now().UnixNano()
	if tsEvent == 0 {
		tsEvent = tsRecv
	}
	header := schema.NewHeader(eventType, s.source, atomic.AddUint64(&s.seq, 1), tsEvent, tsRecv)
	header.TraceID = traceID
	s.metrics.ObserveEvent(header)
	if err := s.queue.TryPublish(Envelope{Header: header, Payload: payload}); err != nil {
		s.metrics.IncPublishDrop()
	}
}

// C exposes the consumer side of the stream.
func (s *Stream) C() <-chan Envelope {
	if s == nil {
		return nil
	}
	return s.queue.C()
}

// Close shuts the stream down.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.queue.Close()
	return nil
}

// RunFanout copies every stream envelope to each tap queue so the recorder
// and the outbound publisher can consume independently. A full tap drops
// that copy; the stream itself keeps flowing.
func RunFanout(ctx context.Context, s *Stream, taps ...*bus.Queue[Envelope]) {
	defer func() {
		for _, tap := range taps {
			tap.Close()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-s.queue.C():
			if !ok {
				return
			}
			for _, tap := range taps {
				if err := tap.TryPublish(env); err != nil {
					s.metrics.IncPublishDrop()
				}
			}
		}
	}
}
