package obs

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

// TraceGenerator hands out process-unique trace ids. The high 32 bits are a
// random process prefix so ids from restarted processes do not collide in
// downstream stores; the low 32 bits are a counter.
type TraceGenerator struct {
	prefix uint64
	next   uint32
}

// NewTraceGenerator seeds a generator with a random prefix.
func NewTraceGenerator() *TraceGenerator {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return &TraceGenerator{prefix: uint64(binary.LittleEndian.Uint32(buf[:])) << 32}
}

// Next returns a new trace id.
func (g *TraceGenerator) Next() uint64 {
	return g.prefix | uint64(atomic.AddUint32(&g.next, 1))
}
