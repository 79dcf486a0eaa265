package risk

// dedupLRU is a fixed-capacity set of recently seen idempotency keys.
// Eviction is insertion-ordered via a ring so memory stays bounded no
// matter how fast strategies emit.
type dedupLRU struct {
	seen map[uint64]struct{}
	ring []uint64
	next int
	full bool
}

func newDedupLRU(capacity int) *dedupLRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &dedupLRU{
		seen: make(map[uint64]struct{}, capacity),
		ring: make([]uint64, capacity),
	}
}

// Observe records a key and reports whether it was already present.
func (d *dedupLRU) Observe(key uint64) bool {
	if key == 0 {
		return false
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.full {
		delete(d.seen, d.ring[d.next])
	}
	d.ring[d.next] = key
	d.seen[key] = struct{}{}
	d.next++
	if d.next == len(d.ring) {
		d.next = 0
		d.full = true
	}
	return false
}
