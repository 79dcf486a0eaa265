package adapter

import (
	"testing"
	"time"
)

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, CooldownNs: int64(time.Second), RefailFactor: 2})
	now := int64(1_000)

	if b.OnFailure(now) || b.OnFailure(now) {
		t.Fatalf("breaker tripped below threshold")
	}
	// A success in between resets the streak.
	b.OnSuccess()
	if b.OnFailure(now) || b.OnFailure(now) {
		t.Fatalf("failure streak not reset by success")
	}
	if !b.OnFailure(now) {
		t.Fatalf("expected trip on third consecutive failure")
	}
	if b.State(now) != BreakerOpen {
		t.Fatalf("expected OPEN, got %s", b.State(now))
	}
	// Further failures while OPEN do not re-trip.
	if b.OnFailure(now + 1) {
		t.Fatalf("OPEN breaker reported a second trip")
	}
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, CooldownNs: int64(time.Second), RefailFactor: 2})
	now := int64(1_000)
	b.OnFailure(now)

	if b.State(now + int64(time.Second) - 1) != BreakerOpen {
		t.Fatalf("breaker left OPEN before cooldown elapsed")
	}
	probeAt := now + int64(time.Second)
	if b.State(probeAt) != BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN after cooldown")
	}
	if !b.AllowProbe() {
		t.Fatalf("first probe must be allowed")
	}
	if b.AllowProbe() {
		t.Fatalf("only one probe may be outstanding")
	}
}

func TestBreakerProbeFailureExtendsCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, CooldownNs: int64(time.Second), RefailFactor: 2})
	now := int64(1_000)
	b.OnFailure(now)

	reopenAt := now + int64(time.Second)
	b.State(reopenAt)
	b.AllowProbe()
	if !b.OnFailure(reopenAt) {
		t.Fatalf("failed probe must reopen the breaker")
	}

	// The cooldown doubled: one base cooldown later it is still OPEN.
	if b.State(reopenAt+int64(time.Second)) != BreakerOpen {
		t.Fatalf("refail must extend the cooldown")
	}
	if b.State(reopenAt+int64(2*time.Second)) != BreakerHalfOpen {
		t.Fatalf("expected HALF_OPEN after the extended cooldown")
	}

	// A probe success closes the breaker and restores the base cooldown.
	b.AllowProbe()
	b.OnSuccess()
	if b.State(reopenAt+int64(2*time.Second)) != BreakerClosed {
		t.Fatalf("probe success must close the breaker")
	}
	b.OnFailure(0)
	if got := b.State(int64(time.Second)); got != BreakerHalfOpen {
		t.Fatalf("base cooldown not restored, got %s", got)
	}
}
