package secure

import (
	"math"
	"testing"

	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

func TestPeerCountersNextIsMonotone(t *testing.T) {
	p := newPeerCounters()
	peer := wire.Id(5)
	if got := p.next(peer); got != 1 {
		t.Fatalf("first next() = %d, want 1", got)
	}
	if got := p.next(peer); got != 2 {
		t.Fatalf("second next() = %d, want 2", got)
	}
	if got := p.prev(peer); got != 2 {
		t.Fatalf("prev() = %d, want 2", got)
	}
}

func TestPeerCountersPrevDefaultsToZero(t *testing.T) {
	p := newPeerCounters()
	if got := p.prev(wire.Id(99)); got != 0 {
		t.Fatalf("prev() on unseen peer = %d, want 0", got)
	}
}

func TestPeerCountersCommitIgnoresRegression(t *testing.T) {
	p := newPeerCounters()
	p.commit(wire.Id(1), 10)
	p.commit(wire.Id(1), 3)
	if got := p.prev(wire.Id(1)); got != 10 {
		t.Fatalf("prev() after regressive commit = %d, want 10", got)
	}
}

func TestPeerCountersNextSaturatesInsteadOfWrapping(t *testing.T) {
	p := newPeerCounters()
	peer := wire.Id(42)
	p.m[peer] = math.MaxUint64 - 1

	if got := p.next(peer); got != math.MaxUint64 {
		t.Fatalf("next() at MaxUint64-1 = %d, want %d", got, uint64(math.MaxUint64))
	}
	if got := p.next(peer); got != math.MaxUint64 {
		t.Fatalf("next() past MaxUint64 = %d, want saturated %d (must not wrap to 0)", got, uint64(math.MaxUint64))
	}
	if got := p.prev(peer); got != math.MaxUint64 {
		t.Fatalf("prev() after saturation = %d, want %d", got, uint64(math.MaxUint64))
	}
}

func TestPeerCountersIndependentPerPeer(t *testing.T) {
	p := newPeerCounters()
	p.next(wire.Id(1))
	p.next(wire.Id(1))
	p.next(wire.Id(2))
	if got := p.prev(wire.Id(1)); got != 2 {
		t.Errorf("peer 1 counter = %d, want 2", got)
	}
	if got := p.prev(wire.Id(2)); got != 1 {
		t.Errorf("peer 2 counter = %d, want 1", got)
	}
}
