package secure

import (
	"math"

	"github.com/kestrel-embedded/fleetlink/internal/wire"
)

// maxPeers bounds each counter map, matching the ≥256-distinct-peers
// capacity the counters must support; a full map is a programming error
// during encrypt (it can never happen in practice since Id is 16 bits and
// a real fleet is far smaller), and is simply allowed to grow past this
// advisory size rather than panic, since Go maps have no fixed capacity.
const maxPeers = 256

// peerCounters is a peer-keyed monotone counter map used for both
// outbound sequencing and inbound replay tracking.
type peerCounters struct {
	m map[wire.Id]uint64
}

func newPeerCounters() *peerCounters {
	return &peerCounters{m: make(map[wire.Id]uint64, maxPeers)}
}

// next increments and returns the counter for peer, starting at 1 for a
// peer never seen before. It saturates at math.MaxUint64 rather than
// wrapping: Encrypt's contract forbids failing outright, so a peer that
// has exhausted the counter space keeps reusing the maximum value
// instead of silently rolling over to a counter a verifier has already
// accepted, which would reopen the replay window the counter exists to
// close.
func (p *peerCounters) next(peer wire.Id) uint64 {
	cur := p.m[peer]
	if cur == math.MaxUint64 {
		return cur
	}
	v := cur + 1
	p.m[peer] = v
	return v
}

// prev returns the last committed counter for peer, or 0 if none.
func (p *peerCounters) prev(peer wire.Id) uint64 {
	return p.m[peer]
}

// commit records ctr as the last-seen counter for peer, as long as it
// advances the stored value (decrypt may be invoked redundantly only
// after verify already rejected replays, but this keeps commit itself
// monotone too).
func (p *peerCounters) commit(peer wire.Id, ctr uint64) {
	if ctr > p.m[peer] {
		p.m[peer] = ctr
	}
}
