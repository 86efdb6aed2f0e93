package matching

import "github.com/eshaffer321/reconcile-backend/internal/domain/model"

// DefaultRecentSize is how many recent proposals progress snapshots carry.
const DefaultRecentSize = 10

// ring keeps the most recent proposals, oldest first.
type ring struct {
	items []model.Proposal
	size  int
}

func newRing(size int) *ring {
	if size < 1 {
		size = DefaultRecentSize
	}
	return &ring{size: size}
}

func (r *ring) push(p model.Proposal) {
	if len(r.items) == r.size {
		copy(r.items, r.items[1:])
		r.items = r.items[:r.size-1]
	}
	r.items = append(r.items, p)
}

func (r *ring) list() []model.Proposal {
	out := make([]model.Proposal, len(r.items))
	copy(out, r.items)
	return out
}

func (r *ring) reset() {
	r.items = r.items[:0]
}
