// Package review navigates the pending proposal sequence and applies human
// decisions through the pool manager.
package review

import (
	"sync"

	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
)

// ActionRequest is one decision on one proposal. MatchID is used by revert
// instead of Index.
type ActionRequest struct {
	Index    int      `json:"index"`
	MatchID  string   `json:"match_id,omitempty"`
	Decision Decision `json:"decision"`
	Notes    string   `json:"notes,omitempty"`
}

// ActionResult reports what an action changed.
type ActionResult struct {
	Decision  Decision              `json:"decision"`
	Proposal  *model.Proposal       `json:"proposal,omitempty"`
	Confirmed *model.ConfirmedMatch `json:"confirmed,omitempty"`
	Rejected  *model.RejectedRecord `json:"rejected,omitempty"`
	Reverted  *model.ConfirmedMatch `json:"reverted,omitempty"`
	Excluded  []model.Transaction   `json:"excluded,omitempty"`
}

// Controller keeps a cursor over the pending sequence.
type Controller struct {
	pool *pool.Manager

	mu      sync.Mutex
	cursor  int
	skipped map[int]bool
}

// NewController creates a controller over p.
func NewController(p *pool.Manager) *Controller {
	return &Controller{
		pool:    p,
		skipped: make(map[int]bool),
	}
}

// Reset moves the cursor back to the start and forgets skips.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursor = 0
	c.skipped = make(map[int]bool)
}

// Cursor returns the current cursor position.
func (c *Controller) Cursor() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Next returns the first actionable proposal at or after the cursor,
// wrapping to the start. It returns false when nothing is actionable right
// now; callers may poll again while a matching run is active.
func (c *Controller) Next() (model.Proposal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pool.NextActionable(c.cursor)
	if !ok && c.cursor > 0 {
		p, ok = c.pool.NextActionable(0)
	}
	if ok {
		c.cursor = p.Index
	}
	return p, ok
}

// Seek moves the cursor to index if that proposal is still actionable.
func (c *Controller) Seek(index int) (model.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.pool.Actionable(index)
	if err != nil {
		return model.Proposal{}, err
	}
	c.cursor = index
	return p, nil
}

// Action applies one decision. Every path goes through a pool primitive, so
// sequential review and quick actions on list entries cannot interleave
// half-applied updates.
func (c *Controller) Action(req ActionRequest) (ActionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := ActionResult{Decision: req.Decision}

	switch req.Decision {
	case Skip:
		p, _, err := c.pool.Lookup(req.Index)
		if err != nil {
			return result, err
		}
		c.skipped[req.Index] = true
		c.cursor = req.Index + 1
		result.Proposal = &p
		return result, nil

	case Approve:
		cm, err := c.pool.Confirm(req.Index)
		if err != nil {
			return result, err
		}
		result.Confirmed = &cm

	case Reject:
		rec, err := c.pool.Reject(req.Index)
		if err != nil {
			return result, err
		}
		result.Rejected = &rec

	case ExcludeLedger, ExcludeBank, ExcludeBoth:
		out, err := c.pool.Exclude(req.Index, req.Decision.sides())
		if err != nil {
			return result, err
		}
		result.Excluded = out

	case Revert:
		if req.MatchID == "" {
			return result, model.NewValidationError("match_id", "revert requires a confirmed match id")
		}
		cm, err := c.pool.RevertConfirmed(req.MatchID)
		if err != nil {
			return result, err
		}
		result.Reverted = &cm
		return result, nil

	default:
		return result, model.NewValidationError("decision", req.Decision.String())
	}

	delete(c.skipped, req.Index)
	c.cursor = req.Index + 1
	return result, nil
}

// Stats returns pool stats with the skipped count filled in.
func (c *Controller) Stats() pool.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.pool.Stats()
	for idx := range c.skipped {
		if _, decided, err := c.pool.Lookup(idx); err == nil && !decided {
			s.Skipped++
		}
	}
	return s
}
