package bft

import (
	"bytes"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ProposalCollector is the bounded per-height cache of received proposals
// described in spec §4.3: at most one accepted proposal per (height,
// round), from the round's designated proposer.
type ProposalCollector struct {
	heights *lru.Cache[uint64, map[uint64]*Proposal]
}

// NewProposalCollector constructs a collector with the default capacity.
func NewProposalCollector() *ProposalCollector {
	return NewProposalCollectorWithCapacity(defaultCollectorCapacity)
}

// NewProposalCollectorWithCapacity constructs a collector bounding the
// number of live heights tracked simultaneously.
func NewProposalCollectorWithCapacity(capacity int) *ProposalCollector {
	if capacity <= 0 {
		capacity = defaultCollectorCapacity
	}
	heights, _ := lru.New[uint64, map[uint64]*Proposal](capacity)
	return &ProposalCollector{heights: heights}
}

// Add records p if no proposal has yet been accepted for its (height,
// round). Returns false if one already has (first accepted wins).
func (c *ProposalCollector) Add(p *Proposal) bool {
	if p == nil {
		return false
	}
	rounds, ok := c.heights.Get(p.Height)
	if !ok {
		rounds = make(map[uint64]*Proposal)
		c.heights.Add(p.Height, rounds)
	}
	if _, exists := rounds[p.Round]; exists {
		return false
	}
	rounds[p.Round] = p
	return true
}

// Get returns the accepted proposal for (height, round), or nil.
func (c *ProposalCollector) Get(height, round uint64) *Proposal {
	rounds, ok := c.heights.Get(height)
	if !ok {
		return nil
	}
	return rounds[round]
}

// ValidatePolc checks that a proposal's asserted PoLC (lock_round,
// lock_votes) is internally coherent and, when vc is non-nil and holds a
// prevote set for (height, lock_round), backed by at least quorum prevotes
// for content in that set. quorum is 2f+1 for the height's authority set.
//
// A nil lock_round/lock_votes pair (no PoLC asserted) always validates.
func ValidatePolc(vc *VoteCollector, p *Proposal, quorum int) bool {
	if p == nil {
		return false
	}
	if p.LockRound == nil {
		return len(p.LockVotes) == 0
	}
	if len(p.LockVotes) < quorum {
		return false
	}
	for _, v := range p.LockVotes {
		if v.VoteType != Prevote || v.Round != *p.LockRound || !bytes.Equal(v.Proposal, p.Content) {
			return false
		}
	}
	if vc == nil {
		return true
	}
	vs := vc.GetVoteSet(p.Height, *p.LockRound, Prevote)
	if vs == nil {
		// The local collector never saw these prevotes (they may have
		// arrived to other nodes only); trust the proposal's embedded
		// evidence, which was already checked for internal coherence and
		// vote-count above.
		return true
	}
	return vs.CountFor(p.Content) >= quorum
}
