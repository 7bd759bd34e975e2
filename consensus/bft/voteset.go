package bft

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCollectorCapacity is the LRU width (heights, and rounds within a
// height) inherited from the Rust original's lru_cache::LruCache::new(16).
const defaultCollectorCapacity = 16

// VoteSet is the vote tally for one fixed (height, round, vote_type): a
// dedup map from voter to the proposal they voted for, plus a per-proposal
// count. Invariant: count == sum of votesByProposal == len(votesBySender).
type VoteSet struct {
	votesBySender   map[string]Target
	votesByProposal map[string]int
	count           int
}

func newVoteSet() *VoteSet {
	return &VoteSet{
		votesBySender:   make(map[string]Target),
		votesByProposal: make(map[string]int),
	}
}

// add records voter's ballot for proposal. Returns false if voter already
// has a recorded vote for this (height, round, vote_type) — the first
// accepted vote wins and later ones are silently ignored here; the caller
// is responsible for treating a duplicate-but-different vote as Byzantine
// evidence if it wishes to.
func (vs *VoteSet) add(voter Address, proposal Target) bool {
	key := string(voter)
	if _, exists := vs.votesBySender[key]; exists {
		return false
	}
	vs.votesBySender[key] = append(Target(nil), proposal...)
	vs.votesByProposal[string(proposal)]++
	vs.count++
	return true
}

// Count returns the total number of distinct voters recorded.
func (vs *VoteSet) Count() int {
	if vs == nil {
		return 0
	}
	return vs.count
}

// CountFor returns how many voters chose proposal.
func (vs *VoteSet) CountFor(proposal Target) int {
	if vs == nil {
		return 0
	}
	return vs.votesByProposal[string(proposal)]
}

// Majority returns a proposal with at least threshold votes, if any. No
// proposal reaching the threshold yields ok=false; if several reach it,
// which one is returned is not defined.
func (vs *VoteSet) Majority(threshold int) (Target, bool) {
	if vs == nil {
		return nil, false
	}
	for proposal, n := range vs.votesByProposal {
		if n >= threshold {
			return Target(proposal), true
		}
	}
	return nil, false
}

// PolcVotes reconstructs the full Vote records backing this set's tally
// for proposal, given the (height, round, vote_type) the set was collected
// under. Mirrors the Rust original's VoteSet::abstract_polc.
func (vs *VoteSet) PolcVotes(voteType VoteType, height, round uint64, proposal Target) []Vote {
	if vs == nil {
		return nil
	}
	votes := make([]Vote, 0, vs.votesByProposal[string(proposal)])
	for senderKey, p := range vs.votesBySender {
		if string(p) == string(proposal) {
			votes = append(votes, Vote{
				VoteType: voteType,
				Height:   height,
				Round:    round,
				Proposal: append(Target(nil), proposal...),
				Voter:    []byte(senderKey),
			})
		}
	}
	return votes
}

// clone returns a snapshot the caller may freely mutate without affecting
// the live set.
func (vs *VoteSet) clone() *VoteSet {
	if vs == nil {
		return nil
	}
	out := newVoteSet()
	for k, v := range vs.votesBySender {
		out.votesBySender[k] = append(Target(nil), v...)
	}
	for k, n := range vs.votesByProposal {
		out.votesByProposal[k] = n
	}
	out.count = vs.count
	return out
}

// stepCollector maps vote_type -> VoteSet for one (height, round).
type stepCollector struct {
	steps map[VoteType]*VoteSet
}

func newStepCollector() *stepCollector {
	return &stepCollector{steps: make(map[VoteType]*VoteSet)}
}

func (sc *stepCollector) add(voteType VoteType, voter Address, proposal Target) bool {
	vs, ok := sc.steps[voteType]
	if !ok {
		vs = newVoteSet()
		sc.steps[voteType] = vs
	}
	return vs.add(voter, proposal)
}

func (sc *stepCollector) get(voteType VoteType) *VoteSet {
	return sc.steps[voteType]
}

// roundCollector maps round -> stepCollector for one height, bounded by an
// LRU so a height can't accumulate unbounded future rounds.
type roundCollector struct {
	rounds *lru.Cache[uint64, *stepCollector]
}

func newRoundCollector(capacity int) *roundCollector {
	c, _ := lru.New[uint64, *stepCollector](capacity)
	return &roundCollector{rounds: c}
}

func (rc *roundCollector) add(round uint64, voteType VoteType, voter Address, proposal Target) bool {
	sc, ok := rc.rounds.Get(round)
	if !ok {
		sc = newStepCollector()
		rc.rounds.Add(round, sc)
	}
	return sc.add(voteType, voter, proposal)
}

func (rc *roundCollector) get(round uint64, voteType VoteType) *VoteSet {
	sc, ok := rc.rounds.Get(round)
	if !ok {
		return nil
	}
	return sc.get(voteType)
}

// VoteCollector is the multi-level height -> round -> step -> VoteSet map
// described in spec §4.2, bounded by an LRU of heights each holding an LRU
// of rounds. It deduplicates per (height, round, vote_type, voter) and
// tracks, per round, how many distinct prevotes have been seen so PoLC
// opportunities can be detected cheaply without re-scanning vote sets.
type VoteCollector struct {
	capacity     int
	heights      *lru.Cache[uint64, *roundCollector]
	prevoteCount map[uint64]int
}

// NewVoteCollector constructs a collector with the default 16x16 capacity.
func NewVoteCollector() *VoteCollector {
	return NewVoteCollectorWithCapacity(defaultCollectorCapacity)
}

// NewVoteCollectorWithCapacity constructs a collector with a custom LRU
// width, applied to both the height and the per-height round dimension.
func NewVoteCollectorWithCapacity(capacity int) *VoteCollector {
	if capacity <= 0 {
		capacity = defaultCollectorCapacity
	}
	heights, _ := lru.New[uint64, *roundCollector](capacity)
	return &VoteCollector{
		capacity:     capacity,
		heights:      heights,
		prevoteCount: make(map[uint64]int),
	}
}

// Add records vote, returning true iff it was newly accepted (not a
// duplicate for its (height, round, vote_type, voter)).
func (c *VoteCollector) Add(v Vote) bool {
	rc, ok := c.heights.Get(v.Height)
	if !ok {
		rc = newRoundCollector(c.capacity)
		c.heights.Add(v.Height, rc)
	}
	added := rc.add(v.Round, v.VoteType, v.Voter, v.Proposal)
	if added && v.VoteType == Prevote {
		c.prevoteCount[v.Round]++
	}
	return added
}

// GetVoteSet returns a snapshot copy of the vote set for (height, round,
// vote_type), or nil if nothing has been recorded there yet.
func (c *VoteCollector) GetVoteSet(height, round uint64, voteType VoteType) *VoteSet {
	rc, ok := c.heights.Get(height)
	if !ok {
		return nil
	}
	return rc.get(round, voteType).clone()
}

// PrevoteCount returns how many distinct prevotes have been accepted for
// round since the last ClearPrevoteCount. The counter is keyed by round
// alone, so prevotes for that round number at any height are included.
func (c *VoteCollector) PrevoteCount(round uint64) int {
	return c.prevoteCount[round]
}

// ClearPrevoteCount resets the per-round prevote counter. Called on height
// advance.
func (c *VoteCollector) ClearPrevoteCount() {
	c.prevoteCount = make(map[uint64]int)
}
