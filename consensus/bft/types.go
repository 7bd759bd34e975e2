package bft

import "fmt"

// Address identifies an authority. Opaque to the engine; the embedder
// decides what bytes go in it (a public key, a derived account address, …).
type Address = []byte

// Target is an opaque proposal payload — in practice a block hash.
type Target = []byte

// Step is the ordered set of states a round moves through.
type Step int

const (
	StepPropose Step = iota
	StepPrevote
	StepPrevoteWait
	StepPrecommit
	StepPrecommitWait
	StepCommit
	StepCommitWait
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "propose"
	case StepPrevote:
		return "prevote"
	case StepPrevoteWait:
		return "prevote_wait"
	case StepPrecommit:
		return "precommit"
	case StepPrecommitWait:
		return "precommit_wait"
	case StepCommit:
		return "commit"
	case StepCommitWait:
		return "commit_wait"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// VoteType distinguishes a Prevote from a Precommit. A sum type rather than
// a boolean flag, per the vote-type-parameterization design note.
type VoteType int

const (
	Prevote VoteType = iota
	Precommit
)

func (t VoteType) String() string {
	if t == Prevote {
		return "prevote"
	}
	return "precommit"
}

// Vote is a single authority's ballot for (height, round, vote_type).
type Vote struct {
	VoteType VoteType
	Height   uint64
	Round    uint64
	Proposal Target
	Voter    Address
}

// Proposal is the round's candidate content, optionally carrying a PoLC
// for an earlier round (lock_round/lock_votes must be either both present
// or both absent).
type Proposal struct {
	Height    uint64
	Round     uint64
	Content   Target
	LockRound *uint64
	LockVotes []Vote
	Proposer  Address
}

// HasLock reports whether the proposal asserts a PoLC.
func (p *Proposal) HasLock() bool {
	return p != nil && p.LockRound != nil
}

// LockStatus is the strongest PoLC observed so far within the current
// height: a non-empty proposal with a 2f+1 prevote majority at some round.
type LockStatus struct {
	Proposal Target
	Round    uint64
	Votes    []Vote
}

// Feed is the local block producer's candidate content for a height,
// supplied by the embedder when this node is about to propose.
type Feed struct {
	Height   uint64
	Proposal Target
}

// Commit is the decided outcome for a height: a proposal backed by a 2f+1
// precommit quorum at the committing round.
type Commit struct {
	Height    uint64
	Round     uint64
	Proposal  Target
	LockVotes []Vote
	Address   Address
}

// Status is posted by the embedder after applying a Commit. It advances
// the engine to the next height and may rotate the authority list or
// adjust the step interval.
type Status struct {
	Height        uint64
	Interval      *uint64 // milliseconds; nil keeps the current interval
	AuthorityList []Address
}

// MsgKind tags the wire/WAL encoding of a BftMsg.
type MsgKind uint8

const (
	KindProposal MsgKind = iota + 1
	KindVote
	KindFeed
	KindStatus
	KindCommit
	KindPause
	KindStart
)

// BftMsg is the inbound message enum the engine consumes. At most one of
// the fields is populated, selected by Kind; Pause and Start carry none.
type BftMsg struct {
	Kind     MsgKind
	Proposal *Proposal
	Vote     *Vote
	Feed     *Feed
	Status   *Status
	Commit   *Commit
}

func ProposalMsg(p Proposal) BftMsg { return BftMsg{Kind: KindProposal, Proposal: &p} }
func VoteMsg(v Vote) BftMsg         { return BftMsg{Kind: KindVote, Vote: &v} }
func FeedMsg(f Feed) BftMsg         { return BftMsg{Kind: KindFeed, Feed: &f} }
func StatusMsg(s Status) BftMsg     { return BftMsg{Kind: KindStatus, Status: &s} }
func CommitMsg(c Commit) BftMsg     { return BftMsg{Kind: KindCommit, Commit: &c} }
func PauseMsg() BftMsg              { return BftMsg{Kind: KindPause} }
func StartMsg() BftMsg              { return BftMsg{Kind: KindStart} }
