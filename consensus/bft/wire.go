package bft

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Wire representations avoid optional (pointer) fields because RLP has no
// native null; HasLock/HasInterval flags make the optionality explicit
// instead, matching the teacher's (nhbchain) preference for RLP over a
// schema needing nil-handling.

type wireVote struct {
	VoteType uint8
	Height   uint64
	Round    uint64
	Proposal []byte
	Voter    []byte
}

func toWireVote(v Vote) wireVote {
	return wireVote{
		VoteType: uint8(v.VoteType),
		Height:   v.Height,
		Round:    v.Round,
		Proposal: v.Proposal,
		Voter:    v.Voter,
	}
}

func (w wireVote) toVote() Vote {
	return Vote{
		VoteType: VoteType(w.VoteType),
		Height:   w.Height,
		Round:    w.Round,
		Proposal: w.Proposal,
		Voter:    w.Voter,
	}
}

type wireProposal struct {
	Height    uint64
	Round     uint64
	Content   []byte
	HasLock   bool
	LockRound uint64
	LockVotes []wireVote
	Proposer  []byte
}

func toWireProposal(p Proposal) wireProposal {
	w := wireProposal{
		Height:   p.Height,
		Round:    p.Round,
		Content:  p.Content,
		Proposer: p.Proposer,
	}
	if p.LockRound != nil {
		w.HasLock = true
		w.LockRound = *p.LockRound
	}
	w.LockVotes = make([]wireVote, len(p.LockVotes))
	for i, v := range p.LockVotes {
		w.LockVotes[i] = toWireVote(v)
	}
	return w
}

func (w wireProposal) toProposal() Proposal {
	p := Proposal{
		Height:   w.Height,
		Round:    w.Round,
		Content:  w.Content,
		Proposer: w.Proposer,
	}
	if w.HasLock {
		round := w.LockRound
		p.LockRound = &round
	}
	if len(w.LockVotes) > 0 {
		p.LockVotes = make([]Vote, len(w.LockVotes))
		for i, wv := range w.LockVotes {
			p.LockVotes[i] = wv.toVote()
		}
	}
	return p
}

type wireFeed struct {
	Height   uint64
	Proposal []byte
}

type wireCommit struct {
	Height    uint64
	Round     uint64
	Proposal  []byte
	LockVotes []wireVote
	Address   []byte
}

type wireStatus struct {
	Height        uint64
	HasInterval   bool
	IntervalMs    uint64
	AuthorityList [][]byte
}

// EncodeMsg serializes msg into the stable binary framing used for both
// the WAL payload and any embedder wire protocol built atop this package.
func EncodeMsg(msg BftMsg) ([]byte, error) {
	switch msg.Kind {
	case KindProposal:
		if msg.Proposal == nil {
			return nil, fmt.Errorf("bft: encode: nil proposal")
		}
		return rlp.EncodeToBytes(toWireProposal(*msg.Proposal))
	case KindVote:
		if msg.Vote == nil {
			return nil, fmt.Errorf("bft: encode: nil vote")
		}
		return rlp.EncodeToBytes(toWireVote(*msg.Vote))
	case KindFeed:
		if msg.Feed == nil {
			return nil, fmt.Errorf("bft: encode: nil feed")
		}
		return rlp.EncodeToBytes(wireFeed{Height: msg.Feed.Height, Proposal: msg.Feed.Proposal})
	case KindStatus:
		if msg.Status == nil {
			return nil, fmt.Errorf("bft: encode: nil status")
		}
		w := wireStatus{Height: msg.Status.Height, AuthorityList: msg.Status.AuthorityList}
		if msg.Status.Interval != nil {
			w.HasInterval = true
			w.IntervalMs = *msg.Status.Interval
		}
		return rlp.EncodeToBytes(w)
	case KindCommit:
		if msg.Commit == nil {
			return nil, fmt.Errorf("bft: encode: nil commit")
		}
		w := wireCommit{
			Height:   msg.Commit.Height,
			Round:    msg.Commit.Round,
			Proposal: msg.Commit.Proposal,
			Address:  msg.Commit.Address,
		}
		w.LockVotes = make([]wireVote, len(msg.Commit.LockVotes))
		for i, v := range msg.Commit.LockVotes {
			w.LockVotes[i] = toWireVote(v)
		}
		return rlp.EncodeToBytes(w)
	case KindPause, KindStart:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("bft: encode: unknown kind %d", msg.Kind)
	}
}

// DecodeMsg reconstructs a BftMsg of the given kind from its encoded
// payload, the inverse of EncodeMsg.
func DecodeMsg(kind MsgKind, payload []byte) (BftMsg, error) {
	switch kind {
	case KindProposal:
		var w wireProposal
		if err := rlp.DecodeBytes(payload, &w); err != nil {
			return BftMsg{}, err
		}
		p := w.toProposal()
		return ProposalMsg(p), nil
	case KindVote:
		var w wireVote
		if err := rlp.DecodeBytes(payload, &w); err != nil {
			return BftMsg{}, err
		}
		return VoteMsg(w.toVote()), nil
	case KindFeed:
		var w wireFeed
		if err := rlp.DecodeBytes(payload, &w); err != nil {
			return BftMsg{}, err
		}
		return FeedMsg(Feed{Height: w.Height, Proposal: w.Proposal}), nil
	case KindStatus:
		var w wireStatus
		if err := rlp.DecodeBytes(payload, &w); err != nil {
			return BftMsg{}, err
		}
		s := Status{Height: w.Height, AuthorityList: w.AuthorityList}
		if w.HasInterval {
			iv := w.IntervalMs
			s.Interval = &iv
		}
		return StatusMsg(s), nil
	case KindCommit:
		var w wireCommit
		if err := rlp.DecodeBytes(payload, &w); err != nil {
			return BftMsg{}, err
		}
		c := Commit{Height: w.Height, Round: w.Round, Proposal: w.Proposal, Address: w.Address}
		c.LockVotes = make([]Vote, len(w.LockVotes))
		for i, wv := range w.LockVotes {
			c.LockVotes[i] = wv.toVote()
		}
		return CommitMsg(c), nil
	case KindPause:
		return PauseMsg(), nil
	case KindStart:
		return StartMsg(), nil
	default:
		return BftMsg{}, fmt.Errorf("bft: decode: unknown kind %d", kind)
	}
}
