package bft

import "testing"

func TestProposalCollectorAcceptsOnePerRound(t *testing.T) {
	pc := NewProposalCollectorWithCapacity(4)
	p1 := &Proposal{Height: 1, Round: 0, Content: Target("p1"), Proposer: Address("a")}
	p2 := &Proposal{Height: 1, Round: 0, Content: Target("p2"), Proposer: Address("b")}

	if !pc.Add(p1) {
		t.Fatalf("first proposal for (1,0) should be accepted")
	}
	if pc.Add(p2) {
		t.Fatalf("second proposal for (1,0) should be rejected")
	}
	if got := pc.Get(1, 0); got != p1 {
		t.Fatalf("Get(1,0) = %v, want p1", got)
	}
	if got := pc.Get(1, 1); got != nil {
		t.Fatalf("Get(1,1) = %v, want nil (nothing accepted yet)", got)
	}
}

func TestValidatePolcRequiresBothOrNeitherField(t *testing.T) {
	quorum := 3
	round := uint64(2)

	noLock := &Proposal{Height: 1, Round: 3, Content: Target("p"), Proposer: Address("a")}
	if !ValidatePolc(nil, noLock, quorum) {
		t.Fatalf("a proposal asserting no PoLC should always validate")
	}

	illegal := &Proposal{Height: 1, Round: 3, Content: Target("p"), LockRound: &round, Proposer: Address("a")}
	if ValidatePolc(nil, illegal, quorum) {
		t.Fatalf("lock_round set with no lock_votes should be illegal")
	}
}

func TestValidatePolcRejectsUndersizedOrMismatchedVotes(t *testing.T) {
	quorum := 3
	round := uint64(1)

	tooFew := &Proposal{
		Height: 2, Round: 3, Content: Target("p"), LockRound: &round,
		LockVotes: []Vote{
			{VoteType: Prevote, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("a")},
			{VoteType: Prevote, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("b")},
		},
		Proposer: Address("a"),
	}
	if ValidatePolc(nil, tooFew, quorum) {
		t.Fatalf("only 2 lock_votes against a quorum of 3 should be illegal")
	}

	mismatched := &Proposal{
		Height: 2, Round: 3, Content: Target("p"), LockRound: &round,
		LockVotes: []Vote{
			{VoteType: Prevote, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("a")},
			{VoteType: Prevote, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("b")},
			{VoteType: Precommit, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("c")},
		},
		Proposer: Address("a"),
	}
	if ValidatePolc(nil, mismatched, quorum) {
		t.Fatalf("a lock_vote of the wrong vote type should invalidate the PoLC")
	}
}

func TestValidatePolcAcceptsGenuineQuorum(t *testing.T) {
	quorum := 3
	round := uint64(1)

	legal := &Proposal{
		Height: 2, Round: 3, Content: Target("p"), LockRound: &round,
		LockVotes: []Vote{
			{VoteType: Prevote, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("a")},
			{VoteType: Prevote, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("b")},
			{VoteType: Prevote, Height: 2, Round: 1, Proposal: Target("p"), Voter: Address("c")},
		},
		Proposer: Address("a"),
	}
	if !ValidatePolc(nil, legal, quorum) {
		t.Fatalf("a genuine 2f+1 prevote quorum for the asserted content should validate")
	}
}

func TestValidatePolcCrossChecksAgainstLiveCollector(t *testing.T) {
	quorum := 2
	round := uint64(0)

	vc := NewVoteCollectorWithCapacity(4)
	vc.Add(Vote{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("a")})
	vc.Add(Vote{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("b")})

	p := &Proposal{
		Height: 1, Round: 1, Content: Target("p"), LockRound: &round,
		LockVotes: []Vote{
			{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("a")},
			{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("b")},
		},
		Proposer: Address("a"),
	}
	if !ValidatePolc(vc, p, quorum) {
		t.Fatalf("asserted PoLC matching the live collector's own tally should validate")
	}

	forged := &Proposal{
		Height: 1, Round: 1, Content: Target("other"), LockRound: &round,
		LockVotes: []Vote{
			{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("other"), Voter: Address("a")},
			{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("other"), Voter: Address("b")},
		},
		Proposer: Address("a"),
	}
	if ValidatePolc(vc, forged, quorum) {
		t.Fatalf("a PoLC for content the collector never saw a quorum for should be rejected")
	}
}
