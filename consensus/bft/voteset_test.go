package bft

import "testing"

func TestVoteSetDedupAndTally(t *testing.T) {
	vs := newVoteSet()
	voterA := Address("voter-a")
	voterB := Address("voter-b")

	if !vs.add(voterA, Target("p1")) {
		t.Fatalf("first vote from voterA should be accepted")
	}
	if vs.add(voterA, Target("p2")) {
		t.Fatalf("second vote from voterA should be rejected (dedup)")
	}
	if !vs.add(voterB, Target("p1")) {
		t.Fatalf("first vote from voterB should be accepted")
	}

	if got := vs.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	if got := vs.CountFor(Target("p1")); got != 2 {
		t.Fatalf("CountFor(p1) = %d, want 2", got)
	}
	if got := vs.CountFor(Target("p2")); got != 0 {
		t.Fatalf("CountFor(p2) = %d, want 0 (rejected dup)", got)
	}
}

func TestVoteSetMajority(t *testing.T) {
	vs := newVoteSet()
	vs.add(Address("a"), Target("p"))
	vs.add(Address("b"), Target("p"))
	vs.add(Address("c"), Target("q"))

	if _, ok := vs.Majority(3); ok {
		t.Fatalf("no proposal should clear a threshold of 3")
	}
	target, ok := vs.Majority(2)
	if !ok || string(target) != "p" {
		t.Fatalf("Majority(2) = (%q, %v), want (p, true)", target, ok)
	}
}

func TestVoteCollectorAddDedupsPerVoterPerStep(t *testing.T) {
	vc := NewVoteCollectorWithCapacity(4)
	v1 := Vote{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("a")}
	v2 := v1 // same (height, round, type, voter) but different target
	v2.Proposal = Target("q")

	if !vc.Add(v1) {
		t.Fatalf("first vote should be newly accepted")
	}
	if vc.Add(v2) {
		t.Fatalf("duplicate (h,r,type,voter) vote should not be re-accepted")
	}

	vs := vc.GetVoteSet(1, 0, Prevote)
	if vs.CountFor(Target("p")) != 1 {
		t.Fatalf("first accepted vote should stick, got %d for p", vs.CountFor(Target("p")))
	}
}

func TestVoteCollectorIndependentSteps(t *testing.T) {
	vc := NewVoteCollectorWithCapacity(4)
	prevote := Vote{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("a")}
	precommit := Vote{VoteType: Precommit, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("a")}

	if !vc.Add(prevote) || !vc.Add(precommit) {
		t.Fatalf("prevote and precommit from the same voter at the same (h,r) are independent")
	}
	if vc.GetVoteSet(1, 0, Prevote).Count() != 1 || vc.GetVoteSet(1, 0, Precommit).Count() != 1 {
		t.Fatalf("each step should track its own tally")
	}
}

func TestVoteCollectorGetVoteSetIsASnapshot(t *testing.T) {
	vc := NewVoteCollectorWithCapacity(4)
	vc.Add(Vote{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("a")})

	snap := vc.GetVoteSet(1, 0, Prevote)
	vc.Add(Vote{VoteType: Prevote, Height: 1, Round: 0, Proposal: Target("p"), Voter: Address("b")})

	if snap.Count() != 1 {
		t.Fatalf("a snapshot taken before a later Add should not observe it, got count %d", snap.Count())
	}
	if vc.GetVoteSet(1, 0, Prevote).Count() != 2 {
		t.Fatalf("a fresh GetVoteSet should observe the later Add")
	}
}

func TestVoteCollectorPrevoteCount(t *testing.T) {
	vc := NewVoteCollectorWithCapacity(4)
	vc.Add(Vote{VoteType: Prevote, Height: 1, Round: 2, Proposal: Target("p"), Voter: Address("a")})
	vc.Add(Vote{VoteType: Prevote, Height: 1, Round: 2, Proposal: Target("q"), Voter: Address("b")})
	vc.Add(Vote{VoteType: Precommit, Height: 1, Round: 2, Proposal: Target("p"), Voter: Address("a")})

	if got := vc.PrevoteCount(2); got != 2 {
		t.Fatalf("PrevoteCount(2) = %d, want 2 (precommits don't count)", got)
	}

	vc.ClearPrevoteCount()
	if got := vc.PrevoteCount(2); got != 0 {
		t.Fatalf("PrevoteCount after ClearPrevoteCount = %d, want 0", got)
	}
}

func TestPolcVotesReconstructsEvidence(t *testing.T) {
	vs := newVoteSet()
	vs.add(Address("a"), Target("p"))
	vs.add(Address("b"), Target("p"))
	vs.add(Address("c"), Target("q"))

	votes := vs.PolcVotes(Prevote, 5, 1, Target("p"))
	if len(votes) != 2 {
		t.Fatalf("PolcVotes(p) returned %d votes, want 2", len(votes))
	}
	for _, v := range votes {
		if v.Height != 5 || v.Round != 1 || v.VoteType != Prevote || string(v.Proposal) != "p" {
			t.Fatalf("reconstructed vote has wrong shape: %+v", v)
		}
	}
}
