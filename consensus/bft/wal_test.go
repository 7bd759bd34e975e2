package bft

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestWALAppendAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	wal, err := OpenWAL(dir)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	defer wal.Close()

	round := uint64(1)
	proposal := ProposalMsg(Proposal{Height: 5, Round: 0, Content: Target("p"), Proposer: Address("a")})
	vote1 := VoteMsg(Vote{VoteType: Prevote, Height: 5, Round: 0, Proposal: Target("p"), Voter: Address("a")})
	vote2 := VoteMsg(Vote{VoteType: Prevote, Height: 5, Round: 0, Proposal: Target("p"), Voter: Address("b")})
	withLock := ProposalMsg(Proposal{Height: 5, Round: 1, Content: Target("p"), LockRound: &round, Proposer: Address("b"),
		LockVotes: []Vote{
			{VoteType: Prevote, Height: 5, Round: 0, Proposal: Target("p"), Voter: Address("a")},
		}})

	for _, msg := range []BftMsg{proposal, vote1, vote2, withLock} {
		if err := wal.Append(5, msg); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	replayHeight, msgs, err := wal.Replay()
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayHeight != 5 {
		t.Fatalf("replayHeight = %d, want 5", replayHeight)
	}
	if len(msgs) != 4 {
		t.Fatalf("replayed %d messages, want 4", len(msgs))
	}
	if msgs[0].Kind != KindProposal || string(msgs[0].Proposal.Content) != "p" {
		t.Fatalf("first replayed message mismatch: %+v", msgs[0])
	}
	if msgs[3].Kind != KindProposal || msgs[3].Proposal.LockRound == nil || *msgs[3].Proposal.LockRound != 1 {
		t.Fatalf("fourth replayed message should carry the PoLC: %+v", msgs[3].Proposal)
	}
	if len(msgs[3].Proposal.LockVotes) != 1 {
		t.Fatalf("fourth replayed message lost its lock votes: %+v", msgs[3].Proposal)
	}
}

func TestWALReplayEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	wal, err := OpenWAL(dir)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	defer wal.Close()

	height, msgs, err := wal.Replay()
	if err != nil || height != 0 || len(msgs) != 0 {
		t.Fatalf("Replay on empty dir = (%d, %v, %v), want (0, nil, nil)", height, msgs, err)
	}
}

func TestWALTruncateUpToDeletesOldHeights(t *testing.T) {
	dir := t.TempDir()
	wal, err := OpenWAL(dir)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	defer wal.Close()

	for h := uint64(1); h <= 3; h++ {
		if err := wal.Append(h, PauseMsg()); err != nil {
			t.Fatalf("Append height %d: %v", h, err)
		}
	}

	if err := wal.TruncateUpTo(2); err != nil {
		t.Fatalf("TruncateUpTo: %v", err)
	}

	for h := uint64(1); h <= 2; h++ {
		if _, err := os.Stat(filepath.Join(dir, logName(h))); !os.IsNotExist(err) {
			t.Fatalf("log file for height %d should have been removed, stat err = %v", h, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, logName(3))); err != nil {
		t.Fatalf("log file for height 3 should survive truncation: %v", err)
	}
}

func TestWALDetectsCorruptTruncatedRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logName(1))
	if err := os.WriteFile(path, []byte{0x05, 0x00, 0x00}, 0o644); err != nil {
		t.Fatalf("write corrupt wal: %v", err)
	}

	wal, err := OpenWAL(dir)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	defer wal.Close()

	if _, _, err := wal.Replay(); err == nil {
		t.Fatal("Replay over a truncated header should return WalCorrupt")
	} else if _, ok := err.(*WalCorrupt); !ok {
		t.Fatalf("Replay error = %T, want *WalCorrupt", err)
	}
}

func logName(h uint64) string {
	return fmt.Sprintf("%d.log", h)
}
