package bft

import "fmt"

// ProposalIllegalErr reports a proposal whose PoLC reference is malformed:
// lock_round and lock_votes must be either both present or both absent, and
// when present lock_votes must form a genuine 2f+1 prevote quorum.
type ProposalIllegalErr struct {
	Height uint64
	Round  uint64
}

func (e *ProposalIllegalErr) Error() string {
	return fmt.Sprintf("bft: illegal proposal at height %d round %d", e.Height, e.Round)
}

// VoteErr reports a vote that failed validation (unauthorized voter, wrong
// step, etc). The offending vote is dropped, not propagated, per spec §7.
type VoteErr struct {
	Reason string
}

func (e *VoteErr) Error() string { return fmt.Sprintf("bft: vote rejected: %s", e.Reason) }

// MsgTypeErr reports a message of the wrong variant presented where a
// specific one (e.g. Pause/Start for send_command) was required.
type MsgTypeErr struct {
	Got MsgKind
}

func (e *MsgTypeErr) Error() string { return fmt.Sprintf("bft: unexpected message kind %d", e.Got) }

// SendProposalErr, SendVoteErr, SendCmdErr report that the engine's inbound
// channel has no receiver (the engine goroutine has exited).
type SendProposalErr struct{}

func (e *SendProposalErr) Error() string { return "bft: send proposal: engine gone" }

type SendVoteErr struct{}

func (e *SendVoteErr) Error() string { return "bft: send vote: engine gone" }

type SendStatusErr struct{}

func (e *SendStatusErr) Error() string { return "bft: send status: engine gone" }

type SendCmdErr struct{}

func (e *SendCmdErr) Error() string { return "bft: send command: engine gone" }

// WalCorrupt reports a replay-time framing error at the given byte offset.
// The engine fails fast at startup rather than proceed from an uncertain
// state.
type WalCorrupt struct {
	Offset int64
	Reason string
}

func (e *WalCorrupt) Error() string {
	return fmt.Sprintf("bft: wal corrupt at offset %d: %s", e.Offset, e.Reason)
}

// SupportErr wraps a failure returned by the embedder's commit/feed
// callbacks. The engine retries with back-off and stays in CommitWait.
type SupportErr struct {
	Op  string
	Err error
}

func (e *SupportErr) Error() string { return fmt.Sprintf("bft: support.%s: %v", e.Op, e.Err) }
func (e *SupportErr) Unwrap() error { return e.Err }
