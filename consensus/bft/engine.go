package bft

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval is the nominal round duration used when Config.Interval
// is zero.
const DefaultInterval = 3000 * time.Millisecond

// phase groups a step with its paired *Wait step for the purpose of timer
// staleness checks: a timer armed on entering Prevote is still valid while
// the engine sits in PrevoteWait, since both belong to the same logical
// attempt at the step.
type phase int

const (
	phasePropose phase = iota
	phasePrevote
	phasePrecommit
	phaseCommit
)

func phaseOf(s Step) phase {
	switch s {
	case StepPropose:
		return phasePropose
	case StepPrevote, StepPrevoteWait:
		return phasePrevote
	case StepPrecommit, StepPrecommitWait:
		return phasePrecommit
	default:
		return phaseCommit
	}
}

// Config bundles everything needed to construct a StateMachine. Address
// and Interval correspond to spec §6's BftParams; AuthorityList and the
// starting height are normally supplied by the first Status the engine
// receives (see Run), not at construction time.
type Config struct {
	Address  Address
	Interval time.Duration

	Support Support
	WAL     *WAL
	Store   SnapshotStore
	Logger  *slog.Logger
	Metrics MetricsSink

	VoteCollectorCapacity     int
	ProposalCollectorCapacity int

	InboxSize int
}

// StateMachine is the per-height/per-round BFT protocol executor described
// in spec §4.1. It is single-threaded cooperative: all state mutation
// happens on the goroutine running Run; external producers only ever send
// on Inbox().
type StateMachine struct {
	address  Address
	interval time.Duration

	support Support
	wal     *WAL
	store   SnapshotStore
	logger  *slog.Logger
	metrics MetricsSink

	voteCollector     *VoteCollector
	proposalCollector *ProposalCollector
	timer             *Timer

	inbox chan BftMsg

	bootstrapped bool
	paused       bool
	replaying    bool

	height          uint64
	round           uint64
	step            Step
	lock            *LockStatus
	lastCommitRound *uint64
	authorityList   []Address
	feed            *Target

	prevoteBroadcast   bool
	precommitBroadcast bool
	proposedThisRound  bool

	pendingCommit  *Commit
	commitAttempts int
}

// NewStateMachine constructs a StateMachine. The returned engine performs
// no I/O until Run is called.
func NewStateMachine(cfg Config) (*StateMachine, error) {
	if cfg.Support == nil {
		return nil, fmt.Errorf("bft: config: Support is required")
	}
	if len(cfg.Address) == 0 {
		return nil, fmt.Errorf("bft: config: Address is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	store := cfg.Store
	if store == nil {
		store = noopSnapshotStore{}
	}
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = 256
	}

	sm := &StateMachine{
		address:           append(Address(nil), cfg.Address...),
		interval:          interval,
		support:           cfg.Support,
		wal:               cfg.WAL,
		store:             store,
		logger:            logger,
		metrics:           metrics,
		voteCollector:     NewVoteCollectorWithCapacity(cfg.VoteCollectorCapacity),
		proposalCollector: NewProposalCollectorWithCapacity(cfg.ProposalCollectorCapacity),
		timer:             NewTimer(),
		inbox:             make(chan BftMsg, inboxSize),
		step:              StepCommitWait,
	}
	return sm, nil
}

// Inbox is the channel external producers (the actuator, the embedder's
// feed) send BftMsg values on.
func (m *StateMachine) Inbox() chan<- BftMsg { return m.inbox }

// Snapshot-ish read-only accessors, safe to call from outside the engine
// goroutine only for observability/tests; they are not synchronized
// against the running loop and are meant for use after Run has returned
// or from within tests that drive the engine synchronously.
func (m *StateMachine) Height() uint64 { return m.height }
func (m *StateMachine) Round() uint64  { return m.round }
func (m *StateMachine) Step() Step     { return m.step }
func (m *StateMachine) Lock() *LockStatus {
	return m.lock
}

// deltas returns the four sub-step durations for the configured interval,
// per spec §4.1.2: propose 24/30, prevote 3/30, precommit 3/30, commit
// 30/30 (the full interval), summing to 2T.
func (m *StateMachine) deltaPropose() time.Duration   { return m.interval * 24 / 30 }
func (m *StateMachine) deltaPrevote() time.Duration   { return m.interval * 3 / 30 }
func (m *StateMachine) deltaPrecommit() time.Duration { return m.interval * 3 / 30 }
func (m *StateMachine) deltaCommit() time.Duration    { return m.interval }

// quorumSize returns 2f+1 for the current authority list, where n=3f+1.
func (m *StateMachine) quorumSize() int {
	n := len(m.authorityList)
	if n == 0 {
		return 1
	}
	f := (n - 1) / 3
	return 2*f + 1
}

// SelectProposer returns the designated proposer for (height, round) given
// list, per the deterministic round-robin rule: authority_list[(h+r) mod n].
func SelectProposer(list []Address, height, round uint64) Address {
	n := len(list)
	if n == 0 {
		return nil
	}
	idx := (height + round) % uint64(n)
	return list[idx]
}

func (m *StateMachine) isProposer(height, round uint64) bool {
	p := SelectProposer(m.authorityList, height, round)
	return p != nil && bytes.Equal(p, m.address)
}

func (m *StateMachine) isAuthority(addr Address) bool {
	for _, a := range m.authorityList {
		if bytes.Equal(a, addr) {
			return true
		}
	}
	return false
}

// Run replays any crash-recovered WAL state, then drives the event loop
// until ctx is canceled or the inbox is closed.
func (m *StateMachine) Run(ctx context.Context) error {
	defer m.timer.Stop()

	if snap, ok, err := m.store.LoadSnapshot(); err != nil {
		return fmt.Errorf("bft: load snapshot: %w", err)
	} else if ok {
		m.height = snap.Height + 1
		m.authorityList = snap.AuthorityList
		if snap.IntervalMs > 0 {
			m.interval = time.Duration(snap.IntervalMs) * time.Millisecond
		}
		m.bootstrapped = true
		m.step = StepPropose

		if m.wal != nil {
			replayHeight, msgs, err := m.wal.Replay()
			if err != nil {
				m.metrics.WalFault()
				return fmt.Errorf("bft: wal replay: %w", err)
			}
			if replayHeight == m.height {
				m.replaying = true
				for _, msg := range msgs {
					m.dispatch(msg)
				}
				m.replaying = false
			}
		}
		m.resumeAfterReplay()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case info, ok := <-m.timer.Out():
			if !ok {
				return nil
			}
			m.handleTimeout(info)
		case msg, ok := <-m.inbox:
			if !ok {
				return nil
			}
			m.handleInbound(msg)
		}
	}
}

func (m *StateMachine) handleInbound(msg BftMsg) {
	if !m.bootstrapped {
		if msg.Kind == KindStatus && msg.Status != nil {
			m.bootstrap(*msg.Status)
		} else {
			m.logger.Warn("bft: dropping message before bootstrap", "kind", msg.Kind)
		}
		return
	}

	if msg.Kind == KindPause {
		m.paused = true
		return
	}
	if msg.Kind == KindStart {
		m.paused = false
		return
	}
	if m.paused {
		// The loop still drains the queue but skips transitions.
		return
	}

	if m.wal != nil {
		if err := m.wal.Append(m.height, msg); err != nil {
			m.metrics.WalFault()
			m.logger.Error("bft: wal append failed", "err", err)
		}
	}
	m.dispatch(msg)
}

func (m *StateMachine) dispatch(msg BftMsg) {
	switch msg.Kind {
	case KindProposal:
		if msg.Proposal != nil {
			m.handleProposal(msg.Proposal)
		}
	case KindVote:
		if msg.Vote != nil {
			m.handleVote(msg.Vote)
		}
	case KindFeed:
		if msg.Feed != nil {
			m.handleFeed(msg.Feed)
		}
	case KindStatus:
		if msg.Status != nil {
			m.handleStatus(*msg.Status)
		}
	case KindPause:
		m.paused = true
	case KindStart:
		m.paused = false
	}
}

func (m *StateMachine) bootstrap(s Status) {
	m.height = s.Height + 1
	m.round = 0
	m.authorityList = append([]Address(nil), s.AuthorityList...)
	if s.Interval != nil {
		m.interval = time.Duration(*s.Interval) * time.Millisecond
	}
	m.bootstrapped = true
	if m.wal != nil {
		_ = m.wal.TruncateUpTo(s.Height)
	}
	_ = m.store.SaveSnapshot(Snapshot{Height: s.Height, AuthorityList: m.authorityList, IntervalMs: uint64(m.interval / time.Millisecond)})
	m.enterRound(m.height, m.round)
}

// enterRound resets per-round bookkeeping and begins the Propose step for
// (height, round): attempting an immediate proposal if this node is the
// proposer and content is already available, arming the Propose timer
// otherwise.
func (m *StateMachine) enterRound(height, round uint64) {
	m.height = height
	m.round = round
	m.step = StepPropose
	m.prevoteBroadcast = false
	m.precommitBroadcast = false
	m.proposedThisRound = false

	m.logger.Info("bft: entering round", "height", height, "round", round, "proposer", fmt.Sprintf("%x", SelectProposer(m.authorityList, height, round)))

	if m.tryPropose() {
		return
	}
	if p := m.proposalCollector.Get(height, round); p != nil {
		if p.HasLock() && (m.lock == nil || *p.LockRound > m.lock.Round) {
			m.lock = &LockStatus{Proposal: p.Content, Round: *p.LockRound, Votes: p.LockVotes}
		}
		m.enterPrevote()
		return
	}
	m.timer.Arm(m.deltaPropose(), TimeoutInfo{Height: height, Round: round, Step: StepPropose})
}

// tryPropose attempts to broadcast a proposal if this node is the
// round's proposer and content (a Feed or a held lock) is available. It
// returns true if a proposal was produced (and the step already advanced
// to Prevote).
func (m *StateMachine) tryPropose() bool {
	if m.step != StepPropose || m.proposedThisRound {
		return false
	}
	if !m.isProposer(m.height, m.round) {
		return false
	}

	var content Target
	var lockRound *uint64
	var lockVotes []Vote
	switch {
	case m.lock != nil:
		content = m.lock.Proposal
		round := m.lock.Round
		lockRound = &round
		lockVotes = m.lock.Votes
	case m.feed != nil:
		content = *m.feed
	default:
		if blk, ok := m.support.GetBlock(m.height); ok {
			content = blk
		} else {
			return false
		}
	}

	proposal := Proposal{
		Height:    m.height,
		Round:     m.round,
		Content:   content,
		LockRound: lockRound,
		LockVotes: lockVotes,
		Proposer:  m.address,
	}
	m.proposedThisRound = true
	if !m.replaying {
		m.support.Transmit(ProposalMsg(proposal))
	}
	m.proposalCollector.Add(&proposal)
	m.enterPrevote()
	return true
}

func (m *StateMachine) handleTimeout(info TimeoutInfo) {
	if info.Height != m.height || info.Round != m.round || phaseOf(info.Step) != phaseOf(m.step) {
		return // stale tag: state has moved on.
	}
	switch phaseOf(info.Step) {
	case phasePropose:
		m.enterPrevote()
	case phasePrevote:
		m.enterPrecommit()
	case phasePrecommit:
		m.handlePrecommitTimeout()
	case phaseCommit:
		m.handleCommitTimeout()
	}
}

func (m *StateMachine) handleProposal(p *Proposal) {
	if p.Height < m.height {
		return
	}
	if p.Height == m.height && p.Round+2 < m.round {
		return
	}
	expected := SelectProposer(m.authorityList, p.Height, p.Round)
	if expected == nil || !bytes.Equal(expected, p.Proposer) {
		m.metrics.ProposalRejected("proposer_mismatch")
		m.logger.Warn("bft: dropping proposal from wrong proposer", "height", p.Height, "round", p.Round)
		return
	}
	if !ValidatePolc(m.voteCollector, p, m.quorumSize()) {
		m.metrics.ProposalRejected("illegal_polc")
		m.logger.Warn("bft: dropping proposal with illegal PoLC", "height", p.Height, "round", p.Round)
		return
	}
	if !m.proposalCollector.Add(p) {
		return
	}

	if p.HasLock() && (m.lock == nil || *p.LockRound > m.lock.Round) {
		m.lock = &LockStatus{Proposal: p.Content, Round: *p.LockRound, Votes: p.LockVotes}
	}

	if p.Height == m.height && p.Round == m.round && m.step == StepPropose {
		m.enterPrevote()
	}
}

func (m *StateMachine) handleFeed(f *Feed) {
	if f.Height != m.height {
		return
	}
	content := append(Target(nil), f.Proposal...)
	m.feed = &content
	m.tryPropose()
}

func (m *StateMachine) handleVote(v *Vote) {
	if !m.isAuthority(v.Voter) {
		m.metrics.VoteRejected("unauthorized_voter")
		return
	}
	if v.Height < m.height {
		return
	}
	if v.Height == m.height && v.Round+2 < m.round {
		return
	}
	added := m.voteCollector.Add(*v)
	if !added {
		return
	}
	m.metrics.VoteAccepted(v.VoteType)

	if v.Height != m.height || v.Round != m.round {
		return // buffered for a future (height, round); re-examined on arrival there.
	}
	switch v.VoteType {
	case Prevote:
		if m.step == StepPrevote || m.step == StepPrevoteWait {
			m.evaluatePrevotes()
		}
	case Precommit:
		if m.step == StepPrecommit || m.step == StepPrecommitWait {
			m.evaluatePrecommits()
		}
	}
}

// enterPrevote broadcasts this node's prevote (for the lock if held, else
// for the accepted proposal's content, else empty) and arms the prevote
// timer.
func (m *StateMachine) enterPrevote() {
	m.step = StepPrevote
	m.timer.Arm(m.deltaPrevote(), TimeoutInfo{Height: m.height, Round: m.round, Step: StepPrevote})

	if m.prevoteBroadcast {
		return
	}
	m.prevoteBroadcast = true

	var target Target
	switch {
	case m.lock != nil:
		target = m.lock.Proposal
	default:
		if p := m.proposalCollector.Get(m.height, m.round); p != nil && m.support.CheckBlock(p.Content, m.height) {
			target = p.Content
		}
	}

	vote := Vote{VoteType: Prevote, Height: m.height, Round: m.round, Proposal: target, Voter: m.address}
	if !m.replaying {
		m.support.Transmit(VoteMsg(vote))
	}
	m.handleVote(&vote)
}

// evaluatePrevotes re-tallies the current round's prevotes and acts on a
// 2f+1 majority (locking/clearing as appropriate), or parks in
// PrevoteWait if total votes have reached quorum without any single
// choice reaching it.
func (m *StateMachine) evaluatePrevotes() {
	quorum := m.quorumSize()
	vs := m.voteCollector.GetVoteSet(m.height, m.round, Prevote)
	if vs == nil {
		return
	}

	if vs.CountFor(nil) >= quorum {
		m.lock = nil
		m.enterPrecommit()
		return
	}

	for proposal, n := range vs.votesByProposal {
		if n >= quorum && len(proposal) > 0 {
			target := Target(proposal)
			if m.lock == nil || m.round >= m.lock.Round {
				m.lock = &LockStatus{
					Proposal: target,
					Round:    m.round,
					Votes:    vs.PolcVotes(Prevote, m.height, m.round, target),
				}
			}
			m.enterPrecommit()
			return
		}
	}

	if vs.Count() >= quorum && m.step == StepPrevote {
		m.step = StepPrevoteWait
	}
}

// enterPrecommit broadcasts this node's precommit (for the lock if held,
// else empty) and arms the precommit timer.
func (m *StateMachine) enterPrecommit() {
	if phaseOf(m.step) == phasePrecommit {
		return
	}
	m.step = StepPrecommit
	m.timer.Arm(m.deltaPrecommit(), TimeoutInfo{Height: m.height, Round: m.round, Step: StepPrecommit})

	if m.precommitBroadcast {
		return
	}
	m.precommitBroadcast = true

	var target Target
	if m.lock != nil {
		target = m.lock.Proposal
	}

	vote := Vote{VoteType: Precommit, Height: m.height, Round: m.round, Proposal: target, Voter: m.address}
	if !m.replaying {
		m.support.Transmit(VoteMsg(vote))
	}
	m.handleVote(&vote)
}

func (m *StateMachine) evaluatePrecommits() {
	quorum := m.quorumSize()
	vs := m.voteCollector.GetVoteSet(m.height, m.round, Precommit)
	if vs == nil {
		return
	}

	for proposal, n := range vs.votesByProposal {
		if n >= quorum && len(proposal) > 0 {
			target := Target(proposal)
			votes := vs.PolcVotes(Precommit, m.height, m.round, target)
			m.enterCommit(target, votes)
			return
		}
	}

	if vs.CountFor(nil) >= quorum {
		m.nextRound()
		return
	}

	if vs.Count() >= quorum && m.step == StepPrecommit {
		m.step = StepPrecommitWait
	}
}

func (m *StateMachine) handlePrecommitTimeout() {
	if phaseOf(m.step) != phasePrecommit {
		return
	}
	m.nextRound()
}

// resumeAfterReplay picks the event loop back up after WAL replay has
// rebuilt the vote/proposal collectors and lock for the current round.
// Messages dispatched during replay already ran through their normal
// enter*/evaluate* side effects (with Transmit/Commit suppressed, since
// peers and the embedder already saw them before the crash) — so unlike
// a fresh round entry, this must not reset the round's broadcast flags or
// re-run tryPropose; it only needs to re-arm whatever timeout the
// recovered step is waiting on. If replay left the round untouched
// (empty WAL, or nothing yet received for it), this falls through to a
// normal enterRound.
func (m *StateMachine) resumeAfterReplay() {
	if m.step == StepPropose && !m.proposedThisRound {
		m.enterRound(m.height, m.round)
		return
	}
	if phaseOf(m.step) == phaseCommit {
		m.commitAttempts = 0
		m.tryCommit()
		m.timer.Arm(m.nextCommitBackoff(), TimeoutInfo{Height: m.height, Round: m.round, Step: StepCommit})
		return
	}
	var delay time.Duration
	switch m.step {
	case StepPrevote, StepPrevoteWait:
		delay = m.deltaPrevote()
	case StepPrecommit, StepPrecommitWait:
		delay = m.deltaPrecommit()
	default:
		delay = m.deltaPropose()
	}
	m.timer.Arm(delay, TimeoutInfo{Height: m.height, Round: m.round, Step: m.step})
}

// nextRound advances the round within the same height, preserving any
// held lock, per spec §4.1.2's Precommit -> NextRound transition.
func (m *StateMachine) nextRound() {
	round := m.round + 1
	m.metrics.RoundAdvanced()
	m.enterRound(m.height, round)
}

// enterCommit records the decided commit, hands it to the embedder, and
// parks in CommitWait until a confirming Status arrives or the commit
// timer fires for a retry.
func (m *StateMachine) enterCommit(proposal Target, votes []Vote) {
	m.step = StepCommit
	commit := Commit{
		Height:    m.height,
		Round:     m.round,
		Proposal:  proposal,
		LockVotes: votes,
		Address:   m.address,
	}
	m.pendingCommit = &commit
	m.commitAttempts = 0
	m.metrics.CommitEmitted()
	m.tryCommit()
	m.step = StepCommitWait
	m.timer.Arm(m.deltaCommit(), TimeoutInfo{Height: m.height, Round: m.round, Step: StepCommit})
}

// tryCommit invokes Support.Commit. Its return value is logged only: the
// engine does not advance on it directly, relying instead on a subsequent
// Status message to confirm the commit was durably applied (spec §4.1.2,
// §5 — Support.commit is fire-and-forget from the engine's perspective).
func (m *StateMachine) tryCommit() {
	if m.pendingCommit == nil || m.replaying {
		return
	}
	status, err := m.support.Commit(*m.pendingCommit)
	if err != nil {
		m.logger.Warn("bft: commit failed, will retry", "height", m.pendingCommit.Height, "err", err)
		return
	}
	m.logger.Info("bft: commit applied", "height", m.pendingCommit.Height, "next_status_height", status.Height)
}

// handleCommitTimeout retries the pending commit with exponential
// back-off capped at 8T, per spec §4.1.2.
func (m *StateMachine) handleCommitTimeout() {
	if phaseOf(m.step) != phaseCommit || m.pendingCommit == nil {
		return
	}
	m.tryCommit()
	m.timer.Arm(m.nextCommitBackoff(), TimeoutInfo{Height: m.height, Round: m.round, Step: StepCommit})
}

func (m *StateMachine) nextCommitBackoff() time.Duration {
	cap := 8 * m.interval
	d := m.deltaCommit()
	for i := 0; i < m.commitAttempts; i++ {
		d *= 2
		if d > cap {
			d = cap
			break
		}
	}
	m.commitAttempts++
	return d
}

// handleStatus applies an embedder-posted Status, advancing to the next
// height iff it matches the height currently awaiting confirmation.
func (m *StateMachine) handleStatus(s Status) {
	if s.Height != m.height {
		m.logger.Warn("bft: dropping status for unexpected height", "got", s.Height, "want", m.height)
		return
	}

	round := m.round
	m.lastCommitRound = &round

	m.authorityList = append([]Address(nil), s.AuthorityList...)
	if s.Interval != nil {
		m.interval = time.Duration(*s.Interval) * time.Millisecond
	}
	m.lock = nil
	m.feed = nil
	m.pendingCommit = nil
	m.commitAttempts = 0
	// Drop state for the decided height and below; entries already buffered
	// for later heights stay and are picked up once the engine reaches them.
	for _, h := range m.voteCollector.heights.Keys() {
		if h <= s.Height {
			m.voteCollector.heights.Remove(h)
		}
	}
	m.voteCollector.ClearPrevoteCount()
	for _, h := range m.proposalCollector.heights.Keys() {
		if h <= s.Height {
			m.proposalCollector.heights.Remove(h)
		}
	}

	if m.wal != nil {
		if err := m.wal.TruncateUpTo(s.Height); err != nil {
			m.metrics.WalFault()
			m.logger.Error("bft: wal truncate failed", "err", err)
		}
	}
	if err := m.store.SaveSnapshot(Snapshot{Height: s.Height, AuthorityList: m.authorityList, IntervalMs: uint64(m.interval / time.Millisecond)}); err != nil {
		m.logger.Error("bft: snapshot save failed", "err", err)
	}

	m.enterRound(s.Height+1, 0)
}
