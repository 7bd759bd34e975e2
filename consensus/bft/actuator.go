package bft

import (
	"context"
)

// Actuator is the thin fan-in façade described in spec §4's component
// table and §6's external interface: it validates what can be checked
// synchronously and forwards everything else onto the StateMachine's
// inbound channel. It owns the engine's goroutine.
type Actuator struct {
	engine  *StateMachine
	cancel  context.CancelFunc
	stopped chan struct{}
	runErr  error
}

// NewActuator constructs a StateMachine from cfg and starts its event
// loop on a new goroutine, mirroring bft-rs's BftActuator::new.
func NewActuator(cfg Config) (*Actuator, error) {
	engine, err := NewStateMachine(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actuator{engine: engine, cancel: cancel, stopped: make(chan struct{})}
	go func() {
		a.runErr = engine.Run(ctx)
		close(a.stopped)
	}()
	return a, nil
}

// Close stops the engine goroutine and waits for it to exit.
func (a *Actuator) Close() error {
	a.cancel()
	<-a.stopped
	return a.runErr
}

// Engine exposes the underlying StateMachine, mainly for tests and
// observability that need read-only state.
func (a *Actuator) Engine() *StateMachine { return a.engine }

// send enqueues msg on the engine's inbox, returning onFull if the engine
// goroutine has already exited (the receiver is gone).
func (a *Actuator) send(msg BftMsg, onFull error) error {
	select {
	case <-a.stopped:
		return onFull
	default:
	}
	select {
	case a.engine.Inbox() <- msg:
		return nil
	case <-a.stopped:
		return onFull
	}
}

// SendProposal validates PoLC coherence (lock_round and lock_votes must be
// either both present or both absent, with enough votes to be plausible)
// before forwarding, returning ProposalIllegalErr synchronously rather
// than letting a malformed proposal reach the engine.
func (a *Actuator) SendProposal(p Proposal) error {
	if (p.LockRound != nil && len(p.LockVotes) == 0) || (p.LockRound == nil && len(p.LockVotes) > 0) {
		return &ProposalIllegalErr{Height: p.Height, Round: p.Round}
	}
	return a.send(ProposalMsg(p), &SendProposalErr{})
}

// SendVote forwards a vote to the engine.
func (a *Actuator) SendVote(v Vote) error {
	return a.send(VoteMsg(v), &SendVoteErr{})
}

// SendFeed forwards this node's candidate proposal content for a height.
func (a *Actuator) SendFeed(f Feed) error {
	return a.send(FeedMsg(f), &SendVoteErr{})
}

// SendStatus forwards a Status posted by the embedder after committing.
func (a *Actuator) SendStatus(s Status) error {
	return a.send(StatusMsg(s), &SendStatusErr{})
}

// SendCommand forwards a Pause or Start command. Any other message kind
// yields MsgTypeErr.
func (a *Actuator) SendCommand(msg BftMsg) error {
	if msg.Kind != KindPause && msg.Kind != KindStart {
		return &MsgTypeErr{Got: msg.Kind}
	}
	return a.send(msg, &SendCmdErr{})
}
