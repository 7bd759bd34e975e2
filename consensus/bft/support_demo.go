package bft

import (
	"fmt"
	"sync"

	"github.com/bftlabs/bftcore/crypto"
)

// LoopbackNetwork is a single-process transport connecting a set of
// Actuators by address, standing in for the out-of-scope wire transport
// (spec §1's "transport that carries proposals/votes between nodes").
// It exists so the engine can be exercised end-to-end (the S1-S6 scenarios
// in spec §8) and so cmd/bftnode has something to demo without a real p2p
// stack.
type LoopbackNetwork struct {
	mu    sync.RWMutex
	nodes map[string]*Actuator
}

// NewLoopbackNetwork constructs an empty network.
func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{nodes: make(map[string]*Actuator)}
}

// Register adds addr's actuator to the network. Must be called before that
// node's engine starts transmitting.
func (n *LoopbackNetwork) Register(addr Address, a *Actuator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[string(addr)] = a
}

// Broadcast fans msg out to every registered node except from, mirroring a
// gossip transport: the sender already applied its own vote/proposal
// locally (spec §4.1.2's enterPrevote/enterPrecommit self-delivery), so it
// must not be echoed back.
func (n *LoopbackNetwork) Broadcast(from Address, msg BftMsg) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for addr, a := range n.nodes {
		if addr == string(from) {
			continue
		}
		deliver(a, msg)
	}
}

func deliver(a *Actuator, msg BftMsg) {
	switch msg.Kind {
	case KindProposal:
		_ = a.SendProposal(*msg.Proposal)
	case KindVote:
		_ = a.SendVote(*msg.Vote)
	case KindFeed:
		_ = a.SendFeed(*msg.Feed)
	case KindStatus:
		_ = a.SendStatus(*msg.Status)
	case KindPause, KindStart:
		_ = a.SendCommand(msg)
	}
}

// DemoSupport is a minimal, deterministic Support implementation: blocks are
// opaque hashes of (height, parent, proposer), there is no real execution,
// and Commit advances the chain head and asynchronously posts the
// confirming Status back through the actuator once SetActuator has wired it
// in, matching the fire-and-forget commit/Status-confirms model in spec §5.
type DemoSupport struct {
	key     *crypto.PrivateKey
	address Address
	net     *LoopbackNetwork

	mu            sync.Mutex
	chainHead     Target
	authorityList []Address
	intervalMs    uint64
	actuator      *Actuator
	onCommit      func(Commit)
}

// NewDemoSupport constructs a DemoSupport for one node of a simulated
// cluster, initialised with the genesis authority list and step interval.
func NewDemoSupport(key *crypto.PrivateKey, net *LoopbackNetwork, authorityList []Address, intervalMs uint64) *DemoSupport {
	return &DemoSupport{
		key:           key,
		address:       append(Address(nil), key.PubKey().Address()...),
		net:           net,
		authorityList: authorityList,
		intervalMs:    intervalMs,
	}
}

// SetActuator wires the Actuator this support instance will post confirming
// Status messages back into. Must be called once, after the Actuator for
// this node has been constructed.
func (s *DemoSupport) SetActuator(a *Actuator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actuator = a
}

// OnCommit registers a callback invoked (from the engine goroutine) every
// time this node's engine emits a Commit. Used by tests to observe the
// decided proposal without reaching into engine internals.
func (s *DemoSupport) OnCommit(fn func(Commit)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = fn
}

func (s *DemoSupport) CheckBlock(proposal Target, height uint64) bool {
	return len(proposal) > 0
}

func (s *DemoSupport) Transmit(msg BftMsg) {
	s.net.Broadcast(s.address, msg)
}

func (s *DemoSupport) Commit(c Commit) (Status, error) {
	s.mu.Lock()
	s.chainHead = append(Target(nil), c.Proposal...)
	list := append([]Address(nil), s.authorityList...)
	interval := s.intervalMs
	actuator := s.actuator
	onCommit := s.onCommit
	s.mu.Unlock()

	if onCommit != nil {
		onCommit(c)
	}

	status := Status{Height: c.Height, AuthorityList: list, Interval: &interval}
	if actuator != nil {
		go func() {
			_ = actuator.SendStatus(status)
		}()
	}
	return status, nil
}

func (s *DemoSupport) GetBlock(height uint64) (Target, bool) {
	s.mu.Lock()
	head := s.chainHead
	addr := s.address
	s.mu.Unlock()
	content := fmt.Sprintf("h=%d;parent=%x;proposer=%x", height, head, addr)
	return crypto.Hash([]byte(content)), true
}

func (s *DemoSupport) Sign(hash []byte) []byte {
	sig, err := s.key.Sign(hash)
	if err != nil {
		return nil
	}
	return sig
}

func (s *DemoSupport) CheckSig(sig, hash []byte) (Address, bool) {
	return crypto.RecoverAddress(hash, sig)
}

func (s *DemoSupport) CryptHash(data []byte) Target {
	return crypto.Hash(data)
}

var _ Support = (*DemoSupport)(nil)
