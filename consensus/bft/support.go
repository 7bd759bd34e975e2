package bft

// Support is the embedder-provided capability set the engine drives
// everything external through: block validity, transmission, commit
// application, proposal feed, and signing. The engine only ever calls
// these from its own goroutine and treats commit/transmit as fire-and-
// forget — it relies on the subsequent Status to confirm a commit was
// applied.
type Support interface {
	// CheckBlock reports whether proposal is valid content for height.
	// Stateless; must not block indefinitely.
	CheckBlock(proposal Target, height uint64) bool

	// Transmit broadcasts an outbound message to the rest of the network.
	Transmit(msg BftMsg)

	// Commit applies a decided height and returns the Status for the next
	// one. May fail transiently; the engine retries with back-off.
	Commit(c Commit) (Status, error)

	// GetBlock produces this node's candidate proposal for height, when
	// acting as the round's proposer. ok=false means nothing is ready yet
	// (the engine falls back to the Propose timer).
	GetBlock(height uint64) (Target, bool)

	// Sign produces this node's signature over hash.
	Sign(hash []byte) []byte

	// CheckSig recovers the signer's address from a signature over hash,
	// or returns ok=false if the signature does not verify.
	CheckSig(sig []byte, hash []byte) (Address, bool)

	// CryptHash hashes an arbitrary byte string (used to derive vote/
	// proposal digests for signing).
	CryptHash(data []byte) Target
}
