package bft

// MetricsSink receives observability events from the state machine. It is
// defined here (rather than imported from the observability package) so
// that package bft never depends on a concrete metrics backend — the
// default is a no-op, and github.com/bftlabs/bftcore/observability/metrics
// implements this interface structurally against Prometheus.
type MetricsSink interface {
	VoteAccepted(VoteType)
	VoteRejected(reason string)
	ProposalRejected(reason string)
	CommitEmitted()
	RoundAdvanced()
	WalFault()
}

type noopMetrics struct{}

func (noopMetrics) VoteAccepted(VoteType)    {}
func (noopMetrics) VoteRejected(string)      {}
func (noopMetrics) ProposalRejected(string)  {}
func (noopMetrics) CommitEmitted()           {}
func (noopMetrics) RoundAdvanced()           {}
func (noopMetrics) WalFault()                {}
