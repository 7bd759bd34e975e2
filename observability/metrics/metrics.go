// Package metrics exposes the engine's Prometheus instrumentation,
// structurally implementing bft.MetricsSink against the
// prometheus.NewCounterVec/GaugeVec pattern the teacher's
// observability/metrics.go uses for its own module/consensus registries.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bftlabs/bftcore/consensus/bft"
)

type Consensus struct {
	votesAccepted    *prometheus.CounterVec
	votesRejected    *prometheus.CounterVec
	proposalRejected *prometheus.CounterVec
	commitsEmitted   prometheus.Counter
	roundsAdvanced   prometheus.Counter
	walFaults        prometheus.Counter
}

var (
	once     sync.Once
	registry *Consensus
)

// New lazily constructs and registers the consensus metric registry. Safe to
// call more than once; only the first call registers the collectors.
func New() *Consensus {
	once.Do(func() {
		registry = &Consensus{
			votesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bftcore",
				Subsystem: "consensus",
				Name:      "votes_accepted_total",
				Help:      "Votes accepted by the vote collector, by vote type.",
			}, []string{"vote_type"}),
			votesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bftcore",
				Subsystem: "consensus",
				Name:      "votes_rejected_total",
				Help:      "Votes dropped before reaching the vote collector, by reason.",
			}, []string{"reason"}),
			proposalRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bftcore",
				Subsystem: "consensus",
				Name:      "proposals_rejected_total",
				Help:      "Proposals dropped before reaching the proposal collector, by reason.",
			}, []string{"reason"}),
			commitsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bftcore",
				Subsystem: "consensus",
				Name:      "commits_emitted_total",
				Help:      "Commits handed to Support.Commit.",
			}),
			roundsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bftcore",
				Subsystem: "consensus",
				Name:      "rounds_advanced_total",
				Help:      "Round increments due to a Precommit with no quorum.",
			}),
			walFaults: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bftcore",
				Subsystem: "consensus",
				Name:      "wal_faults_total",
				Help:      "WAL append/replay/truncate failures.",
			}),
		}
		prometheus.MustRegister(
			registry.votesAccepted,
			registry.votesRejected,
			registry.proposalRejected,
			registry.commitsEmitted,
			registry.roundsAdvanced,
			registry.walFaults,
		)
	})
	return registry
}

func (m *Consensus) VoteAccepted(t bft.VoteType)    { m.votesAccepted.WithLabelValues(t.String()).Inc() }
func (m *Consensus) VoteRejected(reason string)     { m.votesRejected.WithLabelValues(reason).Inc() }
func (m *Consensus) ProposalRejected(reason string) { m.proposalRejected.WithLabelValues(reason).Inc() }
func (m *Consensus) CommitEmitted()                 { m.commitsEmitted.Inc() }
func (m *Consensus) RoundAdvanced()                 { m.roundsAdvanced.Inc() }
func (m *Consensus) WalFault()                      { m.walFaults.Inc() }

var _ bft.MetricsSink = (*Consensus)(nil)
