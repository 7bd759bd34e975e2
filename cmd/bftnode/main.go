// Command bftnode runs a simulated BFT cluster in a single process: each
// authority gets its own consensus engine, WAL directory, and snapshot
// store, wired together by an in-process LoopbackNetwork standing in for
// the out-of-scope wire transport. It exists to demonstrate the core engine
// end to end (spec §8's S1-S6 scenarios), the way cmd/consensusd demos the
// teacher's full node.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bftlabs/bftcore/config"
	"github.com/bftlabs/bftcore/consensus/bft"
	"github.com/bftlabs/bftcore/consensus/store"
	"github.com/bftlabs/bftcore/crypto"
	"github.com/bftlabs/bftcore/observability/logging"
	"github.com/bftlabs/bftcore/observability/metrics"
	"github.com/bftlabs/bftcore/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	nodes := flag.Int("nodes", 4, "Number of authorities to simulate in this process")
	memory := flag.Bool("memory", false, "Use an in-memory snapshot store instead of LevelDB")
	flag.Parse()

	logger := logging.Setup("bftnode", "dev")

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, *nodes, *memory, logger); err != nil {
		logger.Error("bftnode exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, n int, memory bool, logger *slog.Logger) error {
	if n < 4 {
		return fmt.Errorf("bftnode: need at least 4 nodes for one Byzantine fault (n=3f+1), got %d", n)
	}
	interval := cfg.IntervalDuration(bft.DefaultInterval)

	keys := make([]*crypto.PrivateKey, n)
	addresses := make([]bft.Address, n)
	for i := range keys {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return fmt.Errorf("bftnode: generate key %d: %w", i, err)
		}
		keys[i] = key
		addresses[i] = key.PubKey().Address()
	}

	net := bft.NewLoopbackNetwork()
	metricsSink := metrics.New()

	actuators := make([]*bft.Actuator, n)
	for i := 0; i < n; i++ {
		support := bft.NewDemoSupport(keys[i], net, addresses, uint64(interval/time.Millisecond))
		idx := i

		nodeLogger := logger.With("node", fmt.Sprintf("%x", addresses[i][:4]))

		dataDir := filepath.Join(cfg.DataDir, fmt.Sprintf("node-%d", i))
		wal, err := bft.OpenWAL(filepath.Join(dataDir, "wal"))
		if err != nil {
			return fmt.Errorf("bftnode: open wal for node %d: %w", i, err)
		}

		var snapStore bft.SnapshotStore
		if memory {
			snapStore = store.New(storage.NewMemDB())
		} else {
			db, err := storage.NewLevelDB(filepath.Join(dataDir, "snapshot"))
			if err != nil {
				return fmt.Errorf("bftnode: open snapshot db for node %d: %w", i, err)
			}
			defer db.Close()
			snapStore = store.New(db)
		}

		actuator, err := bft.NewActuator(bft.Config{
			Address:  addresses[i],
			Interval: interval,
			Support:  support,
			WAL:      wal,
			Store:    snapStore,
			Logger:   nodeLogger,
			Metrics:  metricsSink,
		})
		if err != nil {
			return fmt.Errorf("bftnode: construct actuator %d: %w", i, err)
		}
		support.SetActuator(actuator)
		support.OnCommit(func(c bft.Commit) {
			nodeLogger.Info("commit", "height", c.Height, "round", c.Round, "proposal", fmt.Sprintf("%x", c.Proposal))
		})
		net.Register(addresses[i], actuator)
		actuators[idx] = actuator
	}

	genesis := bft.Status{Height: 0, AuthorityList: addresses, Interval: ptrMs(uint64(interval / time.Millisecond))}
	for _, a := range actuators {
		if err := a.SendStatus(genesis); err != nil {
			return fmt.Errorf("bftnode: seed genesis status: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	var firstErr error
	for _, a := range actuators {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func ptrMs(v uint64) *uint64 { return &v }
