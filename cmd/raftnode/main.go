// Command raftnode runs one node of a raftcore cluster: it wires the
// consensus core (internal/raft) to a durable log (internal/raftlog),
// a TCP transport (internal/transport), a key/value state machine
// (internal/kvstore) and an HTTP status surface (internal/server).
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mathdee/raftcore/internal/config"
	"github.com/mathdee/raftcore/internal/kvstore"
	"github.com/mathdee/raftcore/internal/raft"
	"github.com/mathdee/raftcore/internal/raftlog"
	"github.com/mathdee/raftcore/internal/server"
	"github.com/mathdee/raftcore/internal/telemetry"
	"github.com/mathdee/raftcore/internal/transport"
	"github.com/mathdee/raftcore/internal/wal"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "raftnode",
		Short: "Run one node of a raftcore cluster.",
		RunE:  run,
	}
	root.Flags().StringVarP(&configFile, "config", "c", "", "path to the node's YAML config file")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(cfg.LogLevel).With().Str("node", cfg.URI).Logger()

	logStore, err := raftlog.Open(cfg.WorkingDir)
	if err != nil {
		return fmt.Errorf("opening raft log: %w", err)
	}
	defer logStore.Close()

	walStore, err := wal.NewWAL(cfg.WorkingDir + "/kvstore.wal")
	if err != nil {
		return fmt.Errorf("opening kvstore wal: %w", err)
	}
	defer walStore.Close()

	store := kvstore.NewStore(walStore).WithLogger(logger)
	if recovered, err := wal.Recover(cfg.WorkingDir + "/kvstore.wal"); err == nil {
		store.Restore(recovered)
	}

	pilot := transport.NewTCPPilot(raft.NodeId(cfg.URI), logStore, store, cfg.PeerAddrs(), cfg.HeartbeatPeriod, logger)

	hull, err := raft.NewHull(cfg.ClusterConfig(), cfg.LocalConfig(), pilot, logger)
	if err != nil {
		return fmt.Errorf("constructing hull: %w", err)
	}

	bindAddr := cfg.BindAddr
	if bindAddr == "" {
		bindAddr = cfg.PeerAddrs()[raft.NodeId(cfg.URI)]
	}
	if err := pilot.Listen(bindAddr, hull); err != nil {
		return fmt.Errorf("listening on %s: %w", bindAddr, err)
	}
	defer pilot.Close()

	raftMetrics := telemetry.NewRaftMetrics(prometheus.DefaultRegisterer)
	go watchEvents(hull, raftMetrics)

	requestMetrics := server.NewMetrics()
	requestMetrics.SetObserver(func(d time.Duration) {
		raftMetrics.AppendLatency.Observe(d.Seconds())
	})

	httpServer := server.NewHTTPServer(hull, store, requestMetrics, logger)

	if err := hull.Start(); err != nil {
		return fmt.Errorf("starting hull: %w", err)
	}

	logger.Info().Str("http_addr", cfg.HTTPAddr).Str("bind_addr", bindAddr).Msg("raftnode started")
	return http.ListenAndServe(cfg.HTTPAddr, httpServer.Handler())
}

func watchEvents(hull *raft.Hull, m *telemetry.RaftMetrics) {
	ch, cancel := hull.Subscribe(64)
	defer cancel()
	for ev := range ch {
		switch ev.Kind {
		case raft.EventStateEntered:
			if ev.State == raft.StateCandidate {
				m.Elections.Inc()
			}
			m.Observe(hull)
		case raft.EventCommitAdvanced:
			m.Observe(hull)
		case raft.EventProblem:
			m.Problems.Inc()
		}
	}
}
