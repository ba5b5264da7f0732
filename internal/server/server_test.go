package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mathdee/raftcore/internal/kvstore"
	"github.com/mathdee/raftcore/internal/raft"
	"github.com/mathdee/raftcore/internal/raftlog"
	"github.com/mathdee/raftcore/internal/transport"
	"github.com/mathdee/raftcore/internal/wal"
)

func newSingleNodeHull(t *testing.T) *raft.Hull {
	t.Helper()
	walPath := t.TempDir() + "/kv.wal"
	w, err := wal.NewWAL(walPath)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	store := kvstore.NewStore(w)

	registry := transport.NewMemoryRegistry()
	cluster := raft.ClusterConfig{
		NodeURIs:           []raft.NodeId{"solo"},
		HeartbeatPeriod:    10 * time.Millisecond,
		LeaderLostTimeout:  30 * time.Millisecond,
		ElectionTimeoutMin: 40 * time.Millisecond,
		ElectionTimeoutMax: 80 * time.Millisecond,
	}

	boltDir := t.TempDir()
	log, err := raftlog.Open(boltDir)
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	pilot := transport.NewMemoryPilot("solo", log, store, registry)
	hull, err := raft.NewHull(cluster, raft.LocalConfig{URI: "solo", WorkingDir: boltDir}, pilot, zerolog.Nop())
	require.NoError(t, err)
	registry.Attach("solo", hull)
	t.Cleanup(func() { registry.Detach("solo") })

	require.NoError(t, hull.Start())
	return hull
}

func TestHTTPServerStatusReportsLeader(t *testing.T) {
	hull := newSingleNodeHull(t)

	walPath := t.TempDir() + "/kv2.wal"
	w, err := wal.NewWAL(walPath)
	require.NoError(t, err)
	defer w.Close()
	store := kvstore.NewStore(w)

	srv := NewHTTPServer(hull, store, NewMetrics(), zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	require.Eventually(t, func() bool {
		return hull.StateCode() == raft.StateLeader
	}, time.Second, 5*time.Millisecond)

	resp, err := ts.Client().Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.Equal(t, "leader", status.State)
}
