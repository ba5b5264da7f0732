package raft

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestHull(t *testing.T, self NodeId, peers ...NodeId) (*Hull, *memPilot) {
	t.Helper()
	pilot := newMemPilot()
	h, err := NewHull(testCluster(self, peers...), LocalConfig{URI: self}, pilot, testLogger())
	require.NoError(t, err)
	return h, pilot
}

func TestNewHullRejectsBadClusterConfig(t *testing.T) {
	bad := ClusterConfig{
		NodeURIs:           []NodeId{"a", "b"},
		HeartbeatPeriod:    50 * time.Millisecond,
		LeaderLostTimeout:  30 * time.Millisecond,
		ElectionTimeoutMin: 40 * time.Millisecond,
		ElectionTimeoutMax: 80 * time.Millisecond,
	}
	_, err := NewHull(bad, LocalConfig{URI: "a"}, newMemPilot(), testLogger())
	require.Error(t, err)
}

func TestNewHullRejectsNilPilot(t *testing.T) {
	_, err := NewHull(testCluster("a", "b"), LocalConfig{URI: "a"}, nil, testLogger())
	require.Error(t, err)
}

func TestHullStartInstallsFollower(t *testing.T) {
	h, _ := newTestHull(t, "a", "b", "c")
	require.NoError(t, h.Start())
	require.Equal(t, StateFollower, h.StateCode())
	require.ErrorIs(t, h.Start(), ErrAlreadyStarted)
	h.state.Stop()
}

func TestHullSubmitCommandRequiresLeader(t *testing.T) {
	h, _ := newTestHull(t, "a", "b", "c")
	require.NoError(t, h.Start())
	defer h.state.Stop()

	err := h.SubmitCommand(context.Background(), []byte("x"), func([]byte, error) {})
	require.ErrorIs(t, err, ErrNotLeader)
}

func TestHullOnMessageRejectsUnknownVariant(t *testing.T) {
	h, _ := newTestHull(t, "a", "b", "c")
	require.NoError(t, h.Start())
	defer h.state.Stop()

	h.OnMessage(nil)
	probs := h.ProblemHistory()
	require.Len(t, probs, 1)
}

func TestHullEventSubscription(t *testing.T) {
	h, _ := newTestHull(t, "a", "b", "c")
	ch, cancel := h.Subscribe(8)
	defer cancel()

	require.NoError(t, h.Start())
	defer h.state.Stop()

	select {
	case ev := <-ch:
		require.Equal(t, EventStateEntered, ev.Kind)
		require.Equal(t, StateFollower, ev.State)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state_entered event")
	}
}
