package transport

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mathdee/raftcore/internal/raft"
	"github.com/mathdee/raftcore/internal/wireformat"
)

type echoExecutor struct{}

func (echoExecutor) Execute(ctx context.Context, cmd []byte) ([]byte, error) {
	out := make([]byte, len(cmd))
	copy(out, cmd)
	return out, nil
}

type fakeLog struct {
	term        raft.Term
	commitIndex raft.LogIndex
	records     []raft.LogRecord
}

func newFakeLog() *fakeLog { return &fakeLog{} }

func (l *fakeLog) GetTerm() raft.Term     { return l.term }
func (l *fakeLog) SetTerm(t raft.Term) error {
	l.term = t
	return nil
}
func (l *fakeLog) GetLastIndex() raft.LogIndex { return raft.LogIndex(len(l.records)) }
func (l *fakeLog) GetLastTerm() raft.Term {
	if len(l.records) == 0 {
		return 0
	}
	return l.records[len(l.records)-1].Term
}
func (l *fakeLog) GetCommitIndex() raft.LogIndex { return l.commitIndex }
func (l *fakeLog) Append(records []raft.LogRecord) error {
	l.records = append(l.records, records...)
	return nil
}
func (l *fakeLog) ReplaceOrAppend(rec raft.LogRecord) error {
	if int(rec.Index) <= len(l.records) {
		l.records = l.records[:rec.Index-1]
	}
	l.records = append(l.records, rec)
	return nil
}
func (l *fakeLog) Commit(index raft.LogIndex) error {
	l.commitIndex = index
	return nil
}
func (l *fakeLog) Read(index raft.LogIndex) (raft.LogRecord, bool) {
	if len(l.records) == 0 {
		return raft.LogRecord{}, false
	}
	if index == 0 {
		return l.records[len(l.records)-1], true
	}
	if index < 1 || int(index) > len(l.records) {
		return raft.LogRecord{}, false
	}
	return l.records[index-1], true
}

var _ raft.LogStore = (*fakeLog)(nil)

func TestFrameRoundTrip(t *testing.T) {
	orig := raft.AppendEntriesMessage{
		Envelope:     raft.Envelope{Sender: "a", Receiver: "b", Term: 3},
		PrevLogIndex: 1,
		LeaderCommit: 2,
	}

	var buf bytes.Buffer
	require.NoError(t, wireformat.NewEncoder(&buf).Encode(toFrame(orig)))

	var f frame
	require.NoError(t, wireformat.NewDecoder(&buf).Decode(&f))

	decoded, err := fromFrame(f)
	require.NoError(t, err)
	ae, ok := decoded.(raft.AppendEntriesMessage)
	require.True(t, ok)
	require.Equal(t, orig.Term, ae.Term)
	require.Equal(t, orig.LeaderCommit, ae.LeaderCommit)
}

func newTestClusterOfTwo(t *testing.T) (*raft.Hull, *raft.Hull, *MemoryRegistry) {
	t.Helper()
	registry := NewMemoryRegistry()

	cluster := raft.ClusterConfig{
		NodeURIs:           []raft.NodeId{"a", "b"},
		HeartbeatPeriod:    10 * time.Millisecond,
		LeaderLostTimeout:  30 * time.Millisecond,
		ElectionTimeoutMin: 40 * time.Millisecond,
		ElectionTimeoutMax: 80 * time.Millisecond,
	}

	pilotA := NewMemoryPilot("a", newFakeLog(), echoExecutor{}, registry)
	hullA, err := raft.NewHull(cluster, raft.LocalConfig{URI: "a"}, pilotA, zerolog.Nop())
	require.NoError(t, err)
	registry.Attach("a", hullA)

	pilotB := NewMemoryPilot("b", newFakeLog(), echoExecutor{}, registry)
	hullB, err := raft.NewHull(cluster, raft.LocalConfig{URI: "b"}, pilotB, zerolog.Nop())
	require.NoError(t, err)
	registry.Attach("b", hullB)

	return hullA, hullB, registry
}

func TestMemoryPilotDeliversAcrossRegistry(t *testing.T) {
	hullA, hullB, registry := newTestClusterOfTwo(t)
	defer registry.Detach("a")
	defer registry.Detach("b")

	require.NoError(t, hullA.Start())
	require.NoError(t, hullB.Start())

	chA, cancelA := hullA.Subscribe(8)
	defer cancelA()

	hullB.OnMessage(raft.RequestVoteMessage{
		Envelope: raft.Envelope{Sender: "a", Receiver: "b", Term: 1},
	})

	select {
	case ev := <-chA:
		require.Equal(t, raft.EventMessageRouted, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed vote response")
	}
}
