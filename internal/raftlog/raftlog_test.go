package raftlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathdee/raftcore/internal/raft"
)

func openTestStore(t *testing.T) *BoltLogStore {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltLogStoreAppendAndRead(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Append([]raft.LogRecord{
		{Code: raft.RecordNoOp, Index: 1, Term: 1},
		{Code: raft.RecordClient, Index: 2, Term: 1, UserData: []byte("hi")},
	}))

	require.Equal(t, raft.LogIndex(2), s.GetLastIndex())
	require.Equal(t, raft.Term(1), s.GetLastTerm())

	rec, ok := s.Read(2)
	require.True(t, ok)
	require.Equal(t, []byte("hi"), rec.UserData)

	last, ok := s.Read(0)
	require.True(t, ok)
	require.Equal(t, raft.LogIndex(2), last.Index)
}

func TestBoltLogStoreTermAndCommitPersist(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.SetTerm(5))
	require.NoError(t, s.Append([]raft.LogRecord{{Code: raft.RecordNoOp, Index: 1, Term: 5}}))
	require.NoError(t, s.Commit(1))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, raft.Term(5), reopened.GetTerm())
	require.Equal(t, raft.LogIndex(1), reopened.GetCommitIndex())
	require.Equal(t, raft.LogIndex(1), reopened.GetLastIndex())
}

func TestBoltLogStoreReplaceOrAppendTruncates(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Append([]raft.LogRecord{
		{Code: raft.RecordNoOp, Index: 1, Term: 1},
		{Code: raft.RecordClient, Index: 2, Term: 1},
		{Code: raft.RecordClient, Index: 3, Term: 1},
	}))

	require.NoError(t, s.ReplaceOrAppend(raft.LogRecord{Code: raft.RecordClient, Index: 2, Term: 2, UserData: []byte("new")}))

	require.Equal(t, raft.LogIndex(2), s.GetLastIndex())
	rec, ok := s.Read(2)
	require.True(t, ok)
	require.Equal(t, raft.Term(2), rec.Term)
	_, ok = s.Read(3)
	require.False(t, ok)
}

func TestBoltLogStoreRejectsNonContiguousAppend(t *testing.T) {
	s := openTestStore(t)
	err := s.Append([]raft.LogRecord{{Code: raft.RecordNoOp, Index: 2, Term: 1}})
	require.Error(t, err)
}
