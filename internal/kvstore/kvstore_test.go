package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathdee/raftcore/internal/wal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	w, err := wal.NewWAL(t.TempDir() + "/kv.wal")
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return NewStore(w)
}

func TestOpCodecRoundTrip(t *testing.T) {
	data, err := EncodeOp(Op{Kind: OpSet, Key: "a", Value: "1"})
	require.NoError(t, err)

	op, err := decodeOp(data)
	require.NoError(t, err)
	require.Equal(t, Op{Kind: OpSet, Key: "a", Value: "1"}, op)
}

func TestResultCodecRoundTrip(t *testing.T) {
	data, err := encodeResult(Result{Value: "v", Found: true})
	require.NoError(t, err)

	res, err := DecodeResult(data)
	require.NoError(t, err)
	require.Equal(t, Result{Value: "v", Found: true}, res)
}

func TestStoreExecuteSetThenGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	setCmd, err := EncodeOp(Op{Kind: OpSet, Key: "name", Value: "raft"})
	require.NoError(t, err)
	raw, err := s.Execute(ctx, setCmd)
	require.NoError(t, err)
	setResult, err := DecodeResult(raw)
	require.NoError(t, err)
	require.True(t, setResult.Found)
	require.Equal(t, "raft", setResult.Value)

	getCmd, err := EncodeOp(Op{Kind: OpGet, Key: "name"})
	require.NoError(t, err)
	raw, err = s.Execute(ctx, getCmd)
	require.NoError(t, err)
	getResult, err := DecodeResult(raw)
	require.NoError(t, err)
	require.True(t, getResult.Found)
	require.Equal(t, "raft", getResult.Value)

	val, err := s.Get("name")
	require.NoError(t, err)
	require.Equal(t, "raft", val)
}

func TestStoreExecuteGetMissingKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cmd, err := EncodeOp(Op{Kind: OpGet, Key: "missing"})
	require.NoError(t, err)
	raw, err := s.Execute(ctx, cmd)
	require.NoError(t, err)

	res, err := DecodeResult(raw)
	require.NoError(t, err)
	require.False(t, res.Found)

	_, err = s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreExecuteDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	setCmd, err := EncodeOp(Op{Kind: OpSet, Key: "k", Value: "v"})
	require.NoError(t, err)
	_, err = s.Execute(ctx, setCmd)
	require.NoError(t, err)

	delCmd, err := EncodeOp(Op{Kind: OpDelete, Key: "k"})
	require.NoError(t, err)
	_, err = s.Execute(ctx, delCmd)
	require.NoError(t, err)

	_, err = s.Get("k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreExecuteRejectsUnknownOpKind(t *testing.T) {
	s := openTestStore(t)

	cmd, err := EncodeOp(Op{Kind: OpKind("BOGUS"), Key: "k"})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), cmd)
	require.Error(t, err)

	var unknownOp *UnknownOpError
	require.ErrorAs(t, err, &unknownOp)
	require.Equal(t, OpKind("BOGUS"), unknownOp.Kind)
}

func TestStoreRestoreReplacesTable(t *testing.T) {
	s := openTestStore(t)
	s.Restore(map[string]string{"seeded": "value"})

	val, err := s.Get("seeded")
	require.NoError(t, err)
	require.Equal(t, "value", val)
}
