package kvstore

import (
	"bytes"
	"encoding/gob"
)

// OpKind names the operation an Op requests of the store.
type OpKind string

const (
	OpSet    OpKind = "SET"
	OpGet    OpKind = "GET"
	OpDelete OpKind = "DELETE"
)

// Op is the command payload carried through Hull.SubmitCommand's
// opaque []byte: SubmitCommand accepts arbitrary bytes, and this is
// the one codec this store's Executor understands.
type Op struct {
	Kind  OpKind
	Key   string
	Value string
}

// EncodeOp gob-encodes op for submission to Hull.SubmitCommand.
func EncodeOp(op Op) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(op); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeOp(data []byte) (Op, error) {
	var op Op
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&op); err != nil {
		return Op{}, err
	}
	return op, nil
}

// Result is what Execute returns, gob-encoded, as the command's
// result bytes.
type Result struct {
	Value string
	Found bool
}

func encodeResult(r Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeResult decodes the result bytes a committed Op produces,
// for callers reading Hull.SubmitCommand's onCommit payload.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r); err != nil {
		return Result{}, err
	}
	return r, nil
}
