package raft

import (
	"errors"
	"fmt"
)

// ErrMissingCommittedRecord means a record known to have committed is
// absent from the log store; this indicates storage corruption or a
// truncation bug and is always wrapped in a LogStoreError.
var ErrMissingCommittedRecord = errors.New("raft: committed record missing from log store")

// TransportError wraps a failure from PilotAPI.SendMessage /
// SendResponse. The core logs and continues; sends are never retried
// by the state that issued them.
type TransportError struct {
	Target NodeId
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error sending to %s: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// LogStoreError wraps a failure from the LogStore. The state that
// triggered it must not update any in-memory cursor; the operation is
// retried on the next tick.
type LogStoreError struct {
	Op  string
	Err error
}

func (e *LogStoreError) Error() string {
	return fmt.Sprintf("log store error during %s: %v", e.Op, e.Err)
}

func (e *LogStoreError) Unwrap() error { return e.Err }

// ProtocolError is recorded to the message problem history and never
// propagated to the transport: an incoming message violated framing
// or term rules (e.g. an unrecognized code).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

// FatalError means invariants L1-L4 were detected violated. The host
// should halt the node; the core does not attempt to self-heal.
type FatalError struct {
	Reason string
}

func (e *FatalError) Error() string { return "fatal raft invariant violation: " + e.Reason }
