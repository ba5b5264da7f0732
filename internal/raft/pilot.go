package raft

import "context"

// PilotAPI is the transport/application boundary a host implements.
// None of its methods are assumed to be thread-safe beyond accepting
// one call at a time from its owning Hull.
type PilotAPI interface {
	// GetLog returns the durable log store this node is built on.
	GetLog() LogStore

	// SendMessage is fire-and-forget; the transport makes no
	// delivery guarantee.
	SendMessage(ctx context.Context, target NodeId, msg Message) error

	// SendResponse is a convenience wrapper with the same semantics
	// as SendMessage, letting a transport correlate a response with
	// the message that provoked it.
	SendResponse(ctx context.Context, target NodeId, in Message, response Message) error

	// ProcessCommand executes a client command through the
	// application layer, returning the result to log and reply with.
	ProcessCommand(ctx context.Context, command []byte) ([]byte, error)
}
