// Package transport provides two raft.PilotAPI implementations: an
// in-memory one for single-process test clusters and a TCP one for a
// real network deployment.
package transport

import (
	"context"

	"github.com/mathdee/raftcore/internal/raft"
)

// Executor is the application command processor a Pilot hands client
// command payloads to; the Leader runs each command through it before
// appending the result to the log. internal/kvstore.Store implements
// it.
type Executor interface {
	Execute(ctx context.Context, command []byte) ([]byte, error)
}

// basePilot holds the pieces every PilotAPI implementation in this
// package needs: its own log store and command executor. Sending is
// left to the embedding type.
type basePilot struct {
	self raft.NodeId
	log  raft.LogStore
	exec Executor
}

func (p *basePilot) GetLog() raft.LogStore { return p.log }

func (p *basePilot) ProcessCommand(ctx context.Context, command []byte) ([]byte, error) {
	return p.exec.Execute(ctx, command)
}
