package transport

import (
	"context"
	"sync"

	"github.com/mathdee/raftcore/internal/raft"
)

// MemoryRegistry is the shared channel registry multiple MemoryPilots
// in the same process deliver through: attach a node once and any
// other attached node can address it by NodeId.
type MemoryRegistry struct {
	mu    sync.Mutex
	nodes map[raft.NodeId]*registeredNode
}

type registeredNode struct {
	hull    *raft.Hull
	inbox   chan raft.Message
	done    chan struct{}
	stopped bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{nodes: make(map[raft.NodeId]*registeredNode)}
}

// Attach registers hull under id and starts its delivery loop. Call
// once per node after the Hull is constructed (and before Hull.Start,
// so no message can arrive before the inbox exists).
func (r *MemoryRegistry) Attach(id raft.NodeId, hull *raft.Hull) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node := &registeredNode{
		hull:  hull,
		inbox: make(chan raft.Message, 256),
		done:  make(chan struct{}),
	}
	r.nodes[id] = node
	go node.run()
}

func (n *registeredNode) run() {
	for {
		select {
		case msg := <-n.inbox:
			n.hull.OnMessage(msg)
		case <-n.done:
			return
		}
	}
}

// Detach stops id's delivery loop. Safe to call more than once.
func (r *MemoryRegistry) Detach(id raft.NodeId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[id]
	if !ok || node.stopped {
		return
	}
	node.stopped = true
	close(node.done)
	delete(r.nodes, id)
}

func (r *MemoryRegistry) deliver(target raft.NodeId, msg raft.Message) error {
	r.mu.Lock()
	node, ok := r.nodes[target]
	r.mu.Unlock()
	if !ok {
		return &raft.TransportError{Target: target, Err: errNotConnected}
	}
	select {
	case node.inbox <- msg:
		return nil
	default:
		return &raft.TransportError{Target: target, Err: errInboxFull}
	}
}

// MemoryPilot implements raft.PilotAPI by delivering to a shared
// MemoryRegistry instead of a socket. It backs the core's own tests
// and any embedder running a multi-node cluster in one process.
type MemoryPilot struct {
	basePilot
	registry *MemoryRegistry
}

func NewMemoryPilot(self raft.NodeId, log raft.LogStore, exec Executor, registry *MemoryRegistry) *MemoryPilot {
	return &MemoryPilot{
		basePilot: basePilot{self: self, log: log, exec: exec},
		registry:  registry,
	}
}

func (p *MemoryPilot) SendMessage(ctx context.Context, target raft.NodeId, msg raft.Message) error {
	return p.registry.deliver(target, msg)
}

func (p *MemoryPilot) SendResponse(ctx context.Context, target raft.NodeId, in raft.Message, response raft.Message) error {
	return p.registry.deliver(target, response)
}

var _ raft.PilotAPI = (*MemoryPilot)(nil)
