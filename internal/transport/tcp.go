package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathdee/raftcore/internal/raft"
	"github.com/mathdee/raftcore/internal/wireformat"
)

// defaultDialTimeout bounds TCPPilot.send when the caller constructs a
// TCPPilot with a zero dialTimeout.
const defaultDialTimeout = 2 * time.Second

// TCPPilot implements raft.PilotAPI over one-shot TCP connections: a
// send dials the peer, writes a single gob frame and closes. addrs
// maps every cluster NodeId to its dial address.
type TCPPilot struct {
	basePilot
	logger zerolog.Logger

	mu          sync.RWMutex
	addrs       map[raft.NodeId]string
	listener    net.Listener
	hull        *raft.Hull
	dialTimeout time.Duration
}

// NewTCPPilot builds a TCPPilot that bounds every outbound dial by
// dialTimeout (a zero value falls back to defaultDialTimeout). Every
// send runs with Hull.mu held by the caller (OnMessage handlers and
// Leader.onHeartbeat all reply or replicate while holding it), so an
// unbounded dial to one dead peer would stall all message and timer
// processing for this node; dialTimeout should be well under
// heartbeat_period so a hung peer cannot delay the next heartbeat
// round to every other peer.
func NewTCPPilot(self raft.NodeId, log raft.LogStore, exec Executor, addrs map[raft.NodeId]string, dialTimeout time.Duration, logger zerolog.Logger) *TCPPilot {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &TCPPilot{
		basePilot:   basePilot{self: self, log: log, exec: exec},
		logger:      logger.With().Str("component", "tcp_transport").Logger(),
		addrs:       addrs,
		dialTimeout: dialTimeout,
	}
}

// Listen opens the transport's inbound socket and starts accepting
// connections. hull is the node this pilot delivers decoded messages
// to; it must be set before any peer can reach this node.
func (p *TCPPilot) Listen(bindAddr string, hull *raft.Hull) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.listener = ln
	p.hull = hull
	p.mu.Unlock()

	go p.acceptLoop(ln)
	return nil
}

func (p *TCPPilot) Close() error {
	p.mu.RLock()
	ln := p.listener
	p.mu.RUnlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

func (p *TCPPilot) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			p.logger.Debug().Err(err).Msg("accept loop stopping")
			return
		}
		go p.handleConn(conn)
	}
}

func (p *TCPPilot) handleConn(conn net.Conn) {
	defer conn.Close()
	var f frame
	if err := wireformat.NewDecoder(conn).Decode(&f); err != nil {
		p.logger.Warn().Err(err).Msg("failed to decode inbound frame")
		return
	}
	msg, err := fromFrame(f)
	if err != nil {
		p.logger.Warn().Err(err).Msg("malformed inbound frame")
		return
	}
	p.mu.RLock()
	hull := p.hull
	p.mu.RUnlock()
	if hull != nil {
		hull.OnMessage(msg)
	}
}

// send dials target and writes one frame. The dial is bounded by
// p.dialTimeout (narrowed further by ctx's deadline, if any) so a
// single unreachable peer cannot block the caller, which in practice
// is always a RoleState method running with Hull.mu held.
func (p *TCPPilot) send(ctx context.Context, target raft.NodeId, msg raft.Message) error {
	p.mu.RLock()
	addr, ok := p.addrs[target]
	p.mu.RUnlock()
	if !ok {
		return &raft.TransportError{Target: target, Err: errNotConnected}
	}

	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &raft.TransportError{Target: target, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	} else {
		conn.SetWriteDeadline(time.Now().Add(p.dialTimeout))
	}

	if err := wireformat.NewEncoder(conn).Encode(toFrame(msg)); err != nil {
		return &raft.TransportError{Target: target, Err: err}
	}
	return nil
}

func (p *TCPPilot) SendMessage(ctx context.Context, target raft.NodeId, msg raft.Message) error {
	return p.send(ctx, target, msg)
}

func (p *TCPPilot) SendResponse(ctx context.Context, target raft.NodeId, in raft.Message, response raft.Message) error {
	return p.send(ctx, target, response)
}

var _ raft.PilotAPI = (*TCPPilot)(nil)
