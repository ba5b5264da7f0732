package raft

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("hull: already started")

// ErrNotLeader is returned by SubmitCommand when this node does not
// currently hold the Leader role.
var ErrNotLeader = errors.New("hull: not the leader")

// Hull is a per-node object owning exactly one active RoleState. It
// routes inbound messages and timer events to that state and performs
// role transitions, replacing the outgoing state with the incoming
// one atomically: the outgoing state is stopped before the incoming
// one is started.
type Hull struct {
	mu sync.Mutex

	cluster ClusterConfig
	local   LocalConfig
	pilot   PilotAPI
	log     LogStore
	logger  zerolog.Logger

	events   *eventBus
	problems *problemHistory

	state RoleState

	// votedFor/votedForTerm is the node's vote bookkeeping. It
	// outlives any single Follower/Candidate instance and is reset
	// whenever a higher term is observed.
	votedFor     NodeId
	votedForTerm Term

	started bool
}

// NewHull constructs a paused Hull. Call Start to install the initial
// Follower state.
func NewHull(cluster ClusterConfig, local LocalConfig, pilot PilotAPI, logger zerolog.Logger) (*Hull, error) {
	if err := cluster.Validate(); err != nil {
		return nil, err
	}
	if pilot == nil {
		return nil, errors.New("hull: pilot must not be nil")
	}
	log := pilot.GetLog()
	if log == nil {
		return nil, errors.New("hull: pilot returned a nil log store")
	}
	return &Hull{
		cluster:  cluster,
		local:    local,
		pilot:    pilot,
		log:      log,
		logger:   logger.With().Str("node", string(local.URI)).Logger(),
		events:   newEventBus(),
		problems: newProblemHistory(0),
		state:    pausedState{},
	}, nil
}

// Start installs the Follower role and arms its leader-lost timer.
func (h *Hull) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return ErrAlreadyStarted
	}
	h.started = true
	f := newFollower(h)
	h.state = f
	f.Start()
	return nil
}

// OnMessage validates msg is a known variant and dispatches it to the
// current role state. Handler exceptions (here, Go panics from a
// RoleState implementation) are caught, recorded to the message
// problem history, and never propagated to the caller.
func (h *Hull) OnMessage(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if msg == nil {
		h.problems.record("nil message", &ProtocolError{Reason: "nil message"})
		return
	}
	switch msg.(type) {
	case RequestVoteMessage, RequestVoteResponseMessage, AppendEntriesMessage, AppendResponseMessage:
	default:
		h.problems.record("unrecognized message variant", &ProtocolError{Reason: fmt.Sprintf("%T", msg)})
		return
	}

	h.publish(Event{
		Kind:    EventMessageRouted,
		State:   h.state.Code(),
		Term:    h.log.GetTerm(),
		From:    msg.envelope().Sender,
		Message: msg.GetCode(),
	})
	h.dispatchSafely(msg)
}

func (h *Hull) dispatchSafely(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Msg("recovered from role state panic")
			h.problems.record("handler panic", fmt.Errorf("%v", r))
		}
	}()
	h.state.OnMessage(msg)
}

// startCampaignLocked stops the current state and installs a
// Candidate. Callers must hold h.mu.
func (h *Hull) startCampaignLocked() {
	h.state.Stop()
	c := newCandidate(h)
	h.state = c
	c.Start()
}

// winVoteLocked stops the current state and installs a Leader for the
// term the election was won at. Callers must hold h.mu.
func (h *Hull) winVoteLocked(term Term) {
	h.state.Stop()
	l := newLeader(h, term)
	h.state = l
	l.Start()
}

// demoteAndHandleLocked stops the current state, installs a Follower,
// and (if msg is non-nil) re-dispatches msg to it. This is the path a
// Candidate or Leader takes on observing a higher term or a
// legitimate current-term leader. Callers must hold h.mu.
func (h *Hull) demoteAndHandleLocked(msg Message) {
	h.state.Stop()
	f := newFollower(h)
	h.state = f
	f.Start()
	if msg != nil {
		h.dispatchSafely(msg)
	}
}

// stepDownOnHigherTerm adopts t, clears any vote cast in an older
// term, and demotes to Follower, optionally re-dispatching msg.
// Callers must hold h.mu.
func (h *Hull) stepDownOnHigherTerm(t Term, msg Message) {
	if err := h.log.SetTerm(t); err != nil {
		h.problems.record("log store error adopting term", &LogStoreError{Op: "set_term", Err: err})
		return
	}
	h.votedFor = ""
	h.votedForTerm = 0
	h.demoteAndHandleLocked(msg)
}

// SubmitCommand hands a client command to the Leader role for
// replication. It returns ErrNotLeader, without invoking onCommit, if
// this node is not currently leading. Otherwise onCommit is invoked at
// most once: with the application result once the command's log entry
// commits, or with a non-nil error if processing the command or
// appending its record failed. If this node stops leading before the
// entry commits, onCommit is not invoked.
func (h *Hull) SubmitCommand(ctx context.Context, cmd []byte, onCommit func(result []byte, err error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.state.(*Leader)
	if !ok {
		return ErrNotLeader
	}
	return l.submitCommand(ctx, cmd, onCommit)
}

// StateCode returns the current role.
func (h *Hull) StateCode() StateCode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Code()
}

// Term returns the current log term.
func (h *Hull) Term() Term {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.GetTerm()
}

// CommitIndex returns the current commit index.
func (h *Hull) CommitIndex() LogIndex {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.GetCommitIndex()
}

// LeaderURI returns the last URI this node accepted AppendEntries
// from, if currently a Follower; otherwise "".
func (h *Hull) LeaderURI() NodeId {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.state.(*Follower); ok {
		return f.leaderURI
	}
	return ""
}

// MyURI returns this node's own identifier.
func (h *Hull) MyURI() NodeId { return h.local.URI }

func (h *Hull) localURI() NodeId { return h.local.URI }

// ClusterNodeIDs returns the full cluster membership, including self.
func (h *Hull) ClusterNodeIDs() []NodeId { return h.cluster.NodeURIs }

// HeartbeatPeriod returns the leader send interval.
func (h *Hull) HeartbeatPeriod() time.Duration { return h.cluster.HeartbeatPeriod }

// LeaderLostTimeout returns the follower inactivity threshold.
func (h *Hull) LeaderLostTimeout() time.Duration { return h.cluster.LeaderLostTimeout }

// ElectionTimeout draws a fresh randomized value from
// [election_timeout_min, election_timeout_max], as required every
// time a campaign (re)starts.
func (h *Hull) ElectionTimeout() time.Duration { return h.electionTimeout() }

func (h *Hull) electionTimeout() time.Duration {
	lo := h.cluster.ElectionTimeoutMin
	hi := h.cluster.ElectionTimeoutMax
	if hi <= lo {
		return lo
	}
	spread := hi - lo
	return lo + time.Duration(rand.Int63n(int64(spread)+1))
}

func (h *Hull) envelopeTo(target NodeId, term Term) Envelope {
	return Envelope{Sender: h.local.URI, Receiver: target, Term: term}
}

func (h *Hull) publish(ev Event) { h.events.publish(ev) }

// Subscribe returns a read-only stream of Hull events (state
// transitions, routed messages, commit advancement, and EventProblem
// for a stale response received while Follower). Other entries
// recorded to the problem history are not published on the stream.
// Tests and operational tooling are both ordinary subscribers, not
// privileged hooks.
func (h *Hull) Subscribe(buffer int) (<-chan Event, func()) {
	return h.events.Subscribe(buffer)
}

// ProblemHistory returns the bounded history of dropped/rejected
// messages and handler errors, oldest first.
func (h *Hull) ProblemHistory() []Problem {
	return h.problems.Snapshot()
}
