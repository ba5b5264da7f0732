package raft

import (
	"context"

	"github.com/rs/zerolog"
)

// maxAppendBatch bounds how many entries a single AppendEntries
// carries when catching a lagging follower up.
const maxAppendBatch = 10

// FollowerCursor tracks one peer's replication progress.
type FollowerCursor struct {
	NextIndex          LogIndex
	MatchIndex         LogIndex
	LastHeartbeatIndex LogIndex
}

// Leader replicates entries, drives commit advancement and answers
// clients.
type Leader struct {
	hull       *Hull
	logger     zerolog.Logger
	terminated bool
	term       Term

	heartbeatTimer *stateTimer
	cursors        map[NodeId]*FollowerCursor
	replyCallbacks map[LogIndex]func([]byte, error)
}

func newLeader(h *Hull, term Term) *Leader {
	return &Leader{
		hull:           h,
		logger:         h.logger.With().Str("role", "leader").Logger(),
		term:           term,
		cursors:        make(map[NodeId]*FollowerCursor),
		replyCallbacks: make(map[LogIndex]func([]byte, error)),
	}
}

func (l *Leader) Code() StateCode { return StateLeader }

func (l *Leader) Start() {
	self := l.hull.localURI()
	lastIndex := l.hull.log.GetLastIndex()
	for _, peer := range l.hull.cluster.NodeURIs {
		if peer == self {
			continue
		}
		l.cursors[peer] = &FollowerCursor{NextIndex: lastIndex + 1, MatchIndex: 0}
	}

	l.heartbeatTimer = newStateTimer(l.hull.cluster.HeartbeatPeriod, l.onHeartbeat)
	l.insertTermStart()
	l.hull.publish(Event{Kind: EventStateEntered, State: StateLeader, Term: l.term})
	l.logger.Info().Uint64("term", uint64(l.term)).Msg("elected leader")
}

func (l *Leader) Stop() {
	l.terminated = true
	l.heartbeatTimer.cancel()
}

// insertTermStart appends a NO_OP record at the current term to prove
// term ownership and replicates it immediately. The record is NOT
// committed locally before replication: it commits the same way any
// other record does, only once a majority (including this leader) has
// it.
func (l *Leader) insertTermStart() {
	prevIndex := l.hull.log.GetLastIndex()
	prevTerm := l.hull.log.GetLastTerm()
	rec := LogRecord{Code: RecordNoOp, Index: prevIndex + 1, Term: l.term, Committed: false}
	if err := l.hull.log.Append([]LogRecord{rec}); err != nil {
		l.hull.problems.record("log store error appending term-start record", &LogStoreError{Op: "append", Err: err})
		return
	}
	for _, cursor := range l.cursors {
		cursor.NextIndex = rec.Index + 1
	}
	l.broadcastEntries([]LogRecord{rec}, prevIndex, prevTerm)
}

func (l *Leader) broadcastEntries(entries []LogRecord, prevIndex LogIndex, prevTerm Term) {
	ctx := context.Background()
	self := l.hull.localURI()
	for _, peer := range l.hull.cluster.NodeURIs {
		if peer == self {
			continue
		}
		msg := AppendEntriesMessage{
			Envelope:     l.hull.envelopeTo(peer, l.term),
			PrevLogIndex: prevIndex,
			PrevLogTerm:  prevTerm,
			LeaderCommit: l.hull.log.GetCommitIndex(),
			Entries:      entries,
		}
		if err := l.hull.pilot.SendMessage(ctx, peer, msg); err != nil {
			l.hull.problems.record("transport error broadcasting append entries", &TransportError{Target: peer, Err: err})
		}
	}
}

// onHeartbeat fires every heartbeat_period: peers already caught up
// get a pure heartbeat, lagging peers get a bounded catch-up batch.
func (l *Leader) onHeartbeat() {
	l.hull.mu.Lock()
	defer l.hull.mu.Unlock()
	if l.terminated {
		return
	}
	if l.hull.log.GetLastTerm() != l.term {
		// The term-start record failed to append earlier; retry it.
		l.insertTermStart()
	}
	lastIndex := l.hull.log.GetLastIndex()
	ctx := context.Background()
	self := l.hull.localURI()
	for _, peer := range l.hull.cluster.NodeURIs {
		if peer == self {
			continue
		}
		cursor := l.cursors[peer]
		if cursor.NextIndex > lastIndex {
			msg := AppendEntriesMessage{
				Envelope:     l.hull.envelopeTo(peer, l.term),
				PrevLogIndex: lastIndex,
				PrevLogTerm:  l.hull.log.GetLastTerm(),
				LeaderCommit: l.hull.log.GetCommitIndex(),
			}
			if err := l.hull.pilot.SendMessage(ctx, peer, msg); err != nil {
				l.hull.problems.record("transport error sending heartbeat", &TransportError{Target: peer, Err: err})
			}
			continue
		}
		l.replicateToPeerLocked(peer)
	}
	l.heartbeatTimer.reset(l.hull.cluster.HeartbeatPeriod)
}

// replicateToPeerLocked sends up to maxAppendBatch entries starting at
// the peer's next_index. Callers must hold hull.mu.
func (l *Leader) replicateToPeerLocked(peer NodeId) {
	cursor, ok := l.cursors[peer]
	if !ok {
		return
	}
	lastIndex := l.hull.log.GetLastIndex()
	if cursor.NextIndex > lastIndex {
		return
	}
	start := cursor.NextIndex
	if start < 1 {
		start = 1
	}
	end := start + maxAppendBatch - 1
	if end > lastIndex {
		end = lastIndex
	}

	var prevIndex LogIndex
	var prevTerm Term
	if start > 1 {
		prevRec, ok := l.hull.log.Read(start - 1)
		if !ok {
			l.hull.problems.record("log store missing expected prior record", &LogStoreError{Op: "read"})
			return
		}
		prevIndex = prevRec.Index
		prevTerm = prevRec.Term
	}

	entries := make([]LogRecord, 0, end-start+1)
	for i := start; i <= end; i++ {
		rec, ok := l.hull.log.Read(i)
		if !ok {
			break
		}
		entries = append(entries, rec)
	}
	if len(entries) == 0 {
		return
	}

	msg := AppendEntriesMessage{
		Envelope:     l.hull.envelopeTo(peer, l.term),
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		LeaderCommit: l.hull.log.GetCommitIndex(),
		Entries:      entries,
	}
	if err := l.hull.pilot.SendMessage(context.Background(), peer, msg); err != nil {
		l.hull.problems.record("transport error replicating", &TransportError{Target: peer, Err: err})
		return
	}
	cursor.NextIndex = entries[len(entries)-1].Index + 1
}

// submitCommand applies cmd through the state machine, appends the
// resulting record, and replicates it to lagging peers. Callers must
// hold hull.mu.
func (l *Leader) submitCommand(ctx context.Context, cmd []byte, onCommit func([]byte, error)) error {
	result, err := l.hull.pilot.ProcessCommand(ctx, cmd)
	if err != nil {
		if onCommit != nil {
			onCommit(nil, err)
		}
		return nil
	}

	prevIndex := l.hull.log.GetLastIndex()
	prevTerm := l.hull.log.GetLastTerm()
	rec := LogRecord{Code: RecordClient, Index: prevIndex + 1, Term: l.term, Committed: false, UserData: result}
	if err := l.hull.log.Append([]LogRecord{rec}); err != nil {
		wrapped := &LogStoreError{Op: "append", Err: err}
		l.hull.problems.record("log store error appending client command", wrapped)
		if onCommit != nil {
			onCommit(nil, wrapped)
		}
		return nil
	}
	if onCommit != nil {
		l.replyCallbacks[rec.Index] = onCommit
	}

	self := l.hull.localURI()
	for _, peer := range l.hull.cluster.NodeURIs {
		if peer == self {
			continue
		}
		if cursor := l.cursors[peer]; cursor != nil && cursor.NextIndex <= rec.Index {
			l.replicateToPeerLocked(peer)
		}
	}
	return nil
}

func (l *Leader) OnMessage(msg Message) {
	switch m := msg.(type) {
	case AppendResponseMessage:
		l.handleAppendResponse(m)
	case RequestVoteMessage:
		l.handleRequestVote(m)
	case AppendEntriesMessage:
		l.handleAppendEntries(m)
	case RequestVoteResponseMessage:
		l.logger.Debug().Msg("ignoring stray vote response while leading")
	default:
		l.hull.problems.record("unrecognized message type", &ProtocolError{Reason: "unknown message variant"})
	}
}

func (l *Leader) handleAppendResponse(m AppendResponseMessage) {
	if m.Term > l.term {
		l.heartbeatTimer.cancel()
		l.hull.stepDownOnHigherTerm(m.Term, nil)
		return
	}
	cursor, ok := l.cursors[m.Sender]
	if !ok {
		return
	}
	if !m.Success {
		if m.LastIndex > 0 {
			cursor.NextIndex = m.LastIndex + 1
		} else if cursor.NextIndex > 1 {
			cursor.NextIndex--
		}
		l.replicateToPeerLocked(m.Sender)
		return
	}

	if m.LastEntryIndex > cursor.MatchIndex {
		cursor.MatchIndex = m.LastEntryIndex
	}
	cursor.NextIndex = cursor.MatchIndex + 1
	l.advanceCommit()
	if cursor.NextIndex <= l.hull.log.GetLastIndex() {
		l.replicateToPeerLocked(m.Sender)
	}
}

// advanceCommit implements the Raft §5.4.2 commit rule: find the
// largest N > commit_index such that a majority (including self) has
// match_index >= N and the record at N was written in the current
// term.
func (l *Leader) advanceCommit() {
	commitIndex := l.hull.log.GetCommitIndex()
	lastIndex := l.hull.log.GetLastIndex()
	total := len(l.hull.cluster.NodeURIs)
	quorum := quorumSize(total)

	winner := LogIndex(0)
	for n := lastIndex; n > commitIndex; n-- {
		rec, ok := l.hull.log.Read(n)
		if !ok || rec.Term != l.term {
			continue
		}
		count := 1 // self
		for _, cursor := range l.cursors {
			if cursor.MatchIndex >= n {
				count++
			}
		}
		if count >= quorum {
			winner = n
			break
		}
	}
	if winner == 0 || winner <= commitIndex {
		return
	}
	if err := l.hull.log.Commit(winner); err != nil {
		l.hull.problems.record("log store error committing", &LogStoreError{Op: "commit", Err: err})
		return
	}
	l.fireCommitCallbacks(commitIndex+1, winner)
}

func (l *Leader) fireCommitCallbacks(from, to LogIndex) {
	for idx := from; idx <= to; idx++ {
		cb, ok := l.replyCallbacks[idx]
		if !ok {
			l.hull.publish(Event{Kind: EventCommitAdvanced, State: StateLeader, Term: l.term, Index: idx})
			continue
		}
		rec, ok2 := l.hull.log.Read(idx)
		delete(l.replyCallbacks, idx)
		if ok2 {
			cb(rec.UserData, nil)
		} else {
			cb(nil, &LogStoreError{Op: "read", Err: ErrMissingCommittedRecord})
		}
		l.hull.publish(Event{Kind: EventCommitAdvanced, State: StateLeader, Term: l.term, Index: idx})
	}
}

// handleRequestVote always denies at the leader's own term: a sitting
// leader with a current lease has no reason to vote for a challenger.
// A RequestVote carrying a strictly newer term, though, means this
// node's leadership is already stale elsewhere; it must step down to
// Follower before replying instead of continuing to lead at the old
// term until some later AppendResponse rejection notices the same
// thing.
func (l *Leader) handleRequestVote(m RequestVoteMessage) {
	if m.Term > l.term {
		l.heartbeatTimer.cancel()
		l.hull.stepDownOnHigherTerm(m.Term, m)
		return
	}
	ctx := context.Background()
	resp := RequestVoteResponseMessage{
		Envelope: l.hull.envelopeTo(m.Sender, l.term),
		Vote:     false,
	}
	if err := l.hull.pilot.SendResponse(ctx, m.Sender, m, resp); err != nil {
		l.hull.problems.record("transport error replying to vote request", &TransportError{Target: m.Sender, Err: err})
	}
}

func (l *Leader) handleAppendEntries(m AppendEntriesMessage) {
	if m.Term > l.term {
		l.heartbeatTimer.cancel()
		l.hull.stepDownOnHigherTerm(m.Term, m)
		return
	}
	ctx := context.Background()
	resp := AppendResponseMessage{
		Envelope: l.hull.envelopeTo(m.Sender, l.term),
		Success:  false,
	}
	if err := l.hull.pilot.SendResponse(ctx, m.Sender, m, resp); err != nil {
		l.hull.problems.record("transport error replying to rival leader", &TransportError{Target: m.Sender, Err: err})
	}
}
