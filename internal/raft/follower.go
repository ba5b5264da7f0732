package raft

import (
	"context"

	"github.com/rs/zerolog"
)

// Follower is the passive member role: it accepts AppendEntries and
// RequestVote from peers, replicates the log passively, and detects
// leader loss via leader_lost_timer.
type Follower struct {
	hull       *Hull
	logger     zerolog.Logger
	terminated bool
	timer      *stateTimer
	leaderURI  NodeId
}

func newFollower(h *Hull) *Follower {
	return &Follower{
		hull:   h,
		logger: h.logger.With().Str("role", "follower").Logger(),
	}
}

func (f *Follower) Code() StateCode { return StateFollower }

func (f *Follower) Start() {
	f.resetLeaderLostTimer()
	f.hull.publish(Event{Kind: EventStateEntered, State: StateFollower, Term: f.hull.log.GetTerm()})
}

func (f *Follower) Stop() {
	f.terminated = true
	f.timer.cancel()
}

func (f *Follower) resetLeaderLostTimer() {
	timeout := f.hull.cluster.LeaderLostTimeout
	if f.timer == nil {
		f.timer = newStateTimer(timeout, f.onLeaderLost)
		return
	}
	f.timer.reset(timeout)
}

func (f *Follower) onLeaderLost() {
	f.hull.mu.Lock()
	defer f.hull.mu.Unlock()
	if f.terminated {
		return
	}
	f.logger.Info().Msg("leader lost, starting campaign")
	f.hull.startCampaignLocked()
}

// OnMessage is called by the Hull with hull.mu already held.
func (f *Follower) OnMessage(msg Message) {
	switch m := msg.(type) {
	case AppendEntriesMessage:
		f.handleAppendEntries(m)
	case RequestVoteMessage:
		f.handleRequestVote(m)
	case RequestVoteResponseMessage, AppendResponseMessage:
		f.hull.problems.record("stale response received while follower", nil)
		f.hull.publish(Event{Kind: EventProblem, State: StateFollower, Reason: "stale response while follower"})
	default:
		f.hull.problems.record("unrecognized message type", &ProtocolError{Reason: "unknown message variant"})
	}
}

func (f *Follower) handleAppendEntries(m AppendEntriesMessage) {
	log := f.hull.log
	currentTerm := log.GetTerm()

	if m.Term < currentTerm {
		f.reply(m, AppendResponseMessage{
			Envelope: f.hull.envelopeTo(m.Sender, currentTerm),
			Success:  false,
		})
		return
	}

	if m.Term > currentTerm {
		f.adoptTerm(m.Term)
		currentTerm = m.Term
	}

	f.resetLeaderLostTimer()
	f.leaderURI = m.Sender

	if m.PrevLogIndex > 0 {
		rec, ok := log.Read(m.PrevLogIndex)
		if !ok || rec.Term != m.PrevLogTerm {
			f.reply(m, AppendResponseMessage{
				Envelope:  f.hull.envelopeTo(m.Sender, currentTerm),
				Success:   false,
				LastIndex: log.GetLastIndex(),
			})
			return
		}
	}

	for _, entry := range m.Entries {
		existing, ok := log.Read(entry.Index)
		switch {
		case ok && existing.Term != entry.Term:
			if err := log.ReplaceOrAppend(entry); err != nil {
				f.hull.problems.record("log store error truncating/appending", &LogStoreError{Op: "replace_or_append", Err: err})
				return
			}
		case !ok && entry.Index == log.GetLastIndex()+1:
			if err := log.Append([]LogRecord{entry}); err != nil {
				f.hull.problems.record("log store error appending", &LogStoreError{Op: "append", Err: err})
				return
			}
		default:
			// Matching term already present, or index more than one
			// past last_index: never write out of contiguous order.
		}
	}

	if m.LeaderCommit > log.GetCommitIndex() {
		newCommit := m.LeaderCommit
		if last := log.GetLastIndex(); newCommit > last {
			newCommit = last
		}
		if err := log.Commit(newCommit); err != nil {
			f.hull.problems.record("log store error committing", &LogStoreError{Op: "commit", Err: err})
		} else {
			f.hull.publish(Event{Kind: EventCommitAdvanced, State: StateFollower, Term: currentTerm, Index: newCommit})
		}
	}

	f.reply(m, AppendResponseMessage{
		Envelope:       f.hull.envelopeTo(m.Sender, currentTerm),
		Success:        true,
		LastEntryIndex: log.GetLastIndex(),
	})
}

func (f *Follower) handleRequestVote(m RequestVoteMessage) {
	granted := evaluateVoteRequest(f.hull, m, f.adoptTerm)
	if granted {
		f.resetLeaderLostTimer()
	}
	f.reply(m, RequestVoteResponseMessage{
		Envelope: f.hull.envelopeTo(m.Sender, f.hull.log.GetTerm()),
		Vote:     granted,
	})
}

// adoptTerm sets the log's term to t and clears any vote cast in an
// earlier term.
func (f *Follower) adoptTerm(t Term) {
	if err := f.hull.log.SetTerm(t); err != nil {
		f.hull.problems.record("log store error adopting term", &LogStoreError{Op: "set_term", Err: err})
		return
	}
	f.hull.votedFor = ""
	f.hull.votedForTerm = 0
}

func (f *Follower) reply(in Message, out Message) {
	ctx := context.Background()
	if err := f.hull.pilot.SendResponse(ctx, in.envelope().Sender, in, out); err != nil {
		f.hull.problems.record("transport error replying", &TransportError{Target: in.envelope().Sender, Err: err})
	}
}
