package raft

import (
	"context"

	"github.com/rs/zerolog"
)

// Candidate runs a single election campaign at a time, incrementing
// the term on every (re)start. One vote tally is owned by one
// Candidate instance; a retry that requires a new term always goes
// through a new campaign start, not a mutation of this one's tally.
type Candidate struct {
	hull       *Hull
	logger     zerolog.Logger
	terminated bool
	timer      *stateTimer

	term       Term
	votes      map[NodeId]*bool
	replyCount int
}

func newCandidate(h *Hull) *Candidate {
	return &Candidate{
		hull:   h,
		logger: h.logger.With().Str("role", "candidate").Logger(),
	}
}

func (c *Candidate) Code() StateCode { return StateCandidate }

func (c *Candidate) Start() {
	c.startCampaign()
}

func (c *Candidate) Stop() {
	c.terminated = true
	c.timer.cancel()
}

func (c *Candidate) startCampaign() {
	newTerm := c.hull.log.GetTerm() + 1
	if err := c.hull.log.SetTerm(newTerm); err != nil {
		c.hull.problems.record("log store error bumping term", &LogStoreError{Op: "set_term", Err: err})
		// Retry the whole campaign when the election timer next fires.
		if c.timer == nil {
			c.timer = newStateTimer(c.hull.electionTimeout(), c.onElectionTimeout)
		} else {
			c.timer.reset(c.hull.electionTimeout())
		}
		return
	}
	c.term = newTerm
	c.replyCount = 0
	c.votes = make(map[NodeId]*bool, len(c.hull.cluster.NodeURIs))

	self := c.hull.localURI()
	yes := true
	c.votes[self] = &yes
	c.hull.votedFor = self
	c.hull.votedForTerm = newTerm

	lastIndex := c.hull.log.GetLastIndex()
	lastTerm := c.hull.log.GetLastTerm()

	for _, peer := range c.hull.cluster.NodeURIs {
		if peer == self {
			continue
		}
		c.votes[peer] = nil
		msg := RequestVoteMessage{
			Envelope:     c.hull.envelopeTo(peer, newTerm),
			LastLogIndex: lastIndex,
			LastLogTerm:  lastTerm,
		}
		if err := c.hull.pilot.SendMessage(context.Background(), peer, msg); err != nil {
			c.hull.problems.record("transport error requesting vote", &TransportError{Target: peer, Err: err})
		}
	}

	timeout := c.hull.electionTimeout()
	if c.timer == nil {
		c.timer = newStateTimer(timeout, c.onElectionTimeout)
	} else {
		c.timer.reset(timeout)
	}
	c.hull.publish(Event{Kind: EventStateEntered, State: StateCandidate, Term: newTerm})
	c.logger.Info().Uint64("term", uint64(newTerm)).Msg("campaign started")

	// A single-node cluster satisfies quorum on the self-vote alone;
	// win immediately rather than waiting for a response that will
	// never come.
	if quorumSize(len(c.votes)) <= 1 {
		c.timer.cancel()
		c.hull.winVoteLocked(newTerm)
	}
}

func (c *Candidate) onElectionTimeout() {
	c.hull.mu.Lock()
	defer c.hull.mu.Unlock()
	if c.terminated {
		return
	}
	c.logger.Info().Msg("election timed out, restarting campaign")
	c.startCampaign()
}

func (c *Candidate) OnMessage(msg Message) {
	switch m := msg.(type) {
	case RequestVoteResponseMessage:
		c.handleVoteResponse(m)
	case AppendEntriesMessage:
		c.handleAppendEntries(m)
	case RequestVoteMessage:
		c.handleRequestVote(m)
	case AppendResponseMessage:
		c.hull.problems.record("stale append response received while candidate", nil)
	default:
		c.hull.problems.record("unrecognized message type", &ProtocolError{Reason: "unknown message variant"})
	}
}

func (c *Candidate) handleVoteResponse(m RequestVoteResponseMessage) {
	if m.Term < c.term {
		c.logger.Debug().Msg("ignoring out of date vote response")
		return
	}
	if m.Term > c.term {
		c.stepDownObservingTerm(m.Term)
		return
	}

	if _, known := c.votes[m.Sender]; !known {
		return
	}
	vote := m.Vote
	c.votes[m.Sender] = &vote
	c.replyCount++

	total := len(c.votes)
	quorum := quorumSize(total)
	yes, undecided := 0, 0
	for _, v := range c.votes {
		switch {
		case v == nil:
			undecided++
		case *v:
			yes++
		}
	}

	if yes >= quorum {
		c.timer.cancel()
		c.hull.winVoteLocked(c.term)
		return
	}
	if yes+undecided < quorum {
		c.logger.Info().Msg("campaign cannot reach quorum, retrying")
		c.timer.reset(c.hull.electionTimeout())
	}
}

func (c *Candidate) handleAppendEntries(m AppendEntriesMessage) {
	if m.Term >= c.term {
		c.timer.cancel()
		c.hull.demoteAndHandleLocked(m)
		return
	}
	ctx := context.Background()
	resp := AppendResponseMessage{
		Envelope: c.hull.envelopeTo(m.Sender, c.term),
		Success:  false,
	}
	if err := c.hull.pilot.SendResponse(ctx, m.Sender, m, resp); err != nil {
		c.hull.problems.record("transport error replying", &TransportError{Target: m.Sender, Err: err})
	}
}

// handleRequestVote grants or denies a vote at the candidate's own
// term. A RequestVote carrying a strictly newer term means some other
// node's election is ahead of this one: a candidate observing a
// higher term steps down to Follower (same as on AppendEntries) and
// lets the new Follower evaluate and answer the request, instead of
// merely adopting the term and remaining a Candidate. Staying a
// Candidate here would leave c.term stale, so an outstanding
// same-term vote response could still satisfy handleVoteResponse's
// quorum check and win an election for a term that is no longer
// current.
func (c *Candidate) handleRequestVote(m RequestVoteMessage) {
	if m.Term > c.term {
		c.timer.cancel()
		c.hull.stepDownOnHigherTerm(m.Term, m)
		return
	}
	granted := evaluateVoteRequest(c.hull, m, func(Term) {
		c.hull.problems.record("candidate observed higher term inside evaluateVoteRequest after guard", nil)
	})
	ctx := context.Background()
	resp := RequestVoteResponseMessage{
		Envelope: c.hull.envelopeTo(m.Sender, c.hull.log.GetTerm()),
		Vote:     granted,
	}
	if err := c.hull.pilot.SendResponse(ctx, m.Sender, m, resp); err != nil {
		c.hull.problems.record("transport error replying", &TransportError{Target: m.Sender, Err: err})
	}
}

// stepDownObservingTerm adopts t and demotes to Follower without
// re-dispatching any message (used from the vote-response path, which
// carries no message to reprocess).
func (c *Candidate) stepDownObservingTerm(t Term) {
	if err := c.hull.log.SetTerm(t); err != nil {
		c.hull.problems.record("log store error adopting term", &LogStoreError{Op: "set_term", Err: err})
	}
	c.hull.votedFor = ""
	c.hull.votedForTerm = 0
	c.timer.cancel()
	c.hull.demoteAndHandleLocked(nil)
}
