package raft

// Code identifies a message variant for dispatch and logging.
type Code string

const (
	CodeRequestVote         Code = "REQUEST_VOTE"
	CodeRequestVoteResponse Code = "REQUEST_VOTE_RESPONSE"
	CodeAppendEntries       Code = "APPEND_ENTRIES"
	CodeAppendResponse      Code = "APPEND_RESPONSE"
)

// Message is the closed set of wire messages the core understands.
// Every variant embeds Envelope, which carries the fields common to
// all Raft messages: sender, receiver and term.
type Message interface {
	GetCode() Code
	envelope() Envelope
}

// Envelope carries the fields shared by every message variant.
type Envelope struct {
	Sender   NodeId
	Receiver NodeId
	Term     Term
}

func (e Envelope) envelope() Envelope { return e }

// RequestVoteMessage solicits a vote from a peer for a candidacy in
// Term, describing the candidate's log tail so the receiver can apply
// the up-to-date-log rule.
type RequestVoteMessage struct {
	Envelope
	LastLogIndex LogIndex
	LastLogTerm  Term
}

func (RequestVoteMessage) GetCode() Code { return CodeRequestVote }

// RequestVoteResponseMessage is a follower or candidate's reply to a
// RequestVoteMessage.
type RequestVoteResponseMessage struct {
	Envelope
	Vote bool
}

func (RequestVoteResponseMessage) GetCode() Code { return CodeRequestVoteResponse }

// AppendEntriesMessage both replicates log entries and, with an empty
// Entries slice, serves as a heartbeat. LeaderCommit is always present,
// including on pure heartbeats, and always advances the follower's
// commit index when larger.
type AppendEntriesMessage struct {
	Envelope
	PrevLogIndex LogIndex
	PrevLogTerm  Term
	LeaderCommit LogIndex
	Entries      []LogRecord
}

func (AppendEntriesMessage) GetCode() Code { return CodeAppendEntries }

// IsHeartbeat reports whether this AppendEntries carries no new
// entries.
func (m AppendEntriesMessage) IsHeartbeat() bool { return len(m.Entries) == 0 }

// AppendResponseMessage is a follower's or stepped-down leader's reply
// to an AppendEntriesMessage. LastIndex is a catch-up hint used by the
// leader to jump next_index instead of decrementing one at a time;
// LastEntryIndex is populated on success and names the last applied
// index.
type AppendResponseMessage struct {
	Envelope
	Success        bool
	LastEntryIndex LogIndex
	LastIndex      LogIndex
}

func (AppendResponseMessage) GetCode() Code { return CodeAppendResponse }
