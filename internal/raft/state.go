package raft

// StateCode tags which RoleState variant a Hull currently owns.
type StateCode int

const (
	StatePaused StateCode = iota
	StateFollower
	StateCandidate
	StateLeader
)

func (c StateCode) String() string {
	switch c {
	case StatePaused:
		return "paused"
	case StateFollower:
		return "follower"
	case StateCandidate:
		return "candidate"
	case StateLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// RoleState is the tagged-variant interface implemented by Follower,
// Candidate and Leader (plus the trivial paused sentinel). Exactly one
// is active per Hull at a time. The Hull calls Start once on
// installation and Stop exactly once before discarding it; Stop must
// be idempotent-safe against in-flight timer callbacks.
type RoleState interface {
	Code() StateCode
	Start()
	Stop()
	OnMessage(msg Message)
}

// pausedState is installed before Hull.Start. A message that reaches
// the Hull before Start is dispatched to it and dropped.
type pausedState struct{}

func (pausedState) Code() StateCode    { return StatePaused }
func (pausedState) Start()             {}
func (pausedState) Stop()              {}
func (pausedState) OnMessage(Message) {}

// isLogUpToDate implements the Raft "up-to-date log" comparison used
// by vote granting: a candidate's log is at least as up-to-date as
// ours when its last entry has a later term, or an equal term and an
// index no smaller than ours.
func isLogUpToDate(candidateLastTerm Term, candidateLastIndex LogIndex, localLastTerm Term, localLastIndex LogIndex) bool {
	if candidateLastTerm != localLastTerm {
		return candidateLastTerm > localLastTerm
	}
	return candidateLastIndex >= localLastIndex
}
