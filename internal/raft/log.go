package raft

// LogStore is the external, durable record store a Hull is built on.
// Implementations must uphold:
//
//	L1 append-only content: a record at (index, term) is never
//	   rewritten with a different (term, user_data) once committed.
//	L2 contiguity: indices form 1..last_index with no gaps.
//	L3 commit monotonicity: commit index never decreases.
//	L4 term monotonicity: stored term never decreases.
//
// A concrete implementation lives in internal/raftlog.
type LogStore interface {
	GetTerm() Term
	SetTerm(t Term) error

	GetLastIndex() LogIndex
	GetLastTerm() Term

	GetCommitIndex() LogIndex

	// Append adds records after the current last index, in order.
	Append(records []LogRecord) error

	// ReplaceOrAppend appends rec if rec.Index == last_index+1;
	// otherwise it overwrites the record at rec.Index and truncates
	// everything after it.
	ReplaceOrAppend(rec LogRecord) error

	// Commit advances commit_index to index. Must be monotonic.
	Commit(index LogIndex) error

	// Read returns the record at index, or the last record when
	// index is 0. The bool is false when no such record exists.
	Read(index LogIndex) (LogRecord, bool)
}
