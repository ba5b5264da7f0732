package raft

// evaluateVoteRequest applies the RequestVote grant rule shared by
// Follower and Candidate: grant iff the candidate's term is not
// stale, we have not already voted for someone else this term, and
// the candidate's log is at least as up-to-date as ours.
// adoptTerm is called when m carries a strictly newer term; this
// function does not persist the term itself, so the callback is
// responsible for adopting it (Follower.adoptTerm stores the term and
// clears the old vote).
func evaluateVoteRequest(h *Hull, m RequestVoteMessage, adoptTerm func(Term)) bool {
	log := h.log
	currentTerm := log.GetTerm()

	if m.Term < currentTerm {
		return false
	}
	if m.Term > currentTerm {
		adoptTerm(m.Term)
		currentTerm = m.Term
	}

	alreadyVotedOther := h.votedForTerm == currentTerm && h.votedFor != "" && h.votedFor != m.Sender
	if alreadyVotedOther {
		return false
	}
	if !isLogUpToDate(m.LastLogTerm, m.LastLogIndex, log.GetLastTerm(), log.GetLastIndex()) {
		return false
	}

	h.votedFor = m.Sender
	h.votedForTerm = currentTerm
	return true
}
