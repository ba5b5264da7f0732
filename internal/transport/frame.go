package transport

import "github.com/mathdee/raftcore/internal/raft"

// frame is the on-the-wire envelope for a single raft.Message. Rather
// than gob-registering the raft.Message interface, exactly one of the
// typed fields is populated per Code, avoiding interface decoding
// pitfalls entirely (mirrors the exported-field discipline
// internal/wireformat warns about).
type frame struct {
	Code           raft.Code
	RequestVote    *raft.RequestVoteMessage
	VoteResponse   *raft.RequestVoteResponseMessage
	AppendEntries  *raft.AppendEntriesMessage
	AppendResponse *raft.AppendResponseMessage
}

func toFrame(msg raft.Message) frame {
	switch m := msg.(type) {
	case raft.RequestVoteMessage:
		return frame{Code: raft.CodeRequestVote, RequestVote: &m}
	case raft.RequestVoteResponseMessage:
		return frame{Code: raft.CodeRequestVoteResponse, VoteResponse: &m}
	case raft.AppendEntriesMessage:
		return frame{Code: raft.CodeAppendEntries, AppendEntries: &m}
	case raft.AppendResponseMessage:
		return frame{Code: raft.CodeAppendResponse, AppendResponse: &m}
	default:
		return frame{}
	}
}

func fromFrame(f frame) (raft.Message, error) {
	switch f.Code {
	case raft.CodeRequestVote:
		if f.RequestVote == nil {
			return nil, &raft.ProtocolError{Reason: "empty request_vote frame"}
		}
		return *f.RequestVote, nil
	case raft.CodeRequestVoteResponse:
		if f.VoteResponse == nil {
			return nil, &raft.ProtocolError{Reason: "empty request_vote_response frame"}
		}
		return *f.VoteResponse, nil
	case raft.CodeAppendEntries:
		if f.AppendEntries == nil {
			return nil, &raft.ProtocolError{Reason: "empty append_entries frame"}
		}
		return *f.AppendEntries, nil
	case raft.CodeAppendResponse:
		if f.AppendResponse == nil {
			return nil, &raft.ProtocolError{Reason: "empty append_response frame"}
		}
		return *f.AppendResponse, nil
	default:
		return nil, &raft.ProtocolError{Reason: "unknown frame code"}
	}
}
