package raft

import (
	"context"
	"time"
)

// memLogStore is an in-memory LogStore used only by this package's
// tests. Indices are 1-based; records[0] corresponds to index 1.
type memLogStore struct {
	term        Term
	commitIndex LogIndex
	records     []LogRecord
}

func newMemLogStore() *memLogStore { return &memLogStore{} }

func (m *memLogStore) GetTerm() Term { return m.term }

func (m *memLogStore) SetTerm(t Term) error {
	if t < m.term {
		return &FatalError{Reason: "term went backwards"}
	}
	m.term = t
	return nil
}

func (m *memLogStore) GetLastIndex() LogIndex { return LogIndex(len(m.records)) }

func (m *memLogStore) GetLastTerm() Term {
	if len(m.records) == 0 {
		return 0
	}
	return m.records[len(m.records)-1].Term
}

func (m *memLogStore) GetCommitIndex() LogIndex { return m.commitIndex }

func (m *memLogStore) Append(records []LogRecord) error {
	for _, rec := range records {
		if rec.Index != LogIndex(len(m.records))+1 {
			return &FatalError{Reason: "append out of contiguous order"}
		}
		m.records = append(m.records, rec)
	}
	return nil
}

func (m *memLogStore) ReplaceOrAppend(rec LogRecord) error {
	if rec.Index == LogIndex(len(m.records))+1 {
		m.records = append(m.records, rec)
		return nil
	}
	if rec.Index < 1 || int(rec.Index) > len(m.records) {
		return &FatalError{Reason: "replace index out of range"}
	}
	m.records = m.records[:rec.Index-1]
	m.records = append(m.records, rec)
	return nil
}

func (m *memLogStore) Commit(index LogIndex) error {
	if index < m.commitIndex {
		return &FatalError{Reason: "commit index went backwards"}
	}
	m.commitIndex = index
	for i := range m.records {
		if m.records[i].Index <= index {
			m.records[i].Committed = true
		}
	}
	return nil
}

func (m *memLogStore) Read(index LogIndex) (LogRecord, bool) {
	if len(m.records) == 0 {
		return LogRecord{}, false
	}
	if index == 0 {
		return m.records[len(m.records)-1], true
	}
	if index < 1 || int(index) > len(m.records) {
		return LogRecord{}, false
	}
	return m.records[index-1], true
}

// memPilot is a PilotAPI test double that records every sent message
// instead of delivering it, and applies commands through a trivial
// echo state machine unless overridden.
type memPilot struct {
	log      *memLogStore
	sent     []sentMessage
	process  func(ctx context.Context, cmd []byte) ([]byte, error)
	sendErrs map[NodeId]error
}

type sentMessage struct {
	target   NodeId
	msg      Message
	response bool
}

func newMemPilot() *memPilot {
	return &memPilot{
		log:      newMemLogStore(),
		sendErrs: make(map[NodeId]error),
	}
}

func (p *memPilot) GetLog() LogStore { return p.log }

func (p *memPilot) SendMessage(ctx context.Context, target NodeId, msg Message) error {
	if err := p.sendErrs[target]; err != nil {
		return err
	}
	p.sent = append(p.sent, sentMessage{target: target, msg: msg})
	return nil
}

func (p *memPilot) SendResponse(ctx context.Context, target NodeId, in Message, response Message) error {
	if err := p.sendErrs[target]; err != nil {
		return err
	}
	p.sent = append(p.sent, sentMessage{target: target, msg: response, response: true})
	return nil
}

func (p *memPilot) ProcessCommand(ctx context.Context, command []byte) ([]byte, error) {
	if p.process != nil {
		return p.process(ctx, command)
	}
	out := make([]byte, len(command))
	copy(out, command)
	return out, nil
}

func (p *memPilot) lastSentTo(target NodeId) (Message, bool) {
	for i := len(p.sent) - 1; i >= 0; i-- {
		if p.sent[i].target == target {
			return p.sent[i].msg, true
		}
	}
	return nil, false
}

func testCluster(self NodeId, peers ...NodeId) ClusterConfig {
	return ClusterConfig{
		NodeURIs:           append([]NodeId{self}, peers...),
		HeartbeatPeriod:    10 * time.Millisecond,
		LeaderLostTimeout:  30 * time.Millisecond,
		ElectionTimeoutMin: 40 * time.Millisecond,
		ElectionTimeoutMax: 80 * time.Millisecond,
	}
}
