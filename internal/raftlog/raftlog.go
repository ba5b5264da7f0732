// Package raftlog implements raft.LogStore on top of go.etcd.io/bbolt,
// the key-indexed embedded record store the consensus core delegates
// durability to.
package raftlog

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/mathdee/raftcore/internal/raft"
)

var (
	recordsBucket = []byte("records")
	metaBucket    = []byte("meta")
	termKey       = []byte("term")
	commitKey     = []byte("commit_index")
)

// BoltLogStore is the sole LogStore implementation in this repo. A
// single bbolt file backs both the record bucket (index -> LogRecord)
// and the meta bucket (term, commit_index), giving L1-L4 for free from
// bbolt's single-writer transactions.
type BoltLogStore struct {
	mu sync.Mutex
	db *bolt.DB

	term        raft.Term
	commitIndex raft.LogIndex
	lastIndex   raft.LogIndex
	lastTerm    raft.Term
}

// Open creates or reopens the log store at <workingDir>/raft.db,
// anchored under the node's configured working directory.
func Open(workingDir string) (*BoltLogStore, error) {
	path := filepath.Join(workingDir, "raft.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("raftlog: opening %s: %w", path, err)
	}

	s := &BoltLogStore{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		records, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if v := meta.Get(termKey); v != nil {
			s.term = raft.Term(binary.BigEndian.Uint64(v))
		}
		if v := meta.Get(commitKey); v != nil {
			s.commitIndex = raft.LogIndex(binary.BigEndian.Uint64(v))
		}
		if k, v := records.Cursor().Last(); k != nil {
			s.lastIndex = raft.LogIndex(binary.BigEndian.Uint64(k))
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			s.lastTerm = rec.Term
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltLogStore) Close() error { return s.db.Close() }

func indexKey(index raft.LogIndex) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(index))
	return buf
}

func encodeRecord(rec raft.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (raft.LogRecord, error) {
	var rec raft.LogRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return raft.LogRecord{}, err
	}
	return rec, nil
}

func (s *BoltLogStore) GetTerm() raft.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term
}

func (s *BoltLogStore) SetTerm(t raft.Term) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t < s.term {
		return fmt.Errorf("raftlog: term %d is behind stored term %d", t, s.term)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(t))
		return tx.Bucket(metaBucket).Put(termKey, buf)
	})
	if err != nil {
		return err
	}
	s.term = t
	return nil
}

func (s *BoltLogStore) GetLastIndex() raft.LogIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIndex
}

func (s *BoltLogStore) GetLastTerm() raft.Term {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTerm
}

func (s *BoltLogStore) GetCommitIndex() raft.LogIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitIndex
}

// Append writes records in order, requiring each to extend the log by
// exactly one contiguous index (L2).
func (s *BoltLogStore) Append(records []raft.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.lastIndex
	for _, rec := range records {
		next++
		if rec.Index != next {
			return fmt.Errorf("raftlog: append expected index %d, got %d", next, rec.Index)
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		for _, rec := range records {
			data, err := encodeRecord(rec)
			if err != nil {
				return err
			}
			if err := b.Put(indexKey(rec.Index), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	last := records[len(records)-1]
	s.lastIndex = last.Index
	s.lastTerm = last.Term
	return nil
}

// ReplaceOrAppend overwrites rec's index and discards every record
// after it, or appends it if it extends the log (the Follower's
// conflict-resolution path when replicated entries disagree with
// what is already stored).
func (s *BoltLogStore) ReplaceOrAppend(rec raft.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Index == s.lastIndex+1 {
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(recordsBucket).Put(indexKey(rec.Index), data)
		}); err != nil {
			return err
		}
		s.lastIndex = rec.Index
		s.lastTerm = rec.Term
		return nil
	}
	if rec.Index < 1 || rec.Index > s.lastIndex {
		return fmt.Errorf("raftlog: replace index %d out of range [1, %d]", rec.Index, s.lastIndex)
	}

	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		c := b.Cursor()
		for k, _ := c.Seek(indexKey(rec.Index + 1)); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return b.Put(indexKey(rec.Index), data)
	})
	if err != nil {
		return err
	}
	s.lastIndex = rec.Index
	s.lastTerm = rec.Term
	return nil
}

// Commit advances commit_index, enforcing L3.
func (s *BoltLogStore) Commit(index raft.LogIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < s.commitIndex {
		return fmt.Errorf("raftlog: commit index %d is behind stored commit index %d", index, s.commitIndex)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(index))
		return tx.Bucket(metaBucket).Put(commitKey, buf)
	})
	if err != nil {
		return err
	}
	s.commitIndex = index
	return nil
}

// Read returns the record at index, or the last record when index is
// zero.
func (s *BoltLogStore) Read(index raft.LogIndex) (raft.LogRecord, bool) {
	s.mu.Lock()
	target := index
	if target == 0 {
		target = s.lastIndex
	}
	s.mu.Unlock()
	if target == 0 {
		return raft.LogRecord{}, false
	}

	var rec raft.LogRecord
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recordsBucket).Get(indexKey(target))
		if v == nil {
			return nil
		}
		decoded, err := decodeRecord(v)
		if err != nil {
			return err
		}
		rec = decoded
		found = true
		return nil
	})
	return rec, found
}

var _ raft.LogStore = (*BoltLogStore)(nil)
