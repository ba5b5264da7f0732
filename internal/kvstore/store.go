// Package kvstore is the application state machine a Pilot hands
// client command payloads to: a WAL-backed key/value table driven by a
// small []byte-codec of Set/Get/Delete operations.
package kvstore

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mathdee/raftcore/internal/wal"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is an in-memory key/value table backed by a write-ahead log
// for crash recovery. Unlike the Raft commit log (internal/raftlog),
// this WAL only protects the state machine's own application of the
// commands it executes; it is not part of the consensus log.
type Store struct {
	mu     sync.RWMutex
	wal    *wal.WAL
	data   map[string]string
	logger zerolog.Logger
}

func NewStore(w *wal.WAL) *Store {
	return &Store{
		data:   make(map[string]string),
		wal:    w,
		logger: zerolog.Nop(),
	}
}

// WithLogger attaches a logger Execute uses to correlate every applied
// command with the request id it is tagged with.
func (s *Store) WithLogger(logger zerolog.Logger) *Store {
	s.logger = logger.With().Str("component", "kvstore").Logger()
	return s
}

// Restore replaces the in-memory table wholesale, used once at
// startup after wal.Recover.
func (s *Store) Restore(data map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}

func (s *Store) set(key, value string) error {
	if err := s.wal.WriteEntry(key, value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Store) get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.data[key]
	return val, ok
}

func (s *Store) delete(key string) error {
	if err := s.wal.WriteDelete(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Get reads a key directly, bypassing consensus. Reference nodes use
// this for local reads once a command has committed; it gives no
// linearizability guarantee on its own.
func (s *Store) Get(key string) (string, error) {
	val, ok := s.get(key)
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// Execute implements transport.Executor: it decodes cmd as an Op,
// applies it, and returns a gob-encoded Result. Every call is tagged
// with a fresh request id (github.com/google/uuid), logged alongside
// the operation so a slow or failing apply can be traced back to the
// command that produced it.
func (s *Store) Execute(ctx context.Context, cmd []byte) ([]byte, error) {
	requestID := uuid.New()
	op, err := decodeOp(cmd)
	if err != nil {
		s.logger.Warn().Str("request_id", requestID.String()).Err(err).Msg("failed to decode command")
		return nil, err
	}
	s.logger.Debug().Str("request_id", requestID.String()).Str("kind", string(op.Kind)).Str("key", op.Key).Msg("applying command")

	switch op.Kind {
	case OpSet:
		if err := s.set(op.Key, op.Value); err != nil {
			return nil, err
		}
		return encodeResult(Result{Value: op.Value, Found: true})
	case OpGet:
		val, found := s.get(op.Key)
		return encodeResult(Result{Value: val, Found: found})
	case OpDelete:
		if err := s.delete(op.Key); err != nil {
			return nil, err
		}
		return encodeResult(Result{Found: true})
	default:
		return nil, errUnknownOp(op.Kind, requestID.String())
	}
}

func errUnknownOp(kind OpKind, requestID string) error {
	return &UnknownOpError{Kind: kind, RequestID: requestID}
}

// UnknownOpError is returned when an Op names an OpKind this store
// does not implement.
type UnknownOpError struct {
	Kind      OpKind
	RequestID string
}

func (e *UnknownOpError) Error() string {
	return "kvstore: unknown op " + string(e.Kind) + " (request " + e.RequestID + ")"
}
