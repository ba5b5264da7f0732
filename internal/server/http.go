package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mathdee/raftcore/internal/kvstore"
	"github.com/mathdee/raftcore/internal/raft"
)

// HTTPServer is the node's status plane: JSON introspection plus a
// Prometheus exposition endpoint. The data plane (AppendEntries,
// RequestVote, client command replication) lives entirely in
// internal/transport; this listener never touches the Raft wire
// protocol.
type HTTPServer struct {
	hull    *raft.Hull
	store   *kvstore.Store
	metrics *Metrics
	logger  zerolog.Logger
}

func NewHTTPServer(hull *raft.Hull, store *kvstore.Store, metrics *Metrics, logger zerolog.Logger) *HTTPServer {
	return &HTTPServer{hull: hull, store: store, metrics: metrics, logger: logger.With().Str("component", "http_server").Logger()}
}

// StatusResponse is the dashboard's status shape, reading through
// Hull's accessors.
type StatusResponse struct {
	State       string `json:"state"`
	Term        uint64 `json:"term"`
	ID          string `json:"id"`
	CommitIndex uint64 `json:"commitIndex"`
	LeaderURI   string `json:"leaderUri"`
}

// HullSnapshot is the /hull endpoint's payload: a fuller picture of
// role-state than StatusResponse, including the message problem
// history that the core records but never propagates on its own.
type HullSnapshot struct {
	State       string          `json:"state"`
	Term        uint64          `json:"term"`
	CommitIndex uint64          `json:"commitIndex"`
	LeaderURI   string          `json:"leaderUri"`
	Problems    []ProblemReport `json:"problems"`
}

type ProblemReport struct {
	When   time.Time `json:"when"`
	Reason string    `json:"reason"`
	Error  string    `json:"error,omitempty"`
}

// CommandRequest is the client-facing submission format for a command
// to replicate, routed through internal/kvstore's Op codec.
type CommandRequest struct {
	Kind  string `json:"kind"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CommandResponse struct {
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, StatusResponse{
			State:       h.hull.StateCode().String(),
			Term:        uint64(h.hull.Term()),
			ID:          string(h.hull.MyURI()),
			CommitIndex: uint64(h.hull.CommitIndex()),
			LeaderURI:   string(h.hull.LeaderURI()),
		})
	})

	mux.HandleFunc("/hull", func(w http.ResponseWriter, r *http.Request) {
		problems := h.hull.ProblemHistory()
		reports := make([]ProblemReport, len(problems))
		for i, p := range problems {
			report := ProblemReport{When: p.When, Reason: p.Reason}
			if p.Err != nil {
				report.Error = p.Err.Error()
			}
			reports[i] = report
		}
		writeJSON(w, HullSnapshot{
			State:       h.hull.StateCode().String(),
			Term:        uint64(h.hull.Term()),
			CommitIndex: uint64(h.hull.CommitIndex()),
			LeaderURI:   string(h.hull.LeaderURI()),
			Problems:    reports,
		})
	})

	mux.HandleFunc("/dashboard/metrics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, h.metrics.GetSnapshot())
	})

	mux.HandleFunc("/dashboard/metrics/reset", func(w http.ResponseWriter, r *http.Request) {
		h.metrics.Reset()
		w.Write([]byte("metrics reset"))
	})

	mux.HandleFunc("/command", h.handleCommand)

	return mux
}

func (h *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	cmd, err := kvstore.EncodeOp(kvstore.Op{Kind: kvstore.OpKind(req.Kind), Key: req.Key, Value: req.Value})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	opStart := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	replyCh := make(chan CommandResponse, 1)
	err = h.hull.SubmitCommand(ctx, cmd, func(result []byte, err error) {
		if err != nil {
			replyCh <- CommandResponse{Error: err.Error()}
			return
		}
		res, decodeErr := kvstore.DecodeResult(result)
		if decodeErr != nil {
			replyCh <- CommandResponse{Error: decodeErr.Error()}
			return
		}
		replyCh <- CommandResponse{Value: res.Value, Found: res.Found}
	})
	if err != nil {
		h.metrics.RecordFailure()
		writeJSONStatus(w, http.StatusServiceUnavailable, CommandResponse{Error: err.Error()})
		return
	}

	select {
	case resp := <-replyCh:
		if resp.Error == "" {
			h.metrics.RecordSuccess(time.Since(opStart))
		} else {
			h.metrics.RecordFailure()
		}
		writeJSON(w, resp)
	case <-ctx.Done():
		h.metrics.RecordFailure()
		writeJSONStatus(w, http.StatusGatewayTimeout, CommandResponse{Error: "command did not commit in time"})
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
