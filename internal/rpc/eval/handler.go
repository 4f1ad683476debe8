package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/animus-coder/oraclebench/internal/observability"
	"github.com/animus-coder/oraclebench/internal/rpc"
)

// Handler processes RunEval requests and streams NDJSON events.
type Handler struct {
	runner  Runner
	metrics *observability.Metrics
}

// NewHandler constructs a handler instance.
func NewHandler(runner Runner, metrics *observability.Metrics) *Handler {
	return &Handler{runner: runner, metrics: metrics}
}

// ServeHTTP handles POST /eval/run with an NDJSON stream of RunEvalEvent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.metrics.RecordTransportError("ndjson", "method_not_allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.metrics.IncActiveSessions("ndjson")
	defer h.metrics.DecActiveSessions("ndjson")

	var req rpc.RunEvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordTransportError("ndjson", "decode")
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Scenario == "" {
		h.metrics.RecordTransportError("ndjson", "missing_scenario")
		http.Error(w, "scenario is required", http.StatusBadRequest)
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := h.runner.Run(r, req)
	if err != nil {
		h.metrics.RecordTransportError("ndjson", "runner_error")
		http.Error(w, fmt.Sprintf("runner error: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	for ev := range events {
		if err := json.NewEncoder(writer).Encode(ev); err != nil {
			break
		}
		writer.Flush()
		flusher.Flush()
	}
}
