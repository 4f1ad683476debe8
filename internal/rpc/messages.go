package rpc

// RunEvalRequest is the top-level request for starting an evaluation run.
type RunEvalRequest struct {
	RunID         string `json:"run_id,omitempty"`
	Scenario      string `json:"scenario"`
	Model         string `json:"model,omitempty"`
	PlannerModel  string `json:"planner_model,omitempty"`
	RepairModel   string `json:"repair_model,omitempty"`
	ReviewerModel string `json:"reviewer_model,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
	FallbackMode  string `json:"fallback_mode,omitempty"`
	Seed          int    `json:"seed,omitempty"`
}

// RunEvalEvent streams back progress from the daemon.
type RunEvalEvent struct {
	Type      string      `json:"type"` // state|parse|validation|done|error
	RunID     string      `json:"run_id,omitempty"`
	Iteration int         `json:"iteration,omitempty"`
	State     string      `json:"state,omitempty"`
	Message   string      `json:"message,omitempty"`
	OK        bool        `json:"ok,omitempty"`
	Error     string      `json:"error,omitempty"`
	Done      bool        `json:"done,omitempty"`
	Result    *RunSummary `json:"result,omitempty"`
}

// RunSummary is the terminal payload of a run stream.
type RunSummary struct {
	RunID      string `json:"run_id"`
	Scenario   string `json:"scenario"`
	OK         bool   `json:"ok"`
	Iterations int    `json:"iterations"`
	FinalState string `json:"final_state"`
}

// RunEvalStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must contain the Run request; subsequent messages can
// carry control signals.
type RunEvalStreamRequest struct {
	Run    *RunEvalRequest `json:"run,omitempty"`
	Cancel bool            `json:"cancel,omitempty"`
	RunID  string          `json:"run_id,omitempty"`
}
