package repair

import "github.com/animus-coder/oraclebench/internal/manifest"

// Stage identifies one step of the repair cascade.
type Stage string

const (
	StageInitial          Stage = "initial"
	StageRetryTruncation  Stage = "retry_truncation"
	StageRepairSyntax     Stage = "repair_syntax"
	StageRepairSchema     Stage = "repair_schema"
	StageScenarioContract Stage = "scenario_contract"
)

// AttemptReport records one parse attempt within a generation round.
type AttemptReport struct {
	Stage Stage              `json:"stage"`
	Model string             `json:"model,omitempty"`
	OK    bool               `json:"ok"`
	Error string             `json:"error,omitempty"`
	Kind  manifest.ErrorKind `json:"kind,omitempty"`
}

// ParseReport aggregates all parse attempts for one generation round.
// FinalOK is true iff the last attempt succeeded; FinalError/FinalKind are
// set iff FinalOK is false.
type ParseReport struct {
	Attempts   []AttemptReport    `json:"attempts"`
	FinalOK    bool               `json:"finalOk"`
	FinalError string             `json:"finalError,omitempty"`
	FinalKind  manifest.ErrorKind `json:"finalErrorKind,omitempty"`
}

func (r *ParseReport) record(a AttemptReport) {
	r.Attempts = append(r.Attempts, a)
}

// Fail marks the round as failed with the given error. Used for the
// scenario-contract stage, which is a classification step rather than a
// model call.
func (r *ParseReport) Fail(stage Stage, kind manifest.ErrorKind, msg string) {
	r.record(AttemptReport{Stage: stage, OK: false, Error: msg, Kind: kind})
	r.FinalOK = false
	r.FinalError = msg
	r.FinalKind = kind
}

// Stats counts unrecoverable parse failures per run, split by kind so raw
// model reliability and repair-model reliability stay distinguishable.
type Stats struct {
	PlannerFailures     int `json:"plannerFailures"`
	JSONRepairFailures  int `json:"jsonRepairFailures"`
	SchemaFailures      int `json:"schemaFailures"`
	JSONParseFailures   int `json:"jsonParseFailures"`
	PlaceholderFailures int `json:"placeholderFailures"`
	OtherFailures       int `json:"otherFailures"`
}

// RecordKind increments the counter for one unrecoverable failure kind.
func (s *Stats) RecordKind(kind manifest.ErrorKind) {
	switch kind {
	case manifest.KindJSONParse:
		s.JSONParseFailures++
	case manifest.KindSchema:
		s.SchemaFailures++
	case manifest.KindPlaceholder:
		s.PlaceholderFailures++
	default:
		s.OtherFailures++
	}
}

// Observe folds a finished parse report into the run counters: the final
// kind once if the round stayed failed, plus one jsonRepairFailure per
// repair-model attempt that did not recover the round.
func (s *Stats) Observe(r *ParseReport) {
	if r == nil {
		return
	}
	for _, a := range r.Attempts {
		if !a.OK && (a.Stage == StageRepairSyntax || a.Stage == StageRepairSchema) {
			s.JSONRepairFailures++
		}
	}
	if !r.FinalOK {
		s.RecordKind(r.FinalKind)
	}
}
