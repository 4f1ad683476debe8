// Package runner drives one evaluation run: generate, parse (with the
// repair cascade), write the tree, validate (with deterministic fallback),
// and build the next repair prompt from diagnostics, until success or the
// iteration budget is exhausted.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/animus-coder/oraclebench/internal/gen"
	"github.com/animus-coder/oraclebench/internal/manifest"
	"github.com/animus-coder/oraclebench/internal/observability"
	"github.com/animus-coder/oraclebench/internal/oracle"
	"github.com/animus-coder/oraclebench/internal/repair"
	"github.com/animus-coder/oraclebench/internal/scenario"
	"github.com/animus-coder/oraclebench/internal/workspace"
)

// State is the iteration controller's position in the run state machine.
type State string

const (
	StateGenerating State = "generating"
	StateParsing    State = "parsing"
	StateWriting    State = "writing"
	StateValidating State = "validating"
	StateRepairing  State = "repairing"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Event is one progress notification emitted while a run executes.
type Event struct {
	Type      string `json:"type"` // state|parse|validation|done|error
	RunID     string `json:"run_id,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
	State     State  `json:"state,omitempty"`
	Message   string `json:"message,omitempty"`
	OK        bool   `json:"ok,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Options are the per-run knobs of the iteration controller.
type Options struct {
	RunID           string
	TargetModel     string
	PlannerModel    string
	RepairModel     string
	ReviewerModel   string
	MaxIterations   int
	FallbackMode    oracle.FallbackMode
	Seed            int
	EnablePlanner   bool
	EnableReviewer  bool
	MaxLogBytes     int
	MaxSnippetLines int
}

// Result summarizes one finished run.
type Result struct {
	RunID         string               `json:"runId"`
	Scenario      string               `json:"scenario"`
	OK            bool                 `json:"ok"`
	Iterations    int                  `json:"iterations"`
	FinalState    State                `json:"finalState"`
	ParseStats    repair.Stats         `json:"parseStats"`
	FallbackStats oracle.FallbackStats `json:"fallbackStats"`
}

// Pipeline owns all mutable state for a single evaluation run. Nothing is
// shared between runs; a batch coordinator schedules independent Pipelines.
type Pipeline struct {
	Opts      Options
	Scenario  *scenario.Scenario
	Gen       *gen.Generator
	Cascade   *repair.Cascade
	Tree      *workspace.Tree
	Fallback  *oracle.Fallback
	Artifacts *ArtifactWriter
	Metrics   *observability.Metrics
	Logger    *zap.Logger
	Events    func(Event) // optional sink for streaming transports

	stats repair.Stats
}

// Run executes the state machine until Done, Failed, or a fatal
// infrastructure error (unsafe path, filesystem failure, cancellation).
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if p.Opts.MaxLogBytes <= 0 {
		p.Opts.MaxLogBytes = 4096
	}
	if p.Opts.MaxSnippetLines <= 0 {
		p.Opts.MaxSnippetLines = 40
	}

	prompt := p.Scenario.Prompt
	if p.Opts.EnablePlanner {
		if plan := p.planFiles(ctx, logger); plan != "" {
			prompt = prompt + "\n\nPlanned files:\n" + plan
		}
	}

	result := &Result{RunID: p.Opts.RunID, Scenario: p.Scenario.Name, FinalState: StateFailed}
	defer func() {
		result.ParseStats = p.stats
		result.FallbackStats = *p.Fallback.Stats
		_ = p.Artifacts.WriteSummary(result)
	}()

	for iteration := 1; iteration <= p.Opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Iterations = iteration
		iterStart := time.Now()

		p.emit(Event{Type: "state", RunID: p.Opts.RunID, Iteration: iteration, State: StateGenerating})
		if err := p.Artifacts.WriteText(iteration, "prompt.txt", prompt); err != nil {
			return result, err
		}

		text, meta, genErr := p.Gen.Structured(ctx, gen.Request{
			Model:       p.Opts.TargetModel,
			System:      p.Scenario.System,
			Prompt:      prompt,
			SchemaName:  manifest.SchemaName,
			Schema:      manifest.Schema,
			Seed:        p.Opts.Seed,
			Reliability: iteration > 1,
		})
		if genErr != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			// Transport-fatal: skip write/validate, repair from the bare error.
			logger.Warn("generation failed", zap.Int("iteration", iteration), zap.Error(genErr))
			p.emit(Event{Type: "error", RunID: p.Opts.RunID, Iteration: iteration, State: StateRepairing, Error: genErr.Error()})
			if err := p.Artifacts.WriteText(iteration, "generation_error.txt", genErr.Error()); err != nil {
				return result, err
			}
			prompt = buildTransportRepairPrompt(p.Scenario, genErr)
			continue
		}

		p.Metrics.RecordGeneration(string(meta.Transport), string(meta.Format), meta.FellBack, meta.FallbackReason)
		if err := p.Artifacts.WriteText(iteration, "response.txt", text); err != nil {
			return result, err
		}
		if err := p.Artifacts.WriteJSON(iteration, "generation_meta.json", meta); err != nil {
			return result, err
		}

		p.emit(Event{Type: "state", RunID: p.Opts.RunID, Iteration: iteration, State: StateParsing})
		m, report := p.Cascade.Run(ctx, repair.Round{
			System:       p.Scenario.System,
			Prompt:       prompt,
			Text:         text,
			FinishReason: meta.FinishReason,
			Seed:         p.Opts.Seed,
		})

		var asPatch bool
		if report.FinalOK {
			m, asPatch = p.checkContract(iteration, m, report)
		}

		if err := p.Artifacts.WriteJSON(iteration, "parse_report.json", report); err != nil {
			return result, err
		}
		p.stats.Observe(report)

		if !report.FinalOK {
			p.Metrics.RecordParseFailure(string(report.FinalKind))
			p.emit(Event{Type: "parse", RunID: p.Opts.RunID, Iteration: iteration, OK: false, Error: report.FinalError})
			prompt = buildParseRepairPrompt(p.Scenario, report)
			continue
		}
		p.emit(Event{Type: "parse", RunID: p.Opts.RunID, Iteration: iteration, OK: true, Message: fmt.Sprintf("%d files, mode %s", len(m.Files), m.Mode)})

		p.emit(Event{Type: "state", RunID: p.Opts.RunID, Iteration: iteration, State: StateWriting})
		writeReport, err := p.Tree.Apply(m, asPatch)
		if err != nil {
			// Unsafe paths and filesystem failures abort the run; no repair
			// prompt can fix a contract violation at this layer.
			return result, err
		}
		if err := p.Artifacts.WriteJSON(iteration, "manifest.json", m); err != nil {
			return result, err
		}
		if err := p.Artifacts.WriteJSON(iteration, "write_report.json", writeReport); err != nil {
			return result, err
		}

		p.emit(Event{Type: "state", RunID: p.Opts.RunID, Iteration: iteration, State: StateValidating})
		validation, err := p.Fallback.Validate(ctx, p.Opts.FallbackMode)
		if err != nil {
			return result, err
		}
		if err := p.Artifacts.WriteJSON(iteration, "validation.json", validation); err != nil {
			return result, err
		}
		p.Metrics.RecordIteration(p.Scenario.Name, time.Since(iterStart))

		if validation.OK {
			p.emit(Event{Type: "validation", RunID: p.Opts.RunID, Iteration: iteration, OK: true})
			if p.Opts.EnableReviewer {
				p.review(ctx, logger, iteration)
			}
			result.OK = true
			result.FinalState = StateDone
			p.Metrics.RecordRun("ok")
			p.emit(Event{Type: "done", RunID: p.Opts.RunID, Iteration: iteration, OK: true})
			return result, nil
		}

		p.emit(Event{Type: "validation", RunID: p.Opts.RunID, Iteration: iteration, OK: false, Message: strings.Join(validation.Diagnostics, "; ")})
		p.emit(Event{Type: "state", RunID: p.Opts.RunID, Iteration: iteration, State: StateRepairing})
		prompt = buildValidationRepairPrompt(p.Scenario, validation, p.Tree, p.Opts.MaxLogBytes, p.Opts.MaxSnippetLines)
	}

	result.FinalState = StateFailed
	p.Metrics.RecordRun("fail")
	p.emit(Event{Type: "done", RunID: p.Opts.RunID, Iteration: result.Iterations, OK: false, Error: "iteration budget exhausted"})
	return result, nil
}

// checkContract enforces the scenario file contract: the first iteration
// must be a full manifest covering every required file; a later full
// manifest missing required files is demoted to a patch instead of wiping
// the tree.
func (p *Pipeline) checkContract(iteration int, m *manifest.Manifest, report *repair.ParseReport) (*manifest.Manifest, bool) {
	missing := missingRequired(m, p.Scenario.RequiredFiles)

	if iteration == 1 {
		if m.Mode != manifest.ModeFull {
			report.Fail(repair.StageScenarioContract, manifest.KindSchema, "first iteration must use mode \"full\"")
			return nil, false
		}
		if len(missing) > 0 {
			report.Fail(repair.StageScenarioContract, manifest.KindSchema,
				"full manifest is missing required files: "+strings.Join(missing, ", "))
			return nil, false
		}
		return m, false
	}

	if m.Mode == manifest.ModeFull && len(missing) > 0 {
		return m, true
	}
	return m, false
}

func missingRequired(m *manifest.Manifest, required []string) []string {
	have := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		have[manifest.NormalizePath(f.Path)] = true
	}
	var missing []string
	for _, r := range required {
		if !have[manifest.NormalizePath(r)] {
			missing = append(missing, r)
		}
	}
	return missing
}

// planFiles runs the optional planner pre-phase: a cheap model drafts the
// file list fed into the first generation prompt. Planner failures are
// counted but never block the run.
func (p *Pipeline) planFiles(ctx context.Context, logger *zap.Logger) string {
	var plan struct {
		Files []string `json:"files"`
	}
	_, err := p.Gen.StructuredObject(ctx, gen.Request{
		Model: p.Opts.PlannerModel,
		Prompt: "List the file paths needed to satisfy this task as JSON {\"files\": [\"...\"]}:\n\n" +
			p.Scenario.Prompt,
		SchemaName:  "file_plan",
		Schema:      planSchema,
		Reliability: true,
	}, &plan)
	if err != nil {
		p.stats.PlannerFailures++
		logger.Warn("planner phase failed", zap.Error(err))
		return ""
	}
	return "- " + strings.Join(plan.Files, "\n- ")
}

// review runs the optional reviewer gate on a passing tree. The critique is
// logged and persisted only; it never changes the outcome.
func (p *Pipeline) review(ctx context.Context, logger *zap.Logger, iteration int) {
	var critique struct {
		Quality string   `json:"quality"`
		Issues  []string `json:"issues"`
	}
	_, err := p.Gen.StructuredObject(ctx, gen.Request{
		Model: p.Opts.ReviewerModel,
		Prompt: "Briefly critique the generated project for the task below as JSON {\"quality\": \"good|ok|poor\", \"issues\": [\"...\"]}.\n\nTask:\n" +
			p.Scenario.Prompt,
		SchemaName:  "review",
		Schema:      reviewSchema,
		Reliability: true,
	}, &critique)
	if err != nil {
		logger.Warn("reviewer phase failed", zap.Error(err))
		return
	}
	logger.Info("reviewer critique", zap.String("quality", critique.Quality), zap.Strings("issues", critique.Issues))
	_ = p.Artifacts.WriteJSON(iteration, "review.json", critique)
}

func (p *Pipeline) emit(evt Event) {
	if p.Events != nil {
		p.Events(evt)
	}
}

// IsUnsafePath reports whether a run-fatal error was a working-tree contract
// violation.
func IsUnsafePath(err error) bool {
	return errors.Is(err, workspace.ErrUnsafePath)
}
