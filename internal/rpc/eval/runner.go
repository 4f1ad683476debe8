package eval

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/animus-coder/oraclebench/internal/config"
	"github.com/animus-coder/oraclebench/internal/gen"
	"github.com/animus-coder/oraclebench/internal/observability"
	"github.com/animus-coder/oraclebench/internal/oracle"
	"github.com/animus-coder/oraclebench/internal/repair"
	"github.com/animus-coder/oraclebench/internal/rpc"
	"github.com/animus-coder/oraclebench/internal/runner"
	"github.com/animus-coder/oraclebench/internal/scenario"
	"github.com/animus-coder/oraclebench/internal/workspace"
)

// Runner executes an evaluation and yields streamed events.
type Runner interface {
	Run(r *http.Request, req rpc.RunEvalRequest) (<-chan rpc.RunEvalEvent, error)
}

// EvalRunner bridges the iteration controller to RPC events. Each request
// gets its own working tree and artifact directory keyed by run ID.
type EvalRunner struct {
	Cfg     *config.Config
	Gen     *gen.Generator
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Run sets up a pipeline for the request and executes it on a goroutine,
// translating controller events into the stream.
func (r *EvalRunner) Run(httpReq *http.Request, req rpc.RunEvalRequest) (<-chan rpc.RunEvalEvent, error) {
	sc, err := scenario.Get(req.Scenario)
	if err != nil {
		return nil, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	mode := oracle.FallbackMode(r.Cfg.FallbackModeNormalized())
	if req.FallbackMode != "" {
		mode, err = oracle.ParseFallbackMode(req.FallbackMode)
		if err != nil {
			return nil, err
		}
	}

	tree, err := workspace.NewTree(filepath.Join(r.Cfg.Pipeline.WorkDir, runID))
	if err != nil {
		return nil, fmt.Errorf("create working tree: %w", err)
	}
	artifacts, err := runner.NewArtifactWriter(r.Cfg.Pipeline.OutputDir, runID)
	if err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	targetModel := firstNonEmpty(req.Model, r.Cfg.Roles.Target)
	repairModel := firstNonEmpty(req.RepairModel, r.Cfg.Roles.Repair, targetModel)
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = r.Cfg.Pipeline.MaxIterations
	}

	pipe := &runner.Pipeline{
		Opts: runner.Options{
			RunID:           runID,
			TargetModel:     targetModel,
			PlannerModel:    firstNonEmpty(req.PlannerModel, r.Cfg.Roles.Planner, targetModel),
			RepairModel:     repairModel,
			ReviewerModel:   firstNonEmpty(req.ReviewerModel, r.Cfg.Roles.Reviewer, targetModel),
			MaxIterations:   maxIterations,
			FallbackMode:    mode,
			Seed:            req.Seed,
			EnablePlanner:   r.Cfg.Pipeline.EnablePlanner,
			EnableReviewer:  r.Cfg.Pipeline.EnableReviewer,
			MaxLogBytes:     r.Cfg.Pipeline.MaxLogBytes,
			MaxSnippetLines: r.Cfg.Pipeline.MaxSnippetLines,
		},
		Scenario: sc,
		Gen:      r.Gen,
		Cascade: &repair.Cascade{
			Gen:             r.Gen,
			TargetModel:     targetModel,
			RepairModel:     repairModel,
			TruncationFloor: r.Cfg.Pipeline.TruncationTokenFloor,
			Logger:          r.Logger,
		},
		Tree: tree,
		Fallback: &oracle.Fallback{
			Runner: &oracle.Runner{
				Scenario: sc,
				Tree:     tree,
				Timeout:  time.Duration(r.Cfg.Pipeline.CommandTimeoutSeconds) * time.Second,
				Logger:   r.Logger,
			},
			Stats:   &oracle.FallbackStats{Scenario: sc.Name},
			Metrics: r.Metrics,
			Logger:  r.Logger,
		},
		Artifacts: artifacts,
		Metrics:   r.Metrics,
		Logger:    r.Logger,
	}

	out := make(chan rpc.RunEvalEvent, 16)
	pipe.Events = func(evt runner.Event) {
		out <- rpc.RunEvalEvent{
			Type:      evt.Type,
			RunID:     evt.RunID,
			Iteration: evt.Iteration,
			State:     string(evt.State),
			Message:   evt.Message,
			OK:        evt.OK,
			Error:     evt.Error,
		}
	}

	go func() {
		defer close(out)
		ctx := httpReq.Context()
		if secs := r.Cfg.Pipeline.RunTimeoutSeconds; secs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
			defer cancel()
		}
		result, runErr := pipe.Run(ctx)
		evt := rpc.RunEvalEvent{Type: "done", RunID: runID, Done: true}
		if runErr != nil {
			evt.Type = "error"
			evt.Error = runErr.Error()
		}
		if result != nil {
			evt.OK = result.OK
			evt.Result = &rpc.RunSummary{
				RunID:      result.RunID,
				Scenario:   result.Scenario,
				OK:         result.OK,
				Iterations: result.Iterations,
				FinalState: string(result.FinalState),
			}
		}
		out <- evt
	}()
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
