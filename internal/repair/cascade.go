// Package repair implements the ordered recovery sequence applied to
// malformed model output: truncation retry, then syntax repair, then schema
// repair, each re-entering the validator. The stage list replaces what would
// otherwise be nested error handling.
package repair

import (
	"context"

	"go.uber.org/zap"

	"github.com/animus-coder/oraclebench/internal/gen"
	"github.com/animus-coder/oraclebench/internal/manifest"
)

// Round carries everything the cascade needs about one generation round.
type Round struct {
	System       string
	Prompt       string // the prompt that produced Text; reused for truncation retry
	Text         string
	FinishReason string
	Seed         int
}

// Cascade re-parses model output through increasingly specific recovery
// stages. It stops at the first stage that yields a valid manifest.
type Cascade struct {
	Gen             *gen.Generator
	TargetModel     string
	RepairModel     string
	TruncationFloor int
	Logger          *zap.Logger
}

type cascadeState struct {
	round    Round
	text     string // best available text, fed to later stages
	origErr  error
	origKind manifest.ErrorKind
	lastErr  error
}

type stage struct {
	name  Stage
	model func(c *Cascade) string
	ready func(s *cascadeState) bool
	run   func(ctx context.Context, c *Cascade, s *cascadeState) (string, error)
}

// The cascade order is fixed; each stage has an explicit precondition.
var stages = []stage{
	{
		name:  StageRetryTruncation,
		model: func(c *Cascade) string { return c.TargetModel },
		ready: func(s *cascadeState) bool {
			return s.origKind == manifest.KindJSONParse && manifest.LooksTruncated(s.round.FinishReason, s.origErr)
		},
		run: func(ctx context.Context, c *Cascade, s *cascadeState) (string, error) {
			text, _, err := c.Gen.Structured(ctx, gen.Request{
				Model:       c.TargetModel,
				System:      s.round.System,
				Prompt:      s.round.Prompt,
				SchemaName:  manifest.SchemaName,
				Schema:      manifest.Schema,
				MaxTokens:   c.TruncationFloor,
				Seed:        s.round.Seed,
				Reliability: true,
			})
			return text, err
		},
	},
	{
		name:  StageRepairSyntax,
		model: func(c *Cascade) string { return c.RepairModel },
		ready: func(s *cascadeState) bool { return true },
		run: func(ctx context.Context, c *Cascade, s *cascadeState) (string, error) {
			text, _, err := c.Gen.Structured(ctx, gen.Request{
				Model:       c.RepairModel,
				Prompt:      syntaxRepairPrompt(s.text),
				SchemaName:  manifest.SchemaName,
				Schema:      manifest.Schema,
				Reliability: true,
			})
			return text, err
		},
	},
	{
		name:  StageRepairSchema,
		model: func(c *Cascade) string { return c.RepairModel },
		ready: func(s *cascadeState) bool { return true },
		run: func(ctx context.Context, c *Cascade, s *cascadeState) (string, error) {
			text, _, err := c.Gen.Structured(ctx, gen.Request{
				Model:       c.RepairModel,
				Prompt:      schemaRepairPrompt(s.text, s.lastErr),
				SchemaName:  manifest.SchemaName,
				Schema:      manifest.Schema,
				Reliability: true,
			})
			return text, err
		},
	},
}

// Run parses round.Text, walking the recovery stages while the failure kind
// stays repairable. On total failure the original (pre-repair) error kind and
// message are the ones surfaced; repair-stage failures are only visible in
// the attempt list.
func (c *Cascade) Run(ctx context.Context, round Round) (*manifest.Manifest, *ParseReport) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	report := &ParseReport{}

	m, err := manifest.Parse(round.Text)
	if err == nil {
		report.record(AttemptReport{Stage: StageInitial, Model: c.TargetModel, OK: true})
		report.FinalOK = true
		return m, report
	}

	origKind := manifest.KindOf(err)
	report.record(AttemptReport{Stage: StageInitial, Model: c.TargetModel, OK: false, Error: err.Error(), Kind: origKind})

	if !manifest.Repairable(origKind) {
		report.FinalOK = false
		report.FinalError = err.Error()
		report.FinalKind = origKind
		return nil, report
	}

	state := &cascadeState{
		round:    round,
		text:     round.Text,
		origErr:  err,
		origKind: origKind,
		lastErr:  err,
	}

	for _, st := range stages {
		if !st.ready(state) {
			continue
		}

		text, genErr := st.run(ctx, c, state)
		if genErr != nil {
			logger.Warn("repair stage generation failed",
				zap.String("stage", string(st.name)),
				zap.Error(genErr))
			report.record(AttemptReport{Stage: st.name, Model: st.model(c), OK: false, Error: genErr.Error(), Kind: manifest.KindOther})
			continue
		}

		m, parseErr := manifest.Parse(text)
		if parseErr == nil {
			report.record(AttemptReport{Stage: st.name, Model: st.model(c), OK: true})
			report.FinalOK = true
			return m, report
		}

		state.text = text
		state.lastErr = parseErr
		report.record(AttemptReport{Stage: st.name, Model: st.model(c), OK: false, Error: parseErr.Error(), Kind: manifest.KindOf(parseErr)})
	}

	report.FinalOK = false
	report.FinalError = state.origErr.Error()
	report.FinalKind = state.origKind
	return nil, report
}
