package repair

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/oraclebench/internal/gen"
	"github.com/animus-coder/oraclebench/internal/llm"
	"github.com/animus-coder/oraclebench/internal/llm/mock"
	"github.com/animus-coder/oraclebench/internal/manifest"
)

const validManifest = `{"files": [{"path": "a.py", "content": "x = 1\n"}]}`

func newCascade(p *mock.Provider) *Cascade {
	r := llm.NewRegistry()
	r.RegisterProvider("mock", p)
	r.RegisterModel("target", llm.ModelRoute{Provider: "mock", Model: "target"}, true)
	r.RegisterModel("fixer", llm.ModelRoute{Provider: "mock", Model: "fixer"}, false)

	return &Cascade{
		Gen:             gen.New(r, 4096, nil),
		TargetModel:     "target",
		RepairModel:     "fixer",
		TruncationFloor: 8192,
	}
}

func TestRunValidTextNeedsNoRepair(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	c := newCascade(p)

	m, report := c.Run(context.Background(), Round{Text: validManifest})
	require.True(t, report.FinalOK)
	require.NotNil(t, m)
	require.Len(t, report.Attempts, 1)
	require.Equal(t, StageInitial, report.Attempts[0].Stage)
	require.Empty(t, p.ChatCalls)
}

func TestRunTruncationRetryRegeneratesWithRaisedFloor(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{
				Message:      llm.ChatMessage{Content: validManifest},
				FinishReason: llm.FinishStop,
			}, nil
		},
	}
	c := newCascade(p)

	truncated := `{"files": [{"path": "a.py", "content": "x = `
	m, report := c.Run(context.Background(), Round{
		Text:         truncated,
		FinishReason: llm.FinishLength,
		Prompt:       "original prompt",
	})
	require.True(t, report.FinalOK)
	require.NotNil(t, m)

	require.Len(t, report.Attempts, 2)
	require.Equal(t, StageRetryTruncation, report.Attempts[1].Stage)
	require.Equal(t, "target", report.Attempts[1].Model)

	require.Len(t, p.ChatCalls, 1)
	call := p.ChatCalls[0]
	require.Equal(t, 8192, call.MaxTokens)
	require.Equal(t, float64(0), call.Temperature)
	require.Contains(t, call.Messages[len(call.Messages)-1].Content, "original prompt")
}

func TestRunTruncationStageSkippedWithoutTruncationSignal(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{Message: llm.ChatMessage{Content: validManifest}}, nil
		},
	}
	c := newCascade(p)

	// Parses as JSON but violates the shape; kind is schema, not json_parse,
	// so the first recovery attempt is the syntax stage.
	_, report := c.Run(context.Background(), Round{Text: `{"files": []}`, FinishReason: llm.FinishStop})
	require.True(t, report.FinalOK)
	require.Equal(t, StageRepairSyntax, report.Attempts[1].Stage)
	require.Equal(t, "fixer", report.Attempts[1].Model)
}

func TestRunSchemaStageSeesLatestValidationError(t *testing.T) {
	t.Parallel()

	var prompts []string
	p := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			prompt := req.Messages[len(req.Messages)-1].Content
			prompts = append(prompts, prompt)
			if len(prompts) == 1 {
				// syntax stage replies with a still-invalid manifest
				return llm.ChatResponse{Message: llm.ChatMessage{Content: `{"files": []}`}}, nil
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Content: validManifest}}, nil
		},
	}
	c := newCascade(p)

	m, report := c.Run(context.Background(), Round{Text: `{"mode": "full"}`})
	require.True(t, report.FinalOK)
	require.NotNil(t, m)

	require.Len(t, report.Attempts, 3)
	require.Equal(t, StageRepairSchema, report.Attempts[2].Stage)
	require.Len(t, prompts, 2)
	// the schema stage carries the error from the syntax stage's output
	require.Contains(t, prompts[1], "must not be empty")
}

func TestRunTotalFailureSurfacesOriginalError(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			return llm.ChatResponse{Message: llm.ChatMessage{Content: `{"files": 5}`}}, nil
		},
	}
	c := newCascade(p)

	m, report := c.Run(context.Background(), Round{Text: "total garbage"})
	require.Nil(t, m)
	require.False(t, report.FinalOK)
	require.Equal(t, manifest.KindJSONParse, report.FinalKind)
	require.Contains(t, report.FinalError, "not valid JSON")
	// initial + syntax + schema attempts recorded
	require.Len(t, report.Attempts, 3)
}

func TestRunRepairStageGenerationErrorIsRecordedNotFatal(t *testing.T) {
	t.Parallel()

	calls := 0
	p := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			calls++
			if calls == 1 {
				return llm.ChatResponse{}, &llm.StatusError{Code: 500, Body: "boom"}
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Content: validManifest}}, nil
		},
	}
	c := newCascade(p)

	m, report := c.Run(context.Background(), Round{Text: "not json"})
	require.True(t, report.FinalOK)
	require.NotNil(t, m)

	require.Equal(t, StageRepairSyntax, report.Attempts[1].Stage)
	require.False(t, report.Attempts[1].OK)
	require.Equal(t, manifest.KindOther, report.Attempts[1].Kind)
	require.Equal(t, StageRepairSchema, report.Attempts[2].Stage)
	require.True(t, report.Attempts[2].OK)
}

func TestObserveCountsRepairAndFinalFailures(t *testing.T) {
	t.Parallel()

	report := &ParseReport{
		Attempts: []AttemptReport{
			{Stage: StageInitial, OK: false, Kind: manifest.KindJSONParse},
			{Stage: StageRepairSyntax, OK: false, Kind: manifest.KindJSONParse},
			{Stage: StageRepairSchema, OK: false, Kind: manifest.KindSchema},
		},
		FinalOK:   false,
		FinalKind: manifest.KindJSONParse,
	}

	var s Stats
	s.Observe(report)
	require.Equal(t, 2, s.JSONRepairFailures)
	require.Equal(t, 1, s.JSONParseFailures)
	require.Equal(t, 0, s.SchemaFailures)

	// a recovered round counts no final failure
	var ok Stats
	ok.Observe(&ParseReport{
		Attempts: []AttemptReport{
			{Stage: StageInitial, OK: false, Kind: manifest.KindSchema},
			{Stage: StageRepairSyntax, OK: true},
		},
		FinalOK: true,
	})
	require.Equal(t, 0, ok.SchemaFailures)
	require.Equal(t, 0, ok.JSONRepairFailures)
}
