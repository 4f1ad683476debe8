package runner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/oraclebench/internal/gen"
	"github.com/animus-coder/oraclebench/internal/llm"
	"github.com/animus-coder/oraclebench/internal/llm/mock"
	"github.com/animus-coder/oraclebench/internal/oracle"
	"github.com/animus-coder/oraclebench/internal/repair"
	"github.com/animus-coder/oraclebench/internal/scenario"
	"github.com/animus-coder/oraclebench/internal/workspace"
)

// chatReply is one scripted provider response; scriptedProvider serves them
// in order and repeats the last entry once the script runs out.
type chatReply struct {
	content string
	err     error
}

func scriptedProvider(replies ...chatReply) *mock.Provider {
	i := 0
	return &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			r := replies[i]
			if i < len(replies)-1 {
				i++
			}
			if r.err != nil {
				return llm.ChatResponse{}, r.err
			}
			return llm.ChatResponse{
				Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: r.content},
				FinishReason: llm.FinishStop,
			}, nil
		},
	}
}

func contractScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:          "contract",
		Prompt:        "produce a.txt and b.txt",
		RequiredFiles: []string{"a.txt", "b.txt"},
		ContractChecks: []scenario.ContractCheck{
			{Path: "a.txt", MustContain: "hello", Diagnostic: "a.txt must contain hello"},
		},
	}
}

func newTestPipeline(t *testing.T, p *mock.Provider, sc *scenario.Scenario, maxIterations int) (*Pipeline, *workspace.Tree) {
	t.Helper()

	r := llm.NewRegistry()
	r.RegisterProvider("mock", p)
	r.RegisterModel("target", llm.ModelRoute{Provider: "mock", Model: "target"}, true)
	g := gen.New(r, 4096, nil)

	tree, err := workspace.NewTree(t.TempDir())
	require.NoError(t, err)
	artifacts, err := NewArtifactWriter(t.TempDir(), "run-1")
	require.NoError(t, err)

	pipe := &Pipeline{
		Opts: Options{
			RunID:         "run-1",
			TargetModel:   "target",
			RepairModel:   "target",
			MaxIterations: maxIterations,
			FallbackMode:  oracle.FallbackOff,
		},
		Scenario: sc,
		Gen:      g,
		Cascade: &repair.Cascade{
			Gen:             g,
			TargetModel:     "target",
			RepairModel:     "target",
			TruncationFloor: 8192,
		},
		Tree: tree,
		Fallback: &oracle.Fallback{
			Runner: &oracle.Runner{Scenario: sc, Tree: tree},
			Stats:  &oracle.FallbackStats{Scenario: sc.Name},
		},
		Artifacts: artifacts,
	}
	return pipe, tree
}

const goodManifest = `{"mode": "full", "files": [
	{"path": "a.txt", "content": "hello\n"},
	{"path": "b.txt", "content": "world\n"}
]}`

func TestRunPassesOnFirstIteration(t *testing.T) {
	t.Parallel()

	var events []Event
	pipe, tree := newTestPipeline(t, scriptedProvider(chatReply{content: goodManifest}), contractScenario(), 3)
	pipe.Events = func(e Event) { events = append(events, e) }

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, 1, result.Iterations)
	require.Equal(t, StateDone, result.FinalState)
	require.Equal(t, 1, result.FallbackStats.RawPasses)

	content, err := tree.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello\n", content)

	require.FileExists(t, filepath.Join(pipe.Artifacts.Dir(), "iter_01", "manifest.json"))
	require.FileExists(t, filepath.Join(pipe.Artifacts.Dir(), "iter_01", "validation.json"))
	require.FileExists(t, filepath.Join(pipe.Artifacts.Dir(), "summary.json"))

	last := events[len(events)-1]
	require.Equal(t, "done", last.Type)
	require.True(t, last.OK)
}

func TestRunFirstIterationMustBeFullManifest(t *testing.T) {
	t.Parallel()

	patchFirst := `{"mode": "patch", "files": [{"path": "a.txt", "content": "hello\n"}]}`
	pipe, tree := newTestPipeline(t, scriptedProvider(
		chatReply{content: patchFirst},
		chatReply{content: goodManifest},
	), contractScenario(), 3)

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, 2, result.Iterations)
	// nothing was written on the rejected first iteration
	require.Equal(t, 1, result.FallbackStats.RawPasses+result.FallbackStats.RawFailures)
	require.Equal(t, 1, result.ParseStats.SchemaFailures)
	require.True(t, tree.Exists("b.txt"))
}

func TestRunFirstIterationRejectsIncompleteFullManifest(t *testing.T) {
	t.Parallel()

	missingB := `{"mode": "full", "files": [{"path": "a.txt", "content": "hello\n"}]}`
	pipe, tree := newTestPipeline(t, scriptedProvider(
		chatReply{content: missingB},
		chatReply{content: goodManifest},
	), contractScenario(), 3)

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, 2, result.Iterations)
	require.True(t, tree.Exists("a.txt"))
	require.True(t, tree.Exists("b.txt"))
}

func TestRunDemotesLaterIncompleteFullManifestToPatch(t *testing.T) {
	t.Parallel()

	badA := `{"mode": "full", "files": [
		{"path": "a.txt", "content": "goodbye\n"},
		{"path": "b.txt", "content": "world\n"}
	]}`
	fixAOnly := `{"mode": "full", "files": [{"path": "a.txt", "content": "hello\n"}]}`

	pipe, tree := newTestPipeline(t, scriptedProvider(
		chatReply{content: badA},
		chatReply{content: fixAOnly},
	), contractScenario(), 3)

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, 2, result.Iterations)

	// the demoted manifest did not wipe b.txt
	require.True(t, tree.Exists("b.txt"))
	content, err := tree.ReadFile("a.txt")
	require.NoError(t, err)
	require.Equal(t, "hello\n", content)
}

func TestRunRecoversFromTransportFatalError(t *testing.T) {
	t.Parallel()

	pipe, _ := newTestPipeline(t, scriptedProvider(
		chatReply{err: &llm.StatusError{Code: 401, Body: "bad key"}},
		chatReply{content: goodManifest},
	), contractScenario(), 3)

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, 2, result.Iterations)
	require.FileExists(t, filepath.Join(pipe.Artifacts.Dir(), "iter_01", "generation_error.txt"))
}

func TestRunFailsWhenBudgetExhausted(t *testing.T) {
	t.Parallel()

	badA := `{"mode": "full", "files": [
		{"path": "a.txt", "content": "goodbye\n"},
		{"path": "b.txt", "content": "world\n"}
	]}`
	pipe, _ := newTestPipeline(t, scriptedProvider(chatReply{content: badA}), contractScenario(), 2)

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.OK)
	require.Equal(t, 2, result.Iterations)
	require.Equal(t, StateFailed, result.FinalState)
	require.Equal(t, 2, result.FallbackStats.RawFailures)
}

func TestRunRepairPromptCarriesDiagnostics(t *testing.T) {
	t.Parallel()

	badA := `{"mode": "full", "files": [
		{"path": "a.txt", "content": "goodbye\n"},
		{"path": "b.txt", "content": "world\n"}
	]}`
	var prompts []string
	p := &mock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			prompts = append(prompts, req.Messages[len(req.Messages)-1].Content)
			if len(prompts) == 1 {
				return llm.ChatResponse{Message: llm.ChatMessage{Content: badA}}, nil
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Content: goodManifest}}, nil
		},
	}
	pipe, _ := newTestPipeline(t, p, contractScenario(), 3)

	result, err := pipe.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Len(t, prompts, 2)
	require.Equal(t, "produce a.txt and b.txt", prompts[0])
	require.Contains(t, prompts[1], "a.txt must contain hello")
	require.Contains(t, prompts[1], "produce a.txt and b.txt")
}

func TestRunAbortsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipe, _ := newTestPipeline(t, scriptedProvider(chatReply{content: goodManifest}), contractScenario(), 3)
	_, err := pipe.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
