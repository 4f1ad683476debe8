package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/oraclebench/internal/scenario"
	"github.com/animus-coder/oraclebench/internal/workspace"
)

// fallbackScenario passes when app.txt contains "hello". The targeted patch
// fires on the missing-file diagnostic; the canonical tier rewrites app.txt.
func fallbackScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:          "fb",
		RequiredFiles: []string{"app.txt"},
		ContractChecks: []scenario.ContractCheck{
			{Path: "app.txt", MustContain: "hello", Diagnostic: "app.txt must contain the hello marker"},
		},
		CanonicalFiles: map[string]string{"app.txt": "hello from canonical\n"},
		TargetedPatches: []scenario.TargetedPatch{
			{
				Name:      "write-app",
				Signature: "missing required file: app.txt",
				Path:      "app.txt",
				Content:   "hello from patch\n",
			},
		},
	}
}

func newFallback(t *testing.T, sc *scenario.Scenario) (*Fallback, *workspace.Tree) {
	t.Helper()
	tree, err := workspace.NewTree(t.TempDir())
	require.NoError(t, err)
	return &Fallback{
		Runner: &Runner{Scenario: sc, Tree: tree},
		Stats:  &FallbackStats{Scenario: sc.Name},
	}, tree
}

func TestOffModeNeverEngagesTiers(t *testing.T) {
	t.Parallel()

	f, _ := newFallback(t, fallbackScenario())
	res, err := f.Validate(context.Background(), FallbackOff)
	require.NoError(t, err)
	require.False(t, res.OK)

	require.Equal(t, 1, f.Stats.RawFailures)
	require.Equal(t, 0, f.Stats.Targeted.Activations)
	require.Equal(t, 0, f.Stats.Canonical.Activations)
	require.Equal(t, 0, f.Stats.RecoveredByFallback)
}

func TestOnFailPassingRunSkipsTiers(t *testing.T) {
	t.Parallel()

	f, tree := newFallback(t, fallbackScenario())
	require.NoError(t, tree.WriteFile("app.txt", "hello\n"))

	res, err := f.Validate(context.Background(), FallbackOnFail)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, 1, f.Stats.RawPasses)
	require.Equal(t, 0, f.Stats.Targeted.Activations)
	require.Equal(t, 0, f.Stats.Canonical.Activations)
}

func TestOnFailTargetedTierRecovers(t *testing.T) {
	t.Parallel()

	f, tree := newFallback(t, fallbackScenario())
	res, err := f.Validate(context.Background(), FallbackOnFail)
	require.NoError(t, err)
	require.True(t, res.OK)

	content, err := tree.ReadFile("app.txt")
	require.NoError(t, err)
	require.Equal(t, "hello from patch\n", content)

	require.Equal(t, 1, f.Stats.RawFailures)
	require.Equal(t, 1, f.Stats.Targeted.Activations)
	require.Equal(t, 1, f.Stats.Targeted.Recoveries)
	require.Equal(t, 0, f.Stats.Canonical.Activations)
	require.Equal(t, 1, f.Stats.RecoveredByFallback)
}

func TestOnFailCanonicalTierAfterTargetedMiss(t *testing.T) {
	t.Parallel()

	sc := fallbackScenario()
	sc.TargetedPatches = nil // no signature can match
	f, tree := newFallback(t, sc)

	res, err := f.Validate(context.Background(), FallbackOnFail)
	require.NoError(t, err)
	require.True(t, res.OK)

	content, err := tree.ReadFile("app.txt")
	require.NoError(t, err)
	require.Equal(t, "hello from canonical\n", content)

	require.Equal(t, 0, f.Stats.Targeted.Activations)
	require.Equal(t, 1, f.Stats.Canonical.Activations)
	require.Equal(t, 1, f.Stats.Canonical.Recoveries)
	require.Equal(t, 1, f.Stats.RecoveredByFallback)
}

func TestAlwaysModeRunsCanonicalEvenAfterTargetedRecovery(t *testing.T) {
	t.Parallel()

	f, tree := newFallback(t, fallbackScenario())
	res, err := f.Validate(context.Background(), FallbackAlways)
	require.NoError(t, err)
	require.True(t, res.OK)

	// canonical tier overwrote the targeted tier's file
	content, err := tree.ReadFile("app.txt")
	require.NoError(t, err)
	require.Equal(t, "hello from canonical\n", content)

	require.Equal(t, 1, f.Stats.Targeted.Activations)
	require.Equal(t, 1, f.Stats.Canonical.Activations)
	// a single validation call recovers at most once
	require.Equal(t, 1, f.Stats.RecoveredByFallback)
}

func TestAlwaysModeOnPassingRunDoesNotCountRecovery(t *testing.T) {
	t.Parallel()

	f, tree := newFallback(t, fallbackScenario())
	require.NoError(t, tree.WriteFile("app.txt", "hello\n"))

	res, err := f.Validate(context.Background(), FallbackAlways)
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, 1, f.Stats.RawPasses)
	require.Equal(t, 1, f.Stats.Canonical.Activations)
	require.Equal(t, 0, f.Stats.Canonical.Recoveries)
	require.Equal(t, 0, f.Stats.RecoveredByFallback)
}

func TestFindReplacePatchOnlyTouchesMatchingFile(t *testing.T) {
	t.Parallel()

	sc := fallbackScenario()
	sc.TargetedPatches = []scenario.TargetedPatch{
		{
			Name:      "fix-marker",
			Signature: "app.txt must contain the hello marker",
			Path:      "app.txt",
			Find:      "goodbye",
			Replace:   "hello",
		},
	}
	f, tree := newFallback(t, sc)
	require.NoError(t, tree.WriteFile("app.txt", "goodbye world\n"))

	res, err := f.Validate(context.Background(), FallbackOnFail)
	require.NoError(t, err)
	require.True(t, res.OK)

	content, err := tree.ReadFile("app.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world\n", content)
}

func TestDependencyRate(t *testing.T) {
	t.Parallel()

	s := &FallbackStats{RawPasses: 6, RawFailures: 2, RecoveredByFallback: 2}
	require.InDelta(t, 0.25, s.DependencyRate(), 1e-9)

	empty := &FallbackStats{}
	require.Zero(t, empty.DependencyRate())
}

func TestParseFallbackMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]FallbackMode{
		"off":     FallbackOff,
		"on-fail": FallbackOnFail,
		"always":  FallbackAlways,
		"ON-FAIL": FallbackOnFail,
	} {
		got, err := ParseFallbackMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"sometimes", ""} {
		_, err := ParseFallbackMode(in)
		require.Error(t, err, in)
	}
}
