package workspace

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveAcceptsSafePaths(t *testing.T) {
	t.Parallel()

	g, err := NewGuard(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{
		"a.py",
		"mini_ai/markov.py",
		"./mini_ai/cli.py",
		`mini_ai\cli.py`,
		"pkg/sub/../file.py",
	} {
		abs, err := g.Resolve(p)
		require.NoError(t, err, "path %q", p)
		require.True(t, filepath.IsAbs(abs), "path %q", p)
		require.Contains(t, abs, g.BaseDir, "path %q", p)
	}
}

func TestResolveRejectsUnsafePaths(t *testing.T) {
	t.Parallel()

	g, err := NewGuard(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{
		"",
		"   ",
		"/etc/passwd",
		"..",
		"../sibling.py",
		"a/../../escape.py",
		`..\windows\escape.py`,
	} {
		_, err := g.Resolve(p)
		require.ErrorIs(t, err, ErrUnsafePath, "path %q", p)
	}
}
