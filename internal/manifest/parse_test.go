package manifest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStrictManifest(t *testing.T) {
	t.Parallel()

	m, err := Parse(`{
		"mode": "patch",
		"notes": "second attempt",
		"files": [
			{"path": "mini_ai/markov.py", "content": "class MarkovChain: pass\n"},
			{"path": "mini_ai/cli.py", "content": "import argparse\n"}
		]
	}`)
	require.NoError(t, err)
	require.Equal(t, ModePatch, m.Mode)
	require.Equal(t, "second attempt", m.Notes)
	require.Len(t, m.Files, 2)
	require.Equal(t, "mini_ai/markov.py", m.Files[0].Path)
}

func TestParseModeDefaultsToFull(t *testing.T) {
	t.Parallel()

	m, err := Parse(`{"files": [{"path": "a.py", "content": "x = 1\n"}]}`)
	require.NoError(t, err)
	require.Equal(t, ModeFull, m.Mode)
}

func TestParseIsIdempotentOnItsOwnOutput(t *testing.T) {
	t.Parallel()

	inputs := map[string]string{
		"explicit patch": `{
			"mode": "patch",
			"notes": "second attempt",
			"files": [{"path": "mini_ai/cli.py", "content": "import argparse\n"}]
		}`,
		"defaulted mode": `{"files": [{"path": "a.py", "content": "x = 1\n"}]}`,
	}

	for name, input := range inputs {
		input := input
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			first, err := Parse(input)
			require.NoError(t, err)

			serialized, err := json.Marshal(first)
			require.NoError(t, err)

			second, err := Parse(string(serialized))
			require.NoError(t, err)
			require.Equal(t, first, second)
		})
	}
}

func TestParseRecoversObjectFromSurroundingProse(t *testing.T) {
	t.Parallel()

	text := "Sure! Here is the manifest you asked for:\n\n" +
		`{"files": [{"path": "a.py", "content": "x = 1\n"}]}` +
		"\n\nLet me know if you need changes."
	m, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
}

func TestParseInvalidJSONIsJSONParseKind(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"",
		"not json at all",
		`{"files": [{"path": "a.py", "content": "truncated`,
	} {
		_, err := Parse(text)
		require.Error(t, err, "text %q", text)
		require.Equal(t, KindJSONParse, KindOf(err), "text %q", text)
	}
}

func TestParseSchemaViolations(t *testing.T) {
	t.Parallel()

	for name, text := range map[string]string{
		"root array":      `[{"path": "a.py", "content": ""}]`,
		"missing files":   `{"mode": "full"}`,
		"files scalar":    `{"files": "a.py"}`,
		"files empty":     `{"files": []}`,
		"entry scalar":    `{"files": ["a.py"]}`,
		"missing path":    `{"files": [{"content": "x"}]}`,
		"blank path":      `{"files": [{"path": "  ", "content": "x"}]}`,
		"missing content": `{"files": [{"path": "a.py"}]}`,
		"numeric content": `{"files": [{"path": "a.py", "content": 5}]}`,
		"bad mode":        `{"mode": "diff", "files": [{"path": "a.py", "content": "x"}]}`,
		"bad notes":       `{"notes": 5, "files": [{"path": "a.py", "content": "x"}]}`,
	} {
		_, err := Parse(text)
		require.Error(t, err, name)
		require.Equal(t, KindSchema, KindOf(err), name)
	}
}

func TestParseRejectsPlaceholderContent(t *testing.T) {
	t.Parallel()

	for _, content := range []string{
		"def f():\n    pass\n# ... rest of the file\n",
		"# implementation unchanged\n",
		"print('hi')\n[...]\n",
		"<omitted>",
		"code here\n# ...\nmore code\n",
	} {
		_, err := Parse(`{"files": [{"path": "a.py", "content": ` + jsonString(content) + `}]}`)
		require.Error(t, err, "content %q", content)
		require.Equal(t, KindPlaceholder, KindOf(err), "content %q", content)
	}
}

func TestLiteralEllipsisInStringIsNotPlaceholder(t *testing.T) {
	t.Parallel()

	m, err := Parse(`{"files": [{"path": "a.py", "content": "print('loading...')\n"}]}`)
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
}

func TestParseDuplicatePathsAfterNormalization(t *testing.T) {
	t.Parallel()

	for name, text := range map[string]string{
		"exact":       `{"files": [{"path": "a.py", "content": "1"}, {"path": "a.py", "content": "2"}]}`,
		"dot slash":   `{"files": [{"path": "./a.py", "content": "1"}, {"path": "a.py", "content": "2"}]}`,
		"backslashes": `{"files": [{"path": "pkg\\a.py", "content": "1"}, {"path": "pkg/a.py", "content": "2"}]}`,
		"case fold":   `{"files": [{"path": "A.py", "content": "1"}, {"path": "a.py", "content": "2"}]}`,
	} {
		_, err := Parse(text)
		require.Error(t, err, name)
		require.Equal(t, KindSchema, KindOf(err), name)
		require.Contains(t, err.Error(), "duplicate", name)
	}
}

func TestPlaceholderReportedBeforeDuplicate(t *testing.T) {
	t.Parallel()

	_, err := Parse(`{"files": [
		{"path": "a.py", "content": "# rest of file unchanged"},
		{"path": "a.py", "content": "x = 1"}
	]}`)
	require.Error(t, err)
	require.Equal(t, KindPlaceholder, KindOf(err))
}

func TestRepairableKinds(t *testing.T) {
	t.Parallel()

	require.True(t, Repairable(KindJSONParse))
	require.True(t, Repairable(KindSchema))
	require.True(t, Repairable(KindPlaceholder))
	require.False(t, Repairable(KindOther))
	require.False(t, Repairable(""))
}

func jsonString(s string) string {
	out := `"`
	for _, r := range s {
		switch r {
		case '"':
			out += `\"`
		case '\\':
			out += `\\`
		case '\n':
			out += `\n`
		default:
			out += string(r)
		}
	}
	return out + `"`
}
