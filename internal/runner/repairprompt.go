package runner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/animus-coder/oraclebench/internal/oracle"
	"github.com/animus-coder/oraclebench/internal/repair"
	"github.com/animus-coder/oraclebench/internal/scenario"
	"github.com/animus-coder/oraclebench/internal/workspace"
)

// Path/line hints pulled out of error text. The Python traceback form is
// matched first; the generic form catches compiler-style "file:line" output.
var (
	tracebackRe = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	pathLineRe  = regexp.MustCompile(`([A-Za-z0-9_./-]+\.[A-Za-z0-9]+):(\d+)`)
	pathOnlyRe  = regexp.MustCompile(`\b([A-Za-z0-9_]+(?:/[A-Za-z0-9_.-]+)+\.[A-Za-z]{1,4})\b`)
)

type pathHint struct {
	path string
	line int
}

// buildValidationRepairPrompt assembles the next-iteration prompt from a
// failed oracle validation: diagnostics, truncated command logs, snippets of
// implicated files, and scenario checklist hints.
func buildValidationRepairPrompt(sc *scenario.Scenario, res *oracle.ValidationResult, tree *workspace.Tree, maxLogBytes, maxSnippetLines int) string {
	var b strings.Builder
	b.WriteString("The previous attempt failed oracle validation. Fix the project and return the corrected manifest JSON.\n")
	b.WriteString("You may answer with mode \"patch\" containing only the files that change, or mode \"full\" with every file.\n")

	if len(res.Diagnostics) > 0 {
		b.WriteString("\nDiagnostics:\n")
		for _, d := range res.Diagnostics {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	for _, cmd := range res.Commands {
		if cmd.ExitCode == 0 && !cmd.TimedOut {
			continue
		}
		fmt.Fprintf(&b, "\nFailing command: %s (exit %d", cmd.Command, cmd.ExitCode)
		if cmd.TimedOut {
			b.WriteString(", timed out")
		}
		b.WriteString(")\n")
		if out := truncateTail(cmd.Stderr, maxLogBytes); out != "" {
			fmt.Fprintf(&b, "stderr:\n%s\n", out)
		}
		if out := truncateTail(cmd.Stdout, maxLogBytes); out != "" {
			fmt.Fprintf(&b, "stdout:\n%s\n", out)
		}
	}

	errorText := collectErrorText(res)
	if snippets := implicatedSnippets(errorText, tree, maxSnippetLines); snippets != "" {
		b.WriteString("\nImplicated sources:\n")
		b.WriteString(snippets)
	}

	if hints := checklistHints(sc, errorText); len(hints) > 0 {
		b.WriteString("\nChecklist:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	b.WriteString("\n")
	b.WriteString(sc.Prompt)
	return b.String()
}

// buildParseRepairPrompt asks for a fresh manifest after an unrecoverable
// parse failure.
func buildParseRepairPrompt(sc *scenario.Scenario, report *repair.ParseReport) string {
	var b strings.Builder
	b.WriteString("Your previous response could not be used: ")
	b.WriteString(report.FinalError)
	b.WriteString("\nRespond again with exactly one valid JSON manifest object and complete file contents.\n\n")
	b.WriteString(sc.Prompt)
	return b.String()
}

// buildTransportRepairPrompt restarts the loop after a transport-fatal error
// from the generation endpoint.
func buildTransportRepairPrompt(sc *scenario.Scenario, genErr error) string {
	var b strings.Builder
	b.WriteString("The previous generation attempt failed before any output was produced (")
	b.WriteString(genErr.Error())
	b.WriteString(").\nProduce the manifest again from scratch.\n\n")
	b.WriteString(sc.Prompt)
	return b.String()
}

func collectErrorText(res *oracle.ValidationResult) string {
	parts := make([]string, 0, len(res.Diagnostics)+len(res.Commands)*2)
	parts = append(parts, res.Diagnostics...)
	for _, cmd := range res.Commands {
		if cmd.ExitCode != 0 || cmd.TimedOut {
			parts = append(parts, cmd.Stderr, cmd.Stdout)
		}
	}
	return strings.Join(parts, "\n")
}

// extractPathHints pulls file/line references out of error text, deduplicated
// in first-seen order.
func extractPathHints(errorText string) []pathHint {
	seen := make(map[string]int)
	order := make([]string, 0, 8)

	note := func(path string, line int) {
		path = strings.TrimPrefix(strings.TrimSpace(path), "./")
		if path == "" {
			return
		}
		if _, ok := seen[path]; !ok {
			order = append(order, path)
		}
		if line > seen[path] {
			seen[path] = line
		}
	}

	for _, m := range tracebackRe.FindAllStringSubmatch(errorText, -1) {
		note(m[1], atoiSafe(m[2]))
	}
	for _, m := range pathLineRe.FindAllStringSubmatch(errorText, -1) {
		note(m[1], atoiSafe(m[2]))
	}
	for _, m := range pathOnlyRe.FindAllStringSubmatch(errorText, -1) {
		note(m[1], 0)
	}

	hints := make([]pathHint, 0, len(order))
	for _, p := range order {
		hints = append(hints, pathHint{path: p, line: seen[p]})
	}
	return hints
}

// implicatedSnippets renders source windows around the hinted lines for
// files that exist in the tree.
func implicatedSnippets(errorText string, tree *workspace.Tree, maxLines int) string {
	var b strings.Builder
	for _, hint := range extractPathHints(errorText) {
		rel := relativize(hint.path, tree.Root())
		content, err := tree.ReadFile(rel)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n", rel)
		b.WriteString(snippet(content, hint.line, maxLines))
		b.WriteString("\n")
	}
	return b.String()
}

// relativize strips the tree root from absolute traceback paths.
func relativize(path, root string) string {
	if strings.HasPrefix(path, root) {
		return strings.TrimPrefix(strings.TrimPrefix(path, root), "/")
	}
	return path
}

// snippet extracts a window of maxLines lines centered on line (1-based);
// line 0 takes the head of the file.
func snippet(content string, line, maxLines int) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= maxLines {
		return numberLines(lines, 1)
	}
	if line <= 0 {
		return numberLines(lines[:maxLines], 1)
	}
	start := line - maxLines/2
	if start < 1 {
		start = 1
	}
	end := start + maxLines - 1
	if end > len(lines) {
		end = len(lines)
		start = end - maxLines + 1
	}
	return numberLines(lines[start-1:end], start)
}

func numberLines(lines []string, first int) string {
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "%4d | %s\n", first+i, l)
	}
	return b.String()
}

// checklistHints returns scenario hints whose trigger substring appears in
// the error text, in deterministic order.
func checklistHints(sc *scenario.Scenario, errorText string) []string {
	triggers := make([]string, 0, len(sc.ChecklistHints))
	for trigger := range sc.ChecklistHints {
		triggers = append(triggers, trigger)
	}
	sort.Strings(triggers)

	var hints []string
	for _, trigger := range triggers {
		if strings.Contains(errorText, trigger) {
			hints = append(hints, sc.ChecklistHints[trigger])
		}
	}
	return hints
}

// truncateTail keeps the last maxBytes of command output, where failures
// usually surface.
func truncateTail(s string, maxBytes int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxBytes {
		return s
	}
	return "[...truncated...]\n" + s[len(s)-maxBytes:]
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
