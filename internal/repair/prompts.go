package repair

import (
	"fmt"
	"strings"
)

// syntaxRepairPrompt asks a repair model to fix JSON syntax without touching
// the payload.
func syntaxRepairPrompt(raw string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(`
The following text was meant to be a single JSON object but is malformed.
Emit the same object with the syntax and structure fixed. Preserve every
field value verbatim; do not rewrite, shorten, or omit any file content.
Return only the JSON object, nothing else.`))
	b.WriteString("\n\nMalformed text:\n")
	b.WriteString(raw)
	return b.String()
}

// schemaRepairPrompt reinforces the manifest schema alongside the specific
// validation error.
func schemaRepairPrompt(text string, validationErr error) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(`
The following JSON does not conform to the required file-manifest shape:
  {"mode": "full"|"patch", "files": [{"path": "<string>", "content": "<string>"}, ...], "notes": "<optional string>"}
Rules: "files" must be a non-empty array; every entry needs a string path and
full string content; no two paths may collide ignoring case and slash
direction; no file content may elide parts with ellipsis or "rest of file"
markers. Fix the object so it conforms. Preserve file contents verbatim.
Return only the corrected JSON object.`))
	if validationErr != nil {
		fmt.Fprintf(&b, "\n\nValidation error:\n%s\n", validationErr.Error())
	}
	b.WriteString("\nCurrent JSON:\n")
	b.WriteString(text)
	return b.String()
}
