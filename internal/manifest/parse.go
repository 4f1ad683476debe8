package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse turns raw model text into a validated Manifest. Failures carry a
// *KindError classifying them as json_parse, schema, placeholder, or other.
func Parse(text string) (*Manifest, error) {
	root, err := decode(strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}

	obj, ok := root.(map[string]any)
	if !ok {
		return nil, kindErrorf(KindSchema, "manifest root must be a JSON object")
	}

	filesRaw, ok := obj["files"]
	if !ok {
		return nil, kindErrorf(KindSchema, "manifest is missing required field %q", "files")
	}
	entries, ok := filesRaw.([]any)
	if !ok {
		return nil, kindErrorf(KindSchema, "field %q must be an array", "files")
	}
	if len(entries) == 0 {
		return nil, kindErrorf(KindSchema, "field %q must not be empty", "files")
	}

	m := &Manifest{Mode: ModeFull, Files: make([]FileSpec, 0, len(entries))}

	for i, entry := range entries {
		fileObj, ok := entry.(map[string]any)
		if !ok {
			return nil, kindErrorf(KindSchema, "files[%d] must be an object", i)
		}
		p, ok := fileObj["path"].(string)
		if !ok || strings.TrimSpace(p) == "" {
			return nil, kindErrorf(KindSchema, "files[%d] must have a non-empty string path", i)
		}
		content, ok := fileObj["content"].(string)
		if !ok {
			return nil, kindErrorf(KindSchema, "files[%d] (%s) must have string content", i, p)
		}
		m.Files = append(m.Files, FileSpec{Path: p, Content: content})
	}

	// Partial content poisons the whole manifest, whatever else is valid.
	for _, f := range m.Files {
		if IsPlaceholder(f.Content) {
			return nil, kindErrorf(KindPlaceholder, "file %s contains placeholder content", f.Path)
		}
	}

	seen := make(map[string]string, len(m.Files))
	for _, f := range m.Files {
		norm := NormalizePath(f.Path)
		if prev, dup := seen[norm]; dup {
			return nil, kindErrorf(KindSchema, "duplicate file path: %s collides with %s", f.Path, prev)
		}
		seen[norm] = f.Path
	}

	if modeRaw, ok := obj["mode"]; ok {
		modeStr, ok := modeRaw.(string)
		if !ok {
			return nil, kindErrorf(KindSchema, "field %q must be a string", "mode")
		}
		switch Mode(modeStr) {
		case ModeFull, ModePatch:
			m.Mode = Mode(modeStr)
		default:
			return nil, kindErrorf(KindSchema, "mode must be %q or %q, got %q", ModeFull, ModePatch, modeStr)
		}
	}

	if notesRaw, ok := obj["notes"]; ok {
		notes, ok := notesRaw.(string)
		if !ok {
			return nil, kindErrorf(KindSchema, "field %q must be a string", "notes")
		}
		m.Notes = notes
	}

	return m, nil
}

// decode attempts a strict parse of the full text and falls back to the
// outermost {...} span, which tolerates stray leading/trailing prose.
func decode(text string) (any, error) {
	if text == "" {
		return nil, kindErrorf(KindJSONParse, "empty response text")
	}

	var root any
	strictErr := json.Unmarshal([]byte(text), &root)
	if strictErr == nil {
		return root, nil
	}

	if span, ok := JSONSpan(text); ok {
		if err := json.Unmarshal([]byte(span), &root); err == nil {
			return root, nil
		}
	}

	return nil, &KindError{
		Kind: KindJSONParse,
		Msg:  fmt.Sprintf("response is not valid JSON (%d bytes)", len(text)),
		Err:  strictErr,
	}
}
