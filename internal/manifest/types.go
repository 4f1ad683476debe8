package manifest

import (
	"errors"
	"fmt"
)

// Mode tells whether a manifest replaces the whole tree or patches it.
type Mode string

const (
	ModeFull  Mode = "full"
	ModePatch Mode = "patch"
)

// FileSpec is one proposed file.
type FileSpec struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Manifest is the structured output object a model proposes: an ordered file
// list plus a full/patch mode flag and an optional note.
type Manifest struct {
	Mode  Mode       `json:"mode"`
	Files []FileSpec `json:"files"`
	Notes string     `json:"notes,omitempty"`
}

// ErrorKind classifies a parse/validation failure.
type ErrorKind string

const (
	KindJSONParse   ErrorKind = "json_parse"
	KindSchema      ErrorKind = "schema"
	KindPlaceholder ErrorKind = "placeholder"
	KindOther       ErrorKind = "other"
)

// KindError is a classified parse/validation failure.
type KindError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

func kindErrorf(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classified kind from an error, defaulting to other.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindOther
}

// Repairable reports whether the cascade may act on this failure kind.
// Transport-fatal errors are never repairable.
func Repairable(kind ErrorKind) bool {
	switch kind {
	case KindJSONParse, KindSchema, KindPlaceholder:
		return true
	default:
		return false
	}
}
