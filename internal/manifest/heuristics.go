package manifest

import (
	"path"
	"regexp"
	"strings"
)

// Placeholder patterns models use to elide file bodies. A file matching any
// of these is partial content and the whole manifest is rejected. The list is
// fuzzy on purpose; false positives are an accepted trade-off.
var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\.\.\.\s*(rest|remainder|remaining|existing)\b`),
	regexp.MustCompile(`(?i)\brest of (the )?(file|code)\b`),
	regexp.MustCompile(`(?i)\b(file|code|content|implementation) (remains |is )?unchanged\b`),
	regexp.MustCompile(`(?im)^\s*(//|#)\s*\.\.\.\s*$`),
	regexp.MustCompile(`(?i)\[\s*\.\.\.\s*\]`),
	regexp.MustCompile(`(?i)<\s*(placeholder|omitted|truncated)\s*>`),
}

// IsPlaceholder reports whether file content matches a known elision pattern.
func IsPlaceholder(content string) bool {
	for _, re := range placeholderPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// NormalizePath canonicalizes a manifest path for duplicate detection:
// backslashes become slashes, surrounding space and a leading "./" are
// stripped, and the result is case-folded.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return strings.ToLower(p)
}

// Truncation fingerprints in JSON parse errors.
var truncationErrPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unexpected end of (JSON )?input`),
	regexp.MustCompile(`(?i)unterminated string`),
	regexp.MustCompile(`(?i)unexpected EOF`),
}

// LooksTruncated decides heuristically whether a parse failure stems from a
// length-limited response: either the provider reported a length stop, or the
// parse error text matches a truncation fingerprint.
func LooksTruncated(finishReason string, parseErr error) bool {
	if finishReason == "length" {
		return true
	}
	if parseErr == nil {
		return false
	}
	msg := parseErr.Error()
	for _, re := range truncationErrPatterns {
		if re.MatchString(msg) {
			return true
		}
	}
	return false
}

// JSONSpan returns the outermost {...} span of text, tolerating stray prose
// before and after the object. ok is false when no span exists.
func JSONSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
