// Package workspace owns the working directory an evaluation run writes
// generated artifacts into. Path handling is strict: an unsafe path is a
// contract violation no repair prompt can fix, so it aborts the run.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath marks a path that escapes or otherwise violates the working
// tree. It is always fatal and never retried.
var ErrUnsafePath = errors.New("unsafe path")

// Guard ensures file operations stay within a base directory.
type Guard struct {
	BaseDir string
}

// NewGuard constructs a guard rooted at baseDir (defaults to current working directory).
func NewGuard(baseDir string) (*Guard, error) {
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &Guard{BaseDir: absBase}, nil
}

// Resolve validates and returns an absolute path inside BaseDir.
func (g *Guard) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("%w: empty path", ErrUnsafePath)
	}
	p = strings.ReplaceAll(p, `\`, "/")
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, p)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: path %q escapes base directory", ErrUnsafePath, p)
	}
	abs := filepath.Clean(filepath.Join(g.BaseDir, clean))

	if !strings.HasPrefix(abs, g.BaseDir+string(os.PathSeparator)) && abs != g.BaseDir {
		return "", fmt.Errorf("%w: path %q escapes base directory", ErrUnsafePath, p)
	}
	return abs, nil
}
