package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/animus-coder/oraclebench/internal/manifest"
)

// Tree is the artifact tree owned by a single evaluation run.
type Tree struct {
	guard *Guard
}

// WriteReport records what one manifest application touched.
type WriteReport struct {
	Mode      manifest.Mode `json:"mode"`
	ResetTree bool          `json:"resetTree"`
	Files     []string      `json:"files"`
}

// NewTree creates (if needed) and wraps the working directory at root.
func NewTree(root string) (*Tree, error) {
	guard, err := NewGuard(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(guard.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create working tree: %w", err)
	}
	return &Tree{guard: guard}, nil
}

// Root returns the absolute working directory.
func (t *Tree) Root() string {
	return t.guard.BaseDir
}

// Apply writes a manifest into the tree. Full manifests reset the entire tree
// before writing unless asPatch demotes them; patch manifests merge onto the
// existing tree.
func (t *Tree) Apply(m *manifest.Manifest, asPatch bool) (*WriteReport, error) {
	mode := m.Mode
	if asPatch {
		mode = manifest.ModePatch
	}

	report := &WriteReport{Mode: mode, Files: make([]string, 0, len(m.Files))}

	if mode == manifest.ModeFull {
		if err := t.Reset(); err != nil {
			return nil, err
		}
		report.ResetTree = true
	}

	for _, f := range m.Files {
		if err := t.WriteFile(f.Path, f.Content); err != nil {
			return nil, err
		}
		report.Files = append(report.Files, f.Path)
	}
	return report, nil
}

// Reset removes every entry under the tree root, keeping the root itself.
func (t *Tree) Reset() error {
	entries, err := os.ReadDir(t.guard.BaseDir)
	if err != nil {
		return fmt.Errorf("reset tree: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(t.guard.BaseDir, e.Name())); err != nil {
			return fmt.Errorf("reset tree: %w", err)
		}
	}
	return nil
}

// WriteFile writes one file, creating parent directories.
func (t *Tree) WriteFile(rel, content string) error {
	abs, err := t.guard.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// ReadFile returns the content of a file inside the tree.
func (t *Tree) ReadFile(rel string) (string, error) {
	abs, err := t.guard.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Exists reports whether a file exists inside the tree.
func (t *Tree) Exists(rel string) bool {
	abs, err := t.guard.Resolve(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && !info.IsDir()
}
