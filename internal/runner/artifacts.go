package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ArtifactWriter persists per-iteration run artifacts (prompt, raw response,
// manifest, write report, validation result, parse report) plus the final
// run summary, one document per artifact.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter creates the artifact directory for one run.
func NewArtifactWriter(root, runID string) (*ArtifactWriter, error) {
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &ArtifactWriter{dir: dir}, nil
}

// Dir returns the run's artifact directory.
func (w *ArtifactWriter) Dir() string {
	return w.dir
}

func (w *ArtifactWriter) iterationDir(iteration int) (string, error) {
	dir := filepath.Join(w.dir, fmt.Sprintf("iter_%02d", iteration))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create iteration dir: %w", err)
	}
	return dir, nil
}

// WriteText stores a text artifact for one iteration.
func (w *ArtifactWriter) WriteText(iteration int, name, content string) error {
	dir, err := w.iterationDir(iteration)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// WriteJSON stores a JSON artifact for one iteration.
func (w *ArtifactWriter) WriteJSON(iteration int, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	return w.WriteText(iteration, name, string(data))
}

// WriteSummary stores the top-level run summary document.
func (w *ArtifactWriter) WriteSummary(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, "summary.json"), data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
