package oracle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/animus-coder/oraclebench/internal/observability"
	"github.com/animus-coder/oraclebench/internal/scenario"
	"github.com/animus-coder/oraclebench/internal/workspace"
)

// FallbackMode controls when the deterministic tiers engage.
type FallbackMode string

const (
	FallbackOff    FallbackMode = "off"
	FallbackOnFail FallbackMode = "on-fail"
	FallbackAlways FallbackMode = "always"
)

// ParseFallbackMode validates a mode string.
func ParseFallbackMode(s string) (FallbackMode, error) {
	switch FallbackMode(strings.ToLower(strings.TrimSpace(s))) {
	case FallbackOff:
		return FallbackOff, nil
	case FallbackOnFail:
		return FallbackOnFail, nil
	case FallbackAlways:
		return FallbackAlways, nil
	default:
		return "", fmt.Errorf("invalid fallback mode %q (want off, on-fail, or always)", s)
	}
}

// TierStats counts one fallback tier's activity.
type TierStats struct {
	Activations int `json:"activations"`
	Recoveries  int `json:"recoveries"`
}

// FallbackStats is initialized once per run, mutated exactly once per
// validation call, and serialized at end of run. The raw counters are the
// ground truth for whether the model itself succeeded.
type FallbackStats struct {
	Scenario            string    `json:"scenario"`
	RawPasses           int       `json:"rawPasses"`
	RawFailures         int       `json:"rawFailures"`
	Targeted            TierStats `json:"targeted"`
	Canonical           TierStats `json:"canonical"`
	RecoveredByFallback int       `json:"recoveredByFallback"`
}

// DependencyRate is the fraction of validation calls whose pass required
// deterministic fallback rather than raw model output.
func (s *FallbackStats) DependencyRate() float64 {
	total := s.RawPasses + s.RawFailures
	if total == 0 {
		return 0
	}
	return float64(s.RecoveredByFallback) / float64(total)
}

// Fallback wraps a Runner with the two deterministic repair tiers.
type Fallback struct {
	Runner  *Runner
	Stats   *FallbackStats
	Metrics *observability.Metrics
	Logger  *zap.Logger
}

// Validate always runs the raw oracle first and records it; depending on
// mode it then escalates through the targeted tier (signature-matched
// minimal patches) and the canonical tier (known-good template), re-running
// the oracle after each.
func (f *Fallback) Validate(ctx context.Context, mode FallbackMode) (*ValidationResult, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	raw, err := f.Runner.Validate(ctx)
	if err != nil {
		return nil, err
	}
	if raw.OK {
		f.Stats.RawPasses++
	} else {
		f.Stats.RawFailures++
	}

	if mode == FallbackOff || (mode == FallbackOnFail && raw.OK) {
		return raw, nil
	}

	result := raw
	recovered := false

	// Targeted tier: only when a known failure signature matches.
	if patches := matchPatches(f.Runner.Scenario, result.Diagnostics); len(patches) > 0 {
		f.Stats.Targeted.Activations++
		logger.Info("deterministic fallback: targeted tier", zap.Int("patches", len(patches)))
		if err := applyPatches(f.Runner.Tree, patches); err != nil {
			return nil, err
		}
		retry, err := f.Runner.Validate(ctx)
		if err != nil {
			return nil, err
		}
		if retry.OK && !raw.OK {
			f.Stats.Targeted.Recoveries++
			f.Stats.RecoveredByFallback++
			recovered = true
		}
		f.Metrics.RecordFallbackTier("targeted", recovered)
		result = retry
	}

	if result.OK && mode != FallbackAlways {
		return result, nil
	}

	// Canonical tier: overwrite the scenario's core files with the reference
	// implementation, leaving files outside the required set alone.
	f.Stats.Canonical.Activations++
	logger.Info("deterministic fallback: canonical tier", zap.String("scenario", f.Runner.Scenario.Name))
	for path, content := range f.Runner.Scenario.CanonicalFiles {
		if err := f.Runner.Tree.WriteFile(path, content); err != nil {
			return nil, err
		}
	}
	final, err := f.Runner.Validate(ctx)
	if err != nil {
		return nil, err
	}
	canonicalRecovered := final.OK && !raw.OK
	if canonicalRecovered {
		f.Stats.Canonical.Recoveries++
		if !recovered {
			f.Stats.RecoveredByFallback++
		}
	}
	f.Metrics.RecordFallbackTier("canonical", canonicalRecovered)
	return final, nil
}

func matchPatches(s *scenario.Scenario, diagnostics []string) []scenario.TargetedPatch {
	joined := strings.Join(diagnostics, "\n")
	var matched []scenario.TargetedPatch
	for _, patch := range s.TargetedPatches {
		if strings.Contains(joined, patch.Signature) {
			matched = append(matched, patch)
		}
	}
	return matched
}

func applyPatches(tree *workspace.Tree, patches []scenario.TargetedPatch) error {
	for _, patch := range patches {
		if patch.Find == "" {
			if err := tree.WriteFile(patch.Path, patch.Content); err != nil {
				return err
			}
			continue
		}
		content, err := tree.ReadFile(patch.Path)
		if err != nil {
			continue // file absent; nothing for a replacement patch to do
		}
		if !strings.Contains(content, patch.Find) {
			continue
		}
		if err := tree.WriteFile(patch.Path, strings.ReplaceAll(content, patch.Find, patch.Replace)); err != nil {
			return err
		}
	}
	return nil
}
