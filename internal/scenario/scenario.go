// Package scenario defines the evaluation scenarios: the generation prompt,
// the file contract, the oracle commands, and the deterministic-fallback
// material (targeted patches and a canonical reference implementation).
package scenario

import (
	"fmt"
	"sort"
	"time"
)

// Command is one oracle shell command, run in the working tree.
type Command struct {
	Name    string
	Argv    []string
	Timeout time.Duration // 0 uses the pipeline default
}

// ContractCheck is a fast-fail signature scanned before any command runs:
// the named file must exist and contain the given substring.
type ContractCheck struct {
	Path        string
	MustContain string
	Diagnostic  string
}

// TargetedPatch is a minimal deterministic repair keyed off a diagnostic
// signature. When Find is empty the whole file is (re)written with Content;
// otherwise Find is replaced with Replace inside the existing file.
type TargetedPatch struct {
	Name      string
	Signature string // diagnostic substring that activates the patch
	Path      string
	Find      string
	Replace   string
	Content   string
}

// Scenario describes one machine-checkable evaluation contract.
type Scenario struct {
	Name            string
	Description     string
	System          string
	Prompt          string
	RequiredFiles   []string
	ContractChecks  []ContractCheck
	OracleFiles     map[string]string // installed into the tree before validation
	Commands        []Command
	CanonicalFiles  map[string]string // known-good reference implementation
	TargetedPatches []TargetedPatch
	ChecklistHints  map[string]string // diagnostic substring -> repair hint
}

var registry = map[string]*Scenario{}

func register(s *Scenario) {
	registry[s.Name] = s
}

// Get returns a registered scenario by name.
func Get(name string) (*Scenario, error) {
	s, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q (available: %v)", name, Names())
	}
	return s, nil
}

// Names lists registered scenarios in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
