// Package oracle calls the external build/test boundary that is the ground
// truth for whether generated code is correct, and layers the deterministic
// fallback tiers on top of it.
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/animus-coder/oraclebench/internal/scenario"
	"github.com/animus-coder/oraclebench/internal/workspace"
)

// CommandResult carries the outcome of one oracle command.
type CommandResult struct {
	Command  string        `json:"command"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timedOut"`
}

// ValidationResult is produced fresh on every validation call and never
// mutated afterward.
type ValidationResult struct {
	OK          bool            `json:"ok"`
	Diagnostics []string        `json:"diagnostics"`
	Commands    []CommandResult `json:"commands"`
}

// Runner executes a scenario's oracle commands against a working tree.
type Runner struct {
	Scenario *scenario.Scenario
	Tree     *workspace.Tree
	Timeout  time.Duration // per-command default
	Logger   *zap.Logger
}

// Validate installs the oracle files, fast-fails on fatal contract
// signatures, then runs the scenario commands in sequence. The returned
// error is reserved for infrastructure failures (unsafe paths, unwritable
// tree); an oracle failure is a non-OK result, not an error.
func (r *Runner) Validate(ctx context.Context) (*ValidationResult, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for path, content := range r.Scenario.OracleFiles {
		if err := r.Tree.WriteFile(path, content); err != nil {
			return nil, fmt.Errorf("install oracle file %s: %w", path, err)
		}
	}

	// Contract scan first: a missing required file or wrong export shape
	// cannot pass the commands, so skip them entirely.
	if diags := r.contractScan(); len(diags) > 0 {
		logger.Debug("oracle fast-fail on contract scan", zap.Strings("diagnostics", diags))
		return &ValidationResult{OK: false, Diagnostics: diags}, nil
	}

	result := &ValidationResult{OK: true}
	for _, cmd := range r.Scenario.Commands {
		cmdResult := r.runCommand(ctx, cmd)
		result.Commands = append(result.Commands, cmdResult)

		if cmdResult.ExitCode != 0 || cmdResult.TimedOut {
			result.OK = false
			result.Diagnostics = append(result.Diagnostics, commandDiagnostics(cmd.Name, cmdResult)...)
			break
		}
	}
	return result, nil
}

func (r *Runner) contractScan() []string {
	var diags []string
	for _, required := range r.Scenario.RequiredFiles {
		if !r.Tree.Exists(required) {
			diags = append(diags, "missing required file: "+required)
		}
	}
	for _, check := range r.Scenario.ContractChecks {
		content, err := r.Tree.ReadFile(check.Path)
		if err != nil {
			continue // missing file already reported above
		}
		if !strings.Contains(content, check.MustContain) {
			diags = append(diags, check.Diagnostic)
		}
	}
	return diags
}

// runCommand executes one command in the tree with a timeout, killing the
// whole process group on cancellation so no child survives a forced stop.
func (r *Runner) runCommand(ctx context.Context, cmd scenario.Command) CommandResult {
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = r.Timeout
	}
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(cmdCtx, cmd.Argv[0], cmd.Argv[1:]...)
	execCmd.Dir = r.Tree.Root()
	execCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	execCmd.Cancel = func() error {
		if execCmd.Process == nil {
			return nil
		}
		return syscall.Kill(-execCmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	start := time.Now()
	err := execCmd.Run()
	duration := time.Since(start)

	result := CommandResult{
		Command:  strings.Join(cmd.Argv, " "),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
		TimedOut: errors.Is(cmdCtx.Err(), context.DeadlineExceeded),
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			result.Stderr = strings.TrimSpace(result.Stderr + "\n" + err.Error())
		}
	}
	return result
}

// commandDiagnostics distills a failing command into diagnostic lines.
func commandDiagnostics(name string, res CommandResult) []string {
	diags := []string{fmt.Sprintf("command %s failed with exit code %d", name, res.ExitCode)}
	if res.TimedOut {
		diags = append(diags, fmt.Sprintf("command %s timed out after %s", name, res.Duration.Round(time.Millisecond)))
	}
	for _, line := range lastLines(res.Stderr, 20) {
		diags = append(diags, line)
	}
	if strings.TrimSpace(res.Stderr) == "" {
		for _, line := range lastLines(res.Stdout, 20) {
			diags = append(diags, line)
		}
	}
	return diags
}

func lastLines(s string, n int) []string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
