// Package tools provides the external collaborators of the action engine:
// a diff tool for compare and an interactive editor for edit. Both are
// interfaces so tests can substitute fakes for the real commands.
package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// DiffTool produces a textual diff between two contents. An empty result
// means "no difference".
type DiffTool interface {
	Diff(ctx context.Context, label string, a, b []byte) (string, error)
}

// EditTool opens the current file and the reference entry side by side in
// an interactive two-way editor, blocking until the editor exits.
type EditTool interface {
	Edit(ctx context.Context, currentPath, refPath string) error
}

// UnifiedDiff is the built-in DiffTool. It produces classic unified output
// (---/+++ headers, @@ hunks) without shelling out.
type UnifiedDiff struct {
	// Context is the number of context lines per hunk. 0 means 3.
	Context int
}

// Diff returns a unified diff of a against b, or "" when they are equal.
func (d UnifiedDiff) Diff(_ context.Context, label string, a, b []byte) (string, error) {
	ctx := d.Context
	if ctx <= 0 {
		ctx = 3
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: "a/" + label,
		ToFile:   "b/" + label,
		Context:  ctx,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", fmt.Errorf("unified diff failed: %w", err)
	}
	return s, nil
}

// ShellDiff implements DiffTool by running an external line-oriented diff
// command (e.g. ["diff", "-u"]) against two temp files.
type ShellDiff struct {
	Argv []string
}

// NewShellDiff creates a diff tool for the given command vector
func NewShellDiff(argv []string) *ShellDiff {
	return &ShellDiff{Argv: argv}
}

// Diff writes both sides to temp files and runs the command. Exit status 1
// means "differences found", not failure; any other failure is returned as
// an error for the caller to degrade.
func (d *ShellDiff) Diff(ctx context.Context, label string, a, b []byte) (string, error) {
	if len(d.Argv) == 0 {
		return "", fmt.Errorf("diff command not configured")
	}

	dir, err := os.MkdirTemp("", "refsync-diff-*")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()

	aPath := filepath.Join(dir, "a")
	bPath := filepath.Join(dir, "b")
	if err := os.WriteFile(aPath, a, 0o600); err != nil {
		return "", err
	}
	if err := os.WriteFile(bPath, b, 0o600); err != nil {
		return "", err
	}

	args := append(append([]string{}, d.Argv[1:]...), aPath, bPath)
	cmd := exec.CommandContext(ctx, d.Argv[0], args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			// Conventional "files differ" status.
			return string(output), nil
		}
		return "", fmt.Errorf("%s failed: %w", d.Argv[0], err)
	}
	return string(output), nil
}

// ShellEdit implements EditTool by running an external two-way merge
// command (e.g. ["vimdiff"]) attached to the session terminal.
type ShellEdit struct {
	Argv []string
}

// NewShellEdit creates an edit tool for the given command vector
func NewShellEdit(argv []string) *ShellEdit {
	return &ShellEdit{Argv: argv}
}

// Edit runs the editor on both paths, inheriting the terminal, and blocks
// until it exits.
func (e *ShellEdit) Edit(ctx context.Context, currentPath, refPath string) error {
	if len(e.Argv) == 0 {
		return fmt.Errorf("edit command not configured")
	}

	args := append(append([]string{}, e.Argv[1:]...), currentPath, refPath)
	cmd := exec.CommandContext(ctx, e.Argv[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", e.Argv[0], err)
	}
	return nil
}

// splitLinesKeepNL splits into lines keeping the trailing newline on each
// element, which produces better unified hunks.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	// SplitAfter keeps the "\n" at the end of each element. When the input
	// ends with a newline the final element is empty and dropped.
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
