//go:build integration

package tier1

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"refsync/internal/config"
	"refsync/internal/engine"
	"refsync/internal/registry"
	"refsync/internal/session"
	"refsync/internal/store"
)

// Harness drives complete interactive sessions against a scratch manifest
// and target tree, one session per RunSession call, the way a user would
// run `refsync run` repeatedly.
type Harness struct {
	t        *testing.T
	dir      string
	manifest string
}

// NewHarness creates a harness rooted in a fresh temp directory
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	dir := t.TempDir()
	return &Harness{
		t:        t,
		dir:      dir,
		manifest: filepath.Join(dir, "manifest.yaml"),
	}
}

// Path resolves a name inside the harness directory
func (h *Harness) Path(name string) string {
	return filepath.Join(h.dir, name)
}

// WriteManifest writes the manifest head. Any embedded archive a previous
// session appended is preserved.
func (h *Harness) WriteManifest(head string) {
	h.t.Helper()
	var payload string
	if prev, err := os.ReadFile(h.manifest); err == nil {
		if i := strings.Index(string(prev), config.DefaultSentinel); i >= 0 {
			payload = string(prev)[i:]
		}
	}
	if payload != "" && !strings.HasSuffix(head, "\n") {
		head += "\n"
	}
	if err := os.WriteFile(h.manifest, []byte(head+payload), 0o644); err != nil {
		h.t.Fatal(err)
	}
}

// WriteFile writes a target file and returns its absolute path
func (h *Harness) WriteFile(name, content string) string {
	h.t.Helper()
	path := h.Path(name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// ReadFile reads a target file
func (h *Harness) ReadFile(name string) string {
	h.t.Helper()
	data, err := os.ReadFile(h.Path(name))
	if err != nil {
		h.t.Fatal(err)
	}
	return string(data)
}

// FileExists checks for a file inside the harness directory
func (h *Harness) FileExists(name string) bool {
	_, err := os.Stat(h.Path(name))
	return err == nil
}

// RunSession loads the manifest, opens the embedded store and drives one
// full interactive session with the scripted input. Returns the menu
// output.
func (h *Harness) RunSession(ctx context.Context, input string) (string, error) {
	h.t.Helper()

	cfg, err := config.Load(h.manifest)
	if err != nil {
		return "", fmt.Errorf("load manifest: %w", err)
	}
	reg, err := registry.FromConfig(cfg)
	if err != nil {
		return "", fmt.Errorf("build registry: %w", err)
	}
	st, err := store.Open(cfg.Path, cfg.Sentinel())
	if err != nil {
		return "", fmt.Errorf("open store: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	eng := engine.New(st, nil, nil, logger, false)

	var out bytes.Buffer
	sess := session.New(reg, eng, st, strings.NewReader(input), &out, logger)
	if err := sess.Run(ctx); err != nil {
		return out.String(), err
	}
	return out.String(), nil
}

// MustRunSession runs a session and fails the test on error
func (h *Harness) MustRunSession(ctx context.Context, input string) string {
	h.t.Helper()
	out, err := h.RunSession(ctx, input)
	if err != nil {
		h.t.Fatalf("session failed: %v\noutput:\n%s", err, out)
	}
	return out
}
