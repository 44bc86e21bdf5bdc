// Package engine implements the per-file synchronization actions: compare,
// patch, import, edit and forget. Each action works on one managed file,
// reading its current on-disk state and its reference entry, and reports
// per-file errors without aborting the batch it runs in.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"refsync/internal/registry"
	"refsync/internal/store"
	"refsync/internal/tools"
)

// Engine executes synchronization actions against managed files
type Engine struct {
	store    *store.Store
	diff     tools.DiffTool
	fallback tools.DiffTool
	edit     tools.EditTool
	logger   *slog.Logger
	dryRun   bool
}

// New creates an action engine. diff may be nil, in which case the built-in
// unified diff is used; edit may be nil, disabling the edit action.
func New(st *store.Store, diff tools.DiffTool, edit tools.EditTool, logger *slog.Logger, dryRun bool) *Engine {
	builtin := tools.UnifiedDiff{}
	if diff == nil {
		diff = builtin
	}
	return &Engine{
		store:    st,
		diff:     diff,
		fallback: builtin,
		edit:     edit,
		logger:   logger,
		dryRun:   dryRun,
	}
}

// Compare produces a diff between the file's current relevant slice and its
// reference entry. Absent files, absent marker blocks and absent entries
// all read as empty; an empty result means "no difference". Read-only.
func (e *Engine) Compare(ctx context.Context, f registry.ManagedFile) (string, error) {
	current, err := e.currentSlice(f)
	if err != nil {
		return "", err
	}
	ref, _, err := e.store.Get(f.ID())
	if err != nil {
		return "", fmt.Errorf("read reference for %s: %w", f.Path, err)
	}

	out, err := e.diff.Diff(ctx, f.Path, current, ref)
	if err != nil {
		if e.diff == e.fallback {
			return "", err
		}
		// A broken external diff degrades to the built-in one rather than
		// failing the compare.
		e.logger.Warn("external diff failed, using built-in diff", "path", f.Path, "error", err)
		return e.fallback.Diff(ctx, f.Path, current, ref)
	}
	return out, nil
}

// Patch applies the reference entry onto the target file. Patch targets get
// the block interior replaced (or a fresh block inserted per placement);
// copy targets are overwritten whole. The file is created when absent and
// a backup of the pre-patch file is kept alongside it.
func (e *Engine) Patch(_ context.Context, f registry.ManagedFile) error {
	ref, exists, err := e.store.Get(f.ID())
	if err != nil {
		return fmt.Errorf("read reference for %s: %w", f.Path, err)
	}

	var updated string
	switch f.Kind {
	case registry.KindCopy:
		if !exists {
			return fmt.Errorf("no reference entry for %s", f.Path)
		}
		updated = string(ref)

	case registry.KindPatch:
		current, _, err := readFile(f.Path)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Path, err)
		}
		_, found, err := extractBlock(current, f.Begin, f.End)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
		if found {
			updated, err = replaceBlock(current, f.Begin, f.End, string(ref))
			if err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
		} else {
			updated = insertBlock(current, f.Begin, f.End, string(ref), f.Placement)
		}

	default:
		return fmt.Errorf("unknown kind %q for %s", f.Kind, f.Path)
	}

	if e.dryRun {
		e.logger.Info("[dry-run] would patch", "path", f.Path)
		return nil
	}

	if err := writeFileWithBackup(f.Path, []byte(updated)); err != nil {
		return fmt.Errorf("write %s: %w", f.Path, err)
	}
	e.logger.Info("patched", "path", f.Path, "kind", f.Kind)
	return nil
}

// Import captures the file's current relevant slice into the reference
// store. A missing source file is a per-file error; the batch continues.
func (e *Engine) Import(_ context.Context, f registry.ManagedFile) error {
	_, exists, err := readFile(f.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.Path, err)
	}
	if !exists {
		return fmt.Errorf("source file missing: %s", f.Path)
	}

	slice, err := e.currentSlice(f)
	if err != nil {
		return err
	}

	if e.dryRun {
		e.logger.Info("[dry-run] would import", "path", f.Path, "bytes", len(slice))
		return nil
	}

	if err := e.store.Put(f.ID(), slice); err != nil {
		return fmt.Errorf("store %s: %w", f.Path, err)
	}
	e.logger.Info("imported", "path", f.Path, "bytes", len(slice))
	return nil
}

// Edit opens the current file and its reference entry side by side in the
// external editor and blocks until it exits. The editor's own failure is
// swallowed; the store is marked dirty regardless, since an edit session is
// assumed to possibly have changed the entry.
func (e *Engine) Edit(ctx context.Context, f registry.ManagedFile) error {
	if e.edit == nil {
		return fmt.Errorf("no edit tool configured")
	}
	if e.dryRun {
		e.logger.Info("[dry-run] would edit", "path", f.Path)
		return nil
	}

	entryPath := e.store.EntryPath(f.ID())
	if !e.store.Has(f.ID()) {
		// Seed an empty entry so the editor has a file to open.
		if err := os.WriteFile(entryPath, nil, 0o644); err != nil {
			return fmt.Errorf("seed reference for %s: %w", f.Path, err)
		}
	}

	if err := e.edit.Edit(ctx, f.Path, entryPath); err != nil {
		// Never abort the batch over an editor exit code.
		e.logger.Warn("editor exited with error", "path", f.Path, "error", err)
	}
	e.store.MarkDirty()
	e.logger.Info("edited", "path", f.Path)
	return nil
}

// Forget deletes the file's reference entry. The on-disk target file is
// untouched; forgetting an untracked file is a no-op.
func (e *Engine) Forget(_ context.Context, f registry.ManagedFile) error {
	if e.dryRun {
		e.logger.Info("[dry-run] would forget", "path", f.Path)
		return nil
	}
	if err := e.store.Delete(f.ID()); err != nil {
		return fmt.Errorf("forget %s: %w", f.Path, err)
	}
	e.logger.Info("forgot", "path", f.Path)
	return nil
}

// Tracked reports whether the file has a reference entry
func (e *Engine) Tracked(f registry.ManagedFile) bool {
	return e.store.Has(f.ID())
}

// currentSlice reads the file content relevant to synchronization: the text
// strictly between the markers for patch targets (empty when the file or
// the block is absent), the whole file for copy targets.
func (e *Engine) currentSlice(f registry.ManagedFile) ([]byte, error) {
	content, exists, err := readFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	if !exists {
		return nil, nil
	}

	if f.Kind == registry.KindCopy {
		return []byte(content), nil
	}

	inner, _, err := extractBlock(content, f.Begin, f.End)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return []byte(inner), nil
}

// readFile reads a file, reporting absence separately from failure
func readFile(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// writeFileWithBackup writes the file atomically, keeping the pre-write
// content as <path>.bak when the file already existed.
func writeFileWithBackup(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", prev, 0o644); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".refsync-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
