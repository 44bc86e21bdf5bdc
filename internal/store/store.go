// Package store implements the reference store: the last-known content of
// every managed file, embedded in the manifest file as an archive after a
// sentinel line. For the session's lifetime the entries live as plain files
// in a scratch directory; mutations mark the store dirty and FlushIfDirty
// splices the repacked archive back into the manifest at teardown.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"refsync/internal/archive"
)

// Store is the session-wide reference store
type Store struct {
	hostPath string
	sentinel string
	dir      string
	dirty    bool
}

// Open reads the host file and extracts the embedded archive into a scratch
// directory. A missing host file or an absent payload yields an empty store;
// an unreadable host file or corrupt payload is fatal.
func Open(hostPath, sentinel string) (*Store, error) {
	dir, err := os.MkdirTemp("", "refsync-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	s := &Store{hostPath: hostPath, sentinel: sentinel, dir: dir}

	data, err := os.ReadFile(hostPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		_ = s.Close()
		return nil, fmt.Errorf("reference store unavailable: %w", err)
	}

	_, payload, _, err := archive.Split(data, sentinel)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("reference store unavailable: %w", err)
	}
	if payload == nil {
		return s, nil
	}

	if err := archive.Unpack(payload, dir); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("reference store unavailable: %w", err)
	}
	return s, nil
}

// Get returns the stored content for an identifier. Absent entries are
// (nil, false, nil) so callers can treat them as empty without branching on
// errors.
func (s *Store) Get(id string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.EntryPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put stores content for an identifier and marks the store dirty
func (s *Store) Put(id string, content []byte) error {
	if err := os.WriteFile(s.EntryPath(id), content, 0o644); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Delete removes an entry. Deleting an absent entry is a no-op and does not
// dirty the store.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.EntryPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	s.dirty = true
	return nil
}

// Has reports whether an entry exists for the identifier
func (s *Store) Has(id string) bool {
	_, err := os.Stat(s.EntryPath(id))
	return err == nil
}

// EntryPath returns the scratch-directory file backing an entry. External
// editors operate on this path directly; callers must MarkDirty afterward.
func (s *Store) EntryPath(id string) string {
	return filepath.Join(s.dir, id)
}

// MarkDirty flags the store for persistence at teardown
func (s *Store) MarkDirty() {
	s.dirty = true
}

// Dirty reports whether the store has unpersisted changes
func (s *Store) Dirty() bool {
	return s.dirty
}

// FlushIfDirty persists all entries back into the host file when dirty.
// The archive replaces any prior payload after the sentinel, the previous
// host file is kept as <host>.bak, and the write is atomic. On failure the
// dirty flag stays set. Returns the host path when a write happened.
func (s *Store) FlushIfDirty() (string, error) {
	if !s.dirty {
		return "", nil
	}

	var head []byte
	prev, err := os.ReadFile(s.hostPath)
	switch {
	case err == nil:
		head, _, _, err = archive.Split(prev, s.sentinel)
		if err != nil {
			return "", fmt.Errorf("failed to persist reference store: %w", err)
		}
	case os.IsNotExist(err):
		prev = nil
	default:
		return "", fmt.Errorf("failed to persist reference store: %w", err)
	}

	payload, err := archive.Pack(s.dir)
	if err != nil {
		return "", fmt.Errorf("failed to persist reference store: %w", err)
	}

	if prev != nil {
		if err := copyFile(s.hostPath, s.hostPath+".bak"); err != nil {
			return "", fmt.Errorf("failed to back up %s: %w", s.hostPath, err)
		}
	}

	if err := writeFileAtomic(s.hostPath, archive.Join(head, s.sentinel, payload)); err != nil {
		return "", fmt.Errorf("failed to persist reference store: %w", err)
	}

	s.dirty = false
	return s.hostPath, nil
}

// Close removes the scratch directory. Safe to call on every exit path.
func (s *Store) Close() error {
	if s.dir == "" {
		return nil
	}
	err := os.RemoveAll(s.dir)
	s.dir = ""
	return err
}

// writeFileAtomic writes data via a temp file in the destination directory
// followed by a rename, so readers never observe a partial host file.
func writeFileAtomic(dst string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".refsync-tmp-*")
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
	return os.Rename(tmpPath, dst)
}

// copyFile copies src to dst, preserving the source mode
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return err
	}
	return dstFile.Close()
}
