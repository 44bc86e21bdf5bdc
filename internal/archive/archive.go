// Package archive handles the embedded reference payload: splitting a host
// file into a text head and an archive payload at a sentinel line, and
// packing/unpacking the payload as a deterministic zip wrapped in base64 so
// the host file stays editor- and VCS-safe.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// fixedZipTime ensures byte-for-byte reproducible archives (1980-01-01 UTC).
var fixedZipTime = time.Unix(315532800, 0).UTC()

// wrapWidth is the base64 line width used when embedding the payload.
const wrapWidth = 76

// Split separates a host file into the text head (everything up to and
// excluding the sentinel line) and the decoded archive payload that follows
// it. found is false when the sentinel does not occur; head is then the
// whole input and payload is nil.
func Split(data []byte, sentinel string) (head, payload []byte, found bool, err error) {
	lines := strings.SplitAfter(string(data), "\n")
	for i, line := range lines {
		if strings.TrimRight(line, "\r\n") == sentinel {
			head = []byte(strings.Join(lines[:i], ""))
			encoded := strings.Join(lines[i+1:], "")
			encoded = strings.Map(dropSpace, encoded)
			if encoded == "" {
				return head, nil, true, nil
			}
			payload, err = base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, nil, true, fmt.Errorf("decode embedded payload: %w", err)
			}
			return head, payload, true, nil
		}
	}
	return data, nil, false, nil
}

// Join reassembles a host file from head, sentinel and payload. The head is
// terminated with a newline if it does not already end in one, so the
// sentinel always sits on its own line.
func Join(head []byte, sentinel string, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(head)
	if len(head) > 0 && head[len(head)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(sentinel)
	buf.WriteByte('\n')

	encoded := base64.StdEncoding.EncodeToString(payload)
	for len(encoded) > wrapWidth {
		buf.WriteString(encoded[:wrapWidth])
		buf.WriteByte('\n')
		encoded = encoded[wrapWidth:]
	}
	buf.WriteString(encoded)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// Pack archives every regular file under dir into a deterministic zip:
// sorted entries, forward-slash relative names, fixed timestamps.
func Pack(dir string) ([]byte, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, path := range paths {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil, err
		}
		h := &zip.FileHeader{Name: sanitizeName(rel), Method: zip.Deflate}
		h.SetMode(0o644)
		h.Modified = fixedZipTime
		w, err := zw.CreateHeader(h)
		if err != nil {
			return nil, fmt.Errorf("create entry %s: %w", rel, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("write entry %s: %w", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unpack extracts a zip payload into dir. Entry names are sanitized so no
// entry can escape dir.
func Unpack(data []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	for _, f := range zr.File {
		name := sanitizeName(f.Name)
		dest := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// sanitizeName normalizes a zip entry name: forward slashes, no drive, no
// leading '/', and no '.' or '..' segments escaping the root.
func sanitizeName(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	s = strings.Join(stack, "/")
	if s == "" {
		return "entry"
	}
	return s
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\t', '\r', '\n':
		return -1
	}
	return r
}
